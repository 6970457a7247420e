// Package respond padroniza o corpo JSON das rejeições do pipeline:
//
//	{"success": false, "message": "..."}
package respond

import (
	"encoding/json"
	"net/http"
)

type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Mensagens fixas expostas ao cliente.
const (
	MsgRateLimited        = "Rate limit exceeded for tier"
	MsgFeatureUnavailable = "Feature not available on your plan"
	MsgLookupUnavailable  = "Plan lookup unavailable"
	MsgTenantRequired     = "Tenant identifier required"
	MsgUnauthorized       = "Unauthorized"
	MsgForbidden          = "Forbidden"
	MsgTenantMismatch     = "Tenant mismatch"
	MsgServerBusy         = "Server busy"
	MsgInternal           = "Internal server error"
	MsgNotFound           = "Endpoint not found"
	MsgMethodNotAllowed   = "Method not allowed"
	MsgBadGateway         = "Upstream unavailable"
)

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Body{Success: false, Message: message})
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
