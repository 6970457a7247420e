// Backend falso para validar o gateway manualmente:
//
//	GATEWAY_UPSTREAM_URL=http://localhost:3000 go run ./cmd/gateway
//
// Responde qualquer rota /api/* ecoando o tenant e o request id recebidos do
// gateway, para conferir o que chega ao upstream.
package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"tenant-gateway/middleware/respond"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func newHandler(logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/showTela", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
	})
	r.PathPrefix("/api/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tenantID := req.Header.Get("X-Tenant-Id")
		logger.Info("upstream hit",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("tenant_id", tenantID),
			zap.String("request_id", req.Header.Get("X-Request-ID")),
		)
		respond.JSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"path":       req.URL.Path,
			"tenant":     tenantID,
			"request_id": req.Header.Get("X-Request-ID"),
		})
	})
	return r
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	addr := ":3000"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newHandler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("fake backend listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
