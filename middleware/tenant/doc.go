// Package tenant resolve o tenant de cada request e o disponibiliza no context.
//
// Ordem de resolução:
//
//  1. header dedicado (X-Tenant-Id por padrão), se presente e não vazio
//  2. query parameter (tenantId por padrão)
//  3. tenant padrão fixo ("default")
//
// A resolução nunca falha. Sem sinal de tenant, o request cai no bucket do
// tenant padrão; Options.RequireExplicit troca isso por um 400.
package tenant
