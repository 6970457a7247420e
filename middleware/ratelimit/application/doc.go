// Package application contém os casos de uso do rate limit por tenant e do
// limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, tenant, categoria) retorna uma Decision
// (allow/deny + retry-after + contagem da janela).
package application
