// Package ratelimit fornece adapters HTTP (net/http) para rate limit por tenant
// e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão de janela fixa, acquire/timeout) sem net/http
//   - infra: implementações concretas (janelas em memória/Redis, stats, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + extração de tenant/categoria +
//     tradução para status/headers/JSON
//
// Fluxo no gateway:
//
//  1. Lê o tenant resolvido (pacote tenant) e a categoria da rota (pacote route)
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 com Retry-After: 60 (ou 503 se o lookup falhou
//     com política fail-closed)
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
package ratelimit
