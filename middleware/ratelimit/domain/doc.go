// Package domain define contratos e tipos de domínio do rate limit por tenant.
//
// Este pacote não depende de net/http nem de implementações concretas
// (memória, Redis, catálogo de tiers), permitindo testes de unidade puros.
package domain
