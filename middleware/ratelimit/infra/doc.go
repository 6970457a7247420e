// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janelas fixas por chave em memória, limitadas por LRU
//   - RedisWindowStore: janelas fixas compartilhadas entre instâncias (script Lua)
//   - MemoryStatsStore / RedisStatsStore: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
