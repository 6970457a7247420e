package infra

import (
	"context"
	"sync"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"

	lru "github.com/hashicorp/golang-lru"
)

const DefaultMaxKeys = 10000

// WindowStore guarda uma janela fixa por chave, em memória.
//
// É uma instância injetada (não global), com crescimento limitado por LRU.
// Com o store cheio, uma chave nova primeiro recupera janelas expiradas do fim
// do LRU; só então a menos usada, ainda ativa, é descartada (conta em Evicted).
// O resto das expiradas sai por Sweep (agendado pelo scheduler).
type WindowStore struct {
	// mu serializa o read-modify-write de Increment; o LRU sozinho só garante
	// atomicidade por operação.
	mu      sync.Mutex
	windows *lru.Cache
	maxKeys int
	evicted int64
}

type windowEntry struct {
	start  time.Time
	count  int64
	length time.Duration
}

type WindowStoreOption func(*WindowStore)

func WithMaxKeys(n int) WindowStoreOption {
	return func(s *WindowStore) { s.maxKeys = n }
}

func NewWindowStore(opts ...WindowStoreOption) *WindowStore {
	s := &WindowStore{maxKeys: DefaultMaxKeys}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxKeys <= 0 {
		s.maxKeys = DefaultMaxKeys
	}
	// lru.New só falha com tamanho <= 0, já descartado acima.
	s.windows, _ = lru.New(s.maxKeys)
	return s
}

// Increment implementa domain.CounterStore.
func (s *WindowStore) Increment(_ context.Context, key domain.Key, now time.Time, length time.Duration) (domain.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.windows.Get(string(key)); ok {
		ent := v.(*windowEntry)
		if now.Sub(ent.start) < length {
			ent.count++
			ent.length = length
			return domain.Window{Start: ent.start, Count: ent.count}, nil
		}
	}

	if !s.windows.Contains(string(key)) {
		s.reclaimExpired(now)
	}
	ent := &windowEntry{start: now, count: 1, length: length}
	if s.windows.Add(string(key), ent) {
		s.evicted++
	}
	return domain.Window{Start: ent.start, Count: ent.count}, nil
}

// reclaimExpired libera espaço removendo janelas expiradas a partir da menos
// usada, parando na primeira ativa. Chamado com mu travado.
func (s *WindowStore) reclaimExpired(now time.Time) {
	for s.windows.Len() >= s.maxKeys {
		k, v, ok := s.windows.GetOldest()
		if !ok {
			return
		}
		ent := v.(*windowEntry)
		if now.Sub(ent.start) < ent.length {
			return
		}
		s.windows.Remove(k)
	}
}

// Count retorna a contagem da janela ativa da chave (0 se não há janela ou expirou).
func (s *WindowStore) Count(key domain.Key, now time.Time) (domain.Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.windows.Peek(string(key))
	if !ok {
		return domain.Window{}, false
	}
	ent := v.(*windowEntry)
	if now.Sub(ent.start) >= ent.length {
		return domain.Window{}, false
	}
	return domain.Window{Start: ent.start, Count: ent.count}, true
}

// Peek implementa domain.WindowReader; o comprimento gravado na janela prevalece.
func (s *WindowStore) Peek(_ context.Context, key domain.Key, now time.Time, _ time.Duration) (domain.Window, bool, error) {
	w, ok := s.Count(key, now)
	return w, ok, nil
}

// Sweep remove janelas expiradas e retorna quantas foram removidas.
func (s *WindowStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, k := range s.windows.Keys() {
		v, ok := s.windows.Peek(k)
		if !ok {
			continue
		}
		ent := v.(*windowEntry)
		if now.Sub(ent.start) >= ent.length {
			s.windows.Remove(k)
			removed++
		}
	}
	return removed
}

func (s *WindowStore) Len() int { return s.windows.Len() }

func (s *WindowStore) MaxKeys() int { return s.maxKeys }

// Evicted conta chaves descartadas por pressão do LRU (não por expiração).
func (s *WindowStore) Evicted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}
