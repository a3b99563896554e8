package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process map-backed fallback Store, used in tests and
// as a degraded-mode substitute when no networked store is reachable. It
// provides the same sorted-set ordering and TTL eviction semantics as
// RedisStore, but holds no data across process restarts.
type MemoryStore struct {
	mu      sync.Mutex
	strs    map[string]entry
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	expires map[string]time.Time
	now     func() time.Time
}

type entry struct {
	value string
}

// NewMemoryStore creates an empty in-process Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strs:    make(map[string]entry),
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// expiredLocked reports and, if true, evicts a key past its TTL. Callers
// must hold mu.
func (m *MemoryStore) expiredLocked(key string) bool {
	exp, ok := m.expires[key]
	if !ok {
		return false
	}
	if m.now().Before(exp) {
		return false
	}
	delete(m.strs, key)
	delete(m.hashes, key)
	delete(m.zsets, key)
	delete(m.expires, key)
	return true
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredLocked(key)
	e, ok := m.strs[key]
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strs[key] = entry{value: value}
	delete(m.expires, key)
	return nil
}

func (m *MemoryStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strs[key] = entry{value: value}
	m.expires[key] = m.now().Add(ttl)
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.strs, key)
		delete(m.hashes, key)
		delete(m.zsets, key)
		delete(m.expires, key)
	}
	return nil
}

func (m *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredLocked(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredLocked(key)
	h, ok := m.hashes[key]
	if !ok {
		return "", ErrNotFound
	}
	v, ok := h[field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, z Z) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredLocked(key)
	set, ok := m.zsets[key]
	if !ok {
		set = make(map[string]float64)
		m.zsets[key] = set
	}
	set[z.Member] = z.Score
	return nil
}

func (m *MemoryStore) ZRangeByScore(_ context.Context, key string, lo, hi float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredLocked(key)
	return sortedMembersInRange(m.zsets[key], lo, hi), nil
}

func (m *MemoryStore) ZRemRangeByScore(_ context.Context, key string, lo, hi float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredLocked(key)
	set, ok := m.zsets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, member := range sortedMembersInRange(set, lo, hi) {
		delete(set, member)
		removed++
	}
	return removed, nil
}

func (m *MemoryStore) ZCount(_ context.Context, key string, lo, hi float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredLocked(key)
	return int64(len(sortedMembersInRange(m.zsets[key], lo, hi))), nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expiredLocked(key) {
		return nil
	}
	_, hasStr := m.strs[key]
	_, hasHash := m.hashes[key]
	_, hasZ := m.zsets[key]
	if !hasStr && !hasHash && !hasZ {
		return nil
	}
	m.expires[key] = m.now().Add(ttl)
	return nil
}

// Pipeline applies all queued mutations atomically by holding mu for the
// whole batch, mirroring the "pipeline applies as a unit" contract without
// needing a real MULTI/EXEC round trip.
func (m *MemoryStore) Pipeline(ctx context.Context, fn func(Pipeliner) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &memoryPipeliner{store: m}
	return fn(p)
}

func (m *MemoryStore) Close() error { return nil }

// sortedMembersInRange returns members whose score falls in [lo, hi],
// ordered ascending by score and then lexically by member to match Redis's
// deterministic tie-breaking.
func sortedMembersInRange(set map[string]float64, lo, hi float64) []string {
	if len(set) == 0 {
		return nil
	}
	var members []string
	for member, score := range set {
		if score >= lo && score <= hi {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := set[members[i]], set[members[j]]
		if si != sj {
			return si < sj
		}
		return members[i] < members[j]
	})
	return members
}

// memoryPipeliner queues mutations against the already-locked MemoryStore.
// Since Pipeline holds the store's mutex for the duration of fn, these
// methods call the store's unexported mutation logic directly rather than
// re-locking.
type memoryPipeliner struct {
	store *MemoryStore
}

func (p *memoryPipeliner) Set(key, value string) {
	p.store.strs[key] = entry{value: value}
	delete(p.store.expires, key)
}

func (p *memoryPipeliner) SetEx(key, value string, ttl time.Duration) {
	p.store.strs[key] = entry{value: value}
	p.store.expires[key] = p.store.now().Add(ttl)
}

func (p *memoryPipeliner) Del(keys ...string) {
	for _, key := range keys {
		delete(p.store.strs, key)
		delete(p.store.hashes, key)
		delete(p.store.zsets, key)
		delete(p.store.expires, key)
	}
}

func (p *memoryPipeliner) HSet(key, field, value string) {
	h, ok := p.store.hashes[key]
	if !ok {
		h = make(map[string]string)
		p.store.hashes[key] = h
	}
	h[field] = value
}

func (p *memoryPipeliner) ZAdd(key string, z Z) {
	set, ok := p.store.zsets[key]
	if !ok {
		set = make(map[string]float64)
		p.store.zsets[key] = set
	}
	set[z.Member] = z.Score
}

func (p *memoryPipeliner) ZRemRangeByScore(key string, lo, hi float64) {
	set, ok := p.store.zsets[key]
	if !ok {
		return
	}
	for _, member := range sortedMembersInRange(set, lo, hi) {
		delete(set, member)
	}
}

func (p *memoryPipeliner) Expire(key string, ttl time.Duration) {
	p.store.expires[key] = p.store.now().Add(ttl)
}
