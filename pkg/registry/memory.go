package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemorySize bounds the number of live tokens held in memory
const DefaultMemorySize = 100000

// MemoryRegistry keeps tokens in process. It suits single-instance
// deployments and tests; tokens do not survive a restart.
//
// The registry holds at most size tokens. Registering a token beyond that
// drops the least recently used live token, which revokes its session;
// Evictions counts these drops.
type MemoryRegistry struct {
	mu      sync.Mutex
	records *expirable.LRU[string, Record]
	now     func() time.Time

	removing  atomic.Bool
	evictions atomic.Int64
}

// NewMemoryRegistry creates an in-process registry holding at most size
// tokens, each evicted after ttl at the latest
func NewMemoryRegistry(size int, ttl time.Duration) *MemoryRegistry {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &MemoryRegistry{now: time.Now}
	m.records = expirable.NewLRU[string, Record](size, m.evicted, ttl)
	return m
}

// evicted runs for every record leaving the LRU. Only live records dropped
// for capacity are counted.
func (m *MemoryRegistry) evicted(_ string, rec Record) {
	if m.removing.Load() || rec.Expired(m.now()) {
		return
	}
	m.evictions.Add(1)
}

// remove drops key on request. Callers hold mu.
func (m *MemoryRegistry) remove(key string) {
	m.removing.Store(true)
	defer m.removing.Store(false)
	m.records.Remove(key)
}

// Evictions returns the number of live tokens dropped because the registry
// was full
func (m *MemoryRegistry) Evictions() int64 {
	return m.evictions.Load()
}

// live returns the unexpired record at key. Callers hold mu.
func (m *MemoryRegistry) live(key string) (Record, bool) {
	rec, ok := m.records.Get(key)
	if !ok {
		return Record{}, false
	}
	if rec.Expired(m.now()) {
		m.remove(key)
		return Record{}, false
	}
	return rec, true
}

func (m *MemoryRegistry) Put(_ context.Context, token string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records.Add(Key(token), rec)
	return nil
}

func (m *MemoryRegistry) Get(_ context.Context, token string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.live(Key(token))
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRegistry) Rotate(_ context.Context, oldToken, newToken string, rec Record) (bool, error) {
	if rec.Expired(m.now()) {
		return false, ErrExpiredRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	oldKey := Key(oldToken)
	if _, ok := m.live(oldKey); !ok {
		return false, nil
	}
	m.remove(oldKey)
	m.records.Add(Key(newToken), rec)
	return true, nil
}

func (m *MemoryRegistry) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(Key(token))
	return nil
}

// Len returns the number of tokens held, including ones not yet swept
func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records.Len()
}

func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removing.Store(true)
	defer m.removing.Store(false)
	m.records.Purge()
	return nil
}
