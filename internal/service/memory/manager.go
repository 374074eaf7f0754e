package memory

import (
	"sync"
	"time"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/retry"
	"github.com/google/uuid"
)

var _ core.Memory = (*Manager)(nil)

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRetrier(r *retry.Retrier) Option {
	return func(m *Manager) { m.retrier = r }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithSessionIDs(next func() string) Option {
	return func(m *Manager) { m.newSessionID = next }
}

// Manager keeps a sliding window of recent pairs per thread and moves older
// pairs to the durable store.
type Manager struct {
	cfg   *config.MemoryConfig
	table core.Table
	alloc *Allocator

	retrier      *retry.Retrier
	metrics      *Metrics
	now          func() time.Time
	newSessionID func() string

	mu      sync.Mutex
	threads map[string]*ThreadState
}

func NewManager(cfg *config.MemoryConfig, table core.Table, opts ...Option) *Manager {
	m := &Manager{
		cfg:          cfg,
		table:        table,
		alloc:        NewAllocator(table),
		retrier:      retry.NewRetrier(retry.NewStoreConfig()),
		now:          time.Now,
		newSessionID: uuid.NewString,
		threads:      make(map[string]*ThreadState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	return m
}

// thread returns the state for id, creating it on first use.
func (m *Manager) thread(id string) *ThreadState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.threads[id]
	if !ok {
		ts = newThreadState(id)
		m.threads[id] = ts
		m.metrics.Threads.Set(float64(len(m.threads)))
	}
	return ts
}

func (m *Manager) snapshotThreads() []*ThreadState {
	m.mu.Lock()
	defer m.mu.Unlock()

	threads := make([]*ThreadState, 0, len(m.threads))
	for _, ts := range m.threads {
		threads = append(threads, ts)
	}
	return threads
}

func (m *Manager) ensureSession(ts *ThreadState) {
	if ts.sessionID == "" {
		ts.sessionID = m.newSessionID()
	}
}

// SessionID reports the current session of a thread, empty if none is active.
func (m *Manager) SessionID(threadID string) string {
	ts := m.thread(threadID)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.sessionID
}

type Stats struct {
	SessionID    string
	ContextPairs int
	BatchPairs   int
	Open         bool
	LastActivity time.Time
}

func (m *Manager) Stats(threadID string) Stats {
	ts := m.thread(threadID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	return Stats{
		SessionID:    ts.sessionID,
		ContextPairs: len(ts.context),
		BatchPairs:   len(ts.batch),
		Open:         ts.open != nil,
		LastActivity: ts.lastActivity,
	}
}
