package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/internal/storage/memstore"
	"github.com/HummdG/tazaticket-final/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultyTable wraps a table and injects write failures and latency.
type faultyTable struct {
	core.Table

	mu          sync.Mutex
	failWrites  bool
	rejectItems bool
	unprocessed int
	delay       time.Duration
	// when set, only writes for this thread are delayed
	delayThread string
	writeCalls  int
}

func (f *faultyTable) SetFailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

func (f *faultyTable) WriteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}

func (f *faultyTable) BatchConditionalWrite(ctx context.Context, items []core.Item) ([]core.Item, error) {
	f.mu.Lock()
	f.writeCalls++
	fail := f.failWrites
	reject := f.rejectItems
	leave := min(f.unprocessed, len(items))
	f.unprocessed = 0
	delay := f.delay
	if f.delayThread != "" && len(items) > 0 && items[0].ThreadID != f.delayThread {
		delay = 0
	}
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if fail {
		return nil, errStoreDown
	}
	if reject {
		return nil, fmt.Errorf("%w: attribute too large", core.ErrInvalidItem)
	}

	cut := len(items) - leave
	if _, err := f.Table.BatchConditionalWrite(ctx, items[:cut]); err != nil {
		return nil, err
	}
	return items[cut:], nil
}

type harness struct {
	t     *testing.T
	m     *Manager
	store *memstore.Table
	table *faultyTable
	clock *fakeClock
	reg   *prometheus.Registry
	cfg   *config.MemoryConfig

	sessions atomic.Int64
}

func testRetrier() *retry.Retrier {
	return retry.NewRetrier(&retry.Config{
		MaxRetries:    2,
		BackoffFactor: 2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
	})
}

func newHarness(t *testing.T, mutate func(c *config.MemoryConfig)) *harness {
	t.Helper()
	store := memstore.NewTable()
	return newHarnessOn(t, store, mutate)
}

// newHarnessOn builds a fresh manager over an existing store, which is how a
// process restart looks to the store.
func newHarnessOn(t *testing.T, store *memstore.Table, mutate func(c *config.MemoryConfig)) *harness {
	t.Helper()

	cfg := config.DefaultMemoryConfig()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	h := &harness{
		t:     t,
		store: store,
		table: &faultyTable{Table: store},
		clock: newFakeClock(),
		reg:   prometheus.NewRegistry(),
		cfg:   cfg,
	}
	h.m = NewManager(cfg, h.table,
		WithClock(h.clock.Now),
		WithRetrier(testRetrier()),
		WithMetrics(NewMetrics(h.reg)),
		WithSessionIDs(func() string {
			return fmt.Sprintf("session-%d", h.sessions.Add(1))
		}),
	)
	return h
}

// pairs runs n complete exchanges on thread, numbering them from first.
func (h *harness) pairs(thread string, first, n int) {
	h.t.Helper()
	ctx := context.Background()
	for i := first; i < first+n; i++ {
		require.NoError(h.t, h.m.StartTurn(ctx, thread, fmt.Sprintf("question %d", i)))
		require.NoError(h.t, h.m.CompleteTurn(ctx, thread, fmt.Sprintf("answer %d", i)))
	}
}

func (h *harness) stored(thread string) []core.Item {
	h.t.Helper()
	items, err := h.store.QueryRange(context.Background(), thread, false, 0)
	require.NoError(h.t, err)
	return items
}

func (h *harness) metric(name string) float64 {
	h.t.Helper()
	families, err := h.reg.Gather()
	require.NoError(h.t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				sum += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				sum += g.GetValue()
			}
		}
		return sum
	}
	return 0
}

func requireStrictlyIncreasing(t *testing.T, items []core.Item) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		require.Greater(t, items[i].Seq, items[i-1].Seq, "seq must increase at index %d", i)
	}
}
