package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnSessionStart_RotatesIdleThread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))
	h.pairs("T1", 1, 37)
	require.Equal(t, "session-1", h.m.SessionID("T1"))

	h.clock.Advance(h.cfg.SessionIdle() + time.Second)
	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))

	assert.Equal(t, "session-2", h.m.SessionID("T1"))
	assert.Len(t, h.stored("T1"), 74)
	assert.Equal(t, float64(1), h.metric("tazamem_session_rotations_total"))

	// the window was rebuilt from the store on the same call
	stats := h.m.Stats("T1")
	assert.Equal(t, 15, stats.ContextPairs)
	assert.Equal(t, 0, stats.BatchPairs)

	window := h.m.Window(ctx, "T1")
	require.Len(t, window, 30)
	assert.Equal(t, "question 23", window[0].Content)
	assert.Equal(t, "answer 37", window[29].Content)
}

func TestOnSessionStart_ActiveThreadKeepsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))
	h.pairs("T1", 1, 3)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))

	assert.Equal(t, "session-1", h.m.SessionID("T1"))
	assert.Len(t, h.m.Window(ctx, "T1"), 6)
	assert.Empty(t, h.stored("T1"))
}

func TestOnSessionStart_RotationFailureKeepsPairs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))
	h.pairs("T1", 1, 4)

	h.table.SetFailWrites(true)
	h.clock.Advance(h.cfg.SessionIdle() + time.Second)
	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))

	stats := h.m.Stats("T1")
	assert.Equal(t, "session-2", stats.SessionID)
	assert.Equal(t, 0, stats.ContextPairs)
	assert.Equal(t, 4, stats.BatchPairs)

	h.table.SetFailWrites(false)
	require.NoError(t, h.m.FlushAll(ctx, "T1"))

	items := h.stored("T1")
	require.Len(t, items, 8)
	assert.Equal(t, "session-1", items[0].SessionID)
}

func TestSessionEnd_ThenRestartReloads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))
	h.pairs("T1", 1, 20)
	before := h.m.Window(ctx, "T1")

	require.NoError(t, h.m.StartTurn(ctx, "T1", "abandoned"))
	require.NoError(t, h.m.OnSessionEnd(ctx, "T1"))

	assert.Empty(t, h.m.Window(ctx, "T1"))
	assert.Len(t, h.stored("T1"), 40)

	// a new process over the same store
	restarted := newHarnessOn(t, h.store, nil)
	require.NoError(t, restarted.m.OnSessionStart(ctx, "T1"))
	assert.Equal(t, before, restarted.m.Window(ctx, "T1"))

	restarted.pairs("T1", 21, 5)
	require.NoError(t, restarted.m.FlushAll(ctx, "T1"))

	items := h.stored("T1")
	require.Len(t, items, 50)
	requireStrictlyIncreasing(t, items)

	seen := make(map[int64]bool)
	for _, item := range items {
		assert.False(t, seen[item.Seq])
		seen[item.Seq] = true
	}
	assert.Greater(t, items[40].Turn, items[39].Turn)
	assert.Equal(t, "question 21", items[40].Content)
}

func TestOnSessionStart_ReloadsWithoutCounterRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	// history written by an older deployment that kept no counter row
	var rows []core.Item
	for seq := int64(1); seq <= 9; seq++ {
		role := core.RoleUser
		if seq%2 == 0 {
			role = core.RoleAssistant
		}
		rows = append(rows, core.Item{
			Key:     core.Key{ThreadID: "T1", Seq: seq},
			Turn:    (seq + 1) / 2,
			Role:    role,
			Content: fmt.Sprintf("row %d", seq),
		})
	}
	_, err := h.store.BatchConditionalWrite(ctx, rows)
	require.NoError(t, err)

	require.NoError(t, h.m.OnSessionStart(ctx, "T1"))

	// turn 5 has no reply and is left out
	assert.Len(t, h.m.Window(ctx, "T1"), 8)

	h.pairs("T1", 1, 1)
	require.NoError(t, h.m.FlushAll(ctx, "T1"))

	items := h.stored("T1")
	require.Len(t, items, 11)
	assert.Equal(t, int64(10), items[9].Seq)
	assert.Equal(t, int64(6), items[9].Turn)
}

func TestShutdown_FlushesEveryThread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	for i := 0; i < 5; i++ {
		h.pairs(fmt.Sprintf("T%d", i), 1, 3)
	}

	require.NoError(t, h.m.Shutdown(ctx))

	assert.Equal(t, 30, h.store.MessageCount())
	assert.Zero(t, h.metric("tazamem_shutdown_skipped_threads_total"))
}

func TestShutdown_StopsAtDeadline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.MemoryConfig) {
		c.ShutdownTimeout = 50 * time.Millisecond
	})
	for i := 0; i < 5; i++ {
		thread := fmt.Sprintf("T%d", i)
		require.NoError(t, h.m.OnSessionStart(ctx, thread))
		h.pairs(thread, 1, 2)
	}

	h.table.mu.Lock()
	h.table.delay = 40 * time.Millisecond
	h.table.mu.Unlock()

	started := time.Now()
	require.NoError(t, h.m.Shutdown(ctx))

	assert.Less(t, time.Since(started), time.Second)
	assert.GreaterOrEqual(t, h.metric("tazamem_shutdown_skipped_threads_total"), float64(3))
	assert.Less(t, h.store.MessageCount(), 20)
}

func TestShutdown_InFlightFlushDoesNotHoldDeadline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.MemoryConfig) {
		c.ShutdownTimeout = 50 * time.Millisecond
	})
	h.pairs("slow", 1, 34)
	h.pairs("fast", 1, 2)

	h.table.mu.Lock()
	h.table.delay = 2 * time.Second
	h.table.delayThread = "slow"
	h.table.mu.Unlock()

	// the 35th pair fills the batch and flushes on a context without deadline
	done := make(chan error, 1)
	go func() {
		if err := h.m.StartTurn(ctx, "slow", "question 35"); err != nil {
			done <- err
			return
		}
		done <- h.m.CompleteTurn(ctx, "slow", "answer 35")
	}()
	require.Eventually(t, func() bool { return h.table.WriteCalls() > 0 }, time.Second, time.Millisecond)

	started := time.Now()
	require.NoError(t, h.m.Shutdown(ctx))

	assert.Less(t, time.Since(started), time.Second)
	assert.Len(t, h.stored("fast"), 4)
	assert.Equal(t, float64(1), h.metric("tazamem_shutdown_skipped_threads_total"))

	require.NoError(t, <-done)
}

func TestSweepIdle_SkipsThreadWithFlushInFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.pairs("T1", 1, 17)
	h.clock.Advance(h.cfg.SessionIdle() + time.Second)

	ts := h.m.thread("T1")
	require.True(t, ts.tryAcquireIO())
	assert.Zero(t, h.m.SweepIdle(ctx))
	ts.releaseIO()

	assert.Equal(t, 1, h.m.SweepIdle(ctx))
	assert.Len(t, h.stored("T1"), 4)
}

func TestFlush_GivesUpWaitingAtDeadline(t *testing.T) {
	h := newHarness(t, nil)
	h.pairs("T1", 1, 2)

	ts := h.m.thread("T1")
	require.True(t, ts.tryAcquireIO())
	defer ts.releaseIO()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.m.flush(ctx, ts, scopeAll, reasonManual)
	var dwe *DurableWriteError
	require.ErrorAs(t, err, &dwe)
	assert.Equal(t, 4, dwe.Unprocessed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.stored("T1"))
}

func TestSweepIdle_FlushesBatchWithoutRotating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.m.OnSessionStart(ctx, "idle"))
	require.NoError(t, h.m.OnSessionStart(ctx, "busy"))
	h.pairs("idle", 1, 17)

	h.clock.Advance(h.cfg.SessionIdle() + time.Second)
	h.pairs("busy", 1, 17)

	assert.Equal(t, 1, h.m.SweepIdle(ctx))

	assert.Len(t, h.stored("idle"), 4)
	assert.Empty(t, h.stored("busy"))
	assert.Equal(t, 0, h.m.Stats("idle").BatchPairs)
	assert.Equal(t, 15, h.m.Stats("idle").ContextPairs)
	assert.Equal(t, "session-1", h.m.SessionID("idle"))

	assert.Zero(t, h.m.SweepIdle(ctx))
}

func TestJanitor_ShutdownFlushes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.pairs("T1", 1, 2)

	janitor := NewJanitor(h.m, time.Hour)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- janitor.Start(runCtx) }()
	cancel()
	require.NoError(t, <-done)

	require.NoError(t, janitor.Shutdown(ctx))
	assert.Len(t, h.stored("T1"), 4)
}

func TestManager_ConcurrentThreads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	const threads = 8
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		thread := fmt.Sprintf("T%d", i)
		wg.Add(2)

		go func() {
			defer wg.Done()
			assert.NoError(t, h.m.OnSessionStart(ctx, thread))
			for n := 0; n < 30; n++ {
				assert.NoError(t, h.m.StartTurn(ctx, thread, "q"))
				assert.NoError(t, h.m.CompleteTurn(ctx, thread, "a"))
			}
		}()

		// readers and manual flushes race the writer on the same thread
		go func() {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				assert.LessOrEqual(t, len(h.m.Window(ctx, thread)), 2*h.cfg.ContextPairs+1)
				assert.NoError(t, h.m.FlushAll(ctx, thread))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, h.m.Shutdown(ctx))

	for i := 0; i < threads; i++ {
		items := h.stored(fmt.Sprintf("T%d", i))
		require.Len(t, items, 60)
		requireStrictlyIncreasing(t, items)
		for j := 0; j < len(items); j += 2 {
			assert.Equal(t, core.RoleUser, items[j].Role)
			assert.Equal(t, items[j].Turn, items[j+1].Turn)
		}
	}
}
