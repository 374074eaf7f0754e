package memory

import (
	"context"
	"time"

	"github.com/HummdG/tazaticket-final/pkg/log"
)

// Janitor periodically writes the pending batch of threads that went idle, so
// evicted pairs of abandoned conversations do not wait for shutdown. Its
// Shutdown runs the manager's shutdown flush.
type Janitor struct {
	m        *Manager
	interval time.Duration
}

func NewJanitor(m *Manager, interval time.Duration) *Janitor {
	return &Janitor{m: m, interval: interval}
}

func (j *Janitor) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", j.interval).Msg("starting memory janitor")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := j.m.SweepIdle(ctx); n > 0 {
				logger.Debug().Int("threads", n).Msg("flushed idle threads")
			}
		}
	}
}

func (j *Janitor) Shutdown(ctx context.Context) error {
	return j.m.Shutdown(ctx)
}

// SweepIdle flushes the batch of every thread idle past the session threshold
// and returns how many threads it flushed. Sessions are not rotated, and a
// thread whose store calls are still in flight is left for the next sweep.
func (m *Manager) SweepIdle(ctx context.Context) int {
	now := m.now()
	flushed := 0

	for _, ts := range m.snapshotThreads() {
		if ctx.Err() != nil {
			break
		}

		ts.mu.Lock()
		due := len(ts.batch) > 0 && !ts.lastActivity.IsZero() && now.Sub(ts.lastActivity) > m.cfg.SessionIdle()
		ts.mu.Unlock()
		if !due || !ts.tryAcquireIO() {
			continue
		}

		tctx := log.WithThread(ctx, ts.ID)
		err := m.flushLocked(tctx, ts, scopeBatch, reasonJanitor)
		ts.releaseIO()
		if err != nil {
			m.warnFlush(tctx, err)
			continue
		}
		flushed++
	}
	return flushed
}
