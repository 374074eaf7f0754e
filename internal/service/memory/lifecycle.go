package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/log"
)

// reloadSlack is the number of rows read beyond two per pair, so that a
// dangling message at either end still leaves enough complete pairs.
const reloadSlack = 10

// OnSessionStart rotates a thread that has been idle past the threshold,
// reloads recent history into an empty window and marks activity. Store
// failures are logged; the thread stays usable from memory.
func (m *Manager) OnSessionStart(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	ctx = log.WithThread(ctx, threadID)
	ts := m.thread(threadID)

	if err := ts.acquireIO(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer ts.releaseIO()

	ts.mu.Lock()
	idle := !ts.lastActivity.IsZero() && m.now().Sub(ts.lastActivity) > m.cfg.SessionIdle()
	ts.mu.Unlock()

	if idle {
		m.rotateLocked(ctx, ts)
	}

	ts.mu.Lock()
	m.ensureSession(ts)
	empty := len(ts.context) == 0 && ts.open == nil
	ts.mu.Unlock()

	if empty {
		if err := m.reloadLocked(ctx, ts); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Msg("failed to reload history")
		}
	}

	if err := m.prefetchLocked(ctx, ts); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to reserve counter block, seqs will be assigned on flush")
	}

	ts.mu.Lock()
	ts.lastActivity = m.now()
	ts.mu.Unlock()
	return nil
}

// OnSessionEnd flushes every pair of the thread and clears its working set.
// Pairs the store did not take stay queued for a later flush.
func (m *Manager) OnSessionEnd(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	ctx = log.WithThread(ctx, threadID)
	ts := m.thread(threadID)

	if err := ts.acquireIO(ctx); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	defer ts.releaseIO()

	if err := m.flushLocked(ctx, ts, scopeAll, reasonSession); err != nil {
		m.warnFlush(ctx, err)
	}

	ts.mu.Lock()
	ts.retire()
	ts.sessionID = ""
	ts.mu.Unlock()

	log.FromCtx(ctx).Debug().Msg("session ended")
	return nil
}

// FlushAll writes the context window and the pending batch without clearing them.
func (m *Manager) FlushAll(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	ctx = log.WithThread(ctx, threadID)

	if err := m.flush(ctx, m.thread(threadID), scopeAll, reasonManual); err != nil {
		m.warnFlush(ctx, err)
	}
	return nil
}

// Shutdown flushes every known thread one after another within the configured
// budget. Threads with a flush already in flight are visited last, so a stuck
// store call holds up only its own thread. Threads not flushed before the
// deadline are logged and skipped.
func (m *Manager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	logger := log.FromCtx(ctx)
	threads := m.snapshotThreads()
	logger.Info().Int("threads", len(threads)).Msg("flushing conversation memory")

	skipped := 0
	skip := func(ts *ThreadState, err error) {
		skipped++
		m.metrics.ShutdownSkipped.Inc()
		logger.Warn().Err(err).Str("thread_id", ts.ID).Msg("shutdown deadline reached, thread not flushed")
	}

	var busy []*ThreadState
	for _, ts := range threads {
		if err := ctx.Err(); err != nil {
			skip(ts, err)
			continue
		}
		if !ts.tryAcquireIO() {
			busy = append(busy, ts)
			continue
		}
		m.shutdownFlush(ctx, ts)
	}

	for _, ts := range busy {
		if err := ctx.Err(); err != nil {
			skip(ts, err)
			continue
		}
		if err := ts.acquireIO(ctx); err != nil {
			skip(ts, err)
			continue
		}
		m.shutdownFlush(ctx, ts)
	}

	if skipped > 0 {
		logger.Warn().Int("skipped", skipped).Msg("shutdown flush incomplete")
	}
	return nil
}

// shutdownFlush writes everything ts holds. The caller has acquired ts.io.
func (m *Manager) shutdownFlush(ctx context.Context, ts *ThreadState) {
	defer ts.releaseIO()

	tctx := log.WithThread(ctx, ts.ID)
	if err := m.flushLocked(tctx, ts, scopeAll, reasonShutdown); err != nil {
		m.warnFlush(tctx, err)
	}
}

func (m *Manager) rotateLocked(ctx context.Context, ts *ThreadState) {
	if err := m.flushLocked(ctx, ts, scopeAll, reasonRotation); err != nil {
		m.warnFlush(ctx, err)
	}

	ts.mu.Lock()
	old := ts.sessionID
	ts.retire()
	ts.sessionID = m.newSessionID()
	next := ts.sessionID
	ts.mu.Unlock()

	m.metrics.Rotations.Inc()
	log.FromCtx(ctx).Info().Str("old_session", old).Str("session", next).Msg("idle session rotated")
}

// reloadLocked fills an empty window with the most recent complete pairs from
// the store and raises the counter floors past everything it saw.
func (m *Manager) reloadLocked(ctx context.Context, ts *ThreadState) error {
	items, err := m.table.QueryRange(ctx, ts.ID, true, 2*m.cfg.ContextPairs+reloadSlack)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}

	pairs, floor := assemblePairs(items, m.cfg.ContextPairs)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.seqFloor = max(ts.seqFloor, floor.Seq)
	ts.turnFloor = max(ts.turnFloor, floor.Turn)

	if len(ts.context) > 0 || ts.open != nil {
		return nil
	}
	ts.context = pairs

	log.FromCtx(ctx).Debug().Int("rows", len(items)).Int("pairs", len(pairs)).Msg("history reloaded")
	return nil
}

// assemblePairs groups rows by turn and keeps the newest limit complete pairs,
// oldest first.
func assemblePairs(items []core.Item, limit int) ([]*Pair, Floor) {
	floor := Floor{Seq: 1, Turn: 1}
	byTurn := make(map[int64]*Pair)

	for _, item := range items {
		floor.Seq = max(floor.Seq, item.Seq+1)
		floor.Turn = max(floor.Turn, item.Turn+1)
		if item.Turn <= 0 {
			continue
		}

		p, ok := byTurn[item.Turn]
		if !ok {
			p = &Pair{Turn: item.Turn, SessionID: item.SessionID, persisted: true}
			byTurn[item.Turn] = p
		}

		msg := Message{Role: item.Role, Content: item.Content, Timestamp: item.Timestamp, Seq: item.Seq}
		switch item.Role {
		case core.RoleUser:
			p.User = msg
			p.SessionID = item.SessionID
		case core.RoleAssistant:
			p.Assistant = &msg
		}
	}

	pairs := make([]*Pair, 0, len(byTurn))
	for _, p := range byTurn {
		if p.User.Seq != 0 && p.IsComplete() {
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Turn < pairs[j].Turn })

	if len(pairs) > limit {
		pairs = pairs[len(pairs)-limit:]
	}
	return pairs, floor
}

// prefetchLocked reserves a spare block for a thread whose local ranges ran
// out, so the next turns get their seqs without a store round trip.
func (m *Manager) prefetchLocked(ctx context.Context, ts *ThreadState) error {
	spare := int64(m.cfg.SeqBlockSize)

	ts.mu.Lock()
	waitingSeqs, waitingTurns := ts.unassigned()
	var seqCount, turnCount int64
	if !ts.seqs.available() {
		seqCount = waitingSeqs + spare
	}
	if !ts.turns.available() {
		turnCount = waitingTurns + spare
	}
	floor := Floor{Seq: ts.seqFloor, Turn: ts.turnFloor}
	ts.mu.Unlock()

	if seqCount == 0 && turnCount == 0 {
		return nil
	}

	seqs, turns, err := m.reserve(ctx, ts.ID, seqCount, turnCount, floor)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	ts.install(seqs, turns)
	ts.mu.Unlock()
	return nil
}
