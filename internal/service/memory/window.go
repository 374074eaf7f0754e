package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/log"
)

func (m *Manager) StartTurn(ctx context.Context, threadID, content string) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	ts := m.thread(threadID)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.open != nil {
		m.metrics.ProtocolViolations.Inc()
		return fmt.Errorf("%w: thread %s already has an open turn", ErrProtocolViolation, threadID)
	}

	now := m.now()
	m.ensureSession(ts)

	p := &Pair{
		User:      Message{Role: core.RoleUser, Content: content, Timestamp: now},
		SessionID: ts.sessionID,
	}
	ts.stampTurn(p)
	ts.stampSeq(&p.User)

	ts.open = p
	ts.lastActivity = now
	return nil
}

func (m *Manager) CompleteTurn(ctx context.Context, threadID, content string) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	ts := m.thread(threadID)

	reason, err := m.completeTurn(ts, content)
	if err != nil || reason == "" {
		return err
	}

	ctx = log.WithThread(ctx, threadID)
	if err := m.flush(ctx, ts, scopeBatch, reason); err != nil {
		m.warnFlush(ctx, err)
	}
	return nil
}

// completeTurn closes the open pair and returns the flush trigger it tripped, if any.
func (m *Manager) completeTurn(ts *ThreadState, content string) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	p := ts.open
	if p == nil {
		m.metrics.ProtocolViolations.Inc()
		return "", fmt.Errorf("%w: thread %s has no open turn", ErrProtocolViolation, ts.ID)
	}

	now := m.now()
	reply := Message{Role: core.RoleAssistant, Content: content, Timestamp: now}
	ts.stampSeq(&reply)
	p.Assistant = &reply

	if p.Turn != 0 && p.Turn == ts.turns.next {
		ts.turns.take()
	}

	ts.open = nil
	ts.lastActivity = now
	ts.context = append(ts.context, p)

	if len(ts.context) > m.cfg.ContextPairs {
		ts.batch = append(ts.batch, ts.context[0])
		ts.context[0] = nil
		ts.context = ts.context[1:]
		m.metrics.Evictions.Inc()
	}

	switch {
	case len(ts.batch) >= m.cfg.BatchPairs:
		return reasonBatchFull, nil
	case len(ts.context)+len(ts.batch) > m.cfg.MaxRAMPairs:
		return reasonRAMCeiling, nil
	}
	return "", nil
}

// Window returns the context pairs oldest first, followed by the user message
// of an open pair.
func (m *Manager) Window(ctx context.Context, threadID string) []core.Message {
	if threadID == "" {
		return nil
	}
	ts := m.thread(threadID)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	out := make([]core.Message, 0, 2*len(ts.context)+1)
	for _, p := range ts.context {
		out = append(out, core.Message{Role: p.User.Role, Content: p.User.Content})
		if p.Assistant != nil {
			out = append(out, core.Message{Role: p.Assistant.Role, Content: p.Assistant.Content})
		}
	}
	if ts.open != nil {
		out = append(out, core.Message{Role: ts.open.User.Role, Content: ts.open.User.Content})
	}
	return out
}

func (m *Manager) warnFlush(ctx context.Context, err error) {
	logger := log.FromCtx(ctx)

	var dwe *DurableWriteError
	if errors.As(err, &dwe) {
		logger.Warn().Err(dwe.Err).Int("unwritten", dwe.Unprocessed).Msg("durable write failed, pairs kept in memory")
		return
	}
	logger.Warn().Err(err).Msg("flush failed")
}
