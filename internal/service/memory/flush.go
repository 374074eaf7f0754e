package memory

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/HummdG/tazaticket-final/pkg/retry"
)

type flushScope int

const (
	// scopeBatch writes evicted pairs only.
	scopeBatch flushScope = iota
	// scopeAll also writes the context window.
	scopeAll
)

const (
	reasonBatchFull  = "batch_full"
	reasonRAMCeiling = "ram_ceiling"
	reasonSession    = "session_end"
	reasonRotation   = "rotation"
	reasonJanitor    = "janitor"
	reasonShutdown   = "shutdown"
	reasonManual     = "manual"
)

var errUnprocessed = errors.New("store left items unprocessed")

func (m *Manager) flush(ctx context.Context, ts *ThreadState, scope flushScope, reason string) error {
	if err := ts.acquireIO(ctx); err != nil {
		m.metrics.Flushes.WithLabelValues(reason, "failed").Inc()
		ts.mu.Lock()
		waiting := 0
		for _, p := range ts.pending(scope) {
			waiting += len(p.messages())
		}
		ts.mu.Unlock()
		return &DurableWriteError{ThreadID: ts.ID, Unprocessed: waiting, Err: fmt.Errorf("waiting for in-flight flush: %w", err)}
	}
	defer ts.releaseIO()
	return m.flushLocked(ctx, ts, scope, reason)
}

// flushLocked writes the pending pairs of ts. The caller holds ts.io; ts.mu is
// only taken to snapshot and to commit.
func (m *Manager) flushLocked(ctx context.Context, ts *ThreadState, scope flushScope, reason string) error {
	ts.mu.Lock()
	ts.pruneBatch()
	pairs := ts.pending(scope)
	if len(pairs) == 0 {
		ts.mu.Unlock()
		return nil
	}
	total := 0
	for _, p := range pairs {
		total += len(p.messages())
	}
	needSeqs, needTurns := ts.unassigned()
	floor := Floor{Seq: ts.seqFloor, Turn: ts.turnFloor}
	ts.mu.Unlock()

	seqs, turns, err := m.reserve(ctx, ts.ID, m.withSpare(needSeqs), m.withSpare(needTurns), floor)
	if err != nil {
		m.metrics.Flushes.WithLabelValues(reason, "failed").Inc()
		return &DurableWriteError{ThreadID: ts.ID, Unprocessed: total, Err: err}
	}

	ts.mu.Lock()
	ts.install(seqs, turns)
	items, err := buildItems(ts.ID, pairs)
	ts.mu.Unlock()
	if err != nil {
		m.metrics.Flushes.WithLabelValues(reason, "failed").Inc()
		return &DurableWriteError{ThreadID: ts.ID, Unprocessed: total, Err: err}
	}

	written, err := m.writeItems(ctx, items)

	ts.mu.Lock()
	for _, p := range pairs {
		done := true
		for _, msg := range p.messages() {
			done = done && written[msg.Seq]
		}
		p.persisted = done
	}
	ts.pruneBatch()
	ts.mu.Unlock()

	m.metrics.MessagesWritten.Add(float64(len(written)))

	if err != nil {
		m.metrics.Flushes.WithLabelValues(reason, "failed").Inc()
		return &DurableWriteError{ThreadID: ts.ID, Unprocessed: len(items) - len(written), Err: err}
	}

	m.metrics.Flushes.WithLabelValues(reason, "ok").Inc()
	log.FromCtx(ctx).Debug().
		Str("reason", reason).
		Int("pairs", len(pairs)).
		Int("messages", len(items)).
		Msg("flushed pairs")
	return nil
}

// reserve takes one block of seqCount seqs and one of turnCount turns. A zero
// count skips that field.
func (m *Manager) reserve(ctx context.Context, threadID string, seqCount, turnCount int64, floor Floor) (block, block, error) {
	var seqs, turns block

	if seqCount > 0 {
		start, err := m.alloc.ReserveSeqBlock(ctx, threadID, seqCount, floor)
		if err != nil {
			return seqs, turns, err
		}
		seqs = block{next: start, limit: start + seqCount}
	}
	if turnCount > 0 {
		start, err := m.alloc.ReserveTurnBlock(ctx, threadID, turnCount, floor)
		if err != nil {
			return seqs, turns, err
		}
		turns = block{next: start, limit: start + turnCount}
	}
	return seqs, turns, nil
}

// withSpare sizes a reservation for need waiting values. Nothing is reserved
// when nothing waits.
func (m *Manager) withSpare(need int64) int64 {
	if need == 0 {
		return 0
	}
	return need + int64(m.cfg.SeqBlockSize)
}

func buildItems(threadID string, pairs []*Pair) ([]core.Item, error) {
	items := make([]core.Item, 0, 2*len(pairs))
	seen := make(map[int64]struct{}, 2*len(pairs))

	for _, p := range pairs {
		if p.Turn == 0 {
			return nil, fmt.Errorf("pair without turn in thread %s", threadID)
		}
		for _, msg := range p.messages() {
			if msg.Seq == 0 {
				return nil, fmt.Errorf("message without seq in turn %d", p.Turn)
			}
			if _, dup := seen[msg.Seq]; dup {
				return nil, fmt.Errorf("%w: seq %d", ErrDuplicateSeq, msg.Seq)
			}
			seen[msg.Seq] = struct{}{}

			items = append(items, core.Item{
				Key:       core.Key{ThreadID: threadID, Seq: msg.Seq},
				Turn:      p.Turn,
				Role:      msg.Role,
				Content:   truncate(msg.Content, core.MaxContentLength),
				Timestamp: msg.Timestamp,
				SessionID: p.SessionID,
			})
		}
	}
	return items, nil
}

// writeItems writes items in chunks of the store's batch limit, retrying the
// unprocessed part of each chunk. It stops at the first chunk that cannot be
// written and reports the seqs the store accepted.
func (m *Manager) writeItems(ctx context.Context, items []core.Item) (map[int64]bool, error) {
	written := make(map[int64]bool, len(items))

	limit := m.table.BatchLimit()
	if limit <= 0 {
		limit = len(items)
	}

	for start := 0; start < len(items); start += limit {
		pending := items[start:min(start+limit, len(items))]

		err := m.retrier.Do(ctx, func() error {
			unprocessed, err := m.table.BatchConditionalWrite(ctx, pending)
			if errors.Is(err, core.ErrInvalidItem) {
				return retry.Permanent(err)
			}
			if err != nil {
				return err
			}

			left := make(map[int64]struct{}, len(unprocessed))
			for _, item := range unprocessed {
				left[item.Seq] = struct{}{}
			}
			for _, item := range pending {
				if _, ok := left[item.Seq]; !ok {
					written[item.Seq] = true
				}
			}

			if len(unprocessed) > 0 {
				pending = unprocessed
				return fmt.Errorf("%w: %d", errUnprocessed, len(unprocessed))
			}
			return nil
		})
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
