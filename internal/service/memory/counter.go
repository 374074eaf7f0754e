package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/log"
	"golang.org/x/sync/singleflight"
)

const maxCounterAttempts = 3

// Floor is one past the highest seq and turn known to exist for a thread.
type Floor struct {
	Seq  int64
	Turn int64
}

// Allocator hands out blocks of seqs and turns from the counter row of each
// thread. The store's atomic increment is the only source of values, so
// blocks never overlap across processes or restarts.
type Allocator struct {
	table core.Table
	group singleflight.Group
}

func NewAllocator(table core.Table) *Allocator {
	return &Allocator{table: table}
}

// ReserveSeqBlock reserves count seqs and returns the first one.
func (a *Allocator) ReserveSeqBlock(ctx context.Context, threadID string, count int64, floor Floor) (int64, error) {
	return a.reserve(ctx, threadID, core.FieldNextSeq, count, floor.Seq, floor)
}

// ReserveTurnBlock reserves count turns and returns the first one.
func (a *Allocator) ReserveTurnBlock(ctx context.Context, threadID string, count int64, floor Floor) (int64, error) {
	return a.reserve(ctx, threadID, core.FieldNextTurn, count, floor.Turn, floor)
}

func (a *Allocator) reserve(ctx context.Context, threadID, field string, count, least int64, floor Floor) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("cannot reserve %d values", count)
	}
	key := core.Key{ThreadID: threadID, Seq: core.CounterSeq}

	var lastErr error
	for attempt := 0; attempt < maxCounterAttempts; attempt++ {
		end, err := a.table.AtomicAdd(ctx, key, field, count)
		if errors.Is(err, core.ErrNotFound) {
			if err := a.create(ctx, threadID, floor); err != nil {
				return 0, err
			}
			lastErr = err
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to reserve %s: %w", field, err)
		}

		start := end - count
		if start < least {
			// counter trails data already in the store; skip past it
			log.FromCtx(ctx).Warn().
				Str("field", field).
				Int64("counter", start).
				Int64("floor", least).
				Msg("counter behind stored history, advancing")

			end, err = a.table.AtomicAdd(ctx, key, field, least-start+count)
			if err != nil {
				return 0, fmt.Errorf("failed to advance %s: %w", field, err)
			}
			start = end - count
		}
		return start, nil
	}

	return 0, fmt.Errorf("counter row for %s did not appear after %d attempts: %w", threadID, maxCounterAttempts, lastErr)
}

// create puts the counter row if it is absent. Concurrent callers for the same
// thread share one put; losing a race to another process is success. History
// may predate the counter row, so the row starts past the newest stored message
// even when the caller's floor knows nothing about it.
func (a *Allocator) create(ctx context.Context, threadID string, floor Floor) error {
	_, err, _ := a.group.Do(threadID, func() (any, error) {
		newest, err := a.table.QueryRange(ctx, threadID, true, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to read newest message: %w", err)
		}
		for _, item := range newest {
			floor.Seq = max(floor.Seq, item.Seq+1)
			floor.Turn = max(floor.Turn, item.Turn+1)
		}

		err = a.table.ConditionalPut(ctx, core.Item{
			Key:      core.Key{ThreadID: threadID, Seq: core.CounterSeq},
			NextSeq:  max(floor.Seq, 1),
			NextTurn: max(floor.Turn, 1),
		})
		if errors.Is(err, core.ErrAlreadyExists) {
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to create counter row: %w", err)
	}
	return nil
}
