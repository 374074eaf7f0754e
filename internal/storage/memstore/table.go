// Package memstore is an in-process chat history table. It backs tests and
// STORE_BACKEND=memory runs where nothing has to survive the process.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/HummdG/tazaticket-final/internal/core"
)

const defaultBatchLimit = 25

type Table struct {
	mu         sync.RWMutex
	partitions map[string]map[int64]core.Item
	batchLimit int
}

func NewTable() *Table {
	return &Table{
		partitions: make(map[string]map[int64]core.Item),
		batchLimit: defaultBatchLimit,
	}
}

func (t *Table) BatchLimit() int {
	return t.batchLimit
}

func (t *Table) ConditionalPut(_ context.Context, item core.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.putLocked(item)
}

func (t *Table) putLocked(item core.Item) error {
	part, ok := t.partitions[item.ThreadID]
	if !ok {
		part = make(map[int64]core.Item)
		t.partitions[item.ThreadID] = part
	}
	if _, exists := part[item.Seq]; exists {
		return core.ErrAlreadyExists
	}
	part[item.Seq] = item
	return nil
}

func (t *Table) AtomicAdd(_ context.Context, key core.Key, field string, delta int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.partitions[key.ThreadID][key.Seq]
	if !ok {
		return 0, core.ErrNotFound
	}

	switch field {
	case core.FieldNextSeq:
		item.NextSeq += delta
		t.partitions[key.ThreadID][key.Seq] = item
		return item.NextSeq, nil
	case core.FieldNextTurn:
		item.NextTurn += delta
		t.partitions[key.ThreadID][key.Seq] = item
		return item.NextTurn, nil
	default:
		return 0, fmt.Errorf("unknown counter field %q", field)
	}
}

func (t *Table) BatchConditionalWrite(_ context.Context, items []core.Item) ([]core.Item, error) {
	if len(items) > t.batchLimit {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", core.ErrInvalidItem, len(items), t.batchLimit)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, item := range items {
		if err := t.putLocked(item); err != nil && err != core.ErrAlreadyExists {
			return nil, err
		}
	}
	return nil, nil
}

func (t *Table) QueryRange(_ context.Context, threadID string, desc bool, limit int) ([]core.Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	part := t.partitions[threadID]
	items := make([]core.Item, 0, len(part))
	for seq, item := range part {
		if seq == core.CounterSeq {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if desc {
			return items[i].Seq > items[j].Seq
		}
		return items[i].Seq < items[j].Seq
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// MessageCount reports how many message rows are stored, across all threads.
func (t *Table) MessageCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, part := range t.partitions {
		for seq := range part {
			if seq != core.CounterSeq {
				n++
			}
		}
	}
	return n
}

func (t *Table) Counter(threadID string) (core.Item, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.partitions[threadID][core.CounterSeq]
	return item, ok
}
