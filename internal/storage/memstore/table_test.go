package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(thread string, seq int64) core.Item {
	return core.Item{
		Key:       core.Key{ThreadID: thread, Seq: seq},
		Turn:      (seq + 1) / 2,
		Role:      core.RoleUser,
		Content:   "hello",
		Timestamp: time.Unix(seq, 0).UTC(),
	}
}

func TestTable_ConditionalPut(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()

	require.NoError(t, tbl.ConditionalPut(ctx, msg("T1", 1)))
	assert.ErrorIs(t, tbl.ConditionalPut(ctx, msg("T1", 1)), core.ErrAlreadyExists)
	assert.NoError(t, tbl.ConditionalPut(ctx, msg("T2", 1)))
}

func TestTable_AtomicAdd(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()
	key := core.Key{ThreadID: "T1", Seq: core.CounterSeq}

	_, err := tbl.AtomicAdd(ctx, key, core.FieldNextSeq, 1)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, tbl.ConditionalPut(ctx, core.Item{Key: key, NextSeq: 1, NextTurn: 1}))

	v, err := tbl.AtomicAdd(ctx, key, core.FieldNextSeq, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	v, err = tbl.AtomicAdd(ctx, key, core.FieldNextTurn, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = tbl.AtomicAdd(ctx, key, "bogus", 1)
	assert.Error(t, err)
}

func TestTable_BatchAndQuery(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()

	require.NoError(t, tbl.ConditionalPut(ctx, core.Item{Key: core.Key{ThreadID: "T1", Seq: core.CounterSeq}, NextSeq: 1}))

	var items []core.Item
	for seq := int64(1); seq <= 6; seq++ {
		items = append(items, msg("T1", seq))
	}
	unprocessed, err := tbl.BatchConditionalWrite(ctx, items)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	// rewriting the same keys is processed, not an error
	unprocessed, err = tbl.BatchConditionalWrite(ctx, items[:2])
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	got, err := tbl.QueryRange(ctx, "T1", true, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, int64(6), got[0].Seq)
	assert.Equal(t, int64(3), got[3].Seq)

	got, err = tbl.QueryRange(ctx, "T1", false, 0)
	require.NoError(t, err)
	require.Len(t, got, 6, "counter row must not be returned")
	assert.Equal(t, int64(1), got[0].Seq)

	assert.Equal(t, 6, tbl.MessageCount())
}

func TestTable_BatchLimit(t *testing.T) {
	tbl := NewTable()
	items := make([]core.Item, tbl.BatchLimit()+1)
	for i := range items {
		items[i] = msg("T1", int64(i+1))
	}
	_, err := tbl.BatchConditionalWrite(context.Background(), items)
	assert.ErrorIs(t, err, core.ErrInvalidItem)
}
