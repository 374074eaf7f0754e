package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/mattn/go-sqlite3"
)

const batchLimit = 100

const insertItem = `
INSERT INTO chat_history (thread_id, seq, turn, role, content, ts_iso, session_id, next_seq, next_turn)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (thread_id, seq) DO NOTHING`

// counter columns are interpolated into SQL, so only these names are accepted
var counterColumns = map[string]string{
	core.FieldNextSeq:  "next_seq",
	core.FieldNextTurn: "next_turn",
}

type Table struct {
	db *sql.DB
}

func NewTable(db *sql.DB) *Table {
	return &Table{db: db}
}

func (t *Table) BatchLimit() int {
	return batchLimit
}

func (t *Table) ConditionalPut(ctx context.Context, item core.Item) error {
	res, err := t.db.ExecContext(ctx, insertItem, itemArgs(item)...)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrAlreadyExists
	}
	return nil
}

func (t *Table) AtomicAdd(ctx context.Context, key core.Key, field string, delta int64) (int64, error) {
	column, ok := counterColumns[field]
	if !ok {
		return 0, fmt.Errorf("unknown counter field %q", field)
	}

	query := fmt.Sprintf(
		`UPDATE chat_history SET %[1]s = %[1]s + ? WHERE thread_id = ? AND seq = ? RETURNING %[1]s`,
		column,
	)

	var value int64
	err := t.db.QueryRowContext(ctx, query, delta, key.ThreadID, key.Seq).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", column, err)
	}
	return value, nil
}

// BatchConditionalWrite writes the batch in one transaction. A busy or locked
// database hands the whole batch back as unprocessed so the caller's backoff applies.
func (t *Table) BatchConditionalWrite(ctx context.Context, items []core.Item) ([]core.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > batchLimit {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", core.ErrInvalidItem, len(items), batchLimit)
	}

	err := t.writeTx(ctx, items)
	if isBusy(err) {
		log.FromCtx(ctx).Debug().Err(err).Int("count", len(items)).Msg("sqlite busy, batch left unprocessed")
		return items, nil
	}
	if isConstraint(err) {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidItem, err)
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (t *Table) writeTx(ctx context.Context, items []core.Item) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertItem)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, itemArgs(item)...); err != nil {
			return fmt.Errorf("failed to insert seq %d: %w", item.Seq, err)
		}
	}

	return tx.Commit()
}

func (t *Table) QueryRange(ctx context.Context, threadID string, desc bool, limit int) ([]core.Item, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	if limit <= 0 {
		limit = -1
	}

	query := fmt.Sprintf(`
		SELECT seq, turn, role, content, ts_iso, session_id
		FROM chat_history
		WHERE thread_id = ? AND seq > ?
		ORDER BY seq %s
		LIMIT ?`, order)

	rows, err := t.db.QueryContext(ctx, query, threadID, core.CounterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		item := core.Item{Key: core.Key{ThreadID: threadID}}
		var role, ts string
		if err := rows.Scan(&item.Seq, &item.Turn, &role, &item.Content, &ts, &item.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		item.Role = core.Role(role)
		if ts != "" {
			if item.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
				return nil, fmt.Errorf("bad timestamp on seq %d: %w", item.Seq, err)
			}
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Debug().Int("count", len(items)).Str("thread_id", threadID).Msg("loaded history rows")
	return items, nil
}

func itemArgs(item core.Item) []any {
	ts := ""
	if !item.Timestamp.IsZero() {
		ts = item.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return []any{
		item.ThreadID, item.Seq, item.Turn, string(item.Role), item.Content,
		ts, item.SessionID, item.NextSeq, item.NextTurn,
	}
}

func isBusy(err error) bool {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	return sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked
}

func isConstraint(err error) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint
}
