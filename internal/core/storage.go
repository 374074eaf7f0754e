package core

import (
	"context"
	"errors"
	"time"
)

const (
	// CounterSeq is the reserved sort key of a thread's counter row.
	CounterSeq int64 = 0

	FieldNextSeq  = "next_seq"
	FieldNextTurn = "next_turn"

	// MaxContentLength caps persisted message content, in characters.
	MaxContentLength = 38000
)

var (
	ErrAlreadyExists = errors.New("item already exists")
	ErrNotFound      = errors.New("item not found")
	// ErrInvalidItem marks a write the store rejects for its content, so
	// retrying it cannot succeed.
	ErrInvalidItem = errors.New("invalid item")
)

type Key struct {
	ThreadID string
	Seq      int64
}

// Item is one row of the chat history table. Message rows use Seq > 0; the
// counter row sits at CounterSeq and only carries NextSeq and NextTurn.
type Item struct {
	Key
	Turn      int64
	Role      Role
	Content   string
	Timestamp time.Time
	SessionID string

	NextSeq  int64
	NextTurn int64
}

// Table is a key-sorted persistent table partitioned by thread id and sorted by seq.
type Table interface {
	// ConditionalPut writes item only if its key is absent, else ErrAlreadyExists.
	ConditionalPut(ctx context.Context, item Item) error
	// AtomicAdd adds delta to a counter field of an existing row and returns the
	// new value. Returns ErrNotFound when the row does not exist.
	AtomicAdd(ctx context.Context, key Key, field string, delta int64) (int64, error)
	// BatchConditionalWrite writes up to BatchLimit items and returns those the
	// store did not process. Items whose key already exists count as processed.
	BatchConditionalWrite(ctx context.Context, items []Item) ([]Item, error)
	// QueryRange returns message rows of one thread ordered by seq.
	QueryRange(ctx context.Context, threadID string, desc bool, limit int) ([]Item, error)
	BatchLimit() int
}
