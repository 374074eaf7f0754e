package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation means StartTurn or CompleteTurn was called out of order.
	ErrProtocolViolation = errors.New("turn protocol violation")
	ErrDuplicateSeq      = errors.New("duplicate seq in batch")
	ErrEmptyThreadID     = errors.New("thread id is empty")
)

// DurableWriteError reports a flush that left pairs in memory.
type DurableWriteError struct {
	ThreadID    string
	Unprocessed int
	Err         error
}

func (e *DurableWriteError) Error() string {
	return fmt.Sprintf("durable write for thread %s left %d messages unwritten: %v", e.ThreadID, e.Unprocessed, e.Err)
}

func (e *DurableWriteError) Unwrap() error {
	return e.Err
}
