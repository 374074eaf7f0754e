package core

import (
	"context"
)

// Memory is the surface the conversation orchestration layer talks to.
type Memory interface {
	OnSessionStart(ctx context.Context, threadID string) error
	StartTurn(ctx context.Context, threadID, content string) error
	CompleteTurn(ctx context.Context, threadID, content string) error
	Window(ctx context.Context, threadID string) []Message
	OnSessionEnd(ctx context.Context, threadID string) error
	FlushAll(ctx context.Context, threadID string) error
}
