package cli

import (
	"context"
	"testing"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/service/memory"
	"github.com/HummdG/tazaticket-final/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsole(t *testing.T) (*Console, *memstore.Table) {
	t.Helper()
	store := memstore.NewTable()
	return NewConsole(memory.NewManager(config.DefaultMemoryConfig(), store)), store
}

func TestConsole_Conversation(t *testing.T) {
	ctx := context.Background()
	c, store := newTestConsole(t)

	out, err := c.Handle(ctx, "user: find me a flight to Lahore")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = c.Handle(ctx, "Assistant:  Which date?")
	require.NoError(t, err)

	out, err = c.Handle(ctx, "/window")
	require.NoError(t, err)
	assert.Contains(t, out, "user      find me a flight to Lahore")
	assert.Contains(t, out, "assistant Which date?")

	out, err = c.Handle(ctx, "/flush")
	require.NoError(t, err)
	assert.Equal(t, "flushed", out)
	assert.Equal(t, 2, store.MessageCount())
}

func TestConsole_ProtocolErrorsSurface(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestConsole(t)

	_, err := c.Handle(ctx, "assistant: nobody asked")
	assert.ErrorIs(t, err, memory.ErrProtocolViolation)
}

func TestConsole_Threads(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestConsole(t)

	_, err := c.Handle(ctx, "user: hello")
	require.NoError(t, err)

	out, err := c.Handle(ctx, "/thread other")
	require.NoError(t, err)
	assert.Equal(t, "switched to other", out)
	assert.Equal(t, "other", c.Thread())

	out, err = c.Handle(ctx, "/window")
	require.NoError(t, err)
	assert.Equal(t, "(empty window)", out)

	out, err = c.Handle(ctx, "/thread")
	require.NoError(t, err)
	assert.Equal(t, "other", out)
}

func TestConsole_EndClearsWindow(t *testing.T) {
	ctx := context.Background()
	c, store := newTestConsole(t)

	for _, line := range []string{"user: one", "assistant: two", "user: three"} {
		_, err := c.Handle(ctx, line)
		require.NoError(t, err)
	}

	_, err := c.Handle(ctx, "/end")
	require.NoError(t, err)
	assert.Equal(t, 2, store.MessageCount())

	// the next turn starts a new session and reloads the stored pair
	_, err = c.Handle(ctx, "user: four")
	require.NoError(t, err)
	out, err := c.Handle(ctx, "/window")
	require.NoError(t, err)
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "four")
	assert.NotContains(t, out, "three")
}

func TestConsole_RejectsUnknownInput(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestConsole(t)

	for _, line := range []string{"hello", "/bogus", "system: be nice"} {
		_, err := c.Handle(ctx, line)
		assert.ErrorIs(t, err, errUsage, line)
	}
}
