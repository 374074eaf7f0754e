package config

import (
	"context"
	"fmt"
	"time"

	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/caarlos0/env/v11"
)

type MemoryConfig struct {
	ContextPairs       int `env:"CONTEXT_PAIRS" envDefault:"15"`
	BatchPairs         int `env:"BATCH_PAIRS" envDefault:"20"`
	MaxRAMPairs        int `env:"MAX_RAM_PAIRS" envDefault:"50"`
	SessionIdleSeconds int `env:"SESSION_IDLE_SECONDS" envDefault:"21600"`

	// Spare seqs and turns reserved with every counter round trip
	SeqBlockSize int `env:"SEQ_BLOCK_SIZE" envDefault:"64"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`
}

func NewMemoryConfig(ctx context.Context) *MemoryConfig {
	c := &MemoryConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Memory config")
	}
	if err := c.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid Memory config")
	}
	return c
}

// DefaultMemoryConfig mirrors the envDefault tags.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		ContextPairs:       15,
		BatchPairs:         20,
		MaxRAMPairs:        50,
		SessionIdleSeconds: 21600,
		SeqBlockSize:       64,
		ShutdownTimeout:    30 * time.Second,
		JanitorInterval:    5 * time.Minute,
	}
}

func (c MemoryConfig) Validate() error {
	switch {
	case c.ContextPairs <= 0:
		return fmt.Errorf("CONTEXT_PAIRS must be positive, got %d", c.ContextPairs)
	case c.BatchPairs <= 0:
		return fmt.Errorf("BATCH_PAIRS must be positive, got %d", c.BatchPairs)
	case c.MaxRAMPairs < c.ContextPairs:
		return fmt.Errorf("MAX_RAM_PAIRS (%d) must be at least CONTEXT_PAIRS (%d)", c.MaxRAMPairs, c.ContextPairs)
	case c.SessionIdleSeconds <= 0:
		return fmt.Errorf("SESSION_IDLE_SECONDS must be positive, got %d", c.SessionIdleSeconds)
	case c.SeqBlockSize < 0:
		return fmt.Errorf("SEQ_BLOCK_SIZE must not be negative, got %d", c.SeqBlockSize)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	case c.JanitorInterval <= 0:
		return fmt.Errorf("JANITOR_INTERVAL must be positive, got %s", c.JanitorInterval)
	}
	return nil
}

func (c MemoryConfig) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleSeconds) * time.Second
}
