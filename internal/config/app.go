package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/caarlos0/env/v11"
)

const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

type AppConfig struct {
	RuntimePath  string `env:"TAZAMEM_RUNTIME_PATH" envDefault:".tazamem"`
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`

	// Transport Flags
	EnableCLI bool `env:"ENABLE_CLI" envDefault:"true"`

	// Empty disables the Prometheus listener
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9464"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	if err := c.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid App config")
	}
	c.RuntimePath = resolveRuntimePath(c.RuntimePath)
	return c
}

func (c AppConfig) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendDynamoDB, BackendMemory:
		return nil
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "tazamem.db")
}

func (c AppConfig) GetHistoryPath() string {
	return filepath.Join(c.RuntimePath, "console_history")
}
