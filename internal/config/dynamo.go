package config

import (
	"context"

	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/caarlos0/env/v11"
)

type DynamoConfig struct {
	Table    string `env:"CHAT_HISTORY_TABLE" envDefault:"chat_history"`
	Region   string `env:"AWS_REGION,required,notEmpty"`
	Endpoint string `env:"DYNAMODB_ENDPOINT"`
}

func NewDynamoConfig(ctx context.Context) *DynamoConfig {
	c := &DynamoConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse DynamoDB config")
	}
	return c
}
