package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
)

// Settings is the settings provider for the server.
type Settings struct {
	DBPath              string `env:"CASEFLOW_DB_PATH" envDefault:"caseflow.db"`
	LogLevel            string `env:"CASEFLOW_LOG_LEVEL" envDefault:"error"`
	EphemeralStorage    bool   `env:"CASEFLOW_EPHEMERAL_STORAGE" envDefault:"false"`
	RecoverOnStart      bool   `env:"CASEFLOW_RECOVER_ON_START" envDefault:"true"`
	RecoveryConcurrency int    `env:"CASEFLOW_RECOVERY_CONCURRENCY" envDefault:"8"`
}

// GetEnvironment pulls the active settings into a settings struct.
func GetEnvironment() (*Settings, error) {
	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment settings: %w", err)
	}
	return cfg, nil
}
