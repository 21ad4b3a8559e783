package kafka

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// LoadEnv заполняет cfg из переменных окружения по env-тегам и валидирует результат
func LoadEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse kafka env: %w", err)
	}
	return cfg.Validate()
}
