package kafka

import (
	"errors"
	"strings"
)

// Config содержит настройки подключения к Kafka, общие для сервисов
type Config struct {
	// Enabled выключает публикацию событий целиком (outbox копится в БД).
	Enabled bool `env:"KAFKA_ENABLED" envDefault:"false"`
	// Brokers через запятую: локально localhost:19092, в Docker kafka:9092
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:19092"`
	// OrderCreatedTopic топик для order.created (пишется outbox dispatcher-ом)
	OrderCreatedTopic string `env:"ORDER_CREATED_TOPIC" envDefault:"order.created"`
	// CompensationFailedTopic топик для reservation.compensation_failed
	CompensationFailedTopic string `env:"COMPENSATION_FAILED_TOPIC" envDefault:"reservation.compensation_failed"`
}

// DefaultConfig возвращает конфигурацию для локальной разработки
func DefaultConfig() Config {
	return Config{
		Brokers:                 []string{"localhost:19092"},
		OrderCreatedTopic:       "order.created",
		CompensationFailedTopic: "reservation.compensation_failed",
	}
}

// Validate проверяет конфигурацию только если Kafka включена
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS contains an empty broker"))
			break
		}
	}
	if c.OrderCreatedTopic == "" {
		errs = append(errs, errors.New("ORDER_CREATED_TOPIC is required"))
	}
	if c.CompensationFailedTopic == "" {
		errs = append(errs, errors.New("COMPENSATION_FAILED_TOPIC is required"))
	}
	return errors.Join(errs...)
}
