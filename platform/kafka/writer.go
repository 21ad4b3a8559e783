package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter создаёт writer без фиксированного топика: топик задаётся в каждом kafka.Message.
// RequiredAcks=all, чтобы событие из outbox не считалось отправленным до записи на реплики.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}
