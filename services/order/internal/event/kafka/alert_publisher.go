package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/services/order/internal/repository"
	"github.com/shestoi/storefront/services/order/internal/service"
)

const compensationFailedEventType = "reservation.compensation_failed"

type compensationFailedPayload struct {
	EventID       string                       `json:"event_id"`
	EventType     string                       `json:"event_type"`
	EventVersion  int                          `json:"event_version"`
	OccurredAt    string                       `json:"occurred_at"`
	ReservationID string                       `json:"reservation_id"`
	UserID        int64                        `json:"user_id"`
	Items         []repository.ReservationItem `json:"items"`
	Attempts      int                          `json:"attempts"`
	Reason        string                       `json:"reason"`
}

// AlertPublisher реализует service.AlertPublisher: резервирования, которые сага
// не смогла вернуть на склад, уходят в отдельный топик для оператора
type AlertPublisher struct {
	logger *zap.Logger
	writer MessageWriter
	topic  string
}

// NewAlertPublisher создаёт publisher; writer может быть общим с OutboxDispatcher
func NewAlertPublisher(logger *zap.Logger, writer MessageWriter, topic string) *AlertPublisher {
	return &AlertPublisher{logger: logger, writer: writer, topic: topic}
}

var _ service.AlertPublisher = (*AlertPublisher)(nil)

// PublishCompensationFailed публикует событие reservation.compensation_failed
func (p *AlertPublisher) PublishCompensationFailed(ctx context.Context, event service.CompensationFailedEvent) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	value, err := json.Marshal(compensationFailedPayload{
		EventID:       uuid.NewString(),
		EventType:     compensationFailedEventType,
		EventVersion:  1,
		OccurredAt:    occurred.UTC().Format(time.RFC3339),
		ReservationID: event.ReservationID,
		UserID:        event.UserID,
		Items:         event.Items,
		Attempts:      event.Attempts,
		Reason:        event.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshal compensation failed event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ReservationID),
		Value: value,
	})
	if err != nil {
		p.logger.Error("failed to publish compensation failed event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("reservation_id", event.ReservationID),
		)
		return err
	}

	p.logger.Warn("compensation failed event published",
		zap.String("topic", p.topic),
		zap.String("reservation_id", event.ReservationID),
		zap.Int64("user_id", event.UserID),
	)
	return nil
}
