package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// MessageWriter часть *kafka.Writer, нужная для публикации
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DispatcherConfig параметры цикла публикации outbox
type DispatcherConfig struct {
	BatchSize  int
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// OutboxDispatcher забирает pending события из outbox и публикует их в Kafka.
// Доставка at-least-once: событие помечается sent только после подтверждения брокера
type OutboxDispatcher struct {
	logger *zap.Logger
	repo   repository.OutboxRepository
	writer MessageWriter
	cfg    DispatcherConfig
}

// NewOutboxDispatcher создаёт новый outbox dispatcher
func NewOutboxDispatcher(logger *zap.Logger, repo repository.OutboxRepository, writer MessageWriter, cfg DispatcherConfig) *OutboxDispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &OutboxDispatcher{logger: logger, repo: repo, writer: writer, cfg: cfg}
}

// Start запускает dispatcher и блокируется до отмены ctx
func (d *OutboxDispatcher) Start(ctx context.Context) error {
	d.logger.Info("starting outbox dispatcher",
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("max_retries", d.cfg.MaxRetries),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	// Обрабатываем сразу при старте
	if err := d.processBatch(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("failed to process initial batch", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher context cancelled, stopping")
			return nil
		case <-ticker.C:
			if err := d.processBatch(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("failed to process batch", zap.Error(err))
			}
		}
	}
}

// processBatch обрабатывает батч pending событий
func (d *OutboxDispatcher) processBatch(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	events, err := d.repo.GetPendingOutboxEvents(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	d.logger.Debug("processing outbox batch", zap.Int("count", len(events)))

	for _, event := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.processEvent(ctx, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("failed to process event",
				zap.Error(err),
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
			)
			// следующие события батча не ждут неудачное
		}
	}
	return nil
}

// processEvent публикует одно событие с retry
func (d *OutboxDispatcher) processEvent(ctx context.Context, event repository.OutboxEvent) error {
	msg := kafka.Message{
		Topic: event.Topic,
		Key:   []byte(event.AggregateID), // order_id: события заказа попадают в одну партицию
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		err := d.writer.WriteMessages(ctx, msg)
		if err == nil {
			if markErr := d.repo.MarkOutboxEventSent(ctx, event.EventID); markErr != nil {
				return fmt.Errorf("mark event sent: %w", markErr)
			}
			d.logger.Info("outbox event published",
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
				zap.String("aggregate_id", event.AggregateID),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		lastErr = err
		d.logger.Warn("failed to publish outbox event",
			zap.Error(err),
			zap.String("event_id", event.EventID),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", d.cfg.MaxRetries),
		)

		if attempt < d.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	errMsg := fmt.Sprintf("failed after %d attempts: %v", d.cfg.MaxRetries, lastErr)
	if markErr := d.repo.MarkOutboxEventFailed(ctx, event.EventID, errMsg); markErr != nil {
		return fmt.Errorf("mark event failed: %w", markErr)
	}
	// Возвращаем в pending: следующий тик попробует снова
	if resetErr := d.repo.ResetOutboxEventPending(ctx, event.EventID); resetErr != nil {
		d.logger.Error("failed to reset event to pending",
			zap.Error(resetErr),
			zap.String("event_id", event.EventID),
		)
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", d.cfg.MaxRetries, lastErr)
}

// Close закрывает Kafka writer
func (d *OutboxDispatcher) Close() error {
	d.logger.Info("closing outbox dispatcher")
	return d.writer.Close()
}
