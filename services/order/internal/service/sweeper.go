package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// SweeperConfig параметры восстановления зависших резервирований
type SweeperConfig struct {
	// GracePeriod должен быть больше SagaTimeout, иначе sweeper вернёт резерв живой saga
	GracePeriod time.Duration
	Interval    time.Duration
	BatchSize   int
	StepTimeout time.Duration
}

// ReservationSweeper возвращает на склад pending резервирования старше GracePeriod.
// Такие резервирования остаются после падения процесса или неудачной компенсации
type ReservationSweeper struct {
	logger       *zap.Logger
	reservations repository.ReservationRepository
	ledger       StockLedgerClient
	cfg          SweeperConfig
	now          func() time.Time
}

// NewReservationSweeper создаёт sweeper
func NewReservationSweeper(logger *zap.Logger, reservations repository.ReservationRepository, ledger StockLedgerClient, cfg SweeperConfig) *ReservationSweeper {
	return &ReservationSweeper{
		logger:       logger,
		reservations: reservations,
		ledger:       ledger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Start запускает sweeper и блокируется до отмены ctx
func (s *ReservationSweeper) Start(ctx context.Context) error {
	s.logger.Info("starting reservation sweeper",
		zap.Duration("grace_period", s.cfg.GracePeriod),
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("reservation sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("reservation sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep обрабатывает один батч и возвращает число возвращённых резервирований
func (s *ReservationSweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.reservations.ListStalePending(ctx, s.now().Add(-s.cfg.GracePeriod), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale reservations: %w", err)
	}

	released := 0
	for _, res := range stale {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		logger := s.logger.With(zap.String("reservation_id", res.ID), zap.Int64("user_id", res.UserID))

		stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		err := s.ledger.Release(stepCtx, res.ID, res.Items)
		cancel()
		if err != nil {
			logger.Warn("sweeper release failed", zap.Int("attempts", res.Attempts+1), zap.Error(err))
			if rErr := s.reservations.RecordAttempt(ctx, res.ID, err.Error()); rErr != nil && !errors.Is(rErr, repository.ErrReservationNotPending) {
				logger.Warn("failed to record release attempt", zap.Error(rErr))
			}
			continue
		}

		if err := s.reservations.MarkReleased(ctx, res.ID); err != nil {
			if errors.Is(err, repository.ErrReservationNotPending) {
				continue
			}
			logger.Error("failed to mark reservation released", zap.Error(err))
			continue
		}
		released++
		logger.Info("stale reservation released", zap.Duration("age", s.now().Sub(res.CreatedAt)))
	}
	return released, nil
}
