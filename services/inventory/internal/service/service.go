package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/platform/observability"
	"github.com/shestoi/storefront/services/inventory/internal/repository"
)

// ErrValidation некорректный запрос к ledger
var ErrValidation = errors.New("validation error")

// LedgerService бизнес-логика stock ledger: валидация, нормализация батча, метрики.
// Атомарность и порядок блокировок обеспечивает repository.StockLedger.
type LedgerService struct {
	repo    repository.StockLedger
	logger  *zap.Logger
	metrics *Metrics
}

// NewLedgerService создаёт новый экземпляр LedgerService
func NewLedgerService(repo repository.StockLedger, logger *zap.Logger, metrics *Metrics) *LedgerService {
	return &LedgerService{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}
}

// Reserve резервирует весь батч или ничего.
// Отказ по товару возвращается как *repository.ItemError.
func (s *LedgerService) Reserve(ctx context.Context, reservationID string, items []repository.ReservationItem) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe("reserve", start, err) }()

	if err := validateReservationID(reservationID); err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: items must not be empty", ErrValidation)
	}
	if err := validateItems(items); err != nil {
		return err
	}

	items, err = normalize(items)
	if err != nil {
		return err
	}
	log := observability.L(ctx, s.logger).With(zap.String("reservation_id", reservationID), zap.Int("items", len(items)))

	if err := s.repo.ReserveMany(ctx, reservationID, items); err != nil {
		var ie *repository.ItemError
		if errors.As(err, &ie) {
			log.Info("reserve refused",
				zap.Int64("product_id", ie.ProductID),
				zap.Int64("size_id", ie.SizeID),
				zap.Error(ie.Err),
			)
			return err
		}
		if errors.Is(err, repository.ErrReservationReleased) {
			log.Warn("reserve refused: reservation already released")
			return err
		}
		log.Error("reserve failed", zap.Error(err))
		return fmt.Errorf("reserve: %w", err)
	}

	log.Info("stock reserved")
	return nil
}

// Release возвращает батч на склад. С reservationID items берутся из сохранённого резерва
// и могут быть пустыми.
func (s *LedgerService) Release(ctx context.Context, reservationID string, items []repository.ReservationItem) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe("release", start, err) }()

	if err := validateReservationID(reservationID); err != nil {
		return err
	}
	if err := validateItems(items); err != nil {
		return err
	}

	items, err = normalize(items)
	if err != nil {
		return err
	}
	log := observability.L(ctx, s.logger).With(zap.String("reservation_id", reservationID), zap.Int("items", len(items)))

	if err := s.repo.ReleaseMany(ctx, reservationID, items); err != nil {
		log.Error("release failed", zap.Error(err))
		return fmt.Errorf("release: %w", err)
	}

	log.Info("stock released")
	return nil
}

// GetStock возвращает доступный остаток по ключу
func (s *LedgerService) GetStock(ctx context.Context, productID, sizeID int64) (int64, error) {
	if productID <= 0 || sizeID <= 0 {
		return 0, fmt.Errorf("%w: product_id and size_id must be positive", ErrValidation)
	}
	return s.repo.GetStock(ctx, productID, sizeID)
}

// GetProduct возвращает товар с ценой и остатками
func (s *LedgerService) GetProduct(ctx context.Context, productID int64) (repository.Product, error) {
	if productID <= 0 {
		return repository.Product{}, fmt.Errorf("%w: product_id must be positive", ErrValidation)
	}
	return s.repo.GetProduct(ctx, productID)
}

func validateItems(items []repository.ReservationItem) error {
	for i, it := range items {
		if it.ProductID <= 0 || it.SizeID <= 0 {
			return fmt.Errorf("%w: item %d: product_id and size_id must be positive", ErrValidation, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", ErrValidation, i)
		}
	}
	return nil
}

// normalize сливает повторы ключей; переполнение суммы считается ошибкой запроса
func normalize(items []repository.ReservationItem) ([]repository.ReservationItem, error) {
	out, err := repository.Normalize(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return out, nil
}

func validateReservationID(id string) error {
	if id == "" {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: reservation id must be a UUID", ErrValidation)
	}
	return nil
}
