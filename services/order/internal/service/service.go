package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	platformobservability "github.com/shestoi/storefront/platform/observability"
	"github.com/shestoi/storefront/services/order/internal/repository"
)

const instrumentationName = "github.com/shestoi/storefront/services/order/internal/service"

// Config параметры saga оформления заказа
type Config struct {
	// StepTimeout ограничивает каждый внешний вызов saga
	StepTimeout time.Duration
	// SagaTimeout ограничивает PlaceOrder целиком и задаёт TTL блокировки пользователя
	SagaTimeout             time.Duration
	CompensationMaxAttempts int
	CompensationBackoff     time.Duration
	// OrderCreatedTopic пустой: событие order.created в outbox не пишется
	OrderCreatedTopic string
}

// Deps внешние зависимости OrderService; создаются один раз в app.Build
type Deps struct {
	Cart         CartClient
	Ledger       StockLedgerClient
	Catalog      CatalogClient
	Orders       repository.OrderRepository
	Reservations repository.ReservationRepository
	Locker       UserLocker
	// Alerts может быть nil, тогда о неудачной компенсации остаётся только лог
	Alerts AlertPublisher
}

// OrderService содержит бизнес-логику оформления и чтения заказов.
// Оформление это saga: корзина -> резерв склада -> цены каталога -> заказ -> очистка корзины,
// с компенсирующим возвратом резерва при отказе после успешного резервирования.
type OrderService struct {
	logger       *zap.Logger
	cfg          Config
	cart         CartClient
	ledger       StockLedgerClient
	catalog      CatalogClient
	orders       repository.OrderRepository
	reservations repository.ReservationRepository
	locker       UserLocker
	alerts       AlertPublisher

	tracer        trace.Tracer
	outcomes      metric.Int64Counter
	compensations metric.Int64Counter
	duration      metric.Float64Histogram

	newID func() string
	now   func() time.Time
	sleep func(time.Duration)
}

// NewOrderService создаёт новый экземпляр OrderService
func NewOrderService(deps Deps, cfg Config, logger *zap.Logger) *OrderService {
	if cfg.CompensationMaxAttempts < 1 {
		cfg.CompensationMaxAttempts = 1
	}

	meter := otel.Meter(instrumentationName)
	// при ошибке регистрации otel всё равно возвращает рабочий no-op инструмент
	outcomes, _ := meter.Int64Counter("order.saga.outcomes",
		metric.WithDescription("PlaceOrder terminal outcomes by error kind"))
	compensations, _ := meter.Int64Counter("order.saga.compensations",
		metric.WithDescription("Compensating releases by result"))
	duration, _ := meter.Float64Histogram("order.saga.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("PlaceOrder wall time including compensation"))

	return &OrderService{
		logger:        logger,
		cfg:           cfg,
		cart:          deps.Cart,
		ledger:        deps.Ledger,
		catalog:       deps.Catalog,
		orders:        deps.Orders,
		reservations:  deps.Reservations,
		locker:        deps.Locker,
		alerts:        deps.Alerts,
		tracer:        otel.Tracer(instrumentationName),
		outcomes:      outcomes,
		compensations: compensations,
		duration:      duration,
		newID:         uuid.NewString,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// PlaceOrder оформляет заказ из текущей корзины пользователя.
// Возвращает созданный заказ или *Error; частично применённого состояния вызывающий не видит
func (s *OrderService) PlaceOrder(ctx context.Context, userID int64) (repository.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	logger := platformobservability.L(ctx, s.logger).With(zap.Int64("user_id", userID))
	start := s.now()

	order, err := s.placeOrder(ctx, logger, userID)

	outcome := "completed"
	if err != nil {
		outcome = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logger.Warn("place order failed", zap.String("kind", outcome), zap.Error(err))
	} else {
		logger.Info("order placed",
			zap.String("order_id", order.ID),
			zap.String("total_price", order.TotalPrice.StringFixed(2)),
			zap.Int("items", len(order.Items)),
		)
	}
	outcomeAttr := metric.WithAttributes(attribute.String("outcome", outcome))
	s.outcomes.Add(ctx, 1, outcomeAttr)
	s.duration.Record(ctx, float64(s.now().Sub(start))/float64(time.Millisecond), outcomeAttr)
	return order, err
}

func (s *OrderService) placeOrder(ctx context.Context, logger *zap.Logger, userID int64) (repository.Order, error) {
	const op = "PlaceOrder"

	if userID <= 0 {
		return repository.Order{}, E(KindValidation, op, errors.New("user id must be positive"))
	}

	sagaCtx, cancel := context.WithTimeout(ctx, s.cfg.SagaTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(sagaCtx, userID, s.cfg.SagaTimeout)
	if errors.Is(err, repository.ErrLocked) {
		return repository.Order{}, E(KindConflict, op, errors.New("order placement already in progress"))
	}
	if err != nil {
		return repository.Order{}, E(KindUnavailable, op, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release user lock", zap.Error(err))
		}
	}()

	// FetchingCart
	var cart []CartItem
	err = s.step(sagaCtx, "fetch_cart", func(ctx context.Context) error {
		var err error
		cart, err = s.cart.GetCart(ctx, userID)
		return err
	})
	if err != nil {
		return repository.Order{}, as(op, err, KindUnavailable)
	}
	if len(cart) == 0 {
		return repository.Order{}, E(KindValidation, op, errors.New("cart is empty"))
	}
	items, err := reservationItems(cart)
	if err != nil {
		return repository.Order{}, E(KindValidation, op, err)
	}

	res := repository.Reservation{ID: s.newID(), UserID: userID, Items: items}
	if err := s.reservations.CreatePending(sagaCtx, res); err != nil {
		return repository.Order{}, E(KindPersistence, op, fmt.Errorf("record reservation: %w", err))
	}
	logger = logger.With(zap.String("reservation_id", res.ID))

	// Reserving
	err = s.step(sagaCtx, "reserve", func(ctx context.Context) error {
		return s.ledger.Reserve(ctx, res.ID, items)
	})
	if err != nil {
		switch KindOf(err) {
		case KindInsufficientStock, KindNotFound, KindValidation, KindConflict:
			// склад отказал целиком, ничего не списано
			if mErr := s.reservations.MarkReleased(context.WithoutCancel(ctx), res.ID); mErr != nil {
				logger.Warn("failed to mark rejected reservation released", zap.Error(mErr))
			}
			return repository.Order{}, as(op, err, KindUnavailable)
		default:
			// исход неизвестен (таймаут, обрыв): возврат по id безопасен, даже если склад ничего не списал
			return repository.Order{}, s.compensate(ctx, logger, res, as(op, err, KindUnavailable))
		}
	}

	// Pricing: цена берётся из каталога, а не из корзины
	orderItems := make([]repository.OrderItem, 0, len(items))
	prices := make(map[int64]decimal.Decimal, len(items))
	for _, it := range items {
		price, ok := prices[it.ProductID]
		if !ok {
			err = s.step(sagaCtx, "price", func(ctx context.Context) error {
				var err error
				price, err = s.catalog.GetPrice(ctx, it.ProductID)
				return err
			})
			if err != nil {
				return repository.Order{}, s.compensate(ctx, logger, res, as(op, err, KindUnavailable))
			}
			if price.IsNegative() {
				return repository.Order{}, s.compensate(ctx, logger, res,
					E(KindIntegrity, op, fmt.Errorf("catalog returned negative price for product %d", it.ProductID)))
			}
			prices[it.ProductID] = price
		}
		orderItems = append(orderItems, repository.OrderItem{
			ProductID: it.ProductID,
			SizeID:    it.SizeID,
			Quantity:  it.Quantity,
			Price:     price,
		})
	}
	total := repository.Total(orderItems)

	// Persisting
	orderID := s.newID()
	event, err := s.orderCreatedEvent(orderID, userID, total, orderItems)
	if err != nil {
		return repository.Order{}, s.compensate(ctx, logger, res, E(KindPersistence, op, err))
	}
	var order repository.Order
	err = s.step(sagaCtx, "persist", func(ctx context.Context) error {
		var err error
		order, err = s.orders.CreateOrder(ctx, repository.CreateOrderParams{
			OrderID:       orderID,
			UserID:        userID,
			TotalPrice:    total,
			Items:         orderItems,
			ReservationID: res.ID,
			Event:         event,
		})
		return err
	})
	if err != nil {
		kind := KindPersistence
		if errors.Is(err, repository.ErrIntegrity) {
			kind = KindIntegrity
		}
		return repository.Order{}, s.compensate(ctx, logger, res, E(kind, op, err))
	}

	// ClearingCart: заказ уже зафиксирован, ошибка только логируется
	if err := s.step(sagaCtx, "clear_cart", func(ctx context.Context) error {
		return s.cart.ClearCart(ctx, userID)
	}); err != nil {
		logger.Warn("failed to clear cart after order", zap.String("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

// step выполняет один внешний вызов saga в отдельном span с таймаутом StepTimeout.
// Истечение таймаута это отказ шага с KindUnavailable
func (s *OrderService) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "order.saga."+name)
	defer span.End()

	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	err := fn(stepCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && KindOf(err) == KindUnknown {
		err = E(KindUnavailable, name, fmt.Errorf("step timed out: %w", err))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, name+" failed")
	return err
}

// compensate возвращает резерв на склад по id с повторами и возвращает cause.
// Если все попытки неудачны, резерв остаётся pending для ReservationSweeper,
// публикуется алерт, а вызывающий получает KindCompensationFailed поверх cause
func (s *OrderService) compensate(ctx context.Context, logger *zap.Logger, res repository.Reservation, cause error) error {
	// компенсация должна отработать, даже если запрос уже отменён
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "order.saga.compensate")
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.CompensationMaxAttempts; attempt++ {
		released, err := s.releaseIfPending(ctx, logger, res)
		if err == nil {
			if !released {
				return cause
			}
			if err := s.reservations.MarkReleased(ctx, res.ID); err != nil {
				logger.Warn("failed to mark reservation released", zap.Error(err))
			}
			s.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "released")))
			logger.Info("reservation released", zap.Int("attempt", attempt))
			return cause
		}
		lastErr = err

		logger.Warn("compensating release failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.CompensationMaxAttempts),
			zap.Error(lastErr),
		)
		if err := s.reservations.RecordAttempt(ctx, res.ID, lastErr.Error()); err != nil {
			logger.Warn("failed to record release attempt", zap.Error(err))
		}
		if attempt < s.cfg.CompensationMaxAttempts {
			s.sleep(s.cfg.CompensationBackoff * time.Duration(attempt))
		}
	}

	s.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "compensation failed")
	logger.Error("reservation left unreconciled, sweeper will retry",
		zap.Int("attempts", s.cfg.CompensationMaxAttempts),
		zap.Error(lastErr),
	)

	if s.alerts != nil {
		alert := CompensationFailedEvent{
			ReservationID: res.ID,
			UserID:        res.UserID,
			Items:         res.Items,
			Attempts:      s.cfg.CompensationMaxAttempts,
			Reason:        lastErr.Error(),
			OccurredAt:    s.now().UTC(),
		}
		alertCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		if err := s.alerts.PublishCompensationFailed(alertCtx, alert); err != nil {
			logger.Error("failed to publish compensation failed alert", zap.Error(err))
		}
		cancel()
	}

	return &Error{
		Kind: KindCompensationFailed,
		Op:   "PlaceOrder",
		Err:  fmt.Errorf("%w (release: %v)", cause, lastErr),
	}
}

// releaseIfPending отпускает резерв на складе, только пока он pending.
// Пока состояние не прочитано, release не выполняется: заказ мог зафиксироваться
// вместе с резервом, а ответ потеряться. false без ошибки значит, что резерв уже разрешён
func (s *OrderService) releaseIfPending(ctx context.Context, logger *zap.Logger, res repository.Reservation) (bool, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	current, err := s.reservations.GetReservation(readCtx, res.ID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("read reservation state: %w", err)
	}
	if current.State != repository.ReservationPending {
		// заказ всё-таки зафиксирован, либо резерв уже вернул sweeper
		logger.Warn("reservation already resolved, skipping release", zap.String("state", string(current.State)))
		return false, nil
	}

	releaseCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()
	if err := s.ledger.Release(releaseCtx, res.ID, res.Items); err != nil {
		return false, err
	}
	return true, nil
}

// reservationItems строит позиции резервирования из снимка корзины
func reservationItems(cart []CartItem) ([]repository.ReservationItem, error) {
	items := make([]repository.ReservationItem, 0, len(cart))
	for i, c := range cart {
		if c.ProductID <= 0 || c.SizeID <= 0 {
			return nil, fmt.Errorf("cart item %d: product_id and size_id must be positive", i)
		}
		if c.Quantity <= 0 {
			return nil, fmt.Errorf("cart item %d: quantity must be positive", i)
		}
		items = append(items, repository.ReservationItem{ProductID: c.ProductID, SizeID: c.SizeID, Quantity: c.Quantity})
	}
	return repository.MergeItems(items)
}

// GetOrder возвращает заказ пользователя; чужой заказ неотличим от отсутствующего
func (s *OrderService) GetOrder(ctx context.Context, userID int64, orderID string) (repository.Order, error) {
	const op = "GetOrder"

	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Order{}, E(KindNotFound, op, err)
	}
	if err != nil {
		platformobservability.L(ctx, s.logger).Error("failed to get order", zap.String("order_id", orderID), zap.Error(err))
		return repository.Order{}, E(KindPersistence, op, err)
	}
	if order.UserID != userID {
		return repository.Order{}, E(KindNotFound, op, repository.ErrNotFound)
	}
	return order, nil
}

// ListOrders возвращает все заказы пользователя
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]repository.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		platformobservability.L(ctx, s.logger).Error("failed to list orders", zap.Int64("user_id", userID), zap.Error(err))
		return nil, E(KindPersistence, "ListOrders", err)
	}
	return orders, nil
}
