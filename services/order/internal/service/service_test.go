package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/services/order/internal/repository"
	"github.com/shestoi/storefront/services/order/internal/repository/memory"
	repoMocks "github.com/shestoi/storefront/services/order/internal/repository/mocks"
	"github.com/shestoi/storefront/services/order/internal/service"
	"github.com/shestoi/storefront/services/order/internal/service/mocks"
)

const userID int64 = 42

// fakeLedger склад в памяти с идемпотентными id, достаточный для проверки сохранения остатков
type fakeLedger struct {
	mu       sync.Mutex
	stock    map[[2]int64]int64
	reserved map[string][]repository.ReservationItem
	released map[string]bool
}

func newFakeLedger(stock map[[2]int64]int64) *fakeLedger {
	return &fakeLedger{stock: stock, reserved: map[string][]repository.ReservationItem{}, released: map[string]bool{}}
}

func (l *fakeLedger) Reserve(_ context.Context, id string, items []repository.ReservationItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.reserved[id]; ok {
		return nil
	}
	for _, it := range items {
		qty, ok := l.stock[[2]int64{it.ProductID, it.SizeID}]
		if !ok {
			return &service.Error{Kind: service.KindNotFound, ProductID: it.ProductID, SizeID: it.SizeID}
		}
		if qty < it.Quantity {
			return &service.Error{Kind: service.KindInsufficientStock, ProductID: it.ProductID, SizeID: it.SizeID}
		}
	}
	for _, it := range items {
		l.stock[[2]int64{it.ProductID, it.SizeID}] -= it.Quantity
	}
	l.reserved[id] = items
	return nil
}

func (l *fakeLedger) Release(_ context.Context, id string, _ []repository.ReservationItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released[id] {
		return nil
	}
	l.released[id] = true
	for _, it := range l.reserved[id] {
		l.stock[[2]int64{it.ProductID, it.SizeID}] += it.Quantity
	}
	return nil
}

func (l *fakeLedger) qty(productID, sizeID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[[2]int64{productID, sizeID}]
}

type fixture struct {
	cart    *mocks.CartClient
	catalog *mocks.CatalogClient
	alerts  *mocks.AlertPublisher
	store   *memory.MemoryRepository
	deps    service.Deps
	cfg     service.Config
}

func newFixture(t *testing.T, ledger service.StockLedgerClient) *fixture {
	t.Helper()
	f := &fixture{
		cart:    mocks.NewCartClient(t),
		catalog: mocks.NewCatalogClient(t),
		alerts:  mocks.NewAlertPublisher(t),
		store:   memory.NewMemoryRepository(),
		cfg: service.Config{
			StepTimeout:             time.Second,
			SagaTimeout:             5 * time.Second,
			CompensationMaxAttempts: 3,
			CompensationBackoff:     0,
			OrderCreatedTopic:       "order.created",
		},
	}
	f.deps = service.Deps{
		Cart:         f.cart,
		Ledger:       ledger,
		Catalog:      f.catalog,
		Orders:       f.store,
		Reservations: f.store,
		Locker:       memory.NewUserLocker(),
		Alerts:       f.alerts,
	}
	return f
}

func (f *fixture) service() *service.OrderService {
	return service.NewOrderService(f.deps, f.cfg, zap.NewNop())
}

func cartOf(items ...service.CartItem) []service.CartItem { return items }

func TestOrderService_PlaceOrder_HappyPath(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(map[[2]int64]int64{{1, 1}: 5})
	f := newFixture(t, ledger)

	// цена в корзине устарела, в заказ идёт цена каталога
	f.cart.On("GetCart", mock.Anything, userID).
		Return(cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2, Price: decimal.RequireFromString("7.00")}), nil).Once()
	f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("10.00"), nil).Once()
	f.cart.On("ClearCart", mock.Anything, userID).Return(nil).Once()

	order, err := f.service().PlaceOrder(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, repository.StatusCreated, order.Status)
	assert.Equal(t, "20.00", order.TotalPrice.StringFixed(2))
	require.Len(t, order.Items, 1)
	assert.Equal(t, repository.OrderItem{ProductID: 1, SizeID: 1, Quantity: 2, Price: decimal.RequireFromString("10.00")}, order.Items[0])
	assert.Equal(t, int64(3), ledger.qty(1, 1))

	stored, err := f.store.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, repository.Total(stored.Items).Equal(stored.TotalPrice))

	stale, err := f.store.ListStalePending(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "reservation must be committed with the order")

	events, err := f.store.GetPendingOutboxEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	var payload service.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, "20.00", payload.TotalPrice)
	assert.Equal(t, "order.created", events[0].Topic)
}

func TestOrderService_PlaceOrder_DuplicateCartLinesMerged(t *testing.T) {
	ledger := newFakeLedger(map[[2]int64]int64{{1, 1}: 5, {1, 2}: 5})
	f := newFixture(t, ledger)
	f.cfg.OrderCreatedTopic = ""

	f.cart.On("GetCart", mock.Anything, userID).Return(cartOf(
		service.CartItem{ProductID: 1, SizeID: 2, Quantity: 1},
		service.CartItem{ProductID: 1, SizeID: 1, Quantity: 1},
		service.CartItem{ProductID: 1, SizeID: 2, Quantity: 2},
	), nil).Once()
	// одна цена на товар: каталог спрашивается один раз
	f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("1.50"), nil).Once()
	f.cart.On("ClearCart", mock.Anything, userID).Return(nil).Once()

	order, err := f.service().PlaceOrder(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(3), order.Items[1].Quantity)
	assert.Equal(t, "6.00", order.TotalPrice.StringFixed(2))
	assert.Equal(t, int64(2), ledger.qty(1, 2))

	events, err := f.store.GetPendingOutboxEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestOrderService_PlaceOrder_Failures(t *testing.T) {
	ctx := context.Background()
	persistErr := errors.New("connection refused")

	tests := []struct {
		name         string
		stock        map[[2]int64]int64
		cart         []service.CartItem
		cartErr      error
		priceErr     error
		ordersErr    error
		wantKind     service.Kind
		wantIs       error
		wantItem     [2]int64
		wantPriced   bool
		wantStock    int64
	}{
		{
			name:      "error: empty cart aborts before ledger",
			stock:     map[[2]int64]int64{{1, 1}: 5},
			cart:      cartOf(),
			wantKind:  service.KindValidation,
			wantStock: 5,
		},
		{
			name:      "error: cart service unreachable",
			stock:     map[[2]int64]int64{{1, 1}: 5},
			cartErr:   errors.New("dial tcp: connection refused"),
			wantKind:  service.KindUnavailable,
			wantStock: 5,
		},
		{
			name:      "error: non-positive cart quantity",
			stock:     map[[2]int64]int64{{1, 1}: 5},
			cart:      cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 0}),
			wantKind:  service.KindValidation,
			wantStock: 5,
		},
		{
			name:      "error: repeated cart lines overflowing quantity",
			stock:     map[[2]int64]int64{{1, 1}: 5},
			cart:      cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: math.MaxInt64}, service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}),
			wantKind:  service.KindValidation,
			wantIs:    repository.ErrQuantityOverflow,
			wantStock: 5,
		},
		{
			name:         "error: insufficient stock names the item",
			stock:        map[[2]int64]int64{{1, 1}: 5, {2, 1}: 1},
			cart:         cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}, service.CartItem{ProductID: 2, SizeID: 1, Quantity: 3}),
			wantKind:     service.KindInsufficientStock,
			wantItem:     [2]int64{2, 1},
			wantStock:    5,
		},
		{
			name:         "error: unknown size",
			stock:        map[[2]int64]int64{{1, 1}: 5},
			cart:         cartOf(service.CartItem{ProductID: 1, SizeID: 9, Quantity: 1}),
			wantKind:     service.KindNotFound,
			wantItem:     [2]int64{1, 9},
			wantStock:    5,
		},
		{
			name:         "error: pricing failure compensates",
			stock:        map[[2]int64]int64{{1, 1}: 5},
			cart:         cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}),
			priceErr:     &service.Error{Kind: service.KindNotFound},
			wantKind:     service.KindNotFound,
			wantPriced:   true,
			wantStock:    5,
		},
		{
			name:         "error: persistence failure compensates",
			stock:        map[[2]int64]int64{{1, 1}: 5},
			cart:         cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}),
			ordersErr:    persistErr,
			wantKind:     service.KindPersistence,
			wantIs:       persistErr,
			wantPriced:   true,
			wantStock:    5,
		},
		{
			name:         "error: integrity violation compensates",
			stock:        map[[2]int64]int64{{1, 1}: 5},
			cart:         cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}),
			ordersErr:    repository.ErrIntegrity,
			wantKind:     service.KindIntegrity,
			wantIs:       repository.ErrIntegrity,
			wantPriced:   true,
			wantStock:    5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger(tt.stock)
			f := newFixture(t, ledger)

			f.cart.On("GetCart", mock.Anything, userID).Return(tt.cart, tt.cartErr).Once()
			if tt.wantPriced {
				f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("10.00"), tt.priceErr).Once()
			}
			if tt.ordersErr != nil {
				orders := repoMocks.NewOrderRepository(t)
				orders.On("CreateOrder", mock.Anything, mock.AnythingOfType("repository.CreateOrderParams")).
					Return(repository.Order{}, tt.ordersErr).Once()
				f.deps.Orders = orders
			}

			_, err := f.service().PlaceOrder(ctx, userID)

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, service.KindOf(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantItem != ([2]int64{}) {
				var se *service.Error
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.wantItem, [2]int64{se.ProductID, se.SizeID})
			}
			assert.Equal(t, tt.wantStock, ledger.qty(1, 1))

			orders, lErr := f.store.ListByUser(ctx, userID)
			require.NoError(t, lErr)
			assert.Empty(t, orders)

			stale, sErr := f.store.ListStalePending(ctx, time.Now().Add(time.Hour), 10)
			require.NoError(t, sErr)
			assert.Empty(t, stale, "no reservation may stay pending after a handled failure")
			// каждый успешный резерв вернулся на склад
			assert.Len(t, ledger.released, len(ledger.reserved))
		})
	}
}

func TestOrderService_PlaceOrder_CompensationFailed(t *testing.T) {
	ctx := context.Background()
	ledger := mocks.NewStockLedgerClient(t)
	f := newFixture(t, ledger)
	persistErr := errors.New("disk full")
	releaseErr := &service.Error{Kind: service.KindUnavailable, Err: errors.New("inventory down")}

	items := []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 2}}
	f.cart.On("GetCart", mock.Anything, userID).Return(cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}), nil).Once()
	ledger.On("Reserve", mock.Anything, mock.AnythingOfType("string"), items).Return(nil).Once()
	f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("10.00"), nil).Once()
	orders := repoMocks.NewOrderRepository(t)
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(repository.Order{}, persistErr).Once()
	f.deps.Orders = orders
	ledger.On("Release", mock.Anything, mock.AnythingOfType("string"), items).Return(releaseErr).Times(3)
	f.alerts.On("PublishCompensationFailed", mock.Anything, mock.MatchedBy(func(ev service.CompensationFailedEvent) bool {
		return ev.UserID == userID && ev.Attempts == 3 && len(ev.Items) == 1
	})).Return(nil).Once()

	_, err := f.service().PlaceOrder(ctx, userID)

	require.Error(t, err)
	assert.Equal(t, service.KindCompensationFailed, service.KindOf(err))
	assert.ErrorIs(t, err, persistErr, "original failure stays reachable")

	// резерв остаётся pending для sweeper, попытки записаны
	stale, err := f.store.ListStalePending(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, 3, stale[0].Attempts)
	assert.Contains(t, stale[0].LastError, "inventory down")
}

// lostAckStore фиксирует заказ, но отвечает ошибкой, и не может прочитать резерв
type lostAckStore struct {
	*memory.MemoryRepository
	commitErr error
}

func (s lostAckStore) CreateOrder(ctx context.Context, params repository.CreateOrderParams) (repository.Order, error) {
	if _, err := s.MemoryRepository.CreateOrder(ctx, params); err != nil {
		return repository.Order{}, err
	}
	return repository.Order{}, s.commitErr
}

func (s lostAckStore) GetReservation(context.Context, string) (repository.Reservation, error) {
	return repository.Reservation{}, errors.New("connection reset")
}

func TestOrderService_PlaceOrder_UnknownReservationStateKeepsStock(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(map[[2]int64]int64{{1, 1}: 5})
	f := newFixture(t, ledger)
	store := lostAckStore{MemoryRepository: f.store, commitErr: errors.New("connection reset")}
	f.deps.Orders = store
	f.deps.Reservations = store

	f.cart.On("GetCart", mock.Anything, userID).Return(cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}), nil).Once()
	f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("10.00"), nil).Once()
	f.alerts.On("PublishCompensationFailed",
		mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}),
		mock.MatchedBy(func(ev service.CompensationFailedEvent) bool {
			return ev.UserID == userID && ev.Attempts == 3
		}),
	).Return(nil).Once()

	_, err := f.service().PlaceOrder(ctx, userID)

	require.Error(t, err)
	assert.Equal(t, service.KindCompensationFailed, service.KindOf(err))
	assert.Contains(t, err.Error(), "read reservation state")

	// заказ зафиксирован, значит его единицы остаются списанными
	orders, err := f.store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(3), ledger.qty(1, 1))
	assert.Empty(t, ledger.released)

	// sweeper видит только pending, committed резерв ему недоступен
	stale, err := f.store.ListStalePending(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestOrderService_PlaceOrder_UnreadableStateLeavesPendingForSweeper(t *testing.T) {
	ctx := context.Background()
	ledger := mocks.NewStockLedgerClient(t)
	f := newFixture(t, ledger)
	persistErr := errors.New("connection refused")

	reservations := repoMocks.NewReservationRepository(t)
	reservations.On("CreatePending", mock.Anything, mock.Anything).Return(nil).Once()
	reservations.On("GetReservation", mock.Anything, mock.AnythingOfType("string")).
		Return(repository.Reservation{}, errors.New("pool exhausted")).Times(3)
	reservations.On("RecordAttempt", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil).Times(3)
	f.deps.Reservations = reservations
	orders := repoMocks.NewOrderRepository(t)
	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(repository.Order{}, persistErr).Once()
	f.deps.Orders = orders

	f.cart.On("GetCart", mock.Anything, userID).Return(cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 2}), nil).Once()
	ledger.On("Reserve", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()
	f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("10.00"), nil).Once()
	f.alerts.On("PublishCompensationFailed", mock.Anything, mock.Anything).Return(errors.New("kafka down")).Once()

	_, err := f.service().PlaceOrder(ctx, userID)

	require.Error(t, err)
	assert.Equal(t, service.KindCompensationFailed, service.KindOf(err))
	assert.ErrorIs(t, err, persistErr)
	ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	reservations.AssertNotCalled(t, "MarkReleased", mock.Anything, mock.Anything)
}

func TestOrderService_PlaceOrder_ReleaseUsesReservedIDAndItems(t *testing.T) {
	ledger := mocks.NewStockLedgerClient(t)
	f := newFixture(t, ledger)

	var reservedID string
	f.cart.On("GetCart", mock.Anything, userID).Return(cartOf(service.CartItem{ProductID: 3, SizeID: 4, Quantity: 1}), nil).Once()
	ledger.On("Reserve", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { reservedID = args.String(1) }).Return(nil).Once()
	f.catalog.On("GetPrice", mock.Anything, int64(3)).Return(decimal.Zero, errors.New("timeout")).Once()
	ledger.On("Release", mock.Anything, mock.MatchedBy(func(id string) bool { return id == reservedID }),
		[]repository.ReservationItem{{ProductID: 3, SizeID: 4, Quantity: 1}}).Return(nil).Once()

	_, err := f.service().PlaceOrder(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, service.KindUnavailable, service.KindOf(err))

	res, err := f.store.GetReservation(context.Background(), reservedID)
	require.NoError(t, err)
	assert.Equal(t, repository.ReservationReleased, res.State)
}

func TestOrderService_PlaceOrder_ReserveTimeoutCompensates(t *testing.T) {
	ledger := mocks.NewStockLedgerClient(t)
	f := newFixture(t, ledger)
	f.cfg.StepTimeout = 20 * time.Millisecond

	f.cart.On("GetCart", mock.Anything, userID).Return(cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 1}), nil).Once()
	ledger.On("Reserve", mock.Anything, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ string, _ []repository.ReservationItem) error {
			<-ctx.Done()
			return ctx.Err()
		}).Once()
	// исход резерва неизвестен: возврат по id, склад сам решит, было ли что возвращать
	ledger.On("Release", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()

	_, err := f.service().PlaceOrder(context.Background(), userID)

	require.Error(t, err)
	assert.Equal(t, service.KindUnavailable, service.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOrderService_PlaceOrder_ClearCartFailureIsNotFatal(t *testing.T) {
	ledger := newFakeLedger(map[[2]int64]int64{{1, 1}: 5})
	f := newFixture(t, ledger)

	f.cart.On("GetCart", mock.Anything, userID).Return(cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 1}), nil).Once()
	f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("3.00"), nil).Once()
	f.cart.On("ClearCart", mock.Anything, userID).Return(errors.New("cart unavailable")).Once()

	order, err := f.service().PlaceOrder(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, "3.00", order.TotalPrice.StringFixed(2))
	assert.Equal(t, int64(4), ledger.qty(1, 1))
}

func TestOrderService_PlaceOrder_UserLockConflict(t *testing.T) {
	ledger := mocks.NewStockLedgerClient(t)
	f := newFixture(t, ledger)
	locker := mocks.NewUserLocker(t)
	locker.On("Lock", mock.Anything, userID, 5*time.Second).Return(nil, repository.ErrLocked).Once()
	f.deps.Locker = locker

	_, err := f.service().PlaceOrder(context.Background(), userID)

	require.Error(t, err)
	assert.Equal(t, service.KindConflict, service.KindOf(err))
}

func TestOrderService_PlaceOrder_ConcurrentSameUser(t *testing.T) {
	ledger := newFakeLedger(map[[2]int64]int64{{1, 1}: 5})
	f := newFixture(t, ledger)
	f.cfg.OrderCreatedTopic = ""

	entered := make(chan struct{})
	proceed := make(chan struct{})
	f.cart.On("GetCart", mock.Anything, userID).
		Run(func(mock.Arguments) {
			close(entered)
			<-proceed
		}).
		Return(cartOf(service.CartItem{ProductID: 1, SizeID: 1, Quantity: 1}), nil).Once()
	f.catalog.On("GetPrice", mock.Anything, int64(1)).Return(decimal.RequireFromString("1.00"), nil).Once()
	f.cart.On("ClearCart", mock.Anything, userID).Return(nil).Once()

	svc := f.service()
	done := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), userID)
		done <- err
	}()

	<-entered
	_, err := svc.PlaceOrder(context.Background(), userID)
	assert.Equal(t, service.KindConflict, service.KindOf(err))
	close(proceed)

	require.NoError(t, <-done)
	assert.Equal(t, int64(4), ledger.qty(1, 1))
}

func TestOrderService_GetOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newFakeLedger(nil))
	order, err := f.store.CreateOrder(ctx, repository.CreateOrderParams{
		OrderID:    "0b8c1a8e-7a53-4c4d-9d2e-0a8f3c7b1e11",
		UserID:     userID,
		TotalPrice: decimal.RequireFromString("4.00"),
		Items:      []repository.OrderItem{{ProductID: 1, SizeID: 1, Quantity: 2, Price: decimal.RequireFromString("2.00")}},
	})
	require.NoError(t, err)
	svc := f.service()

	got, err := svc.GetOrder(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.GetOrder(ctx, userID+1, order.ID)
	assert.Equal(t, service.KindNotFound, service.KindOf(err), "foreign order looks absent")

	_, err = svc.GetOrder(ctx, userID, "missing")
	assert.Equal(t, service.KindNotFound, service.KindOf(err))

	list, err := svc.ListOrders(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.ListOrders(ctx, userID+1)
	require.NoError(t, err)
	assert.Empty(t, list)
}
