// Package ledgertest общий набор проверок для реализаций repository.StockLedger.
// Вызывается из тестов memory, postgres и mongo репозиториев.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
)

// Factory создаёт пустой ledger, засеянный переданным каталогом
type Factory func(t *testing.T, products []repository.Product) repository.StockLedger

// Product сокращённый конструктор товара с одним размером
func Product(id, sizeID, qty int64) repository.Product {
	return repository.Product{
		ID:    id,
		Name:  fmt.Sprintf("product-%d", id),
		Price: decimal.RequireFromString("10.00"),
		Sizes: []repository.ProductSize{{SizeID: sizeID, Quantity: qty}},
	}
}

func item(p, s, q int64) repository.ReservationItem {
	return repository.ReservationItem{ProductID: p, SizeID: s, Quantity: q}
}

func stock(t *testing.T, l repository.StockLedger, p, s int64) int64 {
	t.Helper()
	q, err := l.GetStock(context.Background(), p, s)
	require.NoError(t, err)
	return q
}

// Run прогоняет все проверки
func Run(t *testing.T, newLedger Factory) {
	t.Run("ConcurrentReserveOneWinner", func(t *testing.T) { testConcurrentReserveOneWinner(t, newLedger) })
	t.Run("BatchIsAllOrNothing", func(t *testing.T) { testBatchIsAllOrNothing(t, newLedger) })
	t.Run("FirstFailingItemInKeyOrder", func(t *testing.T) { testFirstFailingItemInKeyOrder(t, newLedger) })
	t.Run("ReleaseUnknownIsNoop", func(t *testing.T) { testReleaseUnknownIsNoop(t, newLedger) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newLedger) })
	t.Run("ConservationUnderContention", func(t *testing.T) { testConservation(t, newLedger) })
	t.Run("OppositeOrderBatchesDoNotDeadlock", func(t *testing.T) { testNoDeadlock(t, newLedger) })
	t.Run("IdempotentReservationID", func(t *testing.T) { testIdempotentReservationID(t, newLedger) })
	t.Run("ReleaseBeforeReserveRefuses", func(t *testing.T) { testReleaseBeforeReserve(t, newLedger) })
	t.Run("GetProduct", func(t *testing.T) { testGetProduct(t, newLedger) })
	t.Run("MergedQuantityOverflowRefused", func(t *testing.T) { testMergedQuantityOverflow(t, newLedger) })
	t.Run("ReleaseSaturatesAtMaxInt64", func(t *testing.T) { testReleaseSaturates(t, newLedger) })
}

func testConcurrentReserveOneWinner(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 5)})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.ReserveMany(context.Background(), "", []repository.ReservationItem{item(1, 1, 3)})
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(2), stock(t, l, 1, 1))
}

func testBatchIsAllOrNothing(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 5), Product(2, 1, 1)})

	err := l.ReserveMany(context.Background(), "", []repository.ReservationItem{item(1, 1, 2), item(2, 1, 2)})

	var ie *repository.ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(2), ie.ProductID)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)
	assert.Equal(t, int64(5), stock(t, l, 1, 1))
	assert.Equal(t, int64(1), stock(t, l, 2, 1))
}

func testFirstFailingItemInKeyOrder(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 0), Product(3, 1, 5)})

	// (2,1) отсутствует, (1,1) пуст: первым по порядку ключей идёт (1,1)
	err := l.ReserveMany(context.Background(), "", []repository.ReservationItem{item(3, 1, 1), item(2, 1, 1), item(1, 1, 1)})

	var ie *repository.ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(1), ie.ProductID)
	assert.Equal(t, int64(1), ie.SizeID)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	err = l.ReserveMany(context.Background(), "", []repository.ReservationItem{item(3, 1, 1), item(2, 1, 1)})
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(2), ie.ProductID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, int64(5), stock(t, l, 3, 1))
}

func testReleaseUnknownIsNoop(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 5)})

	require.NoError(t, l.ReleaseMany(context.Background(), "", []repository.ReservationItem{item(9, 9, 1)}))
	require.NoError(t, l.ReleaseMany(context.Background(), "", []repository.ReservationItem{item(9, 9, 1), item(1, 1, 2)}))

	_, err := l.GetStock(context.Background(), 9, 9)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, int64(7), stock(t, l, 1, 1))
}

func testRoundTrip(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 5), Product(1, 2, 3), Product(2, 1, 8)})
	items := []repository.ReservationItem{item(2, 1, 4), item(1, 1, 5), item(1, 1, 0), item(1, 2, 1)}

	require.NoError(t, l.ReserveMany(context.Background(), "", items))
	assert.Equal(t, int64(0), stock(t, l, 1, 1))
	require.NoError(t, l.ReleaseMany(context.Background(), "", items))

	assert.Equal(t, int64(5), stock(t, l, 1, 1))
	assert.Equal(t, int64(3), stock(t, l, 1, 2))
	assert.Equal(t, int64(8), stock(t, l, 2, 1))
}

func testConservation(t *testing.T, newLedger Factory) {
	const initial = 20
	l := newLedger(t, []repository.Product{Product(1, 1, initial)})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int64
		released int64
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			q := int64(i%3 + 1)
			if i%4 == 0 {
				if err := l.ReleaseMany(ctx, "", []repository.ReservationItem{item(1, 1, q)}); err == nil {
					mu.Lock()
					released += q
					mu.Unlock()
				}
				return
			}
			err := l.ReserveMany(ctx, "", []repository.ReservationItem{item(1, 1, q)})
			if err == nil {
				mu.Lock()
				reserved += q
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrInsufficientStock)
		}(i)
	}
	wg.Wait()

	final := stock(t, l, 1, 1)
	assert.GreaterOrEqual(t, final, int64(0))
	assert.Equal(t, initial-reserved+released, final)
}

func testNoDeadlock(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 1000), Product(2, 1, 1000), Product(3, 1, 1000)})

	forward := []repository.ReservationItem{item(1, 1, 1), item(2, 1, 1), item(3, 1, 1)}
	backward := []repository.ReservationItem{item(3, 1, 1), item(2, 1, 1), item(1, 1, 1)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			batch := forward
			if i%2 == 1 {
				batch = backward
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, l.ReserveMany(context.Background(), "", batch))
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("overlapping batches did not complete")
	}
	for p := int64(1); p <= 3; p++ {
		assert.Equal(t, int64(980), stock(t, l, p, 1))
	}
}

func testIdempotentReservationID(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 10)})
	ctx := context.Background()
	id := uuid.NewString()
	items := []repository.ReservationItem{item(1, 1, 4)}

	require.NoError(t, l.ReserveMany(ctx, id, items))
	require.NoError(t, l.ReserveMany(ctx, id, items))
	assert.Equal(t, int64(6), stock(t, l, 1, 1))

	// release по id берёт сохранённые items, переданные игнорируются
	require.NoError(t, l.ReleaseMany(ctx, id, nil))
	require.NoError(t, l.ReleaseMany(ctx, id, items))
	assert.Equal(t, int64(10), stock(t, l, 1, 1))

	assert.ErrorIs(t, l.ReserveMany(ctx, id, items), repository.ErrReservationReleased)
	assert.Equal(t, int64(10), stock(t, l, 1, 1))
}

func testReleaseBeforeReserve(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 10)})
	ctx := context.Background()
	id := uuid.NewString()
	items := []repository.ReservationItem{item(1, 1, 4)}

	require.NoError(t, l.ReleaseMany(ctx, id, items))
	assert.Equal(t, int64(10), stock(t, l, 1, 1))

	assert.ErrorIs(t, l.ReserveMany(ctx, id, items), repository.ErrReservationReleased)
	assert.Equal(t, int64(10), stock(t, l, 1, 1))
}

func testGetProduct(t *testing.T, newLedger Factory) {
	p := repository.Product{
		ID:    5,
		Name:  "sneakers",
		Price: decimal.RequireFromString("49.90"),
		Sizes: []repository.ProductSize{{SizeID: 42, Quantity: 2}, {SizeID: 41, Quantity: 7}},
	}
	l := newLedger(t, []repository.Product{p})

	got, err := l.GetProduct(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "sneakers", got.Name)
	assert.True(t, p.Price.Equal(got.Price), "price %s", got.Price)
	assert.Equal(t, []repository.ProductSize{{SizeID: 41, Quantity: 7}, {SizeID: 42, Quantity: 2}}, got.Sizes)

	_, err = l.GetProduct(context.Background(), 6)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)
}

func testMergedQuantityOverflow(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 5)})
	ctx := context.Background()
	batch := []repository.ReservationItem{item(1, 1, math.MaxInt64), item(1, 1, 2)}

	assert.ErrorIs(t, l.ReserveMany(ctx, "", batch), repository.ErrQuantityOverflow)
	assert.ErrorIs(t, l.ReserveMany(ctx, uuid.NewString(), batch), repository.ErrQuantityOverflow)
	assert.ErrorIs(t, l.ReleaseMany(ctx, "", batch), repository.ErrQuantityOverflow)
	assert.Equal(t, int64(5), stock(t, l, 1, 1))
}

func testReleaseSaturates(t *testing.T, newLedger Factory) {
	l := newLedger(t, []repository.Product{Product(1, 1, 5)})

	require.NoError(t, l.ReleaseMany(context.Background(), "", []repository.ReservationItem{item(1, 1, math.MaxInt64-1)}))
	assert.Equal(t, int64(math.MaxInt64), stock(t, l, 1, 1))

	require.NoError(t, l.ReserveMany(context.Background(), "", []repository.ReservationItem{item(1, 1, 7)}))
	assert.Equal(t, int64(math.MaxInt64-7), stock(t, l, 1, 1))
}
