// Package storetest общий набор проверок для реализаций хранилища заказов
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// Store объединяет все интерфейсы хранилища order
type Store interface {
	repository.OrderRepository
	repository.ReservationRepository
	repository.OutboxRepository
}

// Factory возвращает пустое хранилище для одного подтеста
type Factory func(t *testing.T) Store

func items() []repository.OrderItem {
	return []repository.OrderItem{
		{ProductID: 1, SizeID: 1, Quantity: 2, Price: decimal.RequireFromString("10.00")},
		{ProductID: 2, SizeID: 3, Quantity: 1, Price: decimal.RequireFromString("5.50")},
	}
}

func pending(t *testing.T, ctx context.Context, s Store, userID int64) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, s.CreatePending(ctx, repository.Reservation{
		ID:     id,
		UserID: userID,
		Items:  []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 2}},
	}))
	return id
}

// Run прогоняет набор проверок против хранилища из factory
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("create and get order with reservation commit", func(t *testing.T) {
		s := factory(t)
		resID := pending(t, ctx, s, 7)
		orderID := uuid.NewString()

		created, err := s.CreateOrder(ctx, repository.CreateOrderParams{
			OrderID:       orderID,
			UserID:        7,
			TotalPrice:    decimal.RequireFromString("25.50"),
			Items:         items(),
			ReservationID: resID,
			Event: &repository.OutboxEvent{
				EventID: uuid.NewString(), AggregateID: orderID, Topic: "order.created", Payload: []byte(`{"order_id":"x"}`),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, repository.StatusCreated, created.Status)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.GetByID(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.UserID)
		assert.True(t, got.TotalPrice.Equal(decimal.RequireFromString("25.50")))
		require.Len(t, got.Items, 2)
		assert.True(t, repository.Total(got.Items).Equal(got.TotalPrice))

		// committed резервирование не отдаётся sweep и не может быть released
		stale, err := s.ListStalePending(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, stale)
		assert.ErrorIs(t, s.MarkReleased(ctx, resID), repository.ErrReservationNotPending)
		res, err := s.GetReservation(ctx, resID)
		require.NoError(t, err)
		assert.Equal(t, repository.ReservationCommitted, res.State)

		events, err := s.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, orderID, events[0].AggregateID)
	})

	t.Run("integrity violation stores nothing", func(t *testing.T) {
		s := factory(t)
		orderID := uuid.NewString()

		_, err := s.CreateOrder(ctx, repository.CreateOrderParams{
			OrderID:    orderID,
			UserID:     7,
			TotalPrice: decimal.RequireFromString("1.00"),
			Items:      items(),
		})
		require.ErrorIs(t, err, repository.ErrIntegrity)

		_, err = s.GetByID(ctx, orderID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("released reservation cannot be committed", func(t *testing.T) {
		s := factory(t)
		resID := pending(t, ctx, s, 7)
		require.NoError(t, s.MarkReleased(ctx, resID))

		_, err := s.CreateOrder(ctx, repository.CreateOrderParams{
			OrderID:       uuid.NewString(),
			UserID:        7,
			TotalPrice:    decimal.RequireFromString("25.50"),
			Items:         items(),
			ReservationID: resID,
		})
		require.ErrorIs(t, err, repository.ErrReservationNotPending)

		orders, err := s.ListByUser(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("unknown order is not found", func(t *testing.T) {
		s := factory(t)
		_, err := s.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = s.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("list by user", func(t *testing.T) {
		s := factory(t)
		for _, user := range []int64{1, 1, 2} {
			_, err := s.CreateOrder(ctx, repository.CreateOrderParams{
				OrderID:    uuid.NewString(),
				UserID:     user,
				TotalPrice: decimal.RequireFromString("25.50"),
				Items:      items(),
			})
			require.NoError(t, err)
		}

		orders, err := s.ListByUser(ctx, 1)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		for _, o := range orders {
			assert.Equal(t, int64(1), o.UserID)
			assert.Len(t, o.Items, 2)
		}

		orders, err = s.ListByUser(ctx, 3)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("returned order is a copy", func(t *testing.T) {
		s := factory(t)
		orderID := uuid.NewString()
		_, err := s.CreateOrder(ctx, repository.CreateOrderParams{
			OrderID:    orderID,
			UserID:     5,
			TotalPrice: decimal.RequireFromString("25.50"),
			Items:      items(),
		})
		require.NoError(t, err)

		got, err := s.GetByID(ctx, orderID)
		require.NoError(t, err)
		got.Items[0].Quantity = 999
		listed, err := s.ListByUser(ctx, 5)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		listed[0].Items[0].Price = decimal.Zero

		again, err := s.GetByID(ctx, orderID)
		require.NoError(t, err)
		assert.True(t, repository.Total(again.Items).Equal(again.TotalPrice), "stored order changed through a returned slice")
	})

	t.Run("stale pending reservations", func(t *testing.T) {
		s := factory(t)
		first := pending(t, ctx, s, 1)
		second := pending(t, ctx, s, 2)
		require.NoError(t, s.RecordAttempt(ctx, second, "ledger unavailable"))

		stale, err := s.ListStalePending(ctx, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, stale, "fresh reservations are inside the grace period")

		stale, err = s.ListStalePending(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		byID := map[string]repository.Reservation{stale[0].ID: stale[0], stale[1].ID: stale[1]}
		assert.Equal(t, 1, byID[second].Attempts)
		assert.Equal(t, "ledger unavailable", byID[second].LastError)
		assert.Equal(t, []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 2}}, byID[first].Items)

		require.NoError(t, s.MarkReleased(ctx, first))
		got, err := s.GetReservation(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, repository.ReservationReleased, got.State)
		_, err = s.GetReservation(ctx, uuid.NewString())
		assert.ErrorIs(t, err, repository.ErrNotFound)

		stale, err = s.ListStalePending(ctx, time.Now().Add(time.Hour), 1)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, second, stale[0].ID)
	})

	t.Run("outbox status transitions", func(t *testing.T) {
		s := factory(t)
		orderID := uuid.NewString()
		eventID := uuid.NewString()
		_, err := s.CreateOrder(ctx, repository.CreateOrderParams{
			OrderID:    orderID,
			UserID:     1,
			TotalPrice: decimal.RequireFromString("25.50"),
			Items:      items(),
			Event:      &repository.OutboxEvent{EventID: eventID, AggregateID: orderID, Topic: "order.created", Payload: []byte(`{}`)},
		})
		require.NoError(t, err)

		require.NoError(t, s.MarkOutboxEventFailed(ctx, eventID, "broker down"))
		events, err := s.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, events)

		require.NoError(t, s.ResetOutboxEventPending(ctx, eventID))
		events, err = s.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)

		require.NoError(t, s.MarkOutboxEventSent(ctx, eventID))
		events, err = s.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
