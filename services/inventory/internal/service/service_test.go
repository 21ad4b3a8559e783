package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
	"github.com/shestoi/storefront/services/inventory/internal/repository/memory"
	"github.com/shestoi/storefront/services/inventory/internal/repository/mocks"
)

func newService(t *testing.T, repo repository.StockLedger) (*LedgerService, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewLedgerService(repo, zap.NewNop(), metrics), metrics
}

func TestLedgerService_Reserve(t *testing.T) {
	ctx := context.Background()
	resID := uuid.NewString()

	tests := []struct {
		name          string
		reservationID string
		items         []repository.ReservationItem
		expectRepo    bool
		wantItems     []repository.ReservationItem
		repoError     error
		errorIs       error
		outcome       string
	}{
		{
			name:          "success: duplicates merged and sorted before repository call",
			reservationID: resID,
			items: []repository.ReservationItem{
				{ProductID: 2, SizeID: 1, Quantity: 1},
				{ProductID: 1, SizeID: 1, Quantity: 2},
				{ProductID: 2, SizeID: 1, Quantity: 3},
			},
			expectRepo: true,
			wantItems: []repository.ReservationItem{
				{ProductID: 1, SizeID: 1, Quantity: 2},
				{ProductID: 2, SizeID: 1, Quantity: 4},
			},
			outcome: "ok",
		},
		{
			name:    "error: empty batch",
			items:   nil,
			errorIs: ErrValidation,
			outcome: "invalid",
		},
		{
			name:    "error: non-positive quantity",
			items:   []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 0}},
			errorIs: ErrValidation,
			outcome: "invalid",
		},
		{
			name:          "error: malformed reservation id",
			reservationID: "not-a-uuid",
			items:         []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 1}},
			errorIs:       ErrValidation,
			outcome:       "invalid",
		},
		{
			name: "error: merged quantity overflows int64",
			items: []repository.ReservationItem{
				{ProductID: 1, SizeID: 1, Quantity: math.MaxInt64},
				{ProductID: 1, SizeID: 1, Quantity: 2},
			},
			errorIs: repository.ErrQuantityOverflow,
			outcome: "invalid",
		},
		{
			name:       "error: insufficient stock passed through",
			items:      []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 9}},
			expectRepo: true,
			wantItems:  []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 9}},
			repoError:  &repository.ItemError{ProductID: 1, SizeID: 1, Err: repository.ErrInsufficientStock},
			errorIs:    repository.ErrInsufficientStock,
			outcome:    "insufficient_stock",
		},
		{
			name:       "error: storage failure wrapped",
			items:      []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 1}},
			expectRepo: true,
			wantItems:  []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: 1}},
			repoError:  errors.New("connection reset"),
			outcome:    "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewStockLedger(t)
			if tt.expectRepo {
				repo.On("ReserveMany", mock.Anything, tt.reservationID, tt.wantItems).Return(tt.repoError).Once()
			}
			svc, metrics := newService(t, repo)

			err := svc.Reserve(ctx, tt.reservationID, tt.items)

			switch {
			case tt.errorIs != nil:
				require.ErrorIs(t, err, tt.errorIs)
			case tt.repoError != nil:
				require.ErrorIs(t, err, tt.repoError)
			default:
				require.NoError(t, err)
			}
			require.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("reserve", tt.outcome)))
		})
	}
}

func TestLedgerService_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("success: release by id with empty items", func(t *testing.T) {
		id := uuid.NewString()
		repo := mocks.NewStockLedger(t)
		repo.On("ReleaseMany", mock.Anything, id, []repository.ReservationItem{}).Return(nil).Once()
		svc, _ := newService(t, repo)

		require.NoError(t, svc.Release(ctx, id, nil))
	})

	t.Run("error: negative quantity never reaches repository", func(t *testing.T) {
		repo := mocks.NewStockLedger(t)
		svc, _ := newService(t, repo)

		err := svc.Release(ctx, "", []repository.ReservationItem{{ProductID: 1, SizeID: 1, Quantity: -5}})
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestLedgerService_WithMemoryLedger(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository([]repository.Product{{
		ID:    1,
		Name:  "tee",
		Sizes: []repository.ProductSize{{SizeID: 1, Quantity: 5}},
	}})
	svc, _ := newService(t, repo)

	// повтор ключа в одном батче проверяется по сумме
	err := svc.Reserve(ctx, "", []repository.ReservationItem{
		{ProductID: 1, SizeID: 1, Quantity: 3},
		{ProductID: 1, SizeID: 1, Quantity: 3},
	})
	require.ErrorIs(t, err, repository.ErrInsufficientStock)

	qty, err := svc.GetStock(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), qty)

	// release неизвестного ключа: успех без изменений
	require.NoError(t, svc.Release(ctx, "", []repository.ReservationItem{{ProductID: 9, SizeID: 9, Quantity: 1}}))
	_, err = svc.GetStock(ctx, 9, 9)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLedgerService_OverflowNeverDrivesStockNegative(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository([]repository.Product{{
		ID:    1,
		Name:  "tee",
		Sizes: []repository.ProductSize{{SizeID: 1, Quantity: 5}},
	}})
	svc, _ := newService(t, repo)
	batch := []repository.ReservationItem{
		{ProductID: 1, SizeID: 1, Quantity: math.MaxInt64},
		{ProductID: 1, SizeID: 1, Quantity: 2},
	}

	err := svc.Reserve(ctx, "", batch)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, repository.ErrQuantityOverflow)

	err = svc.Release(ctx, "", batch)
	require.ErrorIs(t, err, ErrValidation)

	qty, err := svc.GetStock(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), qty)
}
