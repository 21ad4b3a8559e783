package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/storefront/platform/health/http"
	"github.com/shestoi/storefront/services/order/internal/api/http/mocks"
	"github.com/shestoi/storefront/services/order/internal/repository"
	"github.com/shestoi/storefront/services/order/internal/service"
)

func newTestRouter(t *testing.T, checks map[string]platformhealth.Check) (http.Handler, *mocks.OrderService) {
	t.Helper()
	svc := mocks.NewOrderService(t)
	if checks == nil {
		checks = map[string]platformhealth.Check{"postgres": func(context.Context) error { return nil }}
	}
	return NewRouter(NewHandler(svc, zap.NewNop()), checks, zap.NewNop()), svc
}

func do(h http.Handler, method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func testOrder() repository.Order {
	return repository.Order{
		ID:         "3d8a8f4e-6a0f-4b8e-8f43-6a2c2b7c9e01",
		UserID:     42,
		TotalPrice: decimal.RequireFromString("20"),
		Status:     repository.StatusCreated,
		Items: []repository.OrderItem{
			{ProductID: 1, SizeID: 2, Quantity: 2, Price: decimal.RequireFromString("10")},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestHandler_PostCreate(t *testing.T) {
	router, svc := newTestRouter(t, nil)
	svc.On("PlaceOrder", mock.Anything, int64(42)).Return(testOrder(), nil).Once()

	w := do(router, http.MethodPost, "/orders/create", "42")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"id":"3d8a8f4e-6a0f-4b8e-8f43-6a2c2b7c9e01",
		"user_id":42,
		"total_price":"20.00",
		"status":"created",
		"items":[{"product_id":1,"size_id":2,"quantity":2,"price":"10.00"}],
		"created_at":"2026-01-02T03:04:05Z"
	}`, w.Body.String())
}

func TestHandler_PostCreateErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantItem   bool
	}{
		{
			name:       "error: empty cart",
			err:        service.E(service.KindValidation, "PlaceOrder", errors.New("cart is empty")),
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
		{
			name:       "error: insufficient stock names the item",
			err:        &service.Error{Kind: service.KindInsufficientStock, ProductID: 1, SizeID: 2, Err: errors.New("short")},
			wantStatus: http.StatusBadRequest,
			wantError:  "insufficient_stock",
			wantItem:   true,
		},
		{
			name:       "error: unknown item is a bad request",
			err:        &service.Error{Kind: service.KindNotFound, ProductID: 1, SizeID: 9, Err: errors.New("no such size")},
			wantStatus: http.StatusBadRequest,
			wantError:  "not_found",
			wantItem:   true,
		},
		{
			name:       "error: concurrent placement",
			err:        service.E(service.KindConflict, "PlaceOrder", errors.New("locked")),
			wantStatus: http.StatusConflict,
			wantError:  "conflict",
		},
		{
			name:       "error: dependency unavailable",
			err:        service.E(service.KindUnavailable, "PlaceOrder", errors.New("timeout")),
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "service_unavailable",
		},
		{
			name:       "error: compensation failed",
			err:        service.E(service.KindCompensationFailed, "PlaceOrder", errors.New("release failed")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "compensation_failed",
		},
		{
			name:       "error: untyped error is hidden",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := newTestRouter(t, nil)
			svc.On("PlaceOrder", mock.Anything, int64(7)).Return(repository.Order{}, tt.err).Once()

			w := do(router, http.MethodPost, "/orders/create", "7")

			require.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
			if tt.wantItem {
				require.NotNil(t, resp.ProductID)
				require.NotNil(t, resp.SizeID)
			} else {
				assert.Nil(t, resp.ProductID)
			}
		})
	}
}

func TestHandler_ReadEndpoints(t *testing.T) {
	router, svc := newTestRouter(t, nil)
	order := testOrder()
	svc.On("ListOrders", mock.Anything, int64(42)).Return([]repository.Order{order}, nil).Once()
	svc.On("GetOrder", mock.Anything, int64(42), order.ID).Return(order, nil).Once()
	svc.On("GetOrder", mock.Anything, int64(42), "missing").
		Return(repository.Order{}, service.E(service.KindNotFound, "GetOrder", repository.ErrNotFound)).Once()

	w := do(router, http.MethodGet, "/orders/", "42")
	require.Equal(t, http.StatusOK, w.Code)
	var list []OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, order.ID, list[0].ID)

	w = do(router, http.MethodGet, "/orders/"+order.ID, "42")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/orders/missing", "42").Code)
}

func TestHandler_RequiresUserID(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/orders/create", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/orders/", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "").Code)
}

func TestHandler_HealthReportsFailingCheck(t *testing.T) {
	router, _ := newTestRouter(t, map[string]platformhealth.Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/health", "").Code)
}
