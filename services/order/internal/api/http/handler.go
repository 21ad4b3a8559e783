package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/platform/observability"
	"github.com/shestoi/storefront/services/order/internal/authctx"
	"github.com/shestoi/storefront/services/order/internal/repository"
	"github.com/shestoi/storefront/services/order/internal/service"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=OrderService --dir=. --output=./mocks --outpkg=mocks

// OrderService операции service слоя, которые нужны HTTP
type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64) (repository.Order, error)
	GetOrder(ctx context.Context, userID int64, orderID string) (repository.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]repository.Order, error)
}

// Handler содержит HTTP-обработчики Order Service
type Handler struct {
	orders OrderService
	logger *zap.Logger
}

// NewHandler создаёт новый HTTP handler
func NewHandler(orders OrderService, logger *zap.Logger) *Handler {
	return &Handler{orders: orders, logger: logger}
}

// OrderItemResponse позиция заказа
type OrderItemResponse struct {
	ProductID int64  `json:"product_id"`
	SizeID    int64  `json:"size_id"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
}

// OrderResponse представление заказа в ответах
type OrderResponse struct {
	ID         string              `json:"id"`
	UserID     int64               `json:"user_id"`
	TotalPrice string              `json:"total_price"`
	Status     string              `json:"status"`
	Items      []OrderItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"created_at"`
}

// ErrorResponse тело ответа с ошибкой.
// product_id/size_id заполняются, когда отказ касается конкретной позиции
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	ProductID *int64 `json:"product_id,omitempty"`
	SizeID    *int64 `json:"size_id,omitempty"`
}

// PostCreate обрабатывает POST /orders/create: оформление заказа из корзины
func (h *Handler) PostCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := authctx.UserIDFromContext(r.Context())

	order, err := h.orders.PlaceOrder(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetList обрабатывает GET /orders/
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	userID, _ := authctx.UserIDFromContext(r.Context())

	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetByID обрабатывает GET /orders/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	userID, _ := authctx.UserIDFromContext(r.Context())

	order, err := h.orders.GetOrder(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func toOrderResponse(o repository.Order) OrderResponse {
	resp := OrderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		TotalPrice: o.TotalPrice.StringFixed(2),
		Status:     o.Status,
		Items:      make([]OrderItemResponse, 0, len(o.Items)),
		CreatedAt:  o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID: it.ProductID,
			SizeID:    it.SizeID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}
	return resp
}

// statusFor отображает вид ошибки на HTTP статус
func statusFor(e *service.Error) int {
	switch e.Kind {
	case service.KindValidation, service.KindInsufficientStock:
		return http.StatusBadRequest
	case service.KindNotFound:
		// неизвестная позиция корзины это ошибка запроса, а не отсутствующий ресурс
		if e.ProductID != 0 {
			return http.StatusBadRequest
		}
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError отображает ошибки service слоя на HTTP ответы
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Err: err}
	}
	status := statusFor(se)

	resp := ErrorResponse{Error: string(se.Kind), Detail: err.Error()}
	if se.ProductID != 0 {
		resp.ProductID, resp.SizeID = &se.ProductID, &se.SizeID
	}
	if status >= http.StatusInternalServerError {
		observability.L(r.Context(), h.logger).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(se.Kind)),
			zap.Error(err),
		)
		if se.Kind == service.KindUnknown {
			resp.Error, resp.Detail = "internal_error", "internal server error"
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
