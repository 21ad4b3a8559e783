package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/platform/observability"
	"github.com/shestoi/storefront/services/inventory/internal/repository"
	"github.com/shestoi/storefront/services/inventory/internal/service"
)

// ReservationIDHeader необязательный ключ идемпотентности для /reserve и /release
const ReservationIDHeader = "X-Reservation-Id"

// Handler содержит HTTP-обработчики stock ledger
type Handler struct {
	ledger *service.LedgerService
	logger *zap.Logger
}

// NewHandler создаёт новый HTTP handler
func NewHandler(ledger *service.LedgerService, logger *zap.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// ItemDTO строка батча в теле /reserve и /release
type ItemDTO struct {
	ProductID *int64 `json:"product_id"`
	SizeID    *int64 `json:"size_id"`
	Quantity  *int64 `json:"quantity"`
}

// ErrorResponse тело ответа с ошибкой; product_id/size_id заполняются для отказов по товару
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	ProductID *int64 `json:"product_id,omitempty"`
	SizeID    *int64 `json:"size_id,omitempty"`
}

// StatusResponse тело успешного ответа /reserve и /release
type StatusResponse struct {
	Status string `json:"status"`
}

// ProductResponse ответ GET /products/{id}
type ProductResponse struct {
	ID    int64          `json:"id"`
	Name  string         `json:"name"`
	Price string         `json:"price"`
	Sizes []SizeResponse `json:"sizes"`
}

// SizeResponse остаток в размере
type SizeResponse struct {
	SizeID   int64 `json:"size_id"`
	Quantity int64 `json:"quantity"`
}

// StockResponse ответ GET /stock/{product_id}/{size_id}
type StockResponse struct {
	ProductID int64 `json:"product_id"`
	SizeID    int64 `json:"size_id"`
	Quantity  int64 `json:"quantity"`
}

// PostReserve обрабатывает POST /reserve
func (h *Handler) PostReserve(w http.ResponseWriter, r *http.Request) {
	items, ok := h.decodeItems(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Reserve(r.Context(), r.Header.Get(ReservationIDHeader), items); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "reserved"})
}

// PostRelease обрабатывает POST /release; для вызывающего всегда успех, кроме невалидного тела
func (h *Handler) PostRelease(w http.ResponseWriter, r *http.Request) {
	items, ok := h.decodeItems(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Release(r.Context(), r.Header.Get(ReservationIDHeader), items); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "released"})
}

// GetProduct обрабатывает GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Detail: "product id must be an integer"})
		return
	}
	p, err := h.ledger.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := ProductResponse{ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), Sizes: make([]SizeResponse, 0, len(p.Sizes))}
	for _, s := range p.Sizes {
		resp.Sizes = append(resp.Sizes, SizeResponse{SizeID: s.SizeID, Quantity: s.Quantity})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStock обрабатывает GET /stock/{product_id}/{size_id}
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID, err1 := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	sizeID, err2 := strconv.ParseInt(chi.URLParam(r, "size_id"), 10, 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Detail: "product_id and size_id must be integers"})
		return
	}
	qty, err := h.ledger.GetStock(r.Context(), productID, sizeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StockResponse{ProductID: productID, SizeID: sizeID, Quantity: qty})
}

func (h *Handler) decodeItems(w http.ResponseWriter, r *http.Request) ([]repository.ReservationItem, bool) {
	var body []ItemDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Detail: fmt.Sprintf("invalid JSON: %v", err)})
		return nil, false
	}
	items := make([]repository.ReservationItem, 0, len(body))
	for i, it := range body {
		if it.ProductID == nil || it.SizeID == nil || it.Quantity == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "validation_error",
				Detail: fmt.Sprintf("items[%d]: product_id, size_id and quantity are required", i),
			})
			return nil, false
		}
		items = append(items, repository.ReservationItem{ProductID: *it.ProductID, SizeID: *it.SizeID, Quantity: *it.Quantity})
	}
	return items, true
}

// writeError отображает ошибки service слоя на HTTP статусы
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *repository.ItemError
	switch {
	case errors.As(err, &ie):
		code := "insufficient_stock"
		if errors.Is(ie.Err, repository.ErrNotFound) {
			code = "not_found"
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     code,
			Detail:    ie.Error(),
			ProductID: &ie.ProductID,
			SizeID:    &ie.SizeID,
		})
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Detail: err.Error()})
	case errors.Is(err, repository.ErrReservationReleased):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "conflict", Detail: err.Error()})
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Detail: err.Error()})
	default:
		observability.L(r.Context(), h.logger).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Detail: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
