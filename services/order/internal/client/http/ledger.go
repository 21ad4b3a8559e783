package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	platformhttpclient "github.com/shestoi/storefront/platform/httpclient"
	"github.com/shestoi/storefront/services/order/internal/repository"
	"github.com/shestoi/storefront/services/order/internal/service"
)

// ReservationIDHeader делает reserve/release на складе идемпотентными
const ReservationIDHeader = "X-Reservation-Id"

type ledgerItem struct {
	ProductID int64 `json:"product_id"`
	SizeID    int64 `json:"size_id"`
	Quantity  int64 `json:"quantity"`
}

// ledgerError тело ответа склада с ошибкой
type ledgerError struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	ProductID *int64 `json:"product_id"`
	SizeID    *int64 `json:"size_id"`
}

// InventoryClient адаптирует HTTP API inventory к service.StockLedgerClient и service.CatalogClient
type InventoryClient struct {
	client *platformhttpclient.Client
}

// NewInventoryClient создаёт адаптер inventory
func NewInventoryClient(client *platformhttpclient.Client) *InventoryClient {
	return &InventoryClient{client: client}
}

var (
	_ service.StockLedgerClient = (*InventoryClient)(nil)
	_ service.CatalogClient     = (*InventoryClient)(nil)
)

// Reserve реализует service.StockLedgerClient
func (c *InventoryClient) Reserve(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	err := c.client.Do(ctx, http.MethodPost, "/reserve", reservationHeader(reservationID), toLedgerItems(items), nil)
	if err != nil {
		return mapLedgerError("ledger.Reserve", err)
	}
	return nil
}

// Release реализует service.StockLedgerClient.
// Склад отвечает успехом на любую корректную просьбу вернуть, поэтому любая ошибка тут это недоступность
func (c *InventoryClient) Release(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	err := c.client.Do(ctx, http.MethodPost, "/release", reservationHeader(reservationID), toLedgerItems(items), nil)
	if err != nil {
		return service.E(service.KindUnavailable, "ledger.Release", err)
	}
	return nil
}

// GetPrice реализует service.CatalogClient через GET /products/{id}
func (c *InventoryClient) GetPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var resp struct {
		Price decimal.Decimal `json:"price"`
	}
	err := c.client.Do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, nil, &resp)
	if err != nil {
		var se *platformhttpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return decimal.Zero, &service.Error{Kind: service.KindNotFound, Op: "catalog.GetPrice", ProductID: productID, Err: err}
		}
		return decimal.Zero, service.E(service.KindUnavailable, "catalog.GetPrice", err)
	}
	return resp.Price, nil
}

func reservationHeader(reservationID string) http.Header {
	if reservationID == "" {
		return nil
	}
	h := http.Header{}
	h.Set(ReservationIDHeader, reservationID)
	return h
}

func toLedgerItems(items []repository.ReservationItem) []ledgerItem {
	out := make([]ledgerItem, 0, len(items))
	for _, it := range items {
		out = append(out, ledgerItem{ProductID: it.ProductID, SizeID: it.SizeID, Quantity: it.Quantity})
	}
	return out
}

// mapLedgerError переводит ответ склада в типизированную ошибку service слоя
func mapLedgerError(op string, err error) error {
	var se *platformhttpclient.StatusError
	if !errors.As(err, &se) {
		return service.E(service.KindUnavailable, op, err)
	}

	switch se.StatusCode {
	case http.StatusBadRequest:
		var body ledgerError
		_ = json.Unmarshal(se.Body, &body)
		e := &service.Error{Op: op, Err: err}
		if body.ProductID != nil {
			e.ProductID = *body.ProductID
		}
		if body.SizeID != nil {
			e.SizeID = *body.SizeID
		}
		switch body.Error {
		case "insufficient_stock":
			e.Kind = service.KindInsufficientStock
		case "not_found":
			e.Kind = service.KindNotFound
		default:
			e.Kind = service.KindValidation
		}
		return e
	case http.StatusNotFound:
		return service.E(service.KindNotFound, op, err)
	case http.StatusConflict:
		return service.E(service.KindConflict, op, err)
	default:
		return service.E(service.KindUnavailable, op, err)
	}
}
