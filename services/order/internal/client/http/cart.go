package httpclient

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	platformhttpclient "github.com/shestoi/storefront/platform/httpclient"
	"github.com/shestoi/storefront/services/order/internal/authctx"
	"github.com/shestoi/storefront/services/order/internal/service"
)

type cartResponse struct {
	Items []struct {
		ProductID int64           `json:"product_id"`
		SizeID    int64           `json:"size_id"`
		Quantity  int64           `json:"quantity"`
		Price     decimal.Decimal `json:"price"`
	} `json:"items"`
}

// CartClient адаптирует HTTP API сервиса корзин к service.CartClient
type CartClient struct {
	client *platformhttpclient.Client
}

// NewCartClient создаёт адаптер корзины
func NewCartClient(client *platformhttpclient.Client) *CartClient {
	return &CartClient{client: client}
}

var _ service.CartClient = (*CartClient)(nil)

// GetCart возвращает снимок корзины пользователя
func (c *CartClient) GetCart(ctx context.Context, userID int64) ([]service.CartItem, error) {
	var resp cartResponse
	if err := c.client.Do(ctx, http.MethodGet, "/cart/", userHeader(userID), nil, &resp); err != nil {
		return nil, service.E(service.KindUnavailable, "cart.GetCart", err)
	}

	items := make([]service.CartItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, service.CartItem{
			ProductID: it.ProductID,
			SizeID:    it.SizeID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return items, nil
}

// ClearCart очищает корзину; отсутствующая корзина считается уже очищенной
func (c *CartClient) ClearCart(ctx context.Context, userID int64) error {
	err := c.client.Do(ctx, http.MethodDelete, "/cart/clear", userHeader(userID), nil, nil)
	var se *platformhttpclient.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return service.E(service.KindUnavailable, "cart.ClearCart", err)
	}
	return nil
}

func userHeader(userID int64) http.Header {
	h := http.Header{}
	h.Set(authctx.UserIDHeader, strconv.FormatInt(userID, 10))
	return h
}
