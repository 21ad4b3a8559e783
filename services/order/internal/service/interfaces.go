package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// CartItem позиция корзины на момент снимка; Price это цена при добавлении, в заказ не попадает
type CartItem struct {
	ProductID int64
	SizeID    int64
	Quantity  int64
	Price     decimal.Decimal
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=CartClient --dir=. --output=./mocks --outpkg=mocks

// CartClient клиент сервиса корзин
type CartClient interface {
	GetCart(ctx context.Context, userID int64) ([]CartItem, error)
	// ClearCart идемпотентна
	ClearCart(ctx context.Context, userID int64) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=StockLedgerClient --dir=. --output=./mocks --outpkg=mocks

// StockLedgerClient клиент склада.
// reservationID делает вызовы идемпотентными: повторный Reserve не списывает второй раз,
// Release по id возвращает ровно то, что было списано под этим id.
// Ошибки отказа склада приходят как *Error с KindInsufficientStock/KindNotFound и ProductID/SizeID
type StockLedgerClient interface {
	Reserve(ctx context.Context, reservationID string, items []repository.ReservationItem) error
	Release(ctx context.Context, reservationID string, items []repository.ReservationItem) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=CatalogClient --dir=. --output=./mocks --outpkg=mocks

// CatalogClient источник актуальных цен
type CatalogClient interface {
	GetPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=UserLocker --dir=. --output=./mocks --outpkg=mocks

// UserLocker не даёт одному пользователю оформлять два заказа одновременно.
// Занятая блокировка возвращает repository.ErrLocked
type UserLocker interface {
	Lock(ctx context.Context, userID int64, ttl time.Duration) (func(context.Context) error, error)
}

// CompensationFailedEvent событие о резервировании, которое не удалось вернуть на склад
type CompensationFailedEvent struct {
	ReservationID string
	UserID        int64
	Items         []repository.ReservationItem
	Attempts      int
	Reason        string
	OccurredAt    time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=AlertPublisher --dir=. --output=./mocks --outpkg=mocks

// AlertPublisher публикует события для оператора
type AlertPublisher interface {
	PublishCompensationFailed(ctx context.Context, event CompensationFailedEvent) error
}
