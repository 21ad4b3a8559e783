package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Статусы заказа. Пока используется только created, остальные появятся с жизненным циклом заказа
const (
	StatusCreated = "created"
)

// ReservationState состояние записи о резервировании
type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationCommitted ReservationState = "committed"
	ReservationReleased  ReservationState = "released"
)

// Order представляет доменную модель заказа.
// Инвариант: сумма Quantity*Price по Items равна TotalPrice
type Order struct {
	ID         string
	UserID     int64
	TotalPrice decimal.Decimal
	Status     string
	Items      []OrderItem
	CreatedAt  time.Time
}

// OrderItem представляет товар в заказе; Price это цена каталога на момент заказа
type OrderItem struct {
	ProductID int64
	SizeID    int64
	Quantity  int64
	Price     decimal.Decimal
}

// ReservationItem позиция резервирования на складе
type ReservationItem struct {
	ProductID int64 `json:"product_id"`
	SizeID    int64 `json:"size_id"`
	Quantity  int64 `json:"quantity"`
}

// Reservation долговременная запись о резервировании, которое saga сделала на складе.
// Пишется в pending до вызова склада, переходит в committed вместе с заказом
// или в released после компенсации.
type Reservation struct {
	ID        string
	UserID    int64
	Items     []ReservationItem
	State     ReservationState
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutboxEvent событие, ожидающее публикации в Kafka
type OutboxEvent struct {
	EventID     string
	AggregateID string
	Topic       string
	Payload     []byte
	CreatedAt   time.Time
}

// CreateOrderParams входные данные для атомарного создания заказа
type CreateOrderParams struct {
	OrderID    string
	UserID     int64
	TotalPrice decimal.Decimal
	Items      []OrderItem
	// ReservationID если задан, резервирование переводится pending -> committed в той же транзакции
	ReservationID string
	// Event если задан, пишется в outbox в той же транзакции
	Event *OutboxEvent
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=OrderRepository --dir=. --output=./mocks --outpkg=mocks

// OrderRepository определяет интерфейс для работы с хранилищем заказов
type OrderRepository interface {
	// CreateOrder сохраняет Order и OrderItems одной локальной транзакцией, status = created.
	// Возвращает ErrIntegrity при нарушении инварианта суммы или ограничений БД,
	// ErrReservationNotPending если резервирование уже не в pending.
	CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error)

	// GetByID возвращает ErrNotFound, если заказ не найден
	GetByID(ctx context.Context, id string) (Order, error)

	// ListByUser возвращает заказы пользователя, новые первыми
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=ReservationRepository --dir=. --output=./mocks --outpkg=mocks

// ReservationRepository хранит записи о резервированиях saga
type ReservationRepository interface {
	CreatePending(ctx context.Context, r Reservation) error
	// GetReservation возвращает ErrNotFound, если записи нет
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// MarkReleased переводит pending -> released, иначе ErrReservationNotPending
	MarkReleased(ctx context.Context, id string) error
	// RecordAttempt увеличивает attempts и сохраняет last_error у pending резервирования
	RecordAttempt(ctx context.Context, id string, lastErr string) error
	// ListStalePending возвращает pending резервирования, созданные раньше olderThan
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Reservation, error)
}

// OutboxRepository хранилище outbox событий для OutboxDispatcher
type OutboxRepository interface {
	GetPendingOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxEventSent(ctx context.Context, eventID string) error
	MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error
	ResetOutboxEventPending(ctx context.Context, eventID string) error
}

var (
	// ErrNotFound возвращается, когда заказ не найден в хранилище
	ErrNotFound = errors.New("order not found")
	// ErrReservationNotPending резервирование уже committed/released или не существует
	ErrReservationNotPending = errors.New("reservation is not pending")
	// ErrIntegrity нарушение ограничения целостности данных заказа
	ErrIntegrity = errors.New("order integrity violation")
	// ErrLocked пользователь уже оформляет заказ
	ErrLocked = errors.New("user lock is held")
	// ErrQuantityOverflow сумма quantity по ключу не помещается в int64
	ErrQuantityOverflow = errors.New("quantity overflow")
)

// Total считает сумму позиций заказа
func Total(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	return total
}

// CheckTotal проверяет инвариант суммы заказа
func CheckTotal(total decimal.Decimal, items []OrderItem) error {
	if len(items) == 0 {
		return ErrIntegrity
	}
	for _, it := range items {
		if it.Quantity <= 0 || it.Price.IsNegative() {
			return ErrIntegrity
		}
	}
	if !Total(items).Equal(total) {
		return ErrIntegrity
	}
	return nil
}

// MergeItems объединяет повторяющиеся (product_id, size_id) и сортирует по ключу
func MergeItems(items []ReservationItem) ([]ReservationItem, error) {
	type key struct{ p, s int64 }
	sum := make(map[key]int64, len(items))
	out := make([]ReservationItem, 0, len(items))
	for _, it := range items {
		k := key{it.ProductID, it.SizeID}
		if _, ok := sum[k]; !ok {
			out = append(out, ReservationItem{ProductID: it.ProductID, SizeID: it.SizeID})
		}
		if it.Quantity > 0 && sum[k] > math.MaxInt64-it.Quantity {
			return nil, fmt.Errorf("%w: product %d size %d", ErrQuantityOverflow, it.ProductID, it.SizeID)
		}
		sum[k] += it.Quantity
	}
	for i := range out {
		out[i].Quantity = sum[key{out[i].ProductID, out[i].SizeID}]
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].SizeID < out[j].SizeID
	})
	return out, nil
}
