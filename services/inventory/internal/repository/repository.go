package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=StockLedger --dir=. --output=./mocks --outpkg=mocks

// StockLedger хранилище остатков по ключу (product_id, size_id).
// Service слой зависит от этого интерфейса, а не от конкретной БД.
type StockLedger interface {
	// ReserveMany атомарно уменьшает остатки для всех items или не меняет ничего.
	// Реализации сами приводят items к Normalize. Ошибка отказа — *ItemError
	// с ErrInsufficientStock или ErrNotFound для первого по порядку ключей item.
	// Непустой reservationID делает вызов идемпотентным; для id в состоянии
	// released возвращается ErrReservationReleased.
	ReserveMany(ctx context.Context, reservationID string, items []ReservationItem) error

	// ReleaseMany увеличивает остатки; отсутствующие записи пропускаются.
	// С непустым reservationID возвращает сохранённые при резерве items,
	// а для неизвестного id оставляет released-tombstone и ничего не меняет.
	ReleaseMany(ctx context.Context, reservationID string, items []ReservationItem) error

	// GetStock возвращает доступный остаток или ErrNotFound
	GetStock(ctx context.Context, productID, sizeID int64) (int64, error)

	// GetProduct возвращает товар с ценой и остатками по размерам или ErrProductNotFound
	GetProduct(ctx context.Context, productID int64) (Product, error)
}

var (
	// ErrNotFound записи остатка для (product_id, size_id) нет
	ErrNotFound = errors.New("stock record not found")
	// ErrInsufficientStock остатка меньше, чем запрошено
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductNotFound товара нет в каталоге
	ErrProductNotFound = errors.New("product not found")
	// ErrReservationReleased резерв с этим id уже отпущен (или пришёл release раньше reserve)
	ErrReservationReleased = errors.New("reservation already released")
	// ErrQuantityOverflow сумма quantity по ключу не помещается в int64
	ErrQuantityOverflow = errors.New("quantity overflow")
)

// StockKey ключ записи остатка
type StockKey struct {
	ProductID int64
	SizeID    int64
}

// Less задаёт порядок захвата блокировок: product_id, затем size_id
func (k StockKey) Less(o StockKey) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	return k.SizeID < o.SizeID
}

// ReservationItem строка резерва
type ReservationItem struct {
	ProductID int64 `json:"product_id" bson:"product_id"`
	SizeID    int64 `json:"size_id" bson:"size_id"`
	Quantity  int64 `json:"quantity" bson:"quantity"`
}

func (i ReservationItem) Key() StockKey {
	return StockKey{ProductID: i.ProductID, SizeID: i.SizeID}
}

// Product товар каталога
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Sizes []ProductSize
}

// ProductSize остаток товара в конкретном размере
type ProductSize struct {
	SizeID   int64
	Quantity int64
}

// ItemError отказ по конкретному ключу; Err — ErrInsufficientStock или ErrNotFound
type ItemError struct {
	ProductID int64
	SizeID    int64
	Err       error
}

func (e *ItemError) Error() string {
	if errors.Is(e.Err, ErrNotFound) {
		return fmt.Sprintf("size %d for product %d not found", e.SizeID, e.ProductID)
	}
	return fmt.Sprintf("not enough stock for product %d size %d", e.ProductID, e.SizeID)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Normalize схлопывает повторяющиеся ключи (суммируя quantity) и сортирует
// items в порядке захвата блокировок. Входной срез не меняется.
// Сумма, не помещающаяся в int64, даёт ErrQuantityOverflow.
func Normalize(items []ReservationItem) ([]ReservationItem, error) {
	merged := make(map[StockKey]int64, len(items))
	for _, it := range items {
		k := it.Key()
		sum := merged[k]
		if it.Quantity > 0 && sum > math.MaxInt64-it.Quantity {
			return nil, fmt.Errorf("%w: product %d size %d", ErrQuantityOverflow, k.ProductID, k.SizeID)
		}
		merged[k] = sum + it.Quantity
	}
	out := make([]ReservationItem, 0, len(merged))
	for k, q := range merged {
		out = append(out, ReservationItem{ProductID: k.ProductID, SizeID: k.SizeID, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

// SaturatingAdd увеличивает остаток на q, упираясь в math.MaxInt64
func SaturatingAdd(quantity, q int64) int64 {
	if q > 0 && quantity > math.MaxInt64-q {
		return math.MaxInt64
	}
	return quantity + q
}
