package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
)

type reservationState string

const (
	stateReserved reservationState = "reserved"
	stateReleased reservationState = "released"
)

type stockRecord struct {
	mu       sync.Mutex
	quantity int64
}

type productRecord struct {
	product repository.Product
	sizes   []int64
}

type ledgerReservation struct {
	items []repository.ReservationItem
	state reservationState
}

// Repository реализует StockLedger в памяти.
// Каждая запись остатка защищена своим мьютексом; батч захватывает мьютексы
// в порядке (product_id, size_id), поэтому батчи по разным ключам не мешают друг другу.
// Используется для разработки и в unit-тестах.
type Repository struct {
	// records и products заполняются в конструкторе и дальше не меняются
	records  map[repository.StockKey]*stockRecord
	products map[int64]productRecord

	resMu        sync.Mutex
	reservations map[string]*ledgerReservation
	resLocks     *keyedMutex
}

// NewRepository создаёт хранилище из каталога: по записи остатка на каждый Product.Sizes
func NewRepository(products []repository.Product) *Repository {
	r := &Repository{
		records:      make(map[repository.StockKey]*stockRecord),
		products:     make(map[int64]productRecord, len(products)),
		reservations: make(map[string]*ledgerReservation),
		resLocks:     newKeyedMutex(),
	}
	for _, p := range products {
		pr, ok := r.products[p.ID]
		if !ok {
			pr = productRecord{product: repository.Product{ID: p.ID, Name: p.Name, Price: p.Price}}
		}
		for _, s := range p.Sizes {
			r.records[repository.StockKey{ProductID: p.ID, SizeID: s.SizeID}] = &stockRecord{quantity: s.Quantity}
			pr.sizes = append(pr.sizes, s.SizeID)
		}
		sort.Slice(pr.sizes, func(i, j int) bool { return pr.sizes[i] < pr.sizes[j] })
		r.products[p.ID] = pr
	}
	return r
}

// ReserveMany атомарно резервирует items (см. repository.StockLedger)
func (r *Repository) ReserveMany(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	items, err := repository.Normalize(items)
	if err != nil {
		return err
	}
	if reservationID != "" {
		unlock := r.resLocks.Lock(reservationID)
		defer unlock()

		if res, ok := r.getReservation(reservationID); ok {
			if res.state == stateReleased {
				return repository.ErrReservationReleased
			}
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	locked, unlock := r.lockKeys(items)
	defer unlock()

	// Сначала все проверки, потом все изменения: при отказе ничего не меняется
	for i, it := range items {
		rec := locked[i]
		if rec == nil {
			return &repository.ItemError{ProductID: it.ProductID, SizeID: it.SizeID, Err: repository.ErrNotFound}
		}
		if rec.quantity < it.Quantity {
			return &repository.ItemError{ProductID: it.ProductID, SizeID: it.SizeID, Err: repository.ErrInsufficientStock}
		}
	}
	for i, it := range items {
		locked[i].quantity -= it.Quantity
	}

	if reservationID != "" {
		r.putReservation(reservationID, &ledgerReservation{items: cloneItems(items), state: stateReserved})
	}
	return nil
}

// ReleaseMany возвращает items на склад (см. repository.StockLedger)
func (r *Repository) ReleaseMany(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	items, err := repository.Normalize(items)
	if err != nil {
		return err
	}

	var res *ledgerReservation
	if reservationID != "" {
		unlock := r.resLocks.Lock(reservationID)
		defer unlock()

		var ok bool
		res, ok = r.getReservation(reservationID)
		if !ok {
			r.putReservation(reservationID, &ledgerReservation{state: stateReleased})
			return nil
		}
		if res.state == stateReleased {
			return nil
		}
		items = res.items
	}

	locked, unlock := r.lockKeys(items)
	defer unlock()

	for i, it := range items {
		if locked[i] == nil {
			continue
		}
		locked[i].quantity = repository.SaturatingAdd(locked[i].quantity, it.Quantity)
	}
	if res != nil {
		res.state = stateReleased
	}
	return nil
}

// GetStock возвращает текущий остаток
func (r *Repository) GetStock(ctx context.Context, productID, sizeID int64) (int64, error) {
	rec, ok := r.records[repository.StockKey{ProductID: productID, SizeID: sizeID}]
	if !ok {
		return 0, repository.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.quantity, nil
}

// GetProduct возвращает товар с остатками по размерам
func (r *Repository) GetProduct(ctx context.Context, productID int64) (repository.Product, error) {
	pr, ok := r.products[productID]
	if !ok {
		return repository.Product{}, repository.ErrProductNotFound
	}
	p := pr.product
	p.Sizes = make([]repository.ProductSize, 0, len(pr.sizes))
	for _, sizeID := range pr.sizes {
		qty, err := r.GetStock(ctx, productID, sizeID)
		if err != nil {
			return repository.Product{}, err
		}
		p.Sizes = append(p.Sizes, repository.ProductSize{SizeID: sizeID, Quantity: qty})
	}
	return p, nil
}

// lockKeys захватывает мьютексы записей в порядке items (items отсортированы).
// Для отсутствующих ключей в результате nil.
func (r *Repository) lockKeys(items []repository.ReservationItem) ([]*stockRecord, func()) {
	locked := make([]*stockRecord, len(items))
	for i, it := range items {
		rec, ok := r.records[it.Key()]
		if !ok {
			continue
		}
		rec.mu.Lock()
		locked[i] = rec
	}
	return locked, func() {
		for i := len(locked) - 1; i >= 0; i-- {
			if locked[i] != nil {
				locked[i].mu.Unlock()
			}
		}
	}
}

func (r *Repository) getReservation(id string) (*ledgerReservation, bool) {
	r.resMu.Lock()
	defer r.resMu.Unlock()
	res, ok := r.reservations[id]
	return res, ok
}

func (r *Repository) putReservation(id string, res *ledgerReservation) {
	r.resMu.Lock()
	defer r.resMu.Unlock()
	r.reservations[id] = res
}

func cloneItems(items []repository.ReservationItem) []repository.ReservationItem {
	out := make([]repository.ReservationItem, len(items))
	copy(out, items)
	return out
}
