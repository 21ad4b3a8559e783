package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
)

const (
	stateReserved = "reserved"
	stateReleased = "released"
)

// Repository реализует StockLedger используя PostgreSQL.
// Батч выполняется одной транзакцией: строки stock блокируются SELECT ... FOR UPDATE
// по одной в порядке (product_id, size_id), внешние вызовы внутри транзакции не делаются.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReserveMany атомарно резервирует items (см. repository.StockLedger)
func (r *Repository) ReserveMany(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	items, err := repository.Normalize(items)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if reservationID != "" {
		claimed, err := claimReservation(ctx, tx, reservationID, stateReserved, items)
		if err != nil {
			return err
		}
		if !claimed {
			state, _, err := lockReservation(ctx, tx, reservationID)
			if err != nil {
				return err
			}
			if state == stateReleased {
				return repository.ErrReservationReleased
			}
			return nil
		}
	}

	// Сначала блокируем и проверяем все строки, потом меняем: при отказе откатывается всё
	for _, it := range items {
		var qty int64
		err := tx.QueryRow(ctx,
			`SELECT quantity FROM stock WHERE product_id = $1 AND size_id = $2 FOR UPDATE`,
			it.ProductID, it.SizeID).Scan(&qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return &repository.ItemError{ProductID: it.ProductID, SizeID: it.SizeID, Err: repository.ErrNotFound}
		}
		if err != nil {
			return fmt.Errorf("lock stock row: %w", err)
		}
		if qty < it.Quantity {
			return &repository.ItemError{ProductID: it.ProductID, SizeID: it.SizeID, Err: repository.ErrInsufficientStock}
		}
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx,
			`UPDATE stock SET quantity = quantity - $3, updated_at = now()
			 WHERE product_id = $1 AND size_id = $2`,
			it.ProductID, it.SizeID, it.Quantity); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}
	return nil
}

// ReleaseMany возвращает items на склад (см. repository.StockLedger)
func (r *Repository) ReleaseMany(ctx context.Context, reservationID string, items []repository.ReservationItem) error {
	items, err := repository.Normalize(items)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if reservationID != "" {
		// Неизвестный id превращается в tombstone: поздний reserve с ним будет отклонён
		claimed, err := claimReservation(ctx, tx, reservationID, stateReleased, nil)
		if err != nil {
			return err
		}
		if claimed {
			return tx.Commit(ctx)
		}
		state, stored, err := lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if state == stateReleased {
			return nil
		}
		items = stored
		if _, err := tx.Exec(ctx,
			`UPDATE ledger_reservations SET state = $2, updated_at = now() WHERE id = $1`,
			reservationID, stateReleased); err != nil {
			return fmt.Errorf("mark reservation released: %w", err)
		}
	}

	for _, it := range items {
		// Отсутствующая запись даёт 0 затронутых строк и просто пропускается.
		// Сумма считается в numeric и ограничивается сверху пределом bigint.
		if _, err := tx.Exec(ctx,
			`UPDATE stock SET quantity = LEAST(quantity::numeric + $3, 9223372036854775807)::bigint, updated_at = now()
			 WHERE product_id = $1 AND size_id = $2`,
			it.ProductID, it.SizeID, it.Quantity); err != nil {
			return fmt.Errorf("increment stock: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// GetStock возвращает текущий остаток
func (r *Repository) GetStock(ctx context.Context, productID, sizeID int64) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx,
		`SELECT quantity FROM stock WHERE product_id = $1 AND size_id = $2`,
		productID, sizeID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// GetProduct получает товар и его остатки по размерам
func (r *Repository) GetProduct(ctx context.Context, productID int64) (repository.Product, error) {
	p := repository.Product{ID: productID}
	err := r.pool.QueryRow(ctx,
		`SELECT name, price FROM products WHERE id = $1`,
		productID).Scan(&p.Name, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.Product{}, repository.ErrProductNotFound
	}
	if err != nil {
		return repository.Product{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT size_id, quantity FROM stock WHERE product_id = $1 ORDER BY size_id`,
		productID)
	if err != nil {
		return repository.Product{}, err
	}
	p.Sizes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.ProductSize, error) {
		var s repository.ProductSize
		err := row.Scan(&s.SizeID, &s.Quantity)
		return s, err
	})
	if err != nil {
		return repository.Product{}, err
	}
	return p, nil
}

// UpsertProduct заводит товар и его записи остатка (каталог ведётся вне ledger;
// используется для засева и в тестах)
func (r *Repository) UpsertProduct(ctx context.Context, p repository.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO products (id, name, price) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`,
			p.ID, p.Name, p.Price); err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}
		for _, s := range p.Sizes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO stock (product_id, size_id, quantity) VALUES ($1, $2, $3)
				 ON CONFLICT (product_id, size_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`,
				p.ID, s.SizeID, s.Quantity); err != nil {
				return fmt.Errorf("upsert stock: %w", err)
			}
		}
		return nil
	})
}

// claimReservation пытается вставить запись резерва. true — запись новая и принадлежит
// этой транзакции; конкурентная вставка того же id ждёт её commit/rollback.
func claimReservation(ctx context.Context, tx pgx.Tx, id, state string, items []repository.ReservationItem) (bool, error) {
	if items == nil {
		items = []repository.ReservationItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return false, fmt.Errorf("marshal reservation items: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO ledger_reservations (id, items, state) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		id, raw, state)
	if err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func lockReservation(ctx context.Context, tx pgx.Tx, id string) (string, []repository.ReservationItem, error) {
	var (
		state string
		raw   []byte
	)
	err := tx.QueryRow(ctx,
		`SELECT state, items FROM ledger_reservations WHERE id = $1 FOR UPDATE`,
		id).Scan(&state, &raw)
	if err != nil {
		return "", nil, fmt.Errorf("lock reservation: %w", err)
	}
	var items []repository.ReservationItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", nil, fmt.Errorf("unmarshal reservation items: %w", err)
	}
	items, err = repository.Normalize(items)
	if err != nil {
		return "", nil, err
	}
	return state, items, nil
}
