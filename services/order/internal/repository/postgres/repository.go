package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// Repository реализует OrderRepository, ReservationRepository и OutboxRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// CreateOrder сохраняет заказ в PostgreSQL.
// orders, order_items, commit резервирования и outbox событие пишутся одной транзакцией
func (r *Repository) CreateOrder(ctx context.Context, params repository.CreateOrderParams) (repository.Order, error) {
	if err := repository.CheckTotal(params.TotalPrice, params.Items); err != nil {
		return repository.Order{}, err
	}

	order := repository.Order{
		ID:         params.OrderID,
		UserID:     params.UserID,
		TotalPrice: params.TotalPrice,
		Status:     repository.StatusCreated,
		Items:      params.Items,
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if params.ReservationID != "" {
			tag, err := tx.Exec(ctx,
				`UPDATE reservations SET state = 'committed', updated_at = now()
				 WHERE id = $1 AND state = 'pending'`,
				params.ReservationID)
			if err != nil {
				return fmt.Errorf("commit reservation: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return repository.ErrReservationNotPending
			}
		}

		var reservationID *string
		if params.ReservationID != "" {
			reservationID = &params.ReservationID
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO orders (id, user_id, total_price, status, reservation_id)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			order.ID, order.UserID, order.TotalPrice, order.Status, reservationID,
		).Scan(&order.CreatedAt); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for _, item := range order.Items {
			batch.Queue(
				`INSERT INTO order_items (order_id, product_id, size_id, quantity, price)
				 VALUES ($1, $2, $3, $4, $5)`,
				order.ID, item.ProductID, item.SizeID, item.Quantity, item.Price)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		if params.Event != nil {
			if _, err := tx.Exec(ctx,
				`INSERT INTO outbox_events (event_id, aggregate_id, topic, payload)
				 VALUES ($1, $2, $3, $4)`,
				params.Event.EventID, params.Event.AggregateID, params.Event.Topic, params.Event.Payload,
			); err != nil {
				return fmt.Errorf("insert outbox event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return repository.Order{}, mapError(err)
	}
	return order, nil
}

// GetByID получает заказ по ID из PostgreSQL
func (r *Repository) GetByID(ctx context.Context, id string) (repository.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return repository.Order{}, repository.ErrNotFound
	}

	var order repository.Order
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, user_id, total_price, status, created_at
		 FROM orders
		 WHERE id = $1`,
		id).Scan(&order.ID, &order.UserID, &order.TotalPrice, &order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Order{}, repository.ErrNotFound
		}
		return repository.Order{}, err
	}

	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return repository.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// ListByUser возвращает заказы пользователя вместе с позициями
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]repository.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, total_price, status, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id`,
		userID)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.Order, error) {
		var o repository.Order
		err := row.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.CreatedAt)
		return o, err
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []repository.Order{}, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *Repository) loadItems(ctx context.Context, orderIDs []string) (map[string][]repository.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id::text, product_id, size_id, quantity, price
		 FROM order_items
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY product_id, size_id`,
		orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]repository.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item repository.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.SizeID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}

// CreatePending сохраняет резервирование в состоянии pending
func (r *Repository) CreatePending(ctx context.Context, res repository.Reservation) error {
	items, err := json.Marshal(res.Items)
	if err != nil {
		return fmt.Errorf("marshal reservation items: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO reservations (id, user_id, items, state)
		 VALUES ($1, $2, $3, 'pending')`,
		res.ID, res.UserID, items)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// MarkReleased переводит pending резервирование в released
func (r *Repository) MarkReleased(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reservations SET state = 'released', updated_at = now()
		 WHERE id = $1 AND state = 'pending'`,
		id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrReservationNotPending
	}
	return nil
}

// RecordAttempt фиксирует неудачную попытку компенсации
func (r *Repository) RecordAttempt(ctx context.Context, id string, lastErr string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reservations SET attempts = attempts + 1, last_error = $2, updated_at = now()
		 WHERE id = $1 AND state = 'pending'`,
		id, lastErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrReservationNotPending
	}
	return nil
}

// GetReservation получает запись о резервировании
func (r *Repository) GetReservation(ctx context.Context, id string) (repository.Reservation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return repository.Reservation{}, repository.ErrNotFound
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, items, state, attempts, last_error, created_at, updated_at
		 FROM reservations
		 WHERE id = $1`,
		id)
	if err != nil {
		return repository.Reservation{}, err
	}
	res, err := pgx.CollectExactlyOneRow(rows, scanReservation)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.Reservation{}, repository.ErrNotFound
	}
	return res, err
}

// ListStalePending возвращает зависшие pending резервирования, старые первыми
func (r *Repository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]repository.Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, items, state, attempts, last_error, created_at, updated_at
		 FROM reservations
		 WHERE state = 'pending' AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		olderThan, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanReservation)
}

func scanReservation(row pgx.CollectableRow) (repository.Reservation, error) {
	var (
		res   repository.Reservation
		items []byte
		state string
	)
	if err := row.Scan(&res.ID, &res.UserID, &items, &state, &res.Attempts, &res.LastError, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return res, err
	}
	res.State = repository.ReservationState(state)
	if err := json.Unmarshal(items, &res.Items); err != nil {
		return res, fmt.Errorf("unmarshal reservation %s items: %w", res.ID, err)
	}
	return res, nil
}

// GetPendingOutboxEvents возвращает неопубликованные события в порядке создания
func (r *Repository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_id::text, aggregate_id, topic, payload, created_at
		 FROM outbox_events
		 WHERE status = 'pending'
		 ORDER BY created_at
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.OutboxEvent, error) {
		var e repository.OutboxEvent
		err := row.Scan(&e.EventID, &e.AggregateID, &e.Topic, &e.Payload, &e.CreatedAt)
		return e, err
	})
}

// MarkOutboxEventSent отмечает событие опубликованным
func (r *Repository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET status = 'sent', sent_at = now() WHERE event_id = $1`,
		eventID)
	return err
}

// MarkOutboxEventFailed сохраняет причину неудачной публикации
func (r *Repository) MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET status = 'failed', last_error = $2 WHERE event_id = $1`,
		eventID, errMsg)
	return err
}

// ResetOutboxEventPending возвращает событие в очередь на публикацию
func (r *Repository) ResetOutboxEventPending(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET status = 'pending' WHERE event_id = $1 AND status = 'failed'`,
		eventID)
	return err
}

// mapError переводит нарушения ограничений (SQLSTATE класса 23) в ErrIntegrity
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return fmt.Errorf("%w: %s (%s)", repository.ErrIntegrity, pgErr.Message, pgErr.ConstraintName)
	}
	return err
}
