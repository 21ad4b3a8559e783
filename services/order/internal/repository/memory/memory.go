package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// MemoryRepository реализует OrderRepository, ReservationRepository и OutboxRepository в памяти.
// Используется для разработки (ORDER_STORE=memory) и тестирования
type MemoryRepository struct {
	mu           sync.RWMutex
	orders       map[string]repository.Order
	reservations map[string]repository.Reservation
	outbox       []outboxRecord
	now          func() time.Time
}

type outboxRecord struct {
	event     repository.OutboxEvent
	status    string
	lastError string
}

// NewMemoryRepository создаёт новый in-memory репозиторий
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:       make(map[string]repository.Order),
		reservations: make(map[string]repository.Reservation),
		now:          time.Now,
	}
}

// CreateOrder сохраняет заказ в памяти атомарно под одним мьютексом
func (r *MemoryRepository) CreateOrder(ctx context.Context, params repository.CreateOrderParams) (repository.Order, error) {
	if err := repository.CheckTotal(params.TotalPrice, params.Items); err != nil {
		return repository.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[params.OrderID]; exists {
		return repository.Order{}, repository.ErrIntegrity
	}
	if params.ReservationID != "" {
		res, ok := r.reservations[params.ReservationID]
		if !ok || res.State != repository.ReservationPending {
			return repository.Order{}, repository.ErrReservationNotPending
		}
		res.State = repository.ReservationCommitted
		res.UpdatedAt = r.now()
		r.reservations[params.ReservationID] = res
	}

	order := repository.Order{
		ID:         params.OrderID,
		UserID:     params.UserID,
		TotalPrice: params.TotalPrice,
		Status:     repository.StatusCreated,
		Items:      append([]repository.OrderItem(nil), params.Items...),
		CreatedAt:  r.now(),
	}
	r.orders[order.ID] = order

	if params.Event != nil {
		ev := *params.Event
		ev.CreatedAt = order.CreatedAt
		r.outbox = append(r.outbox, outboxRecord{event: ev, status: "pending"})
	}
	return order, nil
}

// GetByID получает заказ по ID из памяти
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[id]
	if !exists {
		return repository.Order{}, repository.ErrNotFound
	}
	return cloneOrder(order), nil
}

// ListByUser возвращает заказы пользователя, новые первыми
func (r *MemoryRepository) ListByUser(ctx context.Context, userID int64) ([]repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []repository.Order{}
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreatePending сохраняет резервирование в состоянии pending
func (r *MemoryRepository) CreatePending(ctx context.Context, res repository.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reservations[res.ID]; exists {
		return repository.ErrIntegrity
	}
	now := r.now()
	res.State = repository.ReservationPending
	res.Items = append([]repository.ReservationItem(nil), res.Items...)
	res.CreatedAt, res.UpdatedAt = now, now
	r.reservations[res.ID] = res
	return nil
}

// MarkReleased переводит pending резервирование в released
func (r *MemoryRepository) MarkReleased(ctx context.Context, id string) error {
	return r.updatePending(id, func(res *repository.Reservation) {
		res.State = repository.ReservationReleased
	})
}

// RecordAttempt фиксирует неудачную попытку компенсации
func (r *MemoryRepository) RecordAttempt(ctx context.Context, id string, lastErr string) error {
	return r.updatePending(id, func(res *repository.Reservation) {
		res.Attempts++
		res.LastError = lastErr
	})
}

func (r *MemoryRepository) updatePending(id string, fn func(*repository.Reservation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok || res.State != repository.ReservationPending {
		return repository.ErrReservationNotPending
	}
	fn(&res)
	res.UpdatedAt = r.now()
	r.reservations[id] = res
	return nil
}

// ListStalePending возвращает pending резервирования старше olderThan, старые первыми
func (r *MemoryRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]repository.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []repository.Reservation
	for _, res := range r.reservations {
		if res.State == repository.ReservationPending && res.CreatedAt.Before(olderThan) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetReservation возвращает запись о резервировании
func (r *MemoryRepository) GetReservation(ctx context.Context, id string) (repository.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return repository.Reservation{}, repository.ErrNotFound
	}
	res.Items = append([]repository.ReservationItem(nil), res.Items...)
	return res, nil
}

// cloneOrder отдаёт наружу копию: сохранённый заказ неизменяем
func cloneOrder(o repository.Order) repository.Order {
	o.Items = append([]repository.OrderItem(nil), o.Items...)
	return o
}

// GetPendingOutboxEvents возвращает неопубликованные события в порядке создания
func (r *MemoryRepository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []repository.OutboxEvent
	for _, rec := range r.outbox {
		if rec.status == "pending" {
			out = append(out, rec.event)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkOutboxEventSent отмечает событие опубликованным
func (r *MemoryRepository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	r.setOutboxStatus(eventID, "sent", "")
	return nil
}

// MarkOutboxEventFailed сохраняет причину неудачной публикации
func (r *MemoryRepository) MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error {
	r.setOutboxStatus(eventID, "failed", errMsg)
	return nil
}

// ResetOutboxEventPending возвращает событие в очередь на публикацию
func (r *MemoryRepository) ResetOutboxEventPending(ctx context.Context, eventID string) error {
	r.setOutboxStatus(eventID, "pending", "")
	return nil
}

func (r *MemoryRepository) setOutboxStatus(eventID, status, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.outbox {
		if r.outbox[i].event.EventID == eventID {
			r.outbox[i].status = status
			r.outbox[i].lastError = lastError
			return
		}
	}
}
