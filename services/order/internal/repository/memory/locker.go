package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// UserLocker блокировка пользователей в памяти процесса, когда Redis не настроен
type UserLocker struct {
	mu    sync.Mutex
	held  map[int64]uint64
	seq   uint64
	now   func() time.Time
	until map[int64]time.Time
}

// NewUserLocker создаёт in-memory блокировку
func NewUserLocker() *UserLocker {
	return &UserLocker{
		held:  make(map[int64]uint64),
		until: make(map[int64]time.Time),
		now:   time.Now,
	}
}

// Lock захватывает блокировку пользователя на ttl, занятая возвращает repository.ErrLocked
func (l *UserLocker) Lock(_ context.Context, userID int64, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[userID]; ok && l.now().Before(l.until[userID]) {
		return nil, repository.ErrLocked
	}
	l.seq++
	token := l.seq
	l.held[userID] = token
	l.until[userID] = l.now().Add(ttl)

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[userID] == token {
			delete(l.held, userID)
			delete(l.until, userID)
		}
		return nil
	}, nil
}
