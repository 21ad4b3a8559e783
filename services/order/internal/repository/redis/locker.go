package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// снимаем блокировку только если она всё ещё наша (токен совпадает)
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLocker гарантирует не более одного оформления заказа на пользователя.
// SET NX PX с токеном, TTL страхует от упавшего процесса
type UserLocker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewUserLocker создаёт Redis блокировку пользователей
func NewUserLocker(client *redis.Client, logger *zap.Logger) *UserLocker {
	return &UserLocker{
		client: client,
		logger: logger,
	}
}

func lockKey(userID int64) string {
	return fmt.Sprintf("order:place:%d", userID)
}

// Lock захватывает блокировку пользователя; если она занята, возвращает repository.ErrLocked
func (l *UserLocker) Lock(ctx context.Context, userID int64, ttl time.Duration) (func(context.Context) error, error) {
	key := lockKey(userID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire user lock: %w", err)
	}
	if !ok {
		l.logger.Debug("user lock is held", zap.Int64("user_id", userID))
		return nil, repository.ErrLocked
	}

	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release user lock: %w", err)
		}
		return nil
	}, nil
}
