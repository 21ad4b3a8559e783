package authctx

import (
	"context"
)

// UserIDHeader заголовок с id пользователя, который проставляет аутентифицирующий слой перед сервисом
const UserIDHeader = "X-User-Id"

type ctxKeyUserID struct{}

var userIDKey = ctxKeyUserID{}

// WithUserID сохраняет user_id в контексте (используется HTTP middleware)
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext возвращает user_id из контекста, если он был установлен
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
