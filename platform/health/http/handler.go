package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Check проверяет одну зависимость (БД, брокер); nil означает "готово"
type Check func(ctx context.Context) error

// Handler возвращает handler для GET /health.
// Все checks выполняются с общим таймаутом; первая ошибка даёт 503 с её текстом.
func Handler(timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		for name, check := range checks {
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status":     "not ready",
					"dependency": name,
					"error":      err.Error(),
				})
				return
			}
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
