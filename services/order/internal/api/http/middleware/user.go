package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shestoi/storefront/services/order/internal/authctx"
)

// RequireUserID извлекает X-User-Id (проставляется шлюзом после аутентификации)
// и кладёт его в context. Без валидного заголовка запрос получает 401.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(authctx.UserIDHeader))
		userID, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || userID <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":  "unauthorized",
				"detail": "missing or invalid " + authctx.UserIDHeader + " header",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(authctx.WithUserID(r.Context(), userID)))
	})
}
