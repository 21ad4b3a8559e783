package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shestoi/storefront/services/order/internal/authctx"
)

func TestRequireUserID(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUserID int64
	}{
		{name: "success: numeric id", header: "42", wantStatus: http.StatusOK, wantUserID: 42},
		{name: "success: surrounding spaces", header: " 7 ", wantStatus: http.StatusOK, wantUserID: 7},
		{name: "error: missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "error: not a number", header: "abc", wantStatus: http.StatusUnauthorized},
		{name: "error: non-positive", header: "0", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			h := RequireUserID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = authctx.UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/orders/", nil)
			if tt.header != "" {
				req.Header.Set(authctx.UserIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUserID, got)
		})
	}
}
