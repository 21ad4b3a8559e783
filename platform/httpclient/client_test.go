package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID  int `json:"id"`
	Qty int `json:"qty"`
}

func TestClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "7", r.Header.Get("X-User-Id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":1,"qty":3}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"insufficient_stock"}`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "test")

	t.Run("success: json round trip with headers", func(t *testing.T) {
		var out item
		err := c.Do(context.Background(), http.MethodPost, "/echo", http.Header{"X-User-Id": {"7"}}, item{ID: 1}, &out)
		require.NoError(t, err)
		assert.Equal(t, item{ID: 1, Qty: 3}, out)
	})

	t.Run("success: no content", func(t *testing.T) {
		var out item
		require.NoError(t, c.Do(context.Background(), http.MethodDelete, "/empty", nil, nil, &out))
	})

	t.Run("error: non-2xx is StatusError", func(t *testing.T) {
		err := c.Do(context.Background(), http.MethodPost, "/bad", nil, []item{}, nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.JSONEq(t, `{"error":"insufficient_stock"}`, string(se.Body))
	})

	t.Run("error: context deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := c.Do(ctx, http.MethodGet, "/slow", nil, nil, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}
