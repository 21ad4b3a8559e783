package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shestoi/storefront/platform/observability"
)

// maxErrorBody ограничивает, сколько тела ответа с ошибкой сохраняется в StatusError
const maxErrorBody = 4 << 10

// Client JSON-over-HTTP клиент к соседнему сервису.
// Таймаут на http.Client не ставится: запрос ограничивается контекстом вызывающего шага.
type Client struct {
	baseURL string
	http    *http.Client
}

// New создаёт клиент; baseURL вида "http://inventory:8082" (без завершающего /).
// Исходящие запросы проходят через observability.Transport (client span + traceparent).
func New(baseURL, serviceName string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: observability.Transport(serviceName, &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
	}
}

// NewWithHTTPClient используется в тестах с httptest.Server
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// StatusError ответ вне диапазона 2xx; Body содержит (усечённое) тело ответа
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Do выполняет запрос. in (если не nil) кодируется в JSON тело, out (если не nil)
// декодируется из тела 2xx ответа. Ответ вне 2xx возвращается как *StatusError,
// сетевые ошибки и истечение ctx оборачиваются как есть (errors.Is(err, context.DeadlineExceeded) работает).
func (c *Client) Do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: raw}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, url, err)
	}
	return nil
}
