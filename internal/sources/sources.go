// Package sources holds the fetch adapters and the manager that runs them
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"newsroll/internal/core"
)

// Fetcher is one adapter producing RawItems.
type Fetcher interface {
	Name() string
	Kind() core.Kind
	Fetch(ctx context.Context) ([]core.RawItem, error)
}

// StatusError is returned when an API answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

// HasStatus reports whether err is a StatusError with one of codes.
func HasStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

// HTTP is the shared transport for the JSON adapters.
type HTTP struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTP returns an HTTP with the given timeout.
func NewHTTP(timeout time.Duration, userAgent string) *HTTP {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTP{Client: &http.Client{Timeout: timeout}, UserAgent: userAgent}
}

func (h *HTTP) client() *http.Client {
	if h == nil || h.Client == nil {
		return http.DefaultClient
	}
	return h.Client
}

// Get issues a GET and returns the body. Non-2xx statuses yield a StatusError.
func (h *HTTP) Get(ctx context.Context, endpoint string, params url.Values, headers map[string]string) ([]byte, error) {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if h != nil && h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL.Scheme + "://" + req.URL.Host + req.URL.Path, Code: resp.StatusCode}
	}
	return body, nil
}

// GetJSON is Get followed by a JSON decode into out.
func (h *HTTP) GetJSON(ctx context.Context, endpoint string, params url.Values, headers map[string]string, out any) error {
	body, err := h.Get(ctx, endpoint, params, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", endpoint, err)
	}
	return nil
}

// parseTime reads an RFC3339 timestamp into loc, returning zero on failure.
func parseTime(value string, loc *time.Location) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t
}
