package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mverbeek/levensboek/internal/httpx"
)

func newClient(t *testing.T, url string, opts ...httpx.Option) *httpx.Client {
	t.Helper()
	opts = append([]httpx.Option{httpx.WithRetries(2, time.Millisecond)}, opts...)
	c, err := httpx.New(url, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestDoJSON_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	if err := newClient(t, srv.URL).DoJSON(context.Background(), http.MethodGet, "/x", nil, &out); err != nil {
		t.Fatalf("DoJSON() error: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDoJSON_NeverRetriesClientErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"ongeldig verzoek","code":"invalid_body","details":{"field":"filename"}}`))
	}))
	defer srv.Close()

	err := newClient(t, srv.URL).DoJSON(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not be retried)", got)
	}

	var apiErr *httpx.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d", apiErr.Status)
	}
	if apiErr.Message != "ongeldig verzoek" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Code != "invalid_body" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Details["field"] != "filename" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestDoJSON_RawTextErrorFallback(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("verboden"))
	}))
	defer srv.Close()

	err := newClient(t, srv.URL).DoJSON(context.Background(), http.MethodGet, "/x", nil, nil)
	var apiErr *httpx.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.Message != "verboden" {
		t.Errorf("Message = %q, want raw body text", apiErr.Message)
	}
}

func TestDoJSON_AttachesBearerToken(t *testing.T) {
	t.Parallel()
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, httpx.WithToken("tok-123"))
	if err := c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("DoJSON() error: %v", err)
	}
	if got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestDoRetry_NoImplicitAuthorization(t *testing.T) {
	t.Parallel()
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, httpx.WithToken("tok-123"))
	err := c.DoRetry(context.Background(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodPut, srv.URL+"/blob", nil)
	}, nil)
	if err != nil {
		t.Fatalf("DoRetry() error: %v", err)
	}
	if got != "" {
		t.Errorf("Authorization = %q, want none for presigned destinations", got)
	}
}

func TestDoRetry_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := httpx.New(srv.URL, httpx.WithRetries(5, time.Minute))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = c.DoJSON(ctx, http.MethodGet, "/x", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("connection refused"), true},
		{"server error", &httpx.APIError{Status: 503}, true},
		{"client error", &httpx.APIError{Status: 404}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := httpx.Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
