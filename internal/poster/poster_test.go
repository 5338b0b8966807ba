package poster

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

func newTestPoster(compress bool, retries int) *HTTPPoster {
	return New(Options{
		Timeout:       5 * time.Second,
		RetryCount:    retries,
		RetryDelay:    time.Millisecond,
		RatePerSecond: 100,
		Compress:      compress,
	}, zap.NewNop())
}

func TestPostSendsHeadersAndBody(t *testing.T) {
	var gotBody []byte
	var gotAuth, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPoster(false, 0)
	err := p.Post(context.Background(), srv.URL,
		map[string]string{"Authorization": "Bearer tok"},
		[]byte(`{"locations":[]}`))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("endpoint header not attached, got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected json content type, got %q", gotContentType)
	}
	if string(gotBody) != `{"locations":[]}` {
		t.Errorf("unexpected body: %s", gotBody)
	}
}

func TestPostGzipsPayload(t *testing.T) {
	var gotEncoding string
	var decoded []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		gr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		decoded, _ = io.ReadAll(gr)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPoster(true, 0)
	payload := []byte(`{"locations":[{"timestamp":1000}]}`)
	if err := p.Post(context.Background(), srv.URL, nil, payload); err != nil {
		t.Fatalf("post failed: %v", err)
	}

	if gotEncoding != "gzip" {
		t.Errorf("expected gzip content encoding, got %q", gotEncoding)
	}
	if string(decoded) != string(payload) {
		t.Errorf("decompressed body mismatch: %s", decoded)
	}
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPoster(false, 3)
	if err := p.Post(context.Background(), srv.URL, nil, []byte(`{}`)); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestPostGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestPoster(false, 2)
	err := p.Post(context.Background(), srv.URL, nil, []byte(`{}`))
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError in chain, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls.Load())
	}
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestPoster(false, 5)
	if err := p.Post(context.Background(), srv.URL, nil, []byte(`{}`)); err == nil {
		t.Fatal("expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("client error should not be retried, got %d attempts", calls.Load())
	}
}

func TestPostRateLimitedIsRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPoster(false, 1)
	if err := p.Post(context.Background(), srv.URL, nil, []byte(`{}`)); err != nil {
		t.Fatalf("expected retry after 429, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}
