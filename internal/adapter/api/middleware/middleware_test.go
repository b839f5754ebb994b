package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/V4T54L/tripflow/internal/adapter/api/handler"
	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/domain/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp handler.ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp.Code
}

func TestAuth(t *testing.T) {
	repo := &mocks.MockAPIKeyRepository{Valid: map[string]bool{"secret": true}}

	tests := []struct {
		name           string
		target         string
		header         string
		repoErr        error
		expectedStatus int
		expectedCode   string
	}{
		{name: "Key in query", target: "/taxi_trips?api_key=secret", expectedStatus: http.StatusOK},
		{name: "Key in header", target: "/taxi_trips", header: "secret", expectedStatus: http.StatusOK},
		{name: "Query wins over header", target: "/taxi_trips?api_key=wrong", header: "secret", expectedStatus: http.StatusUnauthorized, expectedCode: handler.CodeUnauthorized},
		{name: "Missing key", target: "/taxi_trips", expectedStatus: http.StatusUnauthorized, expectedCode: handler.CodeUnauthorized},
		{name: "Invalid key", target: "/taxi_trips?api_key=nope", expectedStatus: http.StatusUnauthorized, expectedCode: handler.CodeUnauthorized},
		{name: "Repository failure", target: "/taxi_trips?api_key=secret", repoErr: errors.New("db down"), expectedStatus: http.StatusInternalServerError, expectedCode: handler.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.Err = tt.repoErr
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			Auth(repo, testLogger)(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
			if tt.expectedCode != "" {
				if code := decodeCode(t, rr.Body); code != tt.expectedCode {
					t.Errorf("got code %q, want %q", code, tt.expectedCode)
				}
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	limiter := &mocks.MockRateLimiter{Budget: 2}
	h := RateLimit(limiter, testLogger, m)(okHandler)

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/taxi_trips", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := send("10.0.0.1:5000"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}

	// A different source port is the same client.
	rr := send("10.0.0.1:5001")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rr.Header().Get("Retry-After"))
	}
	if code := decodeCode(t, rr.Body); code != handler.CodeRateLimited {
		t.Errorf("got code %q, want %q", code, handler.CodeRateLimited)
	}

	if rr := send("10.0.0.2:5000"); rr.Code != http.StatusOK {
		t.Errorf("other clients must keep their own budget, got %d", rr.Code)
	}
	if got := testutil.ToFloat64(m.RateLimited); got != 1 {
		t.Errorf("expected 1 rate-limited request, got %v", got)
	}
}

func TestRateLimit_LimiterErrorAllows(t *testing.T) {
	limiter := &mocks.MockRateLimiter{Err: errors.New("redis down")}
	rr := httptest.NewRecorder()
	RateLimit(limiter, testLogger, nil)(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("expected request to pass, got %d", rr.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rr.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected generated id to be echoed, got %q / %q", seen, rr.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" {
		t.Errorf("expected caller id to be kept, got %q", seen)
	}
}

func TestLogging_CountsByStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Logging(testLogger, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("418")); got != 2 {
		t.Errorf("expected 2 requests with status 418, got %v", got)
	}
}
