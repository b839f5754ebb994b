package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/V4T54L/tripflow/internal/domain"
	"github.com/V4T54L/tripflow/internal/domain/mocks"
	"github.com/V4T54L/tripflow/internal/usecase"
)

func newTestServer(t *testing.T, trips int, budget int) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := &mocks.MockTripRepository{}
	pickup := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < trips; i++ {
		if _, err := repo.Append(context.Background(), domain.TripRecord{
			PickupTime:      pickup,
			DropoffTime:     pickup.Add(5 * time.Minute),
			TripDistance:    1,
			FareAmount:      8,
			StoreAndFwdFlag: domain.FlagNo,
		}); err != nil {
			t.Fatal(err)
		}
	}

	router := NewRouter(
		logger,
		nil,
		&mocks.MockAPIKeyRepository{Valid: map[string]bool{"secret": true}},
		&mocks.MockRateLimiter{Budget: budget},
		usecase.NewQueryTripsUseCase(repo, logger, nil, 100, 500),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter_PaginatesWithTrailingSlash(t *testing.T) {
	srv := newTestServer(t, 3, 100)

	var ids []int64
	url := srv.URL + "/taxi_trips/?api_key=secret&limit=2"
	for range 3 {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatal(err)
		}
		var page domain.Page
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d, decode error %v", resp.StatusCode, err)
		}
		for _, rec := range page.Data {
			ids = append(ids, rec.ID)
		}
		if !page.HasMore {
			break
		}
		url = srv.URL + "/taxi_trips?api_key=secret&limit=2&cursor=" + strconv.FormatInt(*page.NextCursor, 10)
	}

	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("expected ids 1..3 in order, got %v", ids)
	}
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	srv := newTestServer(t, 1, 1)

	resp, err := http.Get(srv.URL + "/taxi_trips")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a key, got %d", resp.StatusCode)
	}

	// The unauthorized request already used the only token.
	resp, err = http.Get(srv.URL + "/taxi_trips?api_key=secret")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health must bypass auth and rate limiting, got %d", resp.StatusCode)
	}
}

func TestRouter_RejectsOtherMethods(t *testing.T) {
	srv := newTestServer(t, 0, 100)
	resp, err := http.Post(srv.URL+"/taxi_trips?api_key=secret", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestAdminRouter(t *testing.T) {
	called := false
	r := NewAdminRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !called {
		t.Error("expected metrics handler to be mounted")
	}
}
