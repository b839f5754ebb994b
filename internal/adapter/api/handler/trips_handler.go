package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/V4T54L/tripflow/internal/domain"
	"github.com/V4T54L/tripflow/internal/usecase"
)

// dateLayouts are the accepted formats of start_date and end_date, tried in order.
// Values without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TripPager is the read side of the query engine.
type TripPager interface {
	Page(ctx context.Context, req domain.PageRequest) (domain.Page, error)
}

// TripsHandler serves GET /taxi_trips.
type TripsHandler struct {
	pager  TripPager
	logger *slog.Logger
}

// NewTripsHandler creates a new TripsHandler.
func NewTripsHandler(pager TripPager, logger *slog.Logger) *TripsHandler {
	return &TripsHandler{pager: pager, logger: logger.With("component", "trips_handler")}
}

func (h *TripsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := parsePageRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	page, err := h.pager.Page(r.Context(), req)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, page)
	case errors.Is(err, usecase.ErrLimitExceeded):
		WriteError(w, http.StatusBadRequest, CodeLimitExceeded, err.Error())
	case errors.Is(err, usecase.ErrInvalidRange):
		WriteError(w, http.StatusBadRequest, CodeInvalidRange, err.Error())
	case errors.Is(err, usecase.ErrInvalidLimit), errors.Is(err, usecase.ErrInvalidCursor):
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		h.logger.Info("Request cancelled by client", "path", r.URL.Path)
		w.WriteHeader(StatusClientClosedRequest)
	default:
		h.logger.Error("Failed to page trips", "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to query trips")
	}
}

func parsePageRequest(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	var req domain.PageRequest

	if v := q.Get("cursor"); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("cursor must be an integer, got %q", v)
		}
		req.Cursor = &c
	}
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("limit must be an integer, got %q", v)
		}
		req.Limit = l
	}

	var err error
	if req.Start, err = parseDate(q.Get("start_date")); err != nil {
		return req, fmt.Errorf("start_date: %w", err)
	}
	if req.End, err = parseDate(q.Get("end_date")); err != nil {
		return req, fmt.Errorf("end_date: %w", err)
	}
	return req, nil
}

// parseDate returns the zero time for an empty value.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}
