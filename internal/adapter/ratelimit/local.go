package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Local is an in-process token bucket per client. Buckets of idle clients
// are evicted after a few windows.
type Local struct {
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
	mu      sync.Mutex
	now     func() time.Time
}

// NewLocal allows requests per window for each client, with bursts up to the
// full budget.
func NewLocal(requests int, window time.Duration) *Local {
	return &Local{
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		buckets: cache.New(3*window, 6*window),
		now:     time.Now,
	}
}

// Allow consumes a token for client, or reports how long until one is free.
func (l *Local) Allow(_ context.Context, client string) (bool, time.Duration, error) {
	lim := l.bucket(client)
	now := l.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, 0, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (l *Local) bucket(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(client); ok {
		lim := v.(*rate.Limiter)
		// Touch so active clients are not evicted.
		l.buckets.SetDefault(client, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.buckets.SetDefault(client, lim)
	return lim
}
