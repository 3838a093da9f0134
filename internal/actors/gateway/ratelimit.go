package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// limiterStore maintains per-key rate limiters. Limiters idle for longer than limiterIdleTTL are
// swept on access.
type limiterStore struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientEntry
	lastSweep time.Time
	nowFunc   func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newLimiterStore allows perMinute events per key with the given burst.
func newLimiterStore(perMinute, burst int) *limiterStore {
	if perMinute <= 0 {
		perMinute = defaultContactsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiterStore{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		clients: map[string]*clientEntry{},
		nowFunc: time.Now,
	}
}

// Allow checks whether an event for the given key is permitted now.
func (s *limiterStore) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	if now.Sub(s.lastSweep) > limiterIdleTTL {
		for k, e := range s.clients {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}
	e, ok := s.clients[key]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
