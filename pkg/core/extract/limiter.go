package extract

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	limitersMu sync.Mutex
	limiters   = make(map[string]*rate.Limiter)
)

// SharedLimiter returns the process-wide limiter for a backend, creating it on
// first use. Every caller for the same backend waits on the same limiter, so
// concurrent runs never exceed one request per interval.
// The interval of the first call wins.
func SharedLimiter(backend string, interval time.Duration) *rate.Limiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	if l, ok := limiters[backend]; ok {
		return l
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l := rate.NewLimiter(limit, 1)
	limiters[backend] = l
	return l
}
