package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxLimiters bounds the per-account limiter map; it is reset when exceeded.
const maxLimiters = 10000

// accountLimiter rate limits requests per account id.
type accountLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newAccountLimiter(perSecond float64, burst int) *accountLimiter {
	return &accountLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *accountLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLimiters {
			l.limiters = make(map[string]*rate.Limiter)
		}

		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}

	return lim
}

func (l *accountLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.get(accountID(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next.ServeHTTP(w, r)
	})
}
