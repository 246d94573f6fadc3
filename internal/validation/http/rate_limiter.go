package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HostRateLimiter keeps one token bucket per host. Throttling responses halve
// that host's rate; successes recover it step by step toward the base rate.
type HostRateLimiter struct {
	mu             sync.Mutex
	limiters       map[string]*rate.Limiter
	baseRate       rate.Limit
	minRate        rate.Limit
	burst          int
	recoveryFactor float64
	throttled      int64
	waited         int64
	logger         *logrus.Logger
}

func NewHostRateLimiter(perSecond float64, burst int, logger *logrus.Logger) *HostRateLimiter {
	if logger == nil {
		logger = logrus.New()
	}
	base := rate.Inf
	if perSecond > 0 {
		base = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostRateLimiter{
		limiters:       make(map[string]*rate.Limiter),
		baseRate:       base,
		minRate:        rate.Limit(0.5),
		burst:          burst,
		recoveryFactor: 1.10,
		logger:         logger,
	}
}

func (h *HostRateLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.baseRate, h.burst)
		h.limiters[host] = l
	}
	return l
}

func (h *HostRateLimiter) Wait(ctx context.Context, host string) error {
	l := h.limiterFor(host)
	start := time.Now()
	err := l.Wait(ctx)
	if time.Since(start) > time.Millisecond {
		h.mu.Lock()
		h.waited++
		h.mu.Unlock()
	}
	return err
}

func (h *HostRateLimiter) Feedback(host string, statusCode int) {
	if h.baseRate == rate.Inf {
		return
	}
	l := h.limiterFor(host)
	current := l.Limit()

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		next := current / 2
		if next < h.minRate {
			next = h.minRate
		}
		l.SetLimit(next)
		h.mu.Lock()
		h.throttled++
		h.mu.Unlock()
		h.logger.Debugf("Host %s throttled (status %d), rate %.2f -> %.2f", host, statusCode, current, next)
	default:
		if current < h.baseRate {
			next := current * rate.Limit(h.recoveryFactor)
			if next > h.baseRate {
				next = h.baseRate
			}
			l.SetLimit(next)
		}
	}
}

func (h *HostRateLimiter) Limit(host string) rate.Limit {
	return h.limiterFor(host).Limit()
}

func (h *HostRateLimiter) GetStats() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	base := "unlimited"
	if h.baseRate != rate.Inf {
		base = strconv.FormatFloat(float64(h.baseRate), 'f', 2, 64)
	}
	return map[string]interface{}{
		"hosts":     len(h.limiters),
		"base_rate": base,
		"burst":     h.burst,
		"throttled": h.throttled,
		"waited":    h.waited,
	}
}
