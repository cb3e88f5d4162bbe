package logging

import (
	"sync"
	"time"

	goxrate "golang.org/x/time/rate"
)

// Rate specifies a maximum per-message logging rate.
type Rate struct {
	// Limit is the sustained rate allowed for any one message.
	Limit goxrate.Limit
	// Burst is the number of messages allowed through before limiting
	// kicks in.
	Burst int
}

// Every is a convenience alias for golang.org/x/time/rate.Every.
func Every(interval time.Duration) goxrate.Limit { return goxrate.Every(interval) }

// ratelimited wraps a Logger so that repeated identical warnings (e.g.
// "PoolExhausted" from the steal-candidate buffer on a hot balancing
// path) don't flood the console every tick.
type ratelimited struct {
	Logger
	mu     sync.Mutex
	rate   Rate
	limits map[string]*goxrate.Limiter
}

// RateLimit returns a rate-limited wrapper of log that throttles Warn and
// Error calls sharing the same format string.
func RateLimit(log Logger, rate Rate) Logger {
	if rate.Burst < 1 {
		rate.Burst = 1
	}
	return &ratelimited{
		Logger: log,
		rate:   rate,
		limits: make(map[string]*goxrate.Limiter),
	}
}

func (rl *ratelimited) limiterFor(format string) *goxrate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limits[format]
	if !ok {
		l = goxrate.NewLimiter(rl.rate.Limit, rl.rate.Burst)
		rl.limits[format] = l
	}
	return l
}

func (rl *ratelimited) Warn(format string, args ...interface{}) {
	if !rl.limiterFor(format).Allow() {
		return
	}
	rl.Logger.Warn(format, args...)
}

func (rl *ratelimited) Error(format string, args ...interface{}) {
	if !rl.limiterFor(format).Allow() {
		return
	}
	rl.Logger.Error(format, args...)
}
