// Package ratelimit guards upstream providers with two independent gates: a
// continuously-refilling token bucket for short-window burst control and a
// rolling 24h quota counter for the long-window cap.
//
// Both gates are advisory: a caller denied by either one must fall back to
// cache-or-fail, never bypass.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// QuotaWindow is the span over which the daily call cap applies.
const QuotaWindow = 24 * time.Hour

// Gate combines the token bucket and the daily quota counter. Safe for
// concurrent use.
type Gate struct {
	bucket *rate.Limiter

	mu          sync.Mutex
	dailyMax    int
	dailyCount  int
	windowStart time.Time

	now func() time.Time
}

// NewGate creates a gate whose bucket holds burst tokens and refills burst
// tokens per window (continuous fractional refill, capped at burst), and
// whose quota allows dailyMax calls per rolling 24h window.
func NewGate(burst int, window time.Duration, dailyMax int) *Gate {
	refill := rate.Limit(float64(burst) / window.Seconds())
	g := &Gate{
		bucket:   rate.NewLimiter(refill, burst),
		dailyMax: dailyMax,
		now:      time.Now,
	}
	g.windowStart = g.now()
	return g
}

// TryTake refills the bucket proportionally to elapsed time, then takes one
// token if at least one is available. Non-blocking; a denial mutates nothing.
func (g *Gate) TryTake() bool {
	return g.bucket.Allow()
}

// Allow reports whether the daily quota still has headroom. It does not
// consume quota; call Record after the upstream call actually succeeded.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollWindow()
	return g.dailyCount < g.dailyMax
}

// Record charges n successful upstream calls against the daily quota.
// Failed calls must not be recorded.
func (g *Gate) Record(n int) {
	if n <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollWindow()
	g.dailyCount += n
}

// Remaining returns the unused portion of the daily quota.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollWindow()
	if left := g.dailyMax - g.dailyCount; left > 0 {
		return left
	}
	return 0
}

// rollWindow resets the counter exactly once when a full window has elapsed,
// not continuously. Caller must hold g.mu.
func (g *Gate) rollWindow() {
	now := g.now()
	if now.Sub(g.windowStart) >= QuotaWindow {
		g.windowStart = now
		g.dailyCount = 0
	}
}
