package govern

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tradeflow/config"
	"tradeflow/internal/model"
)

// Governor bounds outbound traffic to a single venue on three axes: a cap on
// concurrent in-flight requests, a venue-wide token bucket, and a minimum
// spacing between requests that touch the same symbol.
//
// Per-symbol pacing works by reservation. Under the lock we only compute and
// record the slot this caller gets (max of now and last reservation plus the
// interval); the actual sleep happens after the lock is released, so a caller
// waiting out its slot never blocks other symbols from reserving theirs.
type Governor struct {
	venue       string
	sem         chan struct{}
	limiter     *rate.Limiter
	minInterval time.Duration

	mu    sync.Mutex
	slots map[string]time.Time
}

// New builds a Governor from venue limits.
func New(venue string, limits config.VenueLimits) *Governor {
	burst := limits.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Governor{
		venue:       venue,
		sem:         make(chan struct{}, limits.MaxInFlight),
		limiter:     rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), burst),
		minInterval: time.Duration(limits.SymbolIntervalMs) * time.Millisecond,
		slots:       make(map[string]time.Time),
	}
}

// Acquire blocks until the request may proceed and returns a release func the
// caller must invoke when the request finishes. Symbol may be empty for
// requests that are not symbol scoped (balances, sessions).
func (g *Governor) Acquire(ctx context.Context, symbol string) (func(), error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, model.NewVenueError(g.venue, "acquire", model.KindRateLimit, "cancelled waiting for request slot", ctx.Err())
	}

	release := func() { <-g.sem }

	if err := g.limiter.Wait(ctx); err != nil {
		release()
		return nil, model.NewVenueError(g.venue, "acquire", model.KindRateLimit, "cancelled waiting for rate token", err)
	}

	if symbol != "" && g.minInterval > 0 {
		if err := g.waitSymbol(ctx, symbol); err != nil {
			release()
			return nil, err
		}
	}

	return release, nil
}

func (g *Governor) waitSymbol(ctx context.Context, symbol string) error {
	now := time.Now()

	g.mu.Lock()
	slot := now
	if last, ok := g.slots[symbol]; ok {
		if next := last.Add(g.minInterval); next.After(slot) {
			slot = next
		}
	}
	g.slots[symbol] = slot
	g.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return model.NewVenueError(g.venue, "acquire", model.KindRateLimit, "cancelled waiting for symbol slot", ctx.Err())
	}
}

// InFlight reports the number of currently held request slots.
func (g *Governor) InFlight() int {
	return len(g.sem)
}
