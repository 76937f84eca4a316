// Package throttle enforces a minimum interval between requests to each
// external service, keyed by service name so that throttling one service
// never delays another.
package throttle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Service keys for the external data sources.
const (
	KeyNominatim = "nominatim"
	KeyOverpass  = "overpass"
)

// Gate holds one rate limiter per service key. Acquire blocks the caller
// until the key's limiter grants a token, so aggregate request rate per
// service never exceeds one per interval even if callers run concurrently.
type Gate struct {
	limiters map[string]*rate.Limiter
}

// New creates a Gate with an independent limiter per key. A non-positive
// interval disables throttling, which tests rely on for determinism.
func New(interval time.Duration, keys ...string) *Gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	limiters := make(map[string]*rate.Limiter, len(keys))
	for _, k := range keys {
		limiters[k] = rate.NewLimiter(limit, 1)
	}
	return &Gate{limiters: limiters}
}

// Acquire blocks until the given service key may issue a request.
// Unknown keys acquire immediately.
func (g *Gate) Acquire(ctx context.Context, key string) error {
	lim, ok := g.limiters[key]
	if !ok {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return eris.Wrapf(err, "throttle: acquire %s", key)
	}
	return nil
}
