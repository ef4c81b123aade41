package scraper

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Politeness spaces out requests to a single site. One is created per
// source run and shared by the listing loader and the enricher.
type Politeness struct {
	limiter *rate.Limiter
}

// NewPoliteness allows one request per delay. The first Wait returns
// immediately. A non-positive delay disables spacing.
func NewPoliteness(delay time.Duration) *Politeness {
	if delay <= 0 {
		return &Politeness{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Politeness{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next request may be sent or ctx is done
func (p *Politeness) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
