package scraper

import (
	"context"

	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// Minimum lengths a listing must exceed to be kept
const (
	MinTitleLength               = 10
	MinDescriptionLength         = 30
	MinFallbackDescriptionLength = 50
)

// Extractor turns a listing page into candidate opportunities.
// Implementations never fail: unusable input yields an empty slice.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, page Page, src domain.SourceConfig) []domain.ScrapedOpportunity
}

// Chain runs extractors in order and returns the first non-empty result
type Chain struct {
	tiers  []Extractor
	logger *zap.Logger
}

// NewChain builds a chain. Nil tiers are skipped, so an unconfigured
// model simply drops out.
func NewChain(logger *zap.Logger, tiers ...Extractor) *Chain {
	c := &Chain{logger: logger}
	for _, t := range tiers {
		if t != nil {
			c.tiers = append(c.tiers, t)
		}
	}
	return c
}

// Extract returns the winning tier's results and its name. The name is
// empty when no tier produced anything.
func (c *Chain) Extract(ctx context.Context, page Page, src domain.SourceConfig) ([]domain.ScrapedOpportunity, string) {
	for _, tier := range c.tiers {
		if ctx.Err() != nil {
			return nil, ""
		}
		found := tier.Extract(ctx, page, src)
		if len(found) > 0 {
			c.logger.Debug("Extraction tier succeeded",
				zap.String("source", src.ID),
				zap.String("tier", tier.Name()),
				zap.Int("count", len(found)),
			)
			return found, tier.Name()
		}
		c.logger.Debug("Extraction tier found nothing",
			zap.String("source", src.ID),
			zap.String("tier", tier.Name()),
		)
	}
	return nil, ""
}

func validListing(title, description string, minDescription int) bool {
	return runeLen(title) > MinTitleLength && runeLen(description) > minDescription
}
