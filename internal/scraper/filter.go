package scraper

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// KeywordFilter applies a source's include and exclude keyword lists.
// Matching is case-insensitive substring search over title and
// description.
type KeywordFilter struct {
	include *ahocorasick.Matcher
	exclude *ahocorasick.Matcher
}

// NewKeywordFilter compiles f. An empty include list admits everything.
func NewKeywordFilter(f domain.Filters) *KeywordFilter {
	return &KeywordFilter{
		include: compileKeywords(f.Keywords),
		exclude: compileKeywords(f.ExcludeKeywords),
	}
}

// Allow reports whether opp passes the filter
func (k *KeywordFilter) Allow(opp domain.ScrapedOpportunity) bool {
	if k.include == nil && k.exclude == nil {
		return true
	}
	text := []byte(strings.ToLower(opp.Title + "\n" + opp.Description))

	if k.exclude != nil && len(k.exclude.Match(text)) > 0 {
		return false
	}
	if k.include != nil && len(k.include.Match(text)) == 0 {
		return false
	}
	return true
}

// Apply keeps the opportunities that pass
func (k *KeywordFilter) Apply(opps []domain.ScrapedOpportunity) []domain.ScrapedOpportunity {
	kept := opps[:0:0]
	for _, opp := range opps {
		if k.Allow(opp) {
			kept = append(kept, opp)
		}
	}
	return kept
}

func compileKeywords(words []string) *ahocorasick.Matcher {
	var lowered []string
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lowered = append(lowered, w)
		}
	}
	if len(lowered) == 0 {
		return nil
	}
	return ahocorasick.NewStringMatcher(lowered)
}
