package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

const (
	MinDetailDescriptionLength = 200
	MaxDetailDescriptionLength = 10000
	minParagraphLength         = 20
)

// SelectorLookup returns the description selectors to try on a source's
// detail pages.
type SelectorLookup func(sourceID string) []string

// DetailEnricher follows an opportunity's link and replaces its summary
// with the full description from the detail page.
type DetailEnricher struct {
	fetcher   PageFetcher
	selectors SelectorLookup
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDetailEnricher creates an enricher. Detail fetches use the source's
// retry policy with timeout bounding each attempt.
func NewDetailEnricher(fetcher PageFetcher, selectors SelectorLookup, timeout time.Duration, logger *zap.Logger) *DetailEnricher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DetailEnricher{
		fetcher:   fetcher,
		selectors: selectors,
		timeout:   timeout,
		logger:    logger,
	}
}

// Enrich returns opp with a longer description when the detail page has
// one. Failures leave opp unchanged.
func (e *DetailEnricher) Enrich(ctx context.Context, opp domain.ScrapedOpportunity, src domain.SourceConfig) domain.ScrapedOpportunity {
	if opp.ApplicationURL == "" {
		return opp
	}

	html, err := e.fetcher.Fetch(ctx, Request{
		URL:     opp.ApplicationURL,
		Headers: src.Headers(),
		Timeout: e.timeout,
		Retries: src.RequestConfig.Retries,
		Delay:   src.RequestConfig.Delay,
	})
	if err != nil {
		e.logger.Debug("Detail page fetch failed",
			zap.String("source", src.ID),
			zap.String("url", opp.ApplicationURL),
			zap.Error(err),
		)
		return opp
	}

	full := ExtractDescription(html, e.selectors(src.ID))
	if runeLen(full) > runeLen(opp.Description) {
		opp.Description = full
	}
	return opp
}

// ExtractDescription pulls the main description from a detail page. The
// first selector yielding more than MinDetailDescriptionLength characters
// wins; otherwise substantial paragraphs are joined. The result is capped
// at MaxDetailDescriptionLength and may be empty.
func ExtractDescription(html string, selectors []string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := blockText(s)
			if runeLen(text) > MinDetailDescriptionLength {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return Truncate(found, MaxDetailDescriptionLength)
		}
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := inlineText(s); runeLen(text) > minParagraphLength {
			paragraphs = append(paragraphs, text)
		}
	})
	joined := strings.Join(paragraphs, "\n\n")
	if runeLen(joined) <= MinDetailDescriptionLength {
		return ""
	}
	return Truncate(joined, MaxDetailDescriptionLength)
}
