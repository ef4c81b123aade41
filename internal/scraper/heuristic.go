package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

const (
	heuristicCards = ".job, .opportunity, .job-listing, .job-item, .listing, .vacancy, " +
		"[class*='job-'], [class*='opportunit'], [class*='scholarship'], [class*='vacanc'], " +
		"[class*='fellowship'], article"
	heuristicTitles       = "h1, h2, h3, h4, .title, [class*='title'], a"
	heuristicDescriptions = ".description, .summary, .excerpt, [class*='desc'], [class*='summary'], [class*='excerpt'], p"
)

// HeuristicExtractor is the last resort: it looks for cards by common
// class-name patterns when neither selectors nor the model produced
// anything.
type HeuristicExtractor struct {
	maxResults int
	logger     *zap.Logger
}

// NewHeuristicExtractor caps each page at maxResults listings
func NewHeuristicExtractor(maxResults int, logger *zap.Logger) *HeuristicExtractor {
	return &HeuristicExtractor{maxResults: maxResults, logger: logger}
}

func (e *HeuristicExtractor) Name() string {
	return "heuristic"
}

func (e *HeuristicExtractor) Extract(_ context.Context, page Page, src domain.SourceConfig) []domain.ScrapedOpportunity {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	seen := make(map[string]bool)
	var results []domain.ScrapedOpportunity

	doc.Find(heuristicCards).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if e.maxResults > 0 && len(results) >= e.maxResults {
			return false
		}

		title := inlineText(card.Find(heuristicTitles).First())
		if title == "" || seen[strings.ToLower(title)] {
			return true
		}

		description := blockText(card.Find(heuristicDescriptions).First())
		if runeLen(description) <= MinFallbackDescriptionLength {
			// Whole-card text minus the title is the next best thing.
			description = strings.TrimSpace(strings.Replace(blockText(card), title, "", 1))
		}
		if !validListing(title, description, MinFallbackDescriptionLength) {
			return true
		}

		seen[strings.ToLower(title)] = true
		opp := domain.ScrapedOpportunity{
			Title:        title,
			Description:  description,
			Organization: src.OrganizationName(),
			SourceURL:    page.URL,
		}
		if href := cardLink(card, "a[href]"); href != "" {
			opp.ApplicationURL = src.Resolve(href)
		}
		results = append(results, opp)
		return true
	})

	e.logger.Debug("Heuristic extraction finished",
		zap.String("source", src.ID),
		zap.Int("count", len(results)),
	)
	return results
}
