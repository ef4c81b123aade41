package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// StructuredExtractor walks the cards matched by a source's selectors
type StructuredExtractor struct {
	maxResults int
	logger     *zap.Logger
}

// NewStructuredExtractor caps each page at maxResults listings
func NewStructuredExtractor(maxResults int, logger *zap.Logger) *StructuredExtractor {
	return &StructuredExtractor{maxResults: maxResults, logger: logger}
}

func (e *StructuredExtractor) Name() string {
	return "structured"
}

// Extract parses page with src's selectors. Cards without a long enough
// title and description are skipped.
func (e *StructuredExtractor) Extract(_ context.Context, page Page, src domain.SourceConfig) []domain.ScrapedOpportunity {
	sel := src.Selectors
	if sel.Empty() {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		e.logger.Debug("Failed to parse listing HTML", zap.String("source", src.ID), zap.Error(err))
		return nil
	}

	cards := doc.Find(sel.Container)
	e.logger.Debug("Found listing cards", zap.String("source", src.ID), zap.Int("count", cards.Length()))

	var results []domain.ScrapedOpportunity
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if e.maxResults > 0 && len(results) >= e.maxResults {
			return false
		}

		titleEl := card.Find(sel.Title).First()
		descEl := card.Find(sel.Description).First()
		if titleEl.Length() == 0 || descEl.Length() == 0 {
			return true
		}

		title := inlineText(titleEl)
		description := blockText(descEl)
		if !validListing(title, description, MinDescriptionLength) {
			return true
		}

		opp := domain.ScrapedOpportunity{
			Title:        title,
			Description:  description,
			Organization: src.OrganizationName(),
			SourceURL:    page.URL,
		}
		if sel.Deadline != "" {
			opp.Deadline = inlineText(card.Find(sel.Deadline).First())
		}
		if sel.Location != "" {
			opp.Location = inlineText(card.Find(sel.Location).First())
		}
		if href := cardLink(card, sel.Link); href != "" {
			opp.ApplicationURL = src.Resolve(href)
		}

		results = append(results, opp)
		return true
	})

	return results
}

// cardLink finds the href for a card: the link selector inside the card,
// or the card itself when it is an anchor.
func cardLink(card *goquery.Selection, linkSelector string) string {
	if linkSelector != "" {
		if href, ok := card.Find(linkSelector).First().Attr("href"); ok && usableHref(href) {
			return href
		}
	}
	if href, ok := card.Attr("href"); ok && usableHref(href) {
		return href
	}
	return ""
}

func usableHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	return !strings.HasPrefix(lower, "javascript:") &&
		!strings.HasPrefix(lower, "mailto:") &&
		!strings.HasPrefix(lower, "tel:")
}
