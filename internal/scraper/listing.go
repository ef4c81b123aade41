package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// Page is one fetched listing page
type Page struct {
	URL  string
	HTML string
}

// Renderer loads pages that need a browser (infinite scroll, "load more"
// buttons).
type Renderer interface {
	Render(ctx context.Context, url string, pagination domain.Pagination, nextSelector string) (string, error)
}

// ListingLoader fetches all listing pages of a source according to its
// pagination recipe.
type ListingLoader struct {
	fetcher  PageFetcher
	renderer Renderer
	timeout  time.Duration
	logger   *zap.Logger
}

// NewListingLoader creates a loader. renderer may be nil, in which case
// scroll and click sources get a single static fetch.
func NewListingLoader(fetcher PageFetcher, renderer Renderer, timeout time.Duration, logger *zap.Logger) *ListingLoader {
	return &ListingLoader{
		fetcher:  fetcher,
		renderer: renderer,
		timeout:  timeout,
		logger:   logger,
	}
}

// Load returns the source's listing pages. Failing to fetch the first page
// is an error; later pages are best effort.
func (l *ListingLoader) Load(ctx context.Context, src domain.SourceConfig, polite *Politeness) ([]Page, error) {
	first := src.ListingURL(1)

	if l.renderer != nil && (src.Pagination.Type == domain.PaginationScroll || src.Pagination.Type == domain.PaginationClick) {
		if err := polite.Wait(ctx); err != nil {
			return nil, err
		}
		html, err := l.renderer.Render(ctx, first, src.Pagination, src.Selectors.NextPage)
		if err == nil {
			return []Page{{URL: first, HTML: html}}, nil
		}
		l.logger.Warn("Browser render failed, using static fetch",
			zap.String("source", src.ID),
			zap.String("url", first),
			zap.Error(err),
		)
	}

	maxPages := src.Pagination.MaxPages
	if maxPages < 1 || src.Pagination.Type != domain.PaginationURL {
		maxPages = 1
	}

	var pages []Page
	seen := make(map[string]bool)
	pageURL := first

	for n := 1; n <= maxPages && pageURL != ""; n++ {
		if err := polite.Wait(ctx); err != nil {
			return pages, err
		}

		html, err := l.fetcher.Fetch(ctx, Request{
			URL:     pageURL,
			Headers: src.Headers(),
			Timeout: l.timeout,
			Retries: src.RequestConfig.Retries,
			Delay:   src.RequestConfig.Delay,
		})
		if err != nil {
			if n == 1 {
				return nil, fmt.Errorf("listing page: %w", err)
			}
			l.logger.Warn("Stopping pagination after failed page",
				zap.String("source", src.ID),
				zap.Int("page", n),
				zap.Error(err),
			)
			break
		}

		seen[pageURL] = true
		pages = append(pages, Page{URL: pageURL, HTML: html})

		next := l.nextPageURL(src, n, html)
		if seen[next] {
			break
		}
		pageURL = next
	}

	return pages, nil
}

func (l *ListingLoader) nextPageURL(src domain.SourceConfig, current int, html string) string {
	if strings.Contains(src.ListingPath, domain.PagePlaceholder) {
		return src.ListingURL(current + 1)
	}
	if src.Selectors.NextPage == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	href, ok := doc.Find(src.Selectors.NextPage).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	return src.Resolve(href)
}
