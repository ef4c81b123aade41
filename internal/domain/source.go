package domain

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PaginationType is how a source exposes more than one page of listings
type PaginationType string

const (
	PaginationClick  PaginationType = "click"
	PaginationURL    PaginationType = "url"
	PaginationScroll PaginationType = "scroll"
)

// PagePlaceholder is replaced by the page number in url-paginated listing paths
const PagePlaceholder = "{page}"

// Selectors are the CSS selectors used to walk listing cards
type Selectors struct {
	Container   string `yaml:"container" json:"container"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Deadline    string `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	Location    string `yaml:"location,omitempty" json:"location,omitempty"`
	Link        string `yaml:"link" json:"link"`
	NextPage    string `yaml:"next_page,omitempty" json:"next_page,omitempty"`
}

// Empty reports whether no usable card selectors were configured
func (s Selectors) Empty() bool {
	return s.Container == "" || s.Title == "" || s.Description == ""
}

type Pagination struct {
	Type     PaginationType `yaml:"type" json:"type" validate:"omitempty,oneof=click url scroll"`
	MaxPages int            `yaml:"max_pages" json:"max_pages" validate:"gte=0,lte=20"`
	WaitTime time.Duration  `yaml:"wait_time" json:"wait_time"`
}

type Filters struct {
	Keywords        []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	ExcludeKeywords []string `yaml:"exclude_keywords,omitempty" json:"exclude_keywords,omitempty"`
	Language        string   `yaml:"language,omitempty" json:"language,omitempty"`
}

type RequestConfig struct {
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Delay   time.Duration     `yaml:"delay" json:"delay"`
	Retries int               `yaml:"retries" json:"retries" validate:"gte=0,lte=10"`
}

// CategoryMapping maps lower-case keywords to category slugs, with a
// default slug used when nothing matches.
type CategoryMapping struct {
	Keywords map[string]string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Default  string            `yaml:"default,omitempty" json:"default,omitempty"`
}

// SourceConfig is one external site's scraping recipe. It is reference data
// loaded at startup and never mutated during a run.
type SourceConfig struct {
	ID              string          `yaml:"id" json:"id" validate:"required"`
	Name            string          `yaml:"name" json:"name" validate:"required"`
	Organization    string          `yaml:"organization,omitempty" json:"organization,omitempty"`
	BaseURL         string          `yaml:"base_url" json:"base_url" validate:"required,url"`
	ListingPath     string          `yaml:"listing_path" json:"listing_path"`
	Selectors       Selectors       `yaml:"selectors" json:"selectors"`
	Pagination      Pagination      `yaml:"pagination" json:"pagination"`
	Filters         Filters         `yaml:"filters" json:"filters"`
	RequestConfig   RequestConfig   `yaml:"request_config" json:"request_config"`
	CategoryMapping CategoryMapping `yaml:"category_mapping" json:"category_mapping"`
	SkipEnrichment  bool            `yaml:"skip_enrichment,omitempty" json:"skip_enrichment,omitempty"`
}

// ListingURL returns the absolute URL of the given 1-based listing page.
// Pages beyond the first only resolve for paths carrying PagePlaceholder.
func (s SourceConfig) ListingURL(page int) string {
	path := s.ListingPath
	if strings.Contains(path, PagePlaceholder) {
		path = strings.ReplaceAll(path, PagePlaceholder, strconv.Itoa(page))
	}
	return s.Resolve(path)
}

// Resolve turns a possibly relative href into an absolute URL against the
// source's base URL. Unparseable hrefs come back unchanged.
func (s SourceConfig) Resolve(href string) string {
	href = strings.TrimSpace(href)
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return href
	}
	if href == "" {
		return base.String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Headers returns the request headers for the source's pages. A filter
// language becomes Accept-Language unless one is configured explicitly.
func (s SourceConfig) Headers() map[string]string {
	lang := strings.TrimSpace(s.Filters.Language)
	if lang == "" {
		return s.RequestConfig.Headers
	}
	headers := make(map[string]string, len(s.RequestConfig.Headers)+1)
	for k, v := range s.RequestConfig.Headers {
		if strings.EqualFold(k, "Accept-Language") {
			lang = ""
		}
		headers[k] = v
	}
	if lang != "" {
		headers["Accept-Language"] = lang + ",en;q=0.5"
	}
	return headers
}

// Organization name shown on published rows
func (s SourceConfig) OrganizationName() string {
	if s.Organization != "" {
		return s.Organization
	}
	return s.Name
}

// SourceType distinguishes registry-backed sources from URL-only ones
type SourceType string

const (
	SourceTypeSpecific SourceType = "specific"
	SourceTypeGeneric  SourceType = "generic"
)

const (
	maxSuccessRate     = 100.0
	successRateGain    = 10.0
	successRatePenalty = 20.0
)

// ScrapingSource is the persisted, mutable state of a source.
type ScrapingSource struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	URL             string          `json:"url"`
	Type            SourceType      `json:"source_type"`
	IsActive        bool            `json:"is_active"`
	SuccessRate     float64         `json:"success_rate"`
	LastScrapedAt   *time.Time      `json:"last_scraped_at,omitempty"`
	CategoryMapping CategoryMapping `json:"category_mapping"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsDue reports whether the source should be scraped now. Sources under
// minRate wait three windows instead of one.
func (s ScrapingSource) IsDue(now time.Time, window time.Duration, minRate float64) bool {
	if !s.IsActive {
		return false
	}
	if s.LastScrapedAt == nil {
		return true
	}
	if s.SuccessRate < minRate {
		window *= 3
	}
	return now.Sub(*s.LastScrapedAt) >= window
}

// NextSuccessRate moves the rolling score after a run
func NextSuccessRate(current float64, ok bool) float64 {
	if ok {
		next := current + successRateGain
		if next > maxSuccessRate {
			return maxSuccessRate
		}
		return next
	}
	next := current - successRatePenalty
	if next < 0 {
		return 0
	}
	return next
}

// AsConfig builds a selector-less recipe for a generic source, which
// routes extraction to the fallback tiers.
func (s ScrapingSource) AsConfig() SourceConfig {
	return SourceConfig{
		ID:              s.ID,
		Name:            s.Name,
		BaseURL:         s.URL,
		CategoryMapping: s.CategoryMapping,
		Pagination:      Pagination{Type: PaginationURL, MaxPages: 1},
	}
}
