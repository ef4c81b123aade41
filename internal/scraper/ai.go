package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

const extractionSystemPrompt = `You extract opportunity listings (jobs, scholarships, fellowships, internships, grants) from web page text.
Respond with ONLY a JSON array. No prose, no markdown.
Each element must have exactly these string fields:
  "title", "description", "deadline", "location", "application_url", "organization".
Use "" for unknown fields. Descriptions should be the full text shown for the listing, not a summary.
If the page lists no opportunities, respond with [].`

// Completer is a one-shot language model call
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// AIExtractor asks a language model to pull listings out of page text
type AIExtractor struct {
	model      Completer
	maxInput   int
	maxResults int
	policy     *bluemonday.Policy
	logger     *zap.Logger
}

// NewAIExtractor returns nil when model is nil, so the tier drops out of a
// Chain.
func NewAIExtractor(model Completer, maxInput, maxResults int, logger *zap.Logger) *AIExtractor {
	if model == nil {
		return nil
	}
	return &AIExtractor{
		model:      model,
		maxInput:   maxInput,
		maxResults: maxResults,
		policy:     bluemonday.StrictPolicy(),
		logger:     logger,
	}
}

func (e *AIExtractor) Name() string {
	return "ai"
}

func (e *AIExtractor) Extract(ctx context.Context, page Page, src domain.SourceConfig) []domain.ScrapedOpportunity {
	if e == nil {
		return nil
	}
	text := PreprocessForModel(page.HTML, page.URL, e.maxInput)
	if runeLen(text) < MinFallbackDescriptionLength {
		return nil
	}

	prompt := fmt.Sprintf("Source: %s\nURL: %s\n\nPage content:\n%s", src.Name, page.URL, text)
	reply, err := e.model.Complete(ctx, extractionSystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("Model extraction failed, falling back",
			zap.String("source", src.ID),
			zap.Error(err),
		)
		return nil
	}

	items, err := parseModelListings(reply)
	if err != nil {
		e.logger.Warn("Model returned unusable output",
			zap.String("source", src.ID),
			zap.Int("reply_length", len(reply)),
			zap.Error(err),
		)
		return nil
	}

	var results []domain.ScrapedOpportunity
	for _, item := range items {
		if e.maxResults > 0 && len(results) >= e.maxResults {
			break
		}
		opp := domain.ScrapedOpportunity{
			Title:        e.plain(item.Title),
			Description:  e.plain(item.Description),
			Deadline:     e.plain(item.Deadline),
			Location:     e.plain(item.Location),
			Organization: e.plain(item.Organization),
			SourceURL:    page.URL,
		}
		if !validListing(opp.Title, opp.Description, MinFallbackDescriptionLength) {
			continue
		}
		if opp.Organization == "" {
			opp.Organization = src.OrganizationName()
		}
		if href := strings.TrimSpace(item.ApplicationURL); usableHref(href) {
			opp.ApplicationURL = src.Resolve(href)
		}
		results = append(results, opp)
	}
	return results
}

// plain strips any markup the model echoed back
func (e *AIExtractor) plain(s string) string {
	return CleanText(html.UnescapeString(e.policy.Sanitize(s)))
}

type modelListing struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Deadline       string `json:"deadline"`
	Location       string `json:"location"`
	ApplicationURL string `json:"application_url"`
	Organization   string `json:"organization"`
}

// parseModelListings accepts a JSON array, optionally wrapped in a
// markdown code fence or surrounded by stray prose.
func parseModelListings(reply string) ([]modelListing, error) {
	body := stripCodeFence(reply)

	start := strings.Index(body, "[")
	end := strings.LastIndex(body, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	items := make([]modelListing, 0, len(raw))
	for _, r := range raw {
		var item modelListing
		if err := json.Unmarshal(r, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
