// Package category assigns catalog categories to scraped opportunities.
package category

import (
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

// sourceRule is a hard-coded mapping for a source whose listings are
// known to belong to one category.
type sourceRule func(text string) string

var sourceRules = map[string]sourceRule{
	"un-careers": func(text string) string {
		if strings.Contains(text, "internship") || strings.Contains(text, "intern ") {
			return domain.CategoryInternships
		}
		return domain.CategoryJobs
	},
	"world-bank": func(string) string {
		return domain.CategoryFellowships
	},
}

// genericRules are checked in order; the first keyword found wins
var genericRules = []struct {
	keywords []string
	slug     string
}{
	{[]string{"scholarship", "bursary", "tuition"}, domain.CategoryScholarships},
	{[]string{"fellowship", "research"}, domain.CategoryFellowships},
	{[]string{"internship", "intern ", "trainee"}, domain.CategoryInternships},
}

// Mapper resolves category slugs against the catalog
type Mapper struct {
	bySlug      map[string]uuid.UUID
	order       []domain.Category
	defaultSlug string
}

// NewMapper indexes categories by slug and lower-cased name.
// defaultSlug is used when no rule matches.
func NewMapper(categories []domain.Category, defaultSlug string) *Mapper {
	m := &Mapper{
		bySlug:      make(map[string]uuid.UUID, len(categories)*2),
		order:       categories,
		defaultSlug: strings.ToLower(defaultSlug),
	}
	for _, c := range categories {
		if name := strings.ToLower(strings.TrimSpace(c.Name)); name != "" {
			m.bySlug[name] = c.ID
		}
	}
	for _, c := range categories {
		m.bySlug[strings.ToLower(c.Slug)] = c.ID
	}
	return m
}

// Len returns the number of catalog categories
func (m *Mapper) Len() int {
	return len(m.order)
}

// ForSource prepares the mapper for one source's run
func (m *Mapper) ForSource(src domain.SourceConfig) *SourceMapper {
	sm := &SourceMapper{mapper: m, sourceID: src.ID, defaultSlug: strings.ToLower(src.CategoryMapping.Default)}

	for kw, slug := range src.CategoryMapping.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			sm.keywords = append(sm.keywords, kw)
			sm.slugs = append(sm.slugs, strings.ToLower(slug))
		}
	}
	if len(sm.keywords) > 0 {
		sm.matcher = ahocorasick.NewStringMatcher(sm.keywords)
	}
	return sm
}

// Categorize is a shortcut for ForSource(src).Categorize(opp)
func (m *Mapper) Categorize(opp domain.ScrapedOpportunity, src domain.SourceConfig) (uuid.UUID, bool) {
	return m.ForSource(src).Categorize(opp)
}

func (m *Mapper) lookup(slug string) (uuid.UUID, bool) {
	if slug == "" {
		return uuid.Nil, false
	}
	id, ok := m.bySlug[slug]
	return id, ok
}

// SourceMapper categorizes opportunities of a single source
type SourceMapper struct {
	mapper      *Mapper
	sourceID    string
	keywords    []string
	slugs       []string
	matcher     *ahocorasick.Matcher
	defaultSlug string
}

// Categorize returns the category for opp. Resolution order: the source's
// hard-coded rule, the source's keyword mapping, generic keywords, the
// source default, the global default, then the first catalog category.
// It reports false only when the catalog is empty.
func (s *SourceMapper) Categorize(opp domain.ScrapedOpportunity) (uuid.UUID, bool) {
	m := s.mapper
	text := strings.ToLower(opp.Title + " " + opp.Description)

	if rule, ok := sourceRules[s.sourceID]; ok {
		if id, ok := m.lookup(rule(text)); ok {
			return id, true
		}
	}

	if id, ok := m.lookup(s.matchKeyword(text)); ok {
		return id, true
	}

	if id, ok := m.lookup(genericSlug(text)); ok {
		return id, true
	}

	if id, ok := m.lookup(s.defaultSlug); ok {
		return id, true
	}
	if id, ok := m.lookup(m.defaultSlug); ok {
		return id, true
	}

	if len(m.order) > 0 {
		return m.order[0].ID, true
	}
	return uuid.Nil, false
}

// matchKeyword picks the longest matching keyword, ties broken
// alphabetically, so the result does not depend on map order.
func (s *SourceMapper) matchKeyword(text string) string {
	if s.matcher == nil {
		return ""
	}
	hits := s.matcher.Match([]byte(text))
	if len(hits) == 0 {
		return ""
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := s.keywords[hits[i]], s.keywords[hits[j]]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return s.slugs[hits[0]]
}

func genericSlug(text string) string {
	for _, rule := range genericRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.slug
			}
		}
	}
	return domain.CategoryJobs
}
