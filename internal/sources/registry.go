// Package sources holds the catalog of per-site scraping recipes.
package sources

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

//go:embed sources.yaml
var builtinSources []byte

type sourceFile struct {
	Sources []domain.SourceConfig `yaml:"sources"`
}

// Registry is an ordered, read-only set of SourceConfigs keyed by id
type Registry struct {
	order []string
	byID  map[string]domain.SourceConfig
}

// Load returns the built-in catalog, with entries from overridePath (if
// any) replacing built-ins of the same id and appending new ones.
func Load(overridePath string) (*Registry, error) {
	configs, err := Parse(builtinSources)
	if err != nil {
		return nil, fmt.Errorf("built-in sources: %w", err)
	}

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read sources file %s: %w", overridePath, err)
		}
		extra, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("sources file %s: %w", overridePath, err)
		}
		configs = merge(configs, extra)
	}

	return New(configs...)
}

// Parse decodes a YAML document with a top-level "sources" list
func Parse(data []byte) ([]domain.SourceConfig, error) {
	var f sourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return f.Sources, nil
}

// New validates configs and builds a registry preserving their order
func New(configs ...domain.SourceConfig) (*Registry, error) {
	validate := validator.New()
	r := &Registry{byID: make(map[string]domain.SourceConfig, len(configs))}

	for _, cfg := range configs {
		if err := validate.Struct(cfg); err != nil {
			return nil, fmt.Errorf("source %q: %w", cfg.ID, err)
		}
		if _, dup := r.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("source %q defined twice", cfg.ID)
		}
		r.byID[cfg.ID] = cfg
		r.order = append(r.order, cfg.ID)
	}
	return r, nil
}

// Get looks a source up by id
func (r *Registry) Get(id string) (domain.SourceConfig, bool) {
	cfg, ok := r.byID[id]
	return cfg, ok
}

// All returns every source in declaration order
func (r *Registry) All() []domain.SourceConfig {
	out := make([]domain.SourceConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of sources
func (r *Registry) Len() int {
	return len(r.order)
}

func merge(base, overrides []domain.SourceConfig) []domain.SourceConfig {
	index := make(map[string]int, len(base))
	for i, cfg := range base {
		index[cfg.ID] = i
	}
	for _, cfg := range overrides {
		if i, ok := index[cfg.ID]; ok {
			base[i] = cfg
			continue
		}
		index[cfg.ID] = len(base)
		base = append(base, cfg)
	}
	return base
}
