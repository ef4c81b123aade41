// Package llm wraps the hosted language models used for fallback
// extraction behind a single one-shot completion call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/config"
)

// Backend names accepted in llm.default_backend
const (
	BackendClaude = "claude"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

// ErrEmptyResponse is returned when the model answered without any text
var ErrEmptyResponse = errors.New("model returned no text")

// Client is a one-shot completion with a system instruction
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Backend() string
}

// New builds the configured backend. It returns a nil Client and no error
// when the backend is "none" or its API key is missing, in which case
// extraction runs without the model tier.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.DefaultBackend))

	switch backend {
	case BackendNone, "":
		logger.Info("Language model disabled")
		return nil, nil

	case BackendClaude:
		if cfg.Claude.APIKey == "" {
			logger.Warn("ANTHROPIC_API_KEY not set, model extraction disabled")
			return nil, nil
		}
		logger.Info("Using Claude for fallback extraction", zap.String("model", cfg.Claude.Model))
		return NewClaude(cfg.Claude, cfg.Timeout), nil

	case BackendGemini:
		if cfg.Gemini.APIKey == "" {
			logger.Warn("GEMINI_API_KEY not set, model extraction disabled")
			return nil, nil
		}
		client, err := NewGemini(ctx, cfg.Gemini, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Gemini for fallback extraction", zap.String("model", cfg.Gemini.Model))
		return client, nil

	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.DefaultBackend)
	}
}
