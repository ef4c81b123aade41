package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/config"
)

const defaultClaudeMaxTokens = 4096

// Claude calls the Anthropic Messages API
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewClaude creates a client for cfg.Model. Each call is bounded by timeout.
func NewClaude(cfg config.ClaudeConfig, timeout time.Duration, opts ...option.RequestOption) *Claude {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)

	return &Claude{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		timeout:   timeout,
	}
}

func (c *Claude) Backend() string {
	return BackendClaude
}

// Complete sends one user message under the given system instruction
func (c *Claude) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(0),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude completion: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return out.String(), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
