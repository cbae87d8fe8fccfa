// Package llm provides the text-completion interface the pipeline uses for
// cluster naming, topic research, and script synthesis.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// completionTimeout bounds every completion call.
const completionTimeout = 60 * time.Second

const (
	temperature    = 0.7
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	backoffMult    = 2
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

// Request is one completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
	// WebSearch enables provider-side web grounding for research prompts.
	WebSearch bool
}

// Completer produces a text completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client is the Anthropic-backed Completer.
type Client struct {
	model string
}

// NewClient creates a client for the named model alias ("haiku", "sonnet")
// or a full model ID. The API key comes from the environment.
func NewClient(model string) (*Client, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, fmt.Errorf("credential missing: ANTHROPIC_API_KEY is not set")
	}
	if model == "" {
		model = "haiku"
	}
	return &Client{model: model}, nil
}

func (c *Client) modelID() string {
	if id, ok := claudeModels[c.model]; ok {
		return id
	}
	return c.model
}

// Complete sends the request with exponential backoff on API errors.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	client := anthropic.NewClient()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	temp := req.Temperature
	if temp == 0 {
		temp = temperature
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.modelID()),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temp),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.WebSearch {
		params.Tools = []anthropic.ToolUnionParam{
			{OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(3),
			}},
		}
	}

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		callCtx, cancel := context.WithTimeout(ctx, completionTimeout)
		message, err := client.Messages.New(callCtx, params)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("completion API error (attempt %d/%d): %w", attempt, maxRetries, err)
		} else if text := extractText(message); text == "" {
			lastErr = fmt.Errorf("empty completion (attempt %d/%d)", attempt, maxRetries)
		} else {
			return text, nil
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}
	}
	return "", lastErr
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
