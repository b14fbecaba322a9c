// internal/adapter/oracle/anthropic.go

package oracle

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config holds the settings for the Anthropic-backed oracle
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	System    string
}

// AnthropicOracle completes prompts with the Anthropic Messages API.
type AnthropicOracle struct {
	client    sdk.Client
	model     string
	maxTokens int64
	system    string
	logger    *zap.Logger
}

// NewAnthropicOracle creates an oracle client. SDK retries are disabled; a
// failed call falls back immediately in the risk layer.
func NewAnthropicOracle(cfg Config, logger *zap.Logger) *AnthropicOracle {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnthropicOracle{
		client:    sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		system:    cfg.System,
		logger:    logger,
	}
}

// Complete sends prompt as a single user message and returns the text of the
// reply.
func (o *AnthropicOracle) Complete(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(o.model),
		MaxTokens: o.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if o.system != "" {
		params.System = []sdk.TextBlockParam{{Text: o.system}}
	}

	msg, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "oracle: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	o.logger.Debug("oracle completion",
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	if b.Len() == 0 {
		return "", eris.New("oracle: reply contained no text")
	}
	return b.String(), nil
}
