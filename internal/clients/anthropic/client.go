// Package anthropic provides a vision-capable client for the Anthropic
// API. It exists solely as the second model in the OCR Pipeline's
// line-count consensus pass: two independent models count rows per
// page, and the higher count wins.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/interfaces"
)

const DefaultModel = anthropic.ModelClaude3_5SonnetLatest

// Client implements interfaces.VisionClient against the Anthropic API.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *common.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithModel sets the model to use.
func WithModel(model anthropic.Model) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new Anthropic client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		maxTokens: 4096,
		logger:    common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateContent sends a text-only prompt.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate content: %w", err)
	}
	return textFromMessage(msg), nil
}

// GenerateWithImage sends a prompt plus one inline PNG image, used for
// the consensus line-count call.
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, imagePNG []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imagePNG)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", encoded),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate with image: %w", err)
	}
	return textFromMessage(msg), nil
}

func textFromMessage(msg *anthropic.Message) string {
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

var _ interfaces.VisionClient = (*Client)(nil)
