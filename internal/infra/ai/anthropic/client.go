package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/resilience"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4000
)

// Client sends vision requests through the Messages API. SDK retries are
// disabled; the analysis invoker owns the retry policy.
type Client struct {
	client sdk.Client
	Model  string
}

func NewClient(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{client: sdk.NewClient(opts...), Model: model}
}

func (c *Client) Name() string { return "anthropic" }

// Complete returns the concatenated text blocks of the reply.
func (c *Client) Complete(ctx context.Context, in ai.Request) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(in.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	blocks := make([]sdk.ContentBlockParamUnion, 0, 1+2*len(in.Images))
	for _, img := range in.Images {
		if img.Caption != "" {
			blocks = append(blocks, sdk.NewTextBlock(img.Caption))
		}
		blocks = append(blocks, sdk.NewImageBlockBase64(img.MIMEType, img.Base64))
	}
	// JSON-only output is requested in the prompt; the Messages API has no response_format.
	blocks = append(blocks, sdk.NewTextBlock(in.Instruction+"\n\nResponda apenas com o objeto JSON."))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if in.System != "" {
		params.System = []sdk.TextBlockParam{{Text: in.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return stripFences(b.String()), nil
}

// stripFences removes a ```json ... ``` wrapper if the model added one.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimPrefix(t, "json")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		wrapped := eris.Wrap(err, "anthropic: create message")
		// 529 is Anthropic's overloaded status
		if resilience.IsTransientHTTPStatus(apiErr.StatusCode) || apiErr.StatusCode == 529 {
			return resilience.NewTransientError(wrapped, apiErr.StatusCode)
		}
		return wrapped
	}
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(eris.Wrap(err, "anthropic: transport"), 0)
	}
	return eris.Wrap(err, "anthropic: create message")
}
