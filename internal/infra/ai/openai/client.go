package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"

	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/resilience"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 4000
)

type Client struct {
	*openai.Client
	Model string
}

// NewClient builds a client; an empty baseURL keeps the public endpoint.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Name() string { return "openai" }

// Complete sends one chat completion with the images inlined as data URIs and
// returns the raw JSON content. One HTTP call, no internal retry.
func (c *Client) Complete(ctx context.Context, in ai.Request) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: in.Instruction}}
	for _, img := range in.Images {
		if img.Caption != "" {
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: img.Caption})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURI,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: in.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// classify maps provider errors: quota exhaustion to ai.ErrQuotaExceeded,
// throttling and 5xx to resilience.TransientError, the rest unchanged.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota" {
			return eris.Wrapf(ai.ErrQuotaExceeded, "openai: %s", apiErr.Message)
		}
		if resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
			return resilience.NewTransientError(eris.Wrap(err, "openai: chat completion"), apiErr.HTTPStatusCode)
		}
		return eris.Wrap(err, "openai: chat completion")
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && resilience.IsTransientHTTPStatus(reqErr.HTTPStatusCode) {
		return resilience.NewTransientError(eris.Wrap(err, "openai: request"), reqErr.HTTPStatusCode)
	}
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(eris.Wrap(err, "openai: transport"), 0)
	}
	return eris.Wrap(err, "openai: chat completion")
}
