package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/resilience"
)

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func request() ai.Request {
	return ai.Request{
		System:      "system text",
		Instruction: "analyze",
		MaxTokens:   4000,
		Images: []ai.Image{
			{Caption: "Imagem sequence=0 type=start", MIMEType: "image/png", DataURI: "data:image/png;base64,AAAA"},
			{Caption: "Imagem sequence=1 type=end", MIMEType: "image/png", DataURI: "data:image/png;base64,BBBB"},
		},
	}
}

func TestComplete_SendsMultimodalJSONRequest(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(`{"ok":true}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewClient("test-key", ts.URL+"/v1", "")
	out, err := c.Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 4000, body["max_tokens"])
	assert.Equal(t, "json_object", body["response_format"].(map[string]any)["type"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system text", msgs[0].(map[string]any)["content"])
	parts := msgs[1].(map[string]any)["content"].([]any)
	// instruction + (caption + image) per image
	require.Len(t, parts, 5)
	img := parts[2].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", img["image_url"].(map[string]any)["url"])
	assert.Equal(t, "auto", img["image_url"].(map[string]any)["detail"])
}

func TestComplete_ReasoningModelUsesCompletionTokens(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion("{}")) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewClient("k", ts.URL+"/v1", "o4-mini").Complete(context.Background(), request())
	require.NoError(t, err)
	assert.EqualValues(t, 4000, body["max_completion_tokens"])
	assert.NotContains(t, body, "max_tokens")
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		quota     bool
	}{
		{"server error", 503, `{"error":{"message":"overloaded","type":"server_error"}}`, true, false},
		{"rate limited", 429, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, true, false},
		{"quota", 429, `{"error":{"message":"no credit","type":"insufficient_quota","code":"insufficient_quota"}}`, false, true},
		{"bad request", 400, `{"error":{"message":"bad image","type":"invalid_request_error"}}`, false, false},
		{"gateway html", 502, `<html>bad gateway</html>`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer ts.Close()

			_, err := NewClient("k", ts.URL+"/v1", "").Complete(context.Background(), request())
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.OnlyMarked(err))
			assert.Equal(t, tt.quota, errors.Is(err, ai.ErrQuotaExceeded))
		})
	}
}

func TestComplete_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := completion("")
		resp["choices"] = []any{}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer ts.Close()

	out, err := NewClient("k", ts.URL+"/v1", "").Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, out)
}

