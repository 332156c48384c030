package ai

import "context"

// Image is one inline image of a request.
type Image struct {
	Sequence int
	Role     string
	Caption  string
	MIMEType string
	Base64   string
	DataURI  string
}

// Request is a single multimodal completion asking for a JSON object.
type Request struct {
	System      string
	Instruction string
	Images      []Image
	MaxTokens   int
}

// Client is a vision-capable model endpoint. Implementations make exactly one
// remote call per Complete and mark retryable failures with resilience.TransientError.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}
