package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/domain/audits"
	"github.com/uxnareal/audit-api/internal/resilience"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 3
	defaultMaxTokens   = 4000
)

// Options tune the remote call. Zero values take the defaults above.
type Options struct {
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
	Backoff     resilience.Backoff
	Sleep       resilience.Sleeper
}

// Service is the analysis invoker: one model request per analysis, retried
// only for transport failures, parsed into a normalized result.
type Service struct {
	client ai.Client
	opts   Options
}

func NewService(client ai.Client, opts Options) *Service {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = resilience.Exponential(time.Second, 10*time.Second, 2, 0.25)
	}
	return &Service{client: client, opts: opts}
}

// Invoke sends the prompt and images and parses the reply.
func (s *Service) Invoke(ctx context.Context, p audits.Prompt, images []audits.EncodedImage) (*audits.AnalysisResult, error) {
	req := ai.Request{
		System:      p.System,
		Instruction: p.Instruction,
		MaxTokens:   s.opts.MaxTokens,
		Images:      make([]ai.Image, len(images)),
	}
	for i, img := range images {
		req.Images[i] = ai.Image{
			Sequence: img.Sequence,
			Role:     string(img.Role),
			Caption:  img.Caption,
			MIMEType: img.MIMEType,
			Base64:   img.Base64,
			DataURI:  img.DataURI,
		}
	}

	started := time.Now()
	raw, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: s.opts.MaxAttempts,
		Backoff:     s.opts.Backoff,
		ShouldRetry: resilience.OnlyMarked,
		OnRetry:     resilience.RetryLogger(s.client.Name(), "complete"),
		Sleep:       s.opts.Sleep,
	}, func(ctx context.Context) (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		return s.client.Complete(attemptCtx, req)
	})
	if err != nil {
		return nil, &audits.AnalysisError{Reason: audits.ReasonTransport, Err: err}
	}
	zap.L().Debug("model call finished",
		zap.String("provider", s.client.Name()),
		zap.Int("images", len(images)),
		zap.Int("response_bytes", len(raw)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return Parse(raw)
}

// Parse decodes and normalizes a raw model reply.
func Parse(raw string) (*audits.AnalysisResult, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return nil, &audits.AnalysisError{Reason: audits.ReasonEmptyResponse, Err: eris.New("model returned no content")}
	}

	var res audits.AnalysisResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, &audits.AnalysisError{Reason: audits.ReasonMalformedResult, Err: eris.Wrap(err, "decode model json")}
	}
	if err := res.Normalize(); err != nil {
		return nil, &audits.AnalysisError{Reason: audits.ReasonMalformedResult, Err: err}
	}
	return &res, nil
}
