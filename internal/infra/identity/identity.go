package identity

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uxnareal/audit-api/internal/resilience"
)

// ErrInvalidToken means the token is unknown, expired or revoked.
var ErrInvalidToken = eris.New("invalid token")

// Static verifies tokens against a fixed token -> user table.
type Static struct {
	tokens map[string]string
}

func NewStatic(tokens map[string]string) *Static {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &Static{tokens: cp}
}

func (s *Static) Verify(_ context.Context, token string) (string, error) {
	// constant-time comparison to prevent timing attacks
	var user string
	for t, u := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			user = u
		}
	}
	if user == "" {
		return "", ErrInvalidToken
	}
	return user, nil
}

// Remote asks a hosted identity server who owns the token
// (GET <base>/auth/v1/user).
type Remote struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewRemote(baseURL, apiKey string) *Remote {
	return &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type remoteUser struct {
	ID string `json:"id"`
}

func (r *Remote) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", eris.Wrap(err, "identity: build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.APIKey != "" {
		req.Header.Set("apikey", r.APIKey)
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "identity: request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("identity: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var u remoteUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return "", eris.Wrap(err, "identity: decode user")
	}
	if u.ID == "" {
		return "", ErrInvalidToken
	}
	return u.ID, nil
}

// Verifier is anything that can resolve a token.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Chain tries each verifier in order; the first success wins.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (string, error) {
	var last error = ErrInvalidToken
	for _, v := range c {
		user, err := v.Verify(ctx, token)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrInvalidToken) {
			zap.L().Warn("token verifier failed", zap.Error(err))
		}
		last = err
	}
	return "", last
}
