package storage

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rotisserie/eris"

	"github.com/uxnareal/audit-api/internal/resilience"
)

// hosted storage serves public objects under this prefix
const hostedPublicPrefix = "/storage/v1/object/public/"

// Keys converts between object keys and public URLs for one bucket.
type Keys struct {
	Bucket  string
	BaseURL string
}

// PublicURL returns BaseURL/bucket/key.
func (k Keys) PublicURL(key string) string {
	base := strings.TrimRight(k.BaseURL, "/")
	return base + "/" + k.Bucket + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL accepts a URL produced by PublicURL, a hosted-storage public URL
// ("/storage/v1/object/public/<bucket>/<key>") or a bare object key.
func (k Keys) KeyFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("storage: empty locator")
	}

	p := raw
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", eris.Wrapf(err, "storage: parse locator %q", raw)
		}
		p = u.Path
		if base, err := url.Parse(k.BaseURL); err == nil && base.Host == u.Host {
			p = strings.TrimPrefix(p, strings.TrimRight(base.Path, "/"))
		}
	}

	p = strings.TrimPrefix(p, hostedPublicPrefix)
	p = strings.TrimLeft(p, "/")
	p = strings.TrimPrefix(p, k.Bucket+"/")
	key := path.Clean("/" + p)[1:]
	if key == "" || key == "." {
		return "", eris.Errorf("storage: no object key in %q", raw)
	}
	return key, nil
}

// classify marks server-side and throttling failures as retryable.
func classify(err error) error {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return err
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(err, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return eris.Wrap(err, "storage: object not found")
	}
	return err
}
