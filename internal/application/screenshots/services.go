package screenshots

import (
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/uxnareal/audit-api/internal/domain/audits"
	"github.com/uxnareal/audit-api/internal/resilience"
)

const (
	// DefaultMaxBytes is the per-image ceiling, 5 MiB.
	DefaultMaxBytes int64 = 5 << 20

	defaultAttempts    = 3
	defaultBackoff     = time.Second
	defaultConcurrency = 4
)

// extensions of the accepted image types
var allowed = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// File is an image submitted for upload.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// Uploaded describes a stored screenshot.
type Uploaded struct {
	ID       string      `json:"id"`
	Key      string      `json:"key"`
	URL      string      `json:"url"`
	Role     audits.Role `json:"type,omitempty"`
	MIMEType string      `json:"mimeType"`
	Size     int64       `json:"size"`
}

// Service validates, stores and retrieves screenshot binaries.
type Service struct {
	Store audits.ObjectStore

	MaxBytes    int64
	Attempts    int
	Backoff     time.Duration
	Concurrency int

	// Sleep defaults to a real timer; tests record the waits instead.
	Sleep resilience.Sleeper
	NewID func() string
}

func (s *Service) maxBytes() int64 {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return DefaultMaxBytes
}

// Validate checks size and MIME type.
func (s *Service) Validate(f File) error {
	if f.Size > s.maxBytes() {
		return audits.NewValidationError(audits.CodeTooLarge, "file", "%s is %d bytes, limit is %d", f.Name, f.Size, s.maxBytes())
	}
	mt := baseType(f.ContentType)
	if _, ok := allowed[mt]; !ok {
		return audits.NewValidationError(audits.CodeUnsupportedType, "file", "%s has unsupported type %q", f.Name, f.ContentType)
	}
	return nil
}

// Upload validates f and stores it at <userID>/<random>.<ext>. Invalid files are never stored.
func (s *Service) Upload(ctx context.Context, userID string, role audits.Role, f File) (*Uploaded, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, audits.NewValidationError(audits.CodeMissingField, "userId", "is required")
	}
	if f.Size == 0 {
		f.Size = int64(len(f.Data))
	}
	f.ContentType = DetectMIME(f.ContentType, f.Data)
	if err := s.Validate(f); err != nil {
		return nil, err
	}
	if len(f.Data) == 0 {
		return nil, audits.ErrEmptyPayload
	}

	id := s.newID()
	key := userID + "/" + id + "." + allowed[f.ContentType]
	err := resilience.Do(ctx, s.retryConfig("put"), func(ctx context.Context) error {
		if err := s.Store.Put(ctx, key, f.Data, f.ContentType); err != nil {
			return &audits.StorageError{Op: "put", Key: key, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Uploaded{
		ID:       id,
		Key:      key,
		URL:      s.Store.PublicURL(key),
		Role:     role,
		MIMEType: f.ContentType,
		Size:     f.Size,
	}, nil
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// FetchAndEncode downloads the screenshot behind url and turns it into a
// data URI. Storage failures are retried with linear backoff (1x, 2x the
// base); validation failures and empty payloads are not.
func (s *Service) FetchAndEncode(ctx context.Context, url string) (audits.EncodedImage, error) {
	key, err := s.Store.KeyFromURL(url)
	if err != nil {
		return audits.EncodedImage{}, audits.NewValidationError(audits.CodeMissingField, "screenshots.url", "%v", err)
	}

	attempts := 0
	img, err := resilience.DoVal(ctx, s.retryConfig("get"), func(ctx context.Context) (audits.EncodedImage, error) {
		attempts++
		data, contentType, err := s.Store.Get(ctx, key)
		if err != nil {
			return audits.EncodedImage{}, &audits.StorageError{Op: "get", Key: key, Err: err}
		}
		return s.Encode(data, contentType)
	})
	if err != nil {
		if !retryable(err) {
			return audits.EncodedImage{}, err
		}
		return audits.EncodedImage{}, &audits.FetchError{URL: url, Attempts: attempts, Err: err}
	}
	return img, nil
}

// retryConfig retries storage calls with linear backoff (1x, 2x the base).
func (s *Service) retryConfig(op string) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: s.attempts(),
		Backoff:     resilience.Linear(s.backoff()),
		ShouldRetry: retryable,
		OnRetry:     resilience.RetryLogger("storage", op),
		Sleep:       s.Sleep,
	}
}

func retryable(err error) bool {
	return !audits.IsValidation(err) &&
		!errors.Is(err, audits.ErrEmptyPayload) &&
		!errors.Is(err, context.Canceled)
}

// Encode validates downloaded bytes and wraps them as a data URI.
func (s *Service) Encode(data []byte, contentType string) (audits.EncodedImage, error) {
	if len(data) == 0 {
		return audits.EncodedImage{}, audits.ErrEmptyPayload
	}
	mt := DetectMIME(contentType, data)
	if err := s.Validate(File{Name: "download", Size: int64(len(data)), ContentType: mt}); err != nil {
		return audits.EncodedImage{}, err
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	if b64 == "" {
		return audits.EncodedImage{}, audits.ErrEmptyPayload
	}
	return audits.EncodedImage{
		MIMEType: mt,
		Size:     len(data),
		Base64:   b64,
		DataURI:  "data:" + mt + ";base64," + b64,
	}, nil
}

// FetchAll fetches every screenshot concurrently and returns the encodings in
// input order. onDone, if set, is called after each image with the running count.
func (s *Service) FetchAll(ctx context.Context, shots []audits.Screenshot, onDone func(done, total int)) ([]audits.EncodedImage, error) {
	out := make([]audits.EncodedImage, len(shots))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, sh := range shots {
		g.Go(func() error {
			img, err := s.FetchAndEncode(gctx, sh.URL)
			if err != nil {
				return eris.Wrapf(err, "screenshot %d (%s)", sh.Sequence, sh.Role)
			}
			img.Sequence = sh.Sequence
			img.Role = sh.Role
			out[i] = img
			if onDone != nil {
				onDone(int(done.Add(1)), len(shots))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) attempts() int {
	if s.Attempts > 0 {
		return s.Attempts
	}
	return defaultAttempts
}

func (s *Service) backoff() time.Duration {
	if s.Backoff > 0 {
		return s.Backoff
	}
	return defaultBackoff
}

func (s *Service) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}

// DetectMIME prefers whatever content sniffing recognizes, so bytes that are
// clearly not an image keep their real type and fail validation whatever the
// declared type says. Unrecognized bytes fall back to the declared type, then
// to image/jpeg.
func DetectMIME(declared string, data []byte) string {
	declared = baseType(declared)
	if len(data) > 0 {
		if sniffed := baseType(http.DetectContentType(data)); sniffed != "application/octet-stream" {
			return sniffed
		}
	}
	if declared == "" || declared == "application/octet-stream" {
		return "image/jpeg"
	}
	return declared
}

func baseType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}
