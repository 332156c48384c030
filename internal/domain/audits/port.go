package audits

import (
	"context"
	"time"
)

// Repository port (persistence of analysis records)
type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id ID) (*Record, error)
	// Transition moves a record to next only if its current status is one of
	// AllowedFrom(next); otherwise ErrInvalidTransition. Result and completedAt
	// are written in the same statement when given.
	Transition(ctx context.Context, id ID, next Status, result *AnalysisResult, at time.Time) error
	// Paginate filters by a case-insensitive substring of the project name
	// when query is non-empty.
	Paginate(ctx context.Context, userID, query string, page, pageSize int) ([]*Record, int64, error)
	Since(ctx context.Context, userID string, since time.Time) ([]*Record, error)
}

// ObjectStore port (screenshot binaries)
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	PublicURL(key string) string
	KeyFromURL(url string) (string, error)
}

// Prompt is the instruction set sent with the images.
type Prompt struct {
	System      string
	Instruction string
	Heuristics  []string
}

// Composer builds a prompt from a validated context.
type Composer interface {
	Compose(c AnalysisContext) (Prompt, error)
	ImageCaption(sequence int, role Role) string
}

// Ingestor downloads and encodes every screenshot of a record. Output order
// matches input order; onDone receives the running count after each image.
type Ingestor interface {
	FetchAll(ctx context.Context, shots []Screenshot, onDone func(done, total int)) ([]EncodedImage, error)
}

// Analyzer calls the vision model and returns a normalized result.
type Analyzer interface {
	Invoke(ctx context.Context, p Prompt, images []EncodedImage) (*AnalysisResult, error)
}
