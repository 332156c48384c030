package auditerrors

import "context"

// Repository defines persistence for failure entries
type Repository interface {
	Save(ctx context.Context, e *Entry) error
	ListByAnalysis(ctx context.Context, userID, analysisID string, limit int) ([]*Entry, error)
}
