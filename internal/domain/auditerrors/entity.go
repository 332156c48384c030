package auditerrors

import "time"

// Phase names the pipeline stage that failed.
type Phase string

const (
	PhaseIngest  Phase = "ingest"
	PhaseAnalyze Phase = "analyze"
	PhasePersist Phase = "persist"
)

// Entry represents a persisted pipeline failure
type Entry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	AnalysisID  string    `json:"analysisId"`
	Phase       Phase     `json:"phase"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"detailsJson,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"createdAt"`
}
