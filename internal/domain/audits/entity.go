package audits

import "time"

// ID identifies one analysis record.
type ID string

// Status enum
type Status string

const (
	StatusProcessing Status = "processing"
	StatusAnalyzing  Status = "analyzing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo encodes processing -> analyzing -> completed|failed,
// plus processing -> failed when ingestion breaks.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusProcessing:
		return next == StatusAnalyzing || next == StatusFailed
	case StatusAnalyzing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

var statuses = []Status{StatusProcessing, StatusAnalyzing, StatusCompleted, StatusFailed}

// AllowedFrom lists the states a record may be in right before entering next.
// Storage uses it as the guard of a status update.
func AllowedFrom(next Status) []Status {
	var from []Status
	for _, s := range statuses {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// Aggregate Root: Record
type Record struct {
	ID          ID              `json:"id"`
	UserID      string          `json:"userId"`
	ProjectName string          `json:"projectName"`
	Context     AnalysisContext `json:"context"`
	Screenshots []Screenshot    `json:"screenshots"`
	Status      Status          `json:"status"`
	Result      *AnalysisResult `json:"result"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt"`
}

// Step is a coarse progress marker of a running pipeline.
type Step string

const (
	StepUpload   Step = "upload"
	StepProcess  Step = "process"
	StepAnalyze  Step = "analyze"
	StepGenerate Step = "generate"
	StepComplete Step = "complete"
	StepFailed   Step = "failed"
)

// Progress is what a poller sees while the pipeline is still running.
type Progress struct {
	Step        Step `json:"step"`
	Percent     int  `json:"percent"`
	ImagesDone  int  `json:"imagesDone"`
	ImagesTotal int  `json:"imagesTotal"`
}

// ProgressFromStatus derives a progress snapshot for records no pipeline is tracking.
func ProgressFromStatus(s Status, images int) Progress {
	p := Progress{ImagesTotal: images}
	switch s {
	case StatusProcessing:
		p.Step, p.Percent = StepProcess, 20
	case StatusAnalyzing:
		p.Step, p.Percent, p.ImagesDone = StepAnalyze, 60, images
	case StatusCompleted:
		p.Step, p.Percent, p.ImagesDone = StepComplete, 100, images
	case StatusFailed:
		p.Step = StepFailed
	}
	return p
}

// StatusView is the record as returned to a polling caller.
type StatusView struct {
	*Record
	Progress Progress `json:"progress"`
}

// Summary aggregates a user's analyses over a time window.
type Summary struct {
	Days       int            `json:"days"`
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"byStatus"`
	Violations SeverityCounts `json:"violations"`
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add counts one violation of the given level.
func (c *SeverityCounts) Add(level SeverityLevel) {
	switch level {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	default:
		return
	}
	c.Total++
}
