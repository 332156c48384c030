package audits

import (
	"math"
	"sort"
	"strings"
)

// FrameworkVersion is stamped into every result's metadata.
const FrameworkVersion = "1.0.0"

// SeverityLevel enum
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "critical"
	SeverityHigh     SeverityLevel = "high"
	SeverityMedium   SeverityLevel = "medium"
	SeverityLow      SeverityLevel = "low"
)

var severityAliases = map[string]SeverityLevel{
	"critical": SeverityCritical,
	"critica":  SeverityCritical,
	"critico":  SeverityCritical,
	"high":     SeverityHigh,
	"alta":     SeverityHigh,
	"alto":     SeverityHigh,
	"medium":   SeverityMedium,
	"media":    SeverityMedium,
	"medio":    SeverityMedium,
	"moderate": SeverityMedium,
	"low":      SeverityLow,
	"baixa":    SeverityLow,
	"baixo":    SeverityLow,
}

// ParseSeverity normalizes case, accents and Portuguese level names.
func ParseSeverity(s string) (SeverityLevel, bool) {
	l, ok := severityAliases[Fold(s)]
	return l, ok
}

type Coordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type VisualReference struct {
	Element  string `json:"element"`
	Position string `json:"position"`
	Context  string `json:"context"`
}

// Location pointers are nil when the model omitted the object.
type Location struct {
	Coordinates     *Coordinates     `json:"coordinates"`
	VisualReference *VisualReference `json:"visualReference"`
}

type Severity struct {
	Level       SeverityLevel `json:"level"`
	Description string        `json:"description"`
	Rationale   string        `json:"rationale"`
}

// Violation is one heuristic breach reported for an image.
type Violation struct {
	Heuristic      string    `json:"heuristic"`
	Location       *Location `json:"location"`
	Severity       Severity  `json:"severity"`
	Description    string    `json:"description"`
	Impact         string    `json:"impact"`
	Recommendation string    `json:"recommendation"`
}

type HeuristicScore struct {
	Score       float64 `json:"score"`
	Descriptor  string  `json:"descriptor"`
	Description string  `json:"description"`
}

type Scores struct {
	Overall     HeuristicScore            `json:"overall"`
	ByHeuristic map[string]HeuristicScore `json:"byHeuristic"`
}

type ResultContext struct {
	ProductType string `json:"productType"`
	Device      string `json:"device"`
	Interaction string `json:"interaction"`
	Flow        string `json:"flow"`
}

type Metadata struct {
	Timestamp        string        `json:"timestamp"`
	FrameworkVersion string        `json:"frameworkVersion"`
	AnalysisContext  ResultContext `json:"analysisContext"`
}

type ImageAnalysis struct {
	Sequence   int         `json:"sequence"`
	Role       Role        `json:"type"`
	Violations []Violation `json:"violations"`
}

type Analysis struct {
	Images []ImageAnalysis `json:"images"`
}

// AnalysisResult is the full payload attached to a completed record.
type AnalysisResult struct {
	Metadata Metadata `json:"metadata"`
	Scores   Scores   `json:"scores"`
	Analysis Analysis `json:"analysis"`
}

// NewResultContext renders a context the way result metadata carries it.
func NewResultContext(c AnalysisContext) ResultContext {
	return ResultContext{
		ProductType: string(c.ProductType),
		Device:      string(c.Device),
		Interaction: c.InteractionType,
		Flow:        c.FlowType,
	}
}

// Normalize checks the shape of a parsed model result and canonicalizes it in
// place: severity levels are lower-cased slugs, heuristic names are resolved
// to the canonical list when possible. Scores are mandatory.
func (r *AnalysisResult) Normalize() error {
	if r.Analysis.Images == nil {
		return NewValidationError(CodeMissingField, "analysis.images", "array is missing")
	}
	if err := normalizeScore("scores.overall", &r.Scores.Overall, 100); err != nil {
		return err
	}
	if len(r.Scores.ByHeuristic) == 0 {
		return NewValidationError(CodeMissingField, "scores.byHeuristic", "at least one heuristic score is required")
	}
	by := make(map[string]HeuristicScore, len(r.Scores.ByHeuristic))
	for name, s := range r.Scores.ByHeuristic {
		if strings.TrimSpace(name) == "" {
			return NewValidationError(CodeMissingField, "scores.byHeuristic", "blank heuristic name")
		}
		canon, _ := CanonicalHeuristic(name)
		if err := normalizeScore("scores.byHeuristic."+canon, &s, 10); err != nil {
			return err
		}
		by[canon] = s
	}
	r.Scores.ByHeuristic = by

	for i := range r.Analysis.Images {
		img := &r.Analysis.Images[i]
		if img.Sequence < 0 {
			return NewValidationError(CodeInvalidSequence, "analysis.images.sequence", "negative sequence %d", img.Sequence)
		}
		if img.Role != "" {
			role, ok := ParseRole(string(img.Role))
			if !ok {
				return NewValidationError(CodeUnknownEnum, "analysis.images.type", "unknown type %q", img.Role)
			}
			img.Role = role
		}
		if img.Violations == nil {
			img.Violations = []Violation{}
		}
		for j := range img.Violations {
			if err := img.Violations[j].normalize(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Violation) normalize() error {
	if strings.TrimSpace(v.Heuristic) == "" {
		return NewValidationError(CodeMissingField, "violations.heuristic", "is required")
	}
	v.Heuristic, _ = CanonicalHeuristic(v.Heuristic)
	switch {
	case v.Location == nil:
		return NewValidationError(CodeMissingField, "violations.location", "is required")
	case v.Location.Coordinates == nil:
		return NewValidationError(CodeMissingField, "violations.location.coordinates", "is required")
	case v.Location.VisualReference == nil:
		return NewValidationError(CodeMissingField, "violations.location.visualReference", "is required")
	}
	level, ok := ParseSeverity(string(v.Severity.Level))
	if !ok {
		return NewValidationError(CodeUnknownEnum, "violations.severity.level", "unknown level %q", v.Severity.Level)
	}
	v.Severity.Level = level
	for _, f := range []struct{ name, val string }{
		{"violations.description", v.Description},
		{"violations.impact", v.Impact},
		{"violations.recommendation", v.Recommendation},
	} {
		if strings.TrimSpace(f.val) == "" {
			return NewValidationError(CodeMissingField, f.name, "is required")
		}
	}
	return nil
}

func normalizeScore(field string, s *HeuristicScore, max float64) error {
	if math.IsNaN(s.Score) || s.Score < 0 || s.Score > max {
		return NewValidationError(CodeUnknownEnum, field, "score %v outside [0,%v]", s.Score, max)
	}
	if strings.TrimSpace(s.Descriptor) == "" {
		return NewValidationError(CodeMissingField, field+".descriptor", "is required")
	}
	return nil
}

// Align rebuilds the image list so there is exactly one entry per submitted
// screenshot, in ascending sequence. Model images are matched by sequence when
// every one of them names a submitted screenshot; otherwise, if the counts
// agree, by position. Anything else is rejected so that no violation ends up
// on the wrong screen or gets dropped.
func (r *AnalysisResult) Align(shots []Screenshot) error {
	ordered := SortBySequence(shots)

	submitted := make(map[int]bool, len(ordered))
	for _, s := range ordered {
		submitted[s.Sequence] = true
	}
	stray := -1
	bySeq := make(map[int][]Violation, len(r.Analysis.Images))
	for _, img := range r.Analysis.Images {
		if !submitted[img.Sequence] && stray < 0 {
			stray = img.Sequence
		}
		bySeq[img.Sequence] = append(bySeq[img.Sequence], img.Violations...)
	}

	model := append([]ImageAnalysis(nil), r.Analysis.Images...)
	sort.SliceStable(model, func(i, j int) bool { return model[i].Sequence < model[j].Sequence })
	positional := stray >= 0
	if positional && len(model) != len(ordered) {
		return NewValidationError(CodeInvalidSequence, "analysis.images.sequence",
			"image sequence %d matches no submitted screenshot (%d images for %d screenshots)", stray, len(model), len(ordered))
	}

	images := make([]ImageAnalysis, 0, len(ordered))
	for i, s := range ordered {
		var vs []Violation
		if positional {
			vs = model[i].Violations
		} else {
			vs = bySeq[s.Sequence]
		}
		if vs == nil {
			vs = []Violation{}
		}
		images = append(images, ImageAnalysis{Sequence: s.Sequence, Role: s.Role, Violations: vs})
	}
	r.Analysis.Images = images
	return nil
}

// CountSeverities tallies every violation across all images.
func (r *AnalysisResult) CountSeverities() SeverityCounts {
	var c SeverityCounts
	for _, img := range r.Analysis.Images {
		for _, v := range img.Violations {
			c.Add(v.Severity.Level)
		}
	}
	return c
}
