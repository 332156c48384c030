package audits

import (
	"sort"
	"strings"
)

// Role of a screenshot inside the audited flow.
type Role string

const (
	RoleStart     Role = "start"
	RoleIteration Role = "iteration"
	RoleEnd       Role = "end"
)

// MaxIterations caps the optional middle screenshots.
const MaxIterations = 5

// ParseRole accepts the role slug in any case.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStart, RoleIteration, RoleEnd:
		return r, true
	}
	return "", false
}

// Screenshot is one captured screen of the flow.
type Screenshot struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Sequence int    `json:"sequence"`
	Role     Role   `json:"type"`
}

// ValidateScreenshots enforces: at least one start and one end, at most
// MaxIterations iterations, a locator on every item, non-negative sequences.
func ValidateScreenshots(shots []Screenshot) error {
	var starts, ends, iterations int
	seen := make(map[int]bool, len(shots))
	for i, s := range shots {
		if strings.TrimSpace(s.URL) == "" {
			return NewValidationError(CodeMissingField, "screenshots.url", "screenshot %d has no url", i)
		}
		if s.Sequence < 0 {
			return NewValidationError(CodeInvalidSequence, "screenshots.sequence", "screenshot %d has negative sequence %d", i, s.Sequence)
		}
		if seen[s.Sequence] {
			return NewValidationError(CodeInvalidSequence, "screenshots.sequence", "sequence %d used more than once", s.Sequence)
		}
		seen[s.Sequence] = true
		switch s.Role {
		case RoleStart:
			starts++
		case RoleEnd:
			ends++
		case RoleIteration:
			iterations++
		default:
			return NewValidationError(CodeUnknownEnum, "screenshots.type", "screenshot %d has unknown type %q", i, s.Role)
		}
	}
	if starts == 0 {
		return NewValidationError(CodeMissingRole, "screenshots", "a %s screenshot is required", RoleStart)
	}
	if ends == 0 {
		return NewValidationError(CodeMissingRole, "screenshots", "an %s screenshot is required", RoleEnd)
	}
	if iterations > MaxIterations {
		return NewValidationError(CodeTooMany, "screenshots", "at most %d iteration screenshots, got %d", MaxIterations, iterations)
	}
	return nil
}

// SortBySequence returns a copy ordered by ascending sequence. Ties keep submission order.
func SortBySequence(shots []Screenshot) []Screenshot {
	out := make([]Screenshot, len(shots))
	copy(out, shots)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// EncodedImage is a downloaded screenshot ready to embed in a model request.
type EncodedImage struct {
	Sequence int
	Role     Role
	Caption  string
	MIMEType string
	Size     int
	Base64   string
	DataURI  string
}
