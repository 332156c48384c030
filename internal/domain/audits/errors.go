package audits

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned for unknown analyses and for analyses owned by someone else.
	ErrNotFound = eris.New("analysis not found")
	// ErrForbidden means the authenticated user does not match the submitted userId.
	ErrForbidden = eris.New("user mismatch")
	// ErrInvalidTransition means a guarded status update matched no row.
	ErrInvalidTransition = eris.New("invalid status transition")
	// ErrEmptyPayload means a download or its encoding produced zero bytes.
	ErrEmptyPayload = eris.New("empty payload")
)

// ValidationCode classifies bad input.
type ValidationCode string

const (
	CodeMissingField    ValidationCode = "missing_field"
	CodeUnknownEnum     ValidationCode = "unknown_enum"
	CodeTooLarge        ValidationCode = "too_large"
	CodeUnsupportedType ValidationCode = "unsupported_type"
	CodeMissingRole     ValidationCode = "missing_role"
	CodeTooMany         ValidationCode = "too_many"
	CodeInvalidSequence ValidationCode = "invalid_sequence"
	CodeInvalidFormat   ValidationCode = "invalid_format"
	CodeTooLong         ValidationCode = "too_long"
)

// ValidationError is bad or missing input. Never retried.
type ValidationError struct {
	Code    ValidationCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(code ValidationCode, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError, optionally of one of codes.
func IsValidation(err error, codes ...ValidationCode) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if ve.Code == c {
			return true
		}
	}
	return false
}

// StorageError wraps an object store failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FetchError is what fetch-and-encode surfaces once its retries are spent.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AnalysisReason classifies model call failures.
type AnalysisReason string

const (
	ReasonTransport       AnalysisReason = "transport"
	ReasonEmptyResponse   AnalysisReason = "empty_response"
	ReasonMalformedResult AnalysisReason = "malformed_result"
)

// AnalysisError is a failed or unusable model call.
type AnalysisError struct {
	Reason AnalysisReason
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis %s", e.Reason)
	}
	return fmt.Sprintf("analysis %s: %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsAnalysis reports whether err is an AnalysisError with the given reason.
func IsAnalysis(err error, reason AnalysisReason) bool {
	var ae *AnalysisError
	return errors.As(err, &ae) && ae.Reason == reason
}

// PersistenceError wraps repository failures.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
