/*
errors.go - Error taxonomy for the budget engine

PURPOSE:
  Every rejected operation maps to exactly one of five kinds so callers can
  tell "fix your input" apart from "wrong person" or "wrong moment".

ERROR KINDS:
  1. NotFound       - budget, line or center does not exist
  2. Unauthorized   - actor is not the creator, or lacks the role
  3. InvalidState   - transition not legal from the current status
  4. InvalidContent - coverage violation or malformed amounts
  5. Conflict       - edit of a VALIDATED/ARCHIVED budget, lost update,
                      code still taken after every mint attempt

USAGE:
  if errors.Is(err, budget.ErrInvalidContent) {
      var cov *budget.CoverageError
      if errors.As(err, &cov) { ... cov.Violations ... }
  }

SEE ALSO:
  - coverage.go: Builds CoverageError
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package budget

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("not authorized")
	ErrInvalidState   = errors.New("invalid state")
	ErrInvalidContent = errors.New("invalid content")
	ErrConflict       = errors.New("conflict")

	// ErrDuplicateCode is returned by stores when the unique index on the
	// budget code rejects an insert. Create retries it with a fresh count.
	ErrDuplicateCode = errors.New("duplicate budget code")

	// ErrConcurrentModification is returned when the stored version no longer
	// matches the version that was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CoverageError lists every financing category whose expense exceeds its revenue.
type CoverageError struct {
	Violations []Violation
}

func (e *CoverageError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "insufficient coverage: " + strings.Join(parts, "; ")
}

func (e *CoverageError) Unwrap() error { return ErrInvalidContent }

// TransitionError reports an illegal status transition.
type TransitionError struct {
	BudgetID string
	From     Status
	Action   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s budget %s in status %s", e.Action, e.BudgetID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }

// ContentError reports one malformed field.
type ContentError struct {
	Field   string
	Message string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ContentError) Unwrap() error { return ErrInvalidContent }

func invalidField(field, format string, args ...any) error {
	return &ContentError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUnauthorized)
}

func immutable(b *Budget) error {
	return fmt.Errorf("budget %s is %s and can no longer be modified: %w", b.ID, b.Status, ErrConflict)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindInvalidState   ErrorKind = "invalid_state"
	KindInvalidContent ErrorKind = "invalid_content"
	KindConflict       ErrorKind = "conflict"
	KindInternal       ErrorKind = "internal"
)

// KindOf classifies err into the engine taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInvalidContent):
		return KindInvalidContent
	case errors.Is(err, ErrConflict), errors.Is(err, ErrConcurrentModification), errors.Is(err, ErrDuplicateCode):
		return KindConflict
	}
	return KindInternal
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateCode) || errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the caller must correct and resubmit.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k != KindInternal
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
