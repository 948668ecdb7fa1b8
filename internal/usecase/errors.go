package usecase

import (
	"errors"
	"fmt"

	"NewsDigest/internal/domain"
)

// Hard failures surfaced to callers. Every other problem degrades into a partial digest.
var (
	ErrValidation    = errors.New("invalid query")
	ErrUpstreamFetch = errors.New("news source exhausted")
)

// WorkflowError reports the state a run failed in together with its trace.
// errors.Is matches both the kind (ErrValidation, ErrUpstreamFetch) and the cause.
type WorkflowError struct {
	State string
	Kind  error
	Err   error
	Trace []domain.TraceStep
}

func (e *WorkflowError) Error() string {
	if e.Kind == nil {
		return fmt.Sprintf("workflow %s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("workflow %s: %v: %v", e.State, e.Kind, e.Err)
}

func (e *WorkflowError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func validationError(format string, args ...any) error {
	return &WorkflowError{Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}
