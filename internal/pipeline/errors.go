package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStageRequiredMissing marks a required stage output that is absent or
	// empty. It always fails the run.
	ErrStageRequiredMissing = errors.New("pipeline: required stage output missing")
	// ErrItemFailed marks a single deep-dive item failure. It never fails the
	// run.
	ErrItemFailed = errors.New("pipeline: batch item failed")
)

// ErrorKind classifies a StageError.
type ErrorKind string

const (
	KindRequiredMissing ErrorKind = "required-missing"
	KindInvalidRun      ErrorKind = "invalid-run"
)

// StageError is the fatal error a failed run returns.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func requiredMissing(stage Stage, reason string, cause error) *StageError {
	var err error
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStageRequiredMissing, reason, cause)
	} else {
		err = fmt.Errorf("%w: %s", ErrStageRequiredMissing, reason)
	}
	return &StageError{Stage: stage, Kind: KindRequiredMissing, Err: err}
}

// ItemError records one failed deep-dive vendor.
type ItemError struct {
	Index  int
	Vendor string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("pipeline: deep dive of %q (item %d) failed: %v", e.Vendor, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Is matches ErrItemFailed.
func (e *ItemError) Is(target error) bool {
	return target == ErrItemFailed
}
