package model

import (
	"errors"
	"fmt"
)

type FailureKind string

const (
	FailureValidation     FailureKind = "ValidationError"
	FailureBuild          FailureKind = "BuildFailed"
	FailurePush           FailureKind = "PushFailed"
	FailureRollout        FailureKind = "RolloutError"
	FailureRolloutTimeout FailureKind = "RolloutTimeout"
	FailurePackaging      FailureKind = "PackagingError"
	FailureDeployAPI      FailureKind = "DeployAPIError"
	FailureCancelled      FailureKind = "Cancelled"
)

// StageError is the failure of one pipeline stage. Stderr and ExitCode hold
// captured tool output when the stage wrapped an external process or API call.
type StageError struct {
	Kind     FailureKind
	Stderr   string
	ExitCode int
	Err      error
}

func (e *StageError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%v: %v: %v", e.Kind, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(kind FailureKind, err error) *StageError {
	return &StageError{Kind: kind, Err: err}
}

func NewStageErrorf(kind FailureKind, format string, args ...interface{}) *StageError {
	return &StageError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from an error chain, empty when the error
// did not originate in a pipeline stage.
func KindOf(err error) FailureKind {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	return ""
}
