package depth

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedMediaType = errors.New("content type is not an image")
	ErrInvalidImage         = errors.New("invalid image")
	ErrInvalidParameter     = errors.New("invalid parameter")
)

// Pipeline stages, reported in PipelineError.
const (
	StageValidate = "validate"
	StageDecode   = "decode"
	StageEstimate = "estimate"
	StageSample   = "sample"
	StageScore    = "score"
)

// PipelineError wraps any failure of a pipeline run with the stage it
// happened in. The cause stays reachable through errors.Is / errors.As.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("depth pipeline: %s failed", e.Stage)
	}
	return fmt.Sprintf("depth pipeline: %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapStage(stage string, err error) error {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Stage: stage, Err: err}
}
