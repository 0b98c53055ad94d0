package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a failure for propagation and user messaging.
type Kind string

const (
	KindPrecondition    Kind = "precondition"
	KindTransport       Kind = "transport"
	KindBackend         Kind = "backend"
	KindPartialPipeline Kind = "partial_pipeline"
)

// Stage names the step a failure happened in.
type Stage string

const (
	StageIdentity   Stage = "identity"
	StageSelection  Stage = "selection"
	StageUpload     Stage = "upload"
	StageAnalysis   Stage = "analysis"
	StageSubmission Stage = "submission"
)

// PipelineError is the error type returned by the identity client, the backend
// clients and the orchestrator. Under errors.Is a PipelineError matches a
// message-less target whose non-empty Kind and Stage agree with its own, so
// ErrTransport or ErrUpload can be used as targets.
type PipelineError struct {
	Stage   Stage
	Kind    Kind
	Message string // user-facing
	Status  int    // HTTP status when the backend answered
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok || t.Message != "" {
		// sentinels carrying a message only match themselves
		return false
	}
	return (t.Kind == "" || t.Kind == e.Kind) && (t.Stage == "" || t.Stage == e.Stage)
}

var (
	ErrPrecondition = &PipelineError{Kind: KindPrecondition}
	ErrTransport    = &PipelineError{Kind: KindTransport}
	ErrBackend      = &PipelineError{Kind: KindBackend}

	// ErrUpload and ErrAnalysis match any failure of the respective stage.
	ErrUpload   = &PipelineError{Stage: StageUpload}
	ErrAnalysis = &PipelineError{Stage: StageAnalysis}

	ErrNoImage       = &PipelineError{Stage: StageSelection, Kind: KindPrecondition, Message: "Please select an image first"}
	ErrNotSignedIn   = &PipelineError{Stage: StageIdentity, Kind: KindPrecondition, Message: "Please sign in first"}
	ErrRunInProgress = &PipelineError{Kind: KindPrecondition, Message: "An analysis is already in progress"}
	ErrNotAnImage    = &PipelineError{Stage: StageSelection, Kind: KindPrecondition, Message: "Please select a valid image file"}
)

// IsStage reports whether err is a PipelineError raised during stage.
func IsStage(err error, stage Stage) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Stage == stage
}

// PartialPipelineError records a submission failure after the verdict was
// already published. It is diagnostic only and never shown to the user.
type PartialPipelineError struct {
	Username string
	ImageURL string
	Err      error
}

func (e *PartialPipelineError) Error() string {
	return fmt.Sprintf("analysis submission failed for %s: %v", e.Username, e.Err)
}

func (e *PartialPipelineError) Unwrap() error {
	return e.Err
}

// transportError wraps a failure to reach a collaborator.
func transportError(stage Stage, service string, err error) *PipelineError {
	msg := fmt.Sprintf("Could not reach the %s. Please try again.", service)
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("The %s took too long to respond. Please try again.", service)
	}
	return &PipelineError{Stage: stage, Kind: KindTransport, Message: msg, Err: err}
}

// backendError wraps a failure reported by a reachable collaborator.
func backendError(stage Stage, status int, message string) *PipelineError {
	return &PipelineError{
		Stage:   stage,
		Kind:    KindBackend,
		Message: message,
		Status:  status,
		Err:     fmt.Errorf("%s: backend returned status %d: %s", stage, status, message),
	}
}

// isTransport reports whether err came from the transport rather than a response.
func isTransport(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
