package models

import (
	"time"

	"github.com/google/uuid"
)

type RunOutcome string

const (
	RunSucceeded RunOutcome = "succeeded"
	RunFailed    RunOutcome = "failed"
)

// PipelineRun is one journaled pass through upload, analysis and submission.
type PipelineRun struct {
	ID           uuid.UUID   `json:"id"`
	Username     string      `json:"username"`
	Outcome      RunOutcome  `json:"outcome"`
	FailedStage  string      `json:"failed_stage,omitempty"`
	ErrorKind    string      `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Label        StressLabel `json:"label,omitempty"`
	Probability  float64     `json:"probability"`
	ImageURL     string      `json:"image_url,omitempty"`
	Submitted    bool        `json:"submitted"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}
