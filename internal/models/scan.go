package models

import (
	"encoding/json"
	"strings"
)

// SelectedImage is the photo chosen by the user, held until a run completes.
type SelectedImage struct {
	Data        []byte `json:"-"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
}

// IsImage reports whether the media type tag is an image type.
func (s *SelectedImage) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s.ContentType)), "image/")
}

// UploadResult is what the storage backend returns for a stored eye image.
type UploadResult struct {
	ImageURL string          `json:"imageUrl"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

type StressLabel string

const (
	LabelStress    StressLabel = "stress"
	LabelNotStress StressLabel = "not_stress"
)

type PupilDetection struct {
	Detected   bool    `json:"detected"`
	Radius     float64 `json:"radius"`
	Confidence float64 `json:"confidence"`
}

type ModelInterpretation struct {
	PupilWeightPercentage float64 `json:"pupil_weight_percentage"`
	IrisWeightPercentage  float64 `json:"iris_weight_percentage"`
	DominantIndicator     string  `json:"dominant_indicator,omitempty"`
}

// ClassificationResult is the canonical verdict shown to the user.
type ClassificationResult struct {
	Label            StressLabel          `json:"prediction"`
	Probability      float64              `json:"probability"`
	StressLevel      string               `json:"stress_level,omitempty"`
	StressPercentage float64              `json:"stress_percentage"`
	Confidence       string               `json:"confidence,omitempty"`
	PupilDetection   *PupilDetection      `json:"pupil_detection,omitempty"`
	Interpretation   *ModelInterpretation `json:"model_interpretation,omitempty"`
	Shape            string               `json:"shape"` // flat or nested
	Detail           json.RawMessage      `json:"full_details,omitempty"`
}

// IsStress reports whether the verdict is the stress label.
func (c *ClassificationResult) IsStress() bool {
	return c.Label == LabelStress
}

// AnalysisSubmission is the write request for the backend-owned analysis record.
type AnalysisSubmission struct {
	Username        string  `json:"username"`
	HasStress       bool    `json:"hasStress"`
	ImageURL        string  `json:"imageUrl"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
}
