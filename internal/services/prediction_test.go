package services

import (
	"errors"
	"testing"

	"github.com/AnshRaj112/eyeglaze/internal/models"
)

func TestThresholdStrictComparison(t *testing.T) {
	th := Threshold(0.5)
	if th.HasStress(0.5) {
		t.Fatal("expected probability equal to the threshold to be not stressed")
	}
	if !th.HasStress(0.5000001) {
		t.Fatal("expected probability above the threshold to be stressed")
	}
	if th.Label(0.3) != models.LabelNotStress || th.Label(0.95) != models.LabelStress {
		t.Fatal("unexpected labels")
	}
}

func TestParsePredictionNested(t *testing.T) {
	raw := `{
		"success": true,
		"prediction": {"stress_probability": 0.81, "stress_level": "High Stress", "stress_percentage": 81.4, "confidence": "High"},
		"pupil_detection": {"detected": true, "radius": 12.5, "confidence": 0.9},
		"model_interpretation": {"pupil_weight_percentage": 60, "iris_weight_percentage": 40, "dominant_indicator": "pupil"}
	}`
	pred, err := ParsePrediction([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pred.Shape != ShapeNested {
		t.Fatalf("expected nested shape, got %s", pred.Shape)
	}

	res := pred.Normalize(0.5)
	if res.Label != models.LabelStress || res.Probability != 0.81 {
		t.Fatalf("unexpected verdict %+v", res)
	}
	if res.StressPercentage != 81.4 || res.StressLevel != "High Stress" || res.Confidence != "High" {
		t.Fatalf("expected display fields to be carried, got %+v", res)
	}
	if res.PupilDetection == nil || !res.PupilDetection.Detected || res.PupilDetection.Radius != 12.5 {
		t.Fatalf("unexpected pupil detection %+v", res.PupilDetection)
	}
	if res.Interpretation == nil || res.Interpretation.DominantIndicator != "pupil" {
		t.Fatalf("unexpected interpretation %+v", res.Interpretation)
	}
	if string(res.Detail) != raw {
		t.Fatal("expected raw payload to be kept as detail")
	}
}

func TestParsePredictionNestedMissingFieldsReadAsZero(t *testing.T) {
	pred, err := ParsePrediction([]byte(`{"prediction":{"stress_probability":0}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res := pred.Normalize(0.5)
	if res.Label != models.LabelNotStress || res.Probability != 0 || res.StressPercentage != 0 {
		t.Fatalf("unexpected verdict %+v", res)
	}
	if res.StressLevel != "" || res.PupilDetection != nil || res.Interpretation != nil {
		t.Fatalf("expected optional fields to stay empty, got %+v", res)
	}
}

func TestParsePredictionFlat(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		prob  float64
		label models.StressLabel
	}{
		{"stress", `{"prediction":"stress","probability":0.9}`, 0.9, models.LabelStress},
		{"not stress", `{"prediction":"not_stress","probability":0.3}`, 0.3, models.LabelNotStress},
		{"small probability stays small", `{"prediction":"not_stress","probability":0.01}`, 0.01, models.LabelNotStress},
		{"uppercase label", `{"prediction":"NOT_STRESS","probability":0.25}`, 0.25, models.LabelNotStress},
		{"probability decides over label", `{"prediction":"not_stress","probability":0.8}`, 0.8, models.LabelStress},
		{"missing probability", `{"prediction":"not_stress"}`, 0, models.LabelNotStress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := ParsePrediction([]byte(tt.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if pred.Shape != ShapeFlat {
				t.Fatalf("expected flat shape, got %s", pred.Shape)
			}
			res := pred.Normalize(0.5)
			if diff := res.Probability - tt.prob; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("expected probability %v, got %v", tt.prob, res.Probability)
			}
			if res.Label != tt.label {
				t.Fatalf("expected %s, got %s", tt.label, res.Label)
			}
		})
	}
}

func TestParsePredictionClampsProbability(t *testing.T) {
	for raw, want := range map[string]float64{
		`{"prediction":{"stress_probability":1.7}}`:  1,
		`{"prediction":{"stress_probability":-0.2}}`: 0,
	} {
		pred, err := ParsePrediction([]byte(raw))
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if got := pred.StressProbability(); got != want {
			t.Fatalf("%s: expected %v, got %v", raw, want, got)
		}
	}
}

func TestParsePredictionRejectsUnknownShapes(t *testing.T) {
	tests := map[string]error{
		`not json`:             errPredictionNotObject,
		`[1,2,3]`:              errPredictionNotObject,
		`"stress"`:             errPredictionNotObject,
		`{"success":true}`:     errPredictionMissing,
		`{"prediction":null}`:  errPredictionMissing,
		`{"prediction":[0.5]}`: errPredictionMissing,
	}
	for raw, want := range tests {
		if _, err := ParsePrediction([]byte(raw)); !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", raw, want, err)
		}
	}
}

func TestSuccessMessage(t *testing.T) {
	stressed := &models.ClassificationResult{Label: models.LabelStress, StressLevel: "High Stress", StressPercentage: 87.26}
	if got, want := successMessage(stressed), "Analysis complete! High Stress detected (87.3% confidence)"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	calm := &models.ClassificationResult{Label: models.LabelNotStress}
	if got, want := successMessage(calm), "Analysis complete! Unknown - You're doing well!"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
