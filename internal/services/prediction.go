package services

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/tidwall/gjson"
)

// Threshold is the stress decision cutoff. The same value labels the verdict
// and derives the submitted hasStress flag.
type Threshold float64

// HasStress reports whether probability is strictly above the cutoff.
func (t Threshold) HasStress(probability float64) bool {
	return probability > float64(t)
}

func (t Threshold) Label(probability float64) models.StressLabel {
	if t.HasStress(probability) {
		return models.LabelStress
	}
	return models.LabelNotStress
}

type PredictionShape string

const (
	ShapeFlat   PredictionShape = "flat"
	ShapeNested PredictionShape = "nested"
)

// FlatPrediction is the {prediction, probability} response. Probability is
// the stress probability whatever the label says; the label is informational.
type FlatPrediction struct {
	Label       string
	Probability float64
}

// NestedPrediction is the richer response with pupil detection and model
// interpretation detail.
type NestedPrediction struct {
	StressProbability float64
	StressLevel       string
	StressPercentage  *float64
	Confidence        string
	Pupil             *models.PupilDetection
	Interpretation    *models.ModelInterpretation
}

// Prediction is a classification response in one of its known shapes.
// Exactly one of Flat and Nested is set, according to Shape.
type Prediction struct {
	Shape  PredictionShape
	Flat   *FlatPrediction
	Nested *NestedPrediction
	Raw    json.RawMessage
}

var (
	errPredictionNotObject = errors.New("classification response is not a JSON object")
	errPredictionMissing   = errors.New("classification response has no prediction")
)

// ParsePrediction recognizes the response shape. Missing numeric fields read
// as zero and missing display fields stay empty.
func ParsePrediction(raw []byte) (*Prediction, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errPredictionNotObject
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, errPredictionNotObject
	}

	p := &Prediction{Raw: append(json.RawMessage(nil), raw...)}
	pred := doc.Get("prediction")
	switch {
	case pred.IsObject():
		p.Shape = ShapeNested
		p.Nested = parseNested(doc, pred)
	case pred.Type == gjson.String || doc.Get("probability").Exists():
		p.Shape = ShapeFlat
		p.Flat = &FlatPrediction{
			Label:       strings.ToLower(strings.TrimSpace(pred.String())),
			Probability: doc.Get("probability").Float(),
		}
	default:
		return nil, errPredictionMissing
	}
	return p, nil
}

func parseNested(doc, pred gjson.Result) *NestedPrediction {
	n := &NestedPrediction{
		StressProbability: pred.Get("stress_probability").Float(),
		StressLevel:       pred.Get("stress_level").String(),
		Confidence:        pred.Get("confidence").String(),
	}
	if pct := pred.Get("stress_percentage"); pct.Exists() {
		v := pct.Float()
		n.StressPercentage = &v
	}
	if pupil := doc.Get("pupil_detection"); pupil.IsObject() {
		n.Pupil = &models.PupilDetection{
			Detected:   pupil.Get("detected").Bool(),
			Radius:     pupil.Get("radius").Float(),
			Confidence: pupil.Get("confidence").Float(),
		}
	}
	if mi := doc.Get("model_interpretation"); mi.IsObject() {
		n.Interpretation = &models.ModelInterpretation{
			PupilWeightPercentage: mi.Get("pupil_weight_percentage").Float(),
			IrisWeightPercentage:  mi.Get("iris_weight_percentage").Float(),
			DominantIndicator:     mi.Get("dominant_indicator").String(),
		}
	}
	return n
}

// StressProbability returns the probability of the stress class in [0,1].
func (p *Prediction) StressProbability() float64 {
	var v float64
	switch p.Shape {
	case ShapeNested:
		v = p.Nested.StressProbability
	case ShapeFlat:
		v = p.Flat.Probability
	}
	return clampUnit(v)
}

// Normalize produces the canonical verdict, keeping the raw payload for the
// detailed view.
func (p *Prediction) Normalize(t Threshold) *models.ClassificationResult {
	prob := p.StressProbability()
	res := &models.ClassificationResult{
		Label:            t.Label(prob),
		Probability:      prob,
		StressPercentage: prob * 100,
		Shape:            string(p.Shape),
		Detail:           p.Raw,
	}
	if p.Shape == ShapeNested {
		res.StressLevel = p.Nested.StressLevel
		res.Confidence = p.Nested.Confidence
		res.PupilDetection = p.Nested.Pupil
		res.Interpretation = p.Nested.Interpretation
		if p.Nested.StressPercentage != nil {
			res.StressPercentage = *p.Nested.StressPercentage
		}
	}
	return res
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
