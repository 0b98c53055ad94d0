package services

import (
	"context"
	"fmt"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/tidwall/gjson"
)

const (
	predictPath           = "/predict"
	classifierServiceName = "analysis service"
)

// ClassifierClient calls the image-classification backend.
type ClassifierClient struct {
	baseURL string
	client  HTTPDoer
}

func NewClassifierClient(baseURL string, client HTTPDoer) *ClassifierClient {
	return &ClassifierClient{baseURL: baseURL, client: client}
}

// Predict sends img alone (never the stored URL) and returns the parsed response.
func (c *ClassifierClient) Predict(ctx context.Context, img *models.SelectedImage) (*Prediction, error) {
	resp, err := postImage(ctx, c.client, joinURL(c.baseURL, predictPath), nil, img)
	if err != nil {
		if isTransport(err) {
			return nil, transportError(StageAnalysis, classifierServiceName, err)
		}
		return nil, &PipelineError{Stage: StageAnalysis, Kind: KindBackend, Message: "Analysis failed. Please try again.", Err: err}
	}

	if !resp.OK() {
		msg := resp.Message()
		if msg == "" {
			msg = fmt.Sprintf("Analysis failed with status: %d. Please ensure the analysis service is running.", resp.Status)
		}
		return nil, backendError(StageAnalysis, resp.Status, msg)
	}
	if success := gjson.GetBytes(resp.Body, "success"); success.Exists() && !success.Bool() {
		msg := resp.Message()
		if msg == "" {
			msg = "Prediction failed"
		}
		return nil, backendError(StageAnalysis, resp.Status, msg)
	}

	pred, err := ParsePrediction(resp.Body)
	if err != nil {
		pe := backendError(StageAnalysis, resp.Status, "Analysis returned an unreadable result")
		pe.Err = fmt.Errorf("parse prediction: %w", err)
		return nil, pe
	}
	return pred, nil
}
