package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/tidwall/gjson"
)

const (
	uploadEyeImagePath = "/api/upload/eye-image"
	analysisSubmitPath = "/api/analysis/submit"
	storageServiceName = "storage service"
)

// StorageClient talks to the storage backend that hosts eye images and
// analysis records.
type StorageClient struct {
	baseURL string
	client  HTTPDoer
}

func NewStorageClient(baseURL string, client HTTPDoer) *StorageClient {
	return &StorageClient{baseURL: baseURL, client: client}
}

// UploadEyeImage stores img under username and returns the hosted image URL.
func (c *StorageClient) UploadEyeImage(ctx context.Context, username string, img *models.SelectedImage) (*models.UploadResult, error) {
	resp, err := postImage(ctx, c.client, joinURL(c.baseURL, uploadEyeImagePath), map[string]string{"username": username}, img)
	if err != nil {
		if isTransport(err) {
			return nil, transportError(StageUpload, storageServiceName, err)
		}
		return nil, &PipelineError{Stage: StageUpload, Kind: KindBackend, Message: "Image upload failed", Err: err}
	}

	if !resp.OK() {
		msg := resp.Message()
		if msg == "" {
			msg = fmt.Sprintf("Image upload failed with status: %d", resp.Status)
		}
		return nil, backendError(StageUpload, resp.Status, msg)
	}
	if !resp.StatusSuccess() {
		msg := resp.Message()
		if msg == "" {
			msg = "Image upload failed"
		}
		return nil, backendError(StageUpload, resp.Status, msg)
	}

	imageURL := strings.TrimSpace(gjson.GetBytes(resp.Body, "data.imageUrl").String())
	if imageURL == "" {
		imageURL = strings.TrimSpace(gjson.GetBytes(resp.Body, "imageUrl").String())
	}
	if imageURL == "" {
		return nil, backendError(StageUpload, resp.Status, "Image upload response did not include an image URL")
	}
	return &models.UploadResult{ImageURL: imageURL, Raw: resp.Body}, nil
}

// SubmitAnalysis records the verdict for a stored image.
func (c *StorageClient) SubmitAnalysis(ctx context.Context, sub models.AnalysisSubmission) error {
	resp, err := postJSON(ctx, c.client, joinURL(c.baseURL, analysisSubmitPath), sub)
	if err != nil {
		if isTransport(err) {
			return transportError(StageSubmission, storageServiceName, err)
		}
		return &PipelineError{Stage: StageSubmission, Kind: KindBackend, Message: "Analysis submission failed", Err: err}
	}
	if !resp.OK() {
		msg := resp.Message()
		if msg == "" {
			msg = fmt.Sprintf("Analysis submission failed with status: %d", resp.Status)
		}
		return backendError(StageSubmission, resp.Status, msg)
	}
	if status := gjson.GetBytes(resp.Body, "status"); status.Exists() && status.String() != "success" {
		msg := resp.Message()
		if msg == "" {
			msg = "Analysis submission failed"
		}
		return backendError(StageSubmission, resp.Status, msg)
	}
	return nil
}
