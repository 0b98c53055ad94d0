package devbackend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// ImageHost stores an eye image and returns the URL it is served from.
type ImageHost interface {
	Upload(ctx context.Context, data []byte, filename, username string) (string, error)
}

type CloudinaryHost struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryHost(cloudName, apiKey, apiSecret, folder string) (*CloudinaryHost, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryHost{cld: cld, folder: folder}, nil
}

func (h *CloudinaryHost) Upload(ctx context.Context, data []byte, filename, username string) (string, error) {
	res, err := h.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:       h.folder,
		ResourceType: "image",
		Tags:         []string{"eye-scan"},
		Context:      map[string]string{"username": username, "filename": filename},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected upload: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

type storedImage struct {
	data        []byte
	contentType string
}

// MemoryHost keeps images in process and serves them under /images/{id}.
// Used when Cloudinary is not configured.
type MemoryHost struct {
	baseURL string

	mu     sync.RWMutex
	images map[string]storedImage
}

func NewMemoryHost(baseURL string) *MemoryHost {
	return &MemoryHost{baseURL: strings.TrimRight(baseURL, "/"), images: make(map[string]storedImage)}
}

func (h *MemoryHost) Upload(_ context.Context, data []byte, _, _ string) (string, error) {
	id := uuid.NewString()
	h.mu.Lock()
	h.images[id] = storedImage{data: append([]byte(nil), data...), contentType: http.DetectContentType(data)}
	h.mu.Unlock()
	return h.baseURL + "/images/" + id, nil
}

// Get returns a stored image and its sniffed content type.
func (h *MemoryHost) Get(id string) ([]byte, string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	img, ok := h.images[id]
	return img.data, img.contentType, ok
}
