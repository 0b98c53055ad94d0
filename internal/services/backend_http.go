package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/tidwall/gjson"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxResponseBytes = 4 << 20

// backendResponse is a drained response from one of the collaborators.
type backendResponse struct {
	Status int
	Body   []byte
}

func (r *backendResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// StatusSuccess reports whether the body carries status == "success".
func (r *backendResponse) StatusSuccess() bool {
	return gjson.GetBytes(r.Body, "status").String() == "success"
}

// Message returns the first non-empty of the body's error and message fields.
func (r *backendResponse) Message() string {
	if !gjson.ValidBytes(r.Body) {
		return ""
	}
	for _, key := range []string{"error", "message"} {
		if v := strings.TrimSpace(gjson.GetBytes(r.Body, key).String()); v != "" {
			return v
		}
	}
	return ""
}

func do(ctx context.Context, client HTTPDoer, req *http.Request) (*backendResponse, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &backendResponse{Status: resp.StatusCode, Body: body}, nil
}

func postJSON(ctx context.Context, client HTTPDoer, url string, payload any) (*backendResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return do(ctx, client, req)
}

// postImage sends img as the multipart "image" part alongside the given text fields.
func postImage(ctx context.Context, client HTTPDoer, url string, fields map[string]string, img *models.SelectedImage) (*backendResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, imageFilename(img)))
	header.Set("Content-Type", img.ContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, fmt.Errorf("write image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return do(ctx, client, req)
}

func imageFilename(img *models.SelectedImage) string {
	name := filepath.Base(strings.TrimSpace(img.Filename))
	if name == "" || name == "." || name == "/" {
		name = "eye-image"
	}
	return strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(name)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
