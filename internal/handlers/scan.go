package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/AnshRaj112/eyeglaze/internal/services"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for form boundaries and text fields on top
// of the image itself.
const multipartOverhead = 1 << 20

type ScanHandler struct {
	orch     *services.Orchestrator
	session  *services.Session
	journal  services.RunJournal // nil when history is disabled
	maxImage int64
	log      *zap.Logger
}

func NewScanHandler(orch *services.Orchestrator, session *services.Session, journal services.RunJournal, maxImage int64, log *zap.Logger) *ScanHandler {
	if maxImage <= 0 {
		maxImage = services.DefaultMaxImageBytes
	}
	return &ScanHandler{orch: orch, session: session, journal: journal, maxImage: maxImage, log: log}
}

type SelectedImageInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type ScanStateResponse struct {
	Success   bool               `json:"success"`
	State     services.State     `json:"state"`
	Image     *SelectedImageInfo `json:"image,omitempty"`
	HasResult bool               `json:"hasResult"`
	Threshold float64            `json:"threshold"`
}

type ScanResultResponse struct {
	Success bool                         `json:"success"`
	Message string                       `json:"message,omitempty"`
	Result  *models.ClassificationResult `json:"result"`
}

type ScanHistoryResponse struct {
	Success bool                 `json:"success"`
	Runs    []models.PipelineRun `json:"runs"`
}

// SelectImage accepts the multipart "image" field as the pending image.
func (h *ScanHandler) SelectImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImage+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxImage); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	img := models.SelectedImage{Data: data, ContentType: contentType, Filename: header.Filename}
	if err := h.orch.SelectImage(img); err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Response
		Image SelectedImageInfo `json:"image"`
	}{
		Response: Response{Success: true, Message: "Image selected"},
		Image:    imageInfo(&img),
	})
}

func (h *ScanHandler) ClearImage(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.ClearImage(); err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Image cleared"})
}

// Run drives one pipeline pass. The run is detached from the request so a
// closed browser tab does not abort it halfway.
func (h *ScanHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanResultResponse{Success: true, Message: "Analysis complete", Result: result})
}

func (h *ScanHandler) Result(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ScanResultResponse{Success: true, Result: h.orch.Result()})
}

func (h *ScanHandler) State(w http.ResponseWriter, r *http.Request) {
	resp := ScanStateResponse{
		Success:   true,
		State:     h.orch.State(),
		HasResult: h.orch.Result() != nil,
		Threshold: float64(h.orch.Threshold()),
	}
	if img := h.orch.SelectedImage(); img != nil {
		info := imageInfo(img)
		resp.Image = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// History lists the signed-in user's recent runs, newest first.
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.session.Current()
	if !ok {
		writePipelineError(w, services.ErrNotSignedIn)
		return
	}
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "Run history is not available")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.journal.ListByUsername(r.Context(), identity.Email, limit)
	if err != nil {
		h.log.Error("failed to list pipeline runs", zap.String("username", identity.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, ScanHistoryResponse{Success: true, Runs: runs})
}

func imageInfo(img *models.SelectedImage) SelectedImageInfo {
	return SelectedImageInfo{Filename: img.Filename, ContentType: img.ContentType, Size: len(img.Data)}
}
