package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AnshRaj112/eyeglaze/internal/services"
)

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// writePipelineError maps a pipeline error onto an HTTP status and the
// user-facing message.
func writePipelineError(w http.ResponseWriter, err error) {
	var pe *services.PipelineError
	if !errors.As(err, &pe) {
		writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	writeError(w, statusForError(pe), pe.Error())
}

func statusForError(pe *services.PipelineError) int {
	if errors.Is(pe, services.ErrRunInProgress) {
		return http.StatusConflict
	}
	switch pe.Kind {
	case services.KindPrecondition:
		if pe.Stage == services.StageIdentity && pe != services.ErrNotSignedIn {
			// malformed credentials
			return http.StatusBadRequest
		}
		return http.StatusPreconditionFailed
	case services.KindBackend:
		if pe.Stage == services.StageIdentity && pe.Status >= 400 && pe.Status < 500 {
			return pe.Status
		}
		return http.StatusBadGateway
	case services.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
