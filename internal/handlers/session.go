package handlers

import (
	"net/http"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/AnshRaj112/eyeglaze/internal/services"
	"go.uber.org/zap"
)

type SessionHandler struct {
	identity *services.IdentityClient
	session  *services.Session
	log      *zap.Logger
}

func NewSessionHandler(identity *services.IdentityClient, session *services.Session, log *zap.Logger) *SessionHandler {
	return &SessionHandler{identity: identity, session: session, log: log}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	BirthDate string `json:"birthDate"`
}

type SessionResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	SignedIn bool             `json:"signedIn"`
	User     *models.Identity `json:"user,omitempty"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	identity, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, Message: "Signed in", SignedIn: true, User: identity})
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	identity, err := h.identity.Register(r.Context(), req.Name, req.Email, req.Password, req.BirthDate)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Success: true, Message: "Account created", SignedIn: true, User: identity})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.identity.Logout(r.Context())
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, Message: "Signed out"})
}

// Current reports the active identity, if any.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.session.Current()
	if !ok {
		writeJSON(w, http.StatusOK, SessionResponse{Success: true, SignedIn: false})
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, SignedIn: true, User: &identity})
}
