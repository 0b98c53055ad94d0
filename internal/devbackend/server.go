// Package devbackend is a local stand-in for the storage and identity backend
// the gateway talks to. It speaks the same wire contract: every body carries
// a status field that is "success" or "error".
package devbackend

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/eyeglaze/pkg/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const (
	maxUploadBytes  = 10 << 20
	birthDateLayout = "2006-01-02"
)

type Server struct {
	users    UserRepository
	analyses AnalysisRepository
	images   ImageHost
	origins  []string
	log      *zap.Logger
	now      func() time.Time
}

func NewServer(users UserRepository, analyses AnalysisRepository, images ImageHost, origins []string, log *zap.Logger) *Server {
	return &Server{users: users, analyses: analyses, images: images, origins: origins, log: log, now: time.Now}
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type credentials struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	BirthDate string `json:"birthDate"`
}

type submission struct {
	Username        string   `json:"username"`
	HasStress       *bool    `json:"hasStress"`
	ImageURL        string   `json:"imageUrl"`
	ConfidenceLevel *float64 `json:"confidenceLevel"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/api/auth/login", s.login)
	r.Post("/api/auth/register", s.register)
	r.Post("/api/upload/eye-image", s.uploadEyeImage)
	r.Post("/api/analysis/submit", s.submitAnalysis)
	if mem, ok := s.images.(*MemoryHost); ok {
		r.Get("/images/{id}", serveMemoryImage(mem))
	}
	return r
}

func respond(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func fail(w http.ResponseWriter, status int, message string) {
	respond(w, status, envelope{Status: "error", Message: message})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	username := utils.NormalizeEmail(req.Username)
	if username == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := s.users.FindByUsername(r.Context(), username)
	if errors.Is(err, ErrUserNotFound) {
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.log.Error("login lookup failed", zap.Error(err))
		fail(w, http.StatusInternalServerError, "Login failed")
		return
	}
	ok, err := utils.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	respond(w, http.StatusOK, envelope{Status: "success", Message: "Login successful", Data: map[string]any{
		"_id":      user.ID.String(),
		"username": user.Username,
		"age":      user.Age(s.now()),
	}})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	username := utils.NormalizeEmail(req.Username)
	if err := utils.ValidateEmail(username); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Password) < 6 {
		fail(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}
	var birthDate time.Time
	if bd := strings.TrimSpace(req.BirthDate); bd != "" {
		parsed, err := time.Parse(birthDateLayout, bd)
		if err != nil || parsed.After(s.now()) {
			fail(w, http.StatusBadRequest, "Birth date must be a past date in YYYY-MM-DD format")
			return
		}
		birthDate = parsed
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		s.log.Error("password hashing failed", zap.Error(err))
		fail(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	user, err := s.users.Create(r.Context(), username, hash, birthDate)
	if errors.Is(err, ErrUserExists) {
		fail(w, http.StatusConflict, "An account with this email already exists")
		return
	}
	if err != nil {
		s.log.Error("user creation failed", zap.Error(err))
		fail(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	s.log.Info("user registered", zap.String("username", user.Username))
	data := map[string]any{"id": user.ID.String(), "username": user.Username}
	if !user.BirthDate.IsZero() {
		data["age"] = user.Age(s.now())
	}
	respond(w, http.StatusCreated, envelope{Status: "success", Message: "Registration successful", Data: data})
}

func (s *Server) uploadEyeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		fail(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	username := utils.NormalizeEmail(r.FormValue("username"))
	if username == "" {
		fail(w, http.StatusBadRequest, "Username is required")
		return
	}
	if !s.requireUser(w, r, username) {
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		fail(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		fail(w, http.StatusBadRequest, "Failed to read image")
		return
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") && !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		fail(w, http.StatusBadRequest, "Only image files are allowed")
		return
	}

	url, err := s.images.Upload(r.Context(), data, header.Filename, username)
	if err != nil {
		s.log.Error("image upload failed", zap.String("username", username), zap.Error(err))
		fail(w, http.StatusBadGateway, "Failed to store image")
		return
	}
	respond(w, http.StatusOK, envelope{Status: "success", Message: "Image uploaded successfully", Data: map[string]string{"imageUrl": url}})
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req submission
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	username := utils.NormalizeEmail(req.Username)
	if username == "" || strings.TrimSpace(req.ImageURL) == "" || req.HasStress == nil || req.ConfidenceLevel == nil {
		fail(w, http.StatusBadRequest, "username, hasStress, imageUrl and confidenceLevel are required")
		return
	}
	if *req.ConfidenceLevel < 0 || *req.ConfidenceLevel > 1 {
		fail(w, http.StatusBadRequest, "confidenceLevel must be between 0 and 1")
		return
	}
	if !s.requireUser(w, r, username) {
		return
	}

	a := &Analysis{
		Username:        username,
		HasStress:       *req.HasStress,
		ImageURL:        strings.TrimSpace(req.ImageURL),
		ConfidenceLevel: *req.ConfidenceLevel,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.analyses.Insert(r.Context(), a); err != nil {
		s.log.Error("analysis insert failed", zap.String("username", username), zap.Error(err))
		fail(w, http.StatusInternalServerError, "Failed to save analysis")
		return
	}
	respond(w, http.StatusCreated, envelope{Status: "success", Message: "Analysis saved", Data: a})
}

// requireUser writes 404 for an unknown user and 500 when the lookup itself fails.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request, username string) bool {
	_, err := s.users.FindByUsername(r.Context(), username)
	if errors.Is(err, ErrUserNotFound) {
		fail(w, http.StatusNotFound, "User not found")
		return false
	}
	if err != nil {
		s.log.Error("user lookup failed", zap.String("username", username), zap.Error(err))
		fail(w, http.StatusInternalServerError, "User lookup failed")
		return false
	}
	return true
}

func serveMemoryImage(host *MemoryHost) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, contentType, ok := host.Get(chi.URLParam(r, "id"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=3600")
		_, _ = w.Write(data)
	}
}
