package routes

import (
	"github.com/AnshRaj112/eyeglaze/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// Handlers groups everything the gateway router serves.
type Handlers struct {
	Session *handlers.SessionHandler
	Scan    *handlers.ScanHandler
	Events  *handlers.ScanEventsHandler
}

func SetupRoutes(r chi.Router, h Handlers) {
	r.Get("/health", handlers.Health)

	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.Session.Current)
		r.Post("/login", h.Session.Login)
		r.Post("/register", h.Session.Register)
		r.Post("/logout", h.Session.Logout)
	})

	r.Route("/api/scan", func(r chi.Router) {
		r.Post("/image", h.Scan.SelectImage)
		r.Delete("/image", h.Scan.ClearImage)
		r.Post("/run", h.Scan.Run)
		r.Get("/result", h.Scan.Result)
		r.Get("/state", h.Scan.State)
		r.Get("/history", h.Scan.History)
	})

	// State, result and notification events for the UI.
	r.Method("GET", "/ws/scan", h.Events)
}
