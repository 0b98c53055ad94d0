package handlers

import (
	"net/http"
	"time"

	"github.com/AnshRaj112/eyeglaze/internal/middleware"
	"github.com/AnshRaj112/eyeglaze/internal/services"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 30 * time.Second
)

// ScanEventsHandler streams orchestrator events over a websocket.
type ScanEventsHandler struct {
	hub      *services.ScanHub
	orch     *services.Orchestrator
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewScanEventsHandler accepts websocket connections from allowedOrigins. An
// empty list accepts any origin.
func NewScanEventsHandler(hub *services.ScanHub, orch *services.Orchestrator, allowedOrigins []string, log *zap.Logger) *ScanEventsHandler {
	return &ScanEventsHandler{
		hub:  hub,
		orch: orch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 || r.Header.Get("Origin") == "" {
					return true
				}
				return middleware.AllowedOrigin(r, allowedOrigins) != ""
			},
		},
		log: log,
	}
}

func (h *ScanEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// reader: only pongs and close frames are expected
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4 * 1024)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	snapshot := services.ScanEvent{Type: services.EventTypeState, State: h.orch.State(), Timestamp: time.Now().UTC()}
	if err := h.write(conn, snapshot); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *ScanEventsHandler) write(conn *websocket.Conn, evt services.ScanEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(evt)
}
