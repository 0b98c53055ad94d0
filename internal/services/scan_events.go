package services

import (
	"sync"
	"time"

	"github.com/AnshRaj112/eyeglaze/internal/models"
)

type EventType string

const (
	EventTypeState        EventType = "state"
	EventTypeResult       EventType = "result"
	EventTypeNotification EventType = "notification"
)

type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
)

// ScanEvent is what the presentation layer receives about a run.
type ScanEvent struct {
	Type      EventType                    `json:"type"`
	State     State                        `json:"state,omitempty"`
	Result    *models.ClassificationResult `json:"result,omitempty"`
	Level     NotificationLevel            `json:"level,omitempty"`
	Message   string                       `json:"message,omitempty"`
	Stage     Stage                        `json:"stage,omitempty"`
	Kind      Kind                         `json:"kind,omitempty"`
	Timestamp time.Time                    `json:"timestamp"`
}

// Publisher receives orchestrator events. Publish must not block.
type Publisher interface {
	Publish(evt ScanEvent)
}

const scanSubscriberBuffer = 16

// ScanHub fans events out to every subscriber. A subscriber that falls
// behind loses events rather than stalling the pipeline.
type ScanHub struct {
	mu   sync.RWMutex
	subs map[uint64]chan ScanEvent
	next uint64
}

func NewScanHub() *ScanHub {
	return &ScanHub{subs: make(map[uint64]chan ScanEvent)}
}

// Subscribe returns an event channel and a function that closes it.
func (h *ScanHub) Subscribe() (<-chan ScanEvent, func()) {
	ch := make(chan ScanEvent, scanSubscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *ScanHub) Publish(evt ScanEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *ScanHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
