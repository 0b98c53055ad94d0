package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testImageURL = "https://img.example.com/eyes/jane.jpg"

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSessionStore(rdb, "eyeGlaze", DefaultUploadBridgeTTL, zap.NewNop()), mr
}

func testIdentity() models.Identity {
	age := 29
	return models.Identity{ID: "u-1", Email: "jane@example.com", Name: "jane", Age: &age}
}

func testImage() models.SelectedImage {
	return models.SelectedImage{Data: []byte("\x89PNG fake eye"), ContentType: "image/png", Filename: "eye.png"}
}

// backendStub serves the storage and classification endpoints and counts calls.
type backendStub struct {
	storage    *httptest.Server
	classifier *httptest.Server

	uploads  atomic.Int32
	predicts atomic.Int32
	submits  atomic.Int32

	mu             sync.Mutex
	uploadHandler  http.HandlerFunc
	predictHandler http.HandlerFunc
	submitHandler  http.HandlerFunc
	submissions    []models.AnalysisSubmission
	uploadUsername string
}

func newBackendStub(t *testing.T) *backendStub {
	t.Helper()
	b := &backendStub{
		uploadHandler:  jsonHandler(http.StatusOK, `{"status":"success","message":"Image uploaded","data":{"imageUrl":"`+testImageURL+`"}}`),
		predictHandler: jsonHandler(http.StatusOK, nestedPrediction(0.95)),
		submitHandler:  jsonHandler(http.StatusOK, `{"status":"success","message":"Analysis saved"}`),
	}

	storage := http.NewServeMux()
	storage.HandleFunc("/api/upload/eye-image", func(w http.ResponseWriter, r *http.Request) {
		b.uploads.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			b.mu.Lock()
			b.uploadUsername = r.FormValue("username")
			b.mu.Unlock()
		}
		b.mu.Lock()
		h := b.uploadHandler
		b.mu.Unlock()
		h(w, r)
	})
	storage.HandleFunc("/api/analysis/submit", func(w http.ResponseWriter, r *http.Request) {
		b.submits.Add(1)
		var sub models.AnalysisSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err == nil {
			b.mu.Lock()
			b.submissions = append(b.submissions, sub)
			b.mu.Unlock()
		}
		b.mu.Lock()
		h := b.submitHandler
		b.mu.Unlock()
		h(w, r)
	})
	b.storage = httptest.NewServer(storage)
	t.Cleanup(b.storage.Close)

	b.classifier = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			http.NotFound(w, r)
			return
		}
		b.predicts.Add(1)
		b.mu.Lock()
		h := b.predictHandler
		b.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(b.classifier.Close)
	return b
}

func (b *backendStub) setUpload(h http.HandlerFunc) {
	b.mu.Lock()
	b.uploadHandler = h
	b.mu.Unlock()
}

func (b *backendStub) setPredict(h http.HandlerFunc) {
	b.mu.Lock()
	b.predictHandler = h
	b.mu.Unlock()
}

func (b *backendStub) setSubmit(h http.HandlerFunc) {
	b.mu.Lock()
	b.submitHandler = h
	b.mu.Unlock()
}

func (b *backendStub) lastSubmission(t *testing.T) models.AnalysisSubmission {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.submissions) == 0 {
		t.Fatal("expected a submission")
	}
	return b.submissions[len(b.submissions)-1]
}

func (b *backendStub) calls() (uploads, predicts, submits int32) {
	return b.uploads.Load(), b.predicts.Load(), b.submits.Load()
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func nestedPrediction(p float64) string {
	data, _ := json.Marshal(map[string]any{
		"success": true,
		"prediction": map[string]any{
			"stress_probability": p,
			"stress_level":       "High Stress",
			"stress_percentage":  p * 100,
			"confidence":         "High",
		},
	})
	return string(data)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ScanEvent
}

func (p *recordingPublisher) Publish(evt ScanEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(typ EventType) []ScanEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ScanEvent
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) states() []State {
	var out []State
	for _, e := range p.ofType(EventTypeState) {
		out = append(out, e.State)
	}
	return out
}

type recordingDiagnostics struct {
	mu     sync.Mutex
	errors []*PartialPipelineError
}

func (d *recordingDiagnostics) RecordPartialFailure(_ context.Context, perr *PartialPipelineError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, perr)
}

func (d *recordingDiagnostics) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errors)
}

type recordingJournal struct {
	mu   sync.Mutex
	runs []models.PipelineRun
}

func (j *recordingJournal) Record(_ context.Context, run *models.PipelineRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, *run)
	return nil
}

func (j *recordingJournal) ListByUsername(_ context.Context, username string, _ int) ([]models.PipelineRun, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.PipelineRun
	for _, r := range j.runs {
		if r.Username == username {
			out = append(out, r)
		}
	}
	return out, nil
}

type harness struct {
	orch        *Orchestrator
	session     *Session
	store       *SessionStore
	redis       *miniredis.Miniredis
	backend     *backendStub
	publisher   *recordingPublisher
	diagnostics *recordingDiagnostics
	journal     *recordingJournal
}

func newHarness(t *testing.T, threshold Threshold) *harness {
	t.Helper()
	store, mr := newTestStore(t)
	backend := newBackendStub(t)
	session := NewSession(context.Background(), store, zap.NewNop())
	session.SignIn(context.Background(), testIdentity())

	h := &harness{
		session:     session,
		store:       store,
		redis:       mr,
		backend:     backend,
		publisher:   &recordingPublisher{},
		diagnostics: &recordingDiagnostics{},
		journal:     &recordingJournal{},
	}
	h.orch = NewOrchestrator(OrchestratorDeps{
		Session:     session,
		Storage:     NewStorageClient(backend.storage.URL, backend.storage.Client()),
		Classifier:  NewClassifierClient(backend.classifier.URL, backend.classifier.Client()),
		Bridge:      store,
		Publisher:   h.publisher,
		Diagnostics: h.diagnostics,
		Journal:     h.journal,
		Threshold:   threshold,
		Log:         zap.NewNop(),
	})
	return h
}
