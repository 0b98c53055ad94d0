package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the orchestrator's position in the upload-analyze-submit pipeline.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateAnalyzing  State = "analyzing"
	StateSubmitting State = "submitting"
)

const (
	DefaultStepTimeout   = 30 * time.Second
	DefaultMaxImageBytes = 10 << 20
	journalTimeout       = 3 * time.Second
)

// ImageStorage is the storage backend as seen by the pipeline.
type ImageStorage interface {
	UploadEyeImage(ctx context.Context, username string, img *models.SelectedImage) (*models.UploadResult, error)
	SubmitAnalysis(ctx context.Context, sub models.AnalysisSubmission) error
}

// ImageClassifier is the classification backend as seen by the pipeline.
type ImageClassifier interface {
	Predict(ctx context.Context, img *models.SelectedImage) (*Prediction, error)
}

// UploadBridge carries the upload result across the analysis step.
type UploadBridge interface {
	SaveUpload(ctx context.Context, result *models.UploadResult) error
	LoadUpload(ctx context.Context) (*models.UploadResult, bool)
	ClearUpload(ctx context.Context) error
}

type OrchestratorDeps struct {
	Session     *Session
	Storage     ImageStorage
	Classifier  ImageClassifier
	Bridge      UploadBridge
	Publisher   Publisher
	Diagnostics DiagnosticsRecorder
	Journal     RunJournal // optional

	Threshold     Threshold
	StepTimeout   time.Duration
	MaxImageBytes int64
	Log           *zap.Logger
}

// Orchestrator turns a selected image into a published verdict and a stored
// analysis record. One run at a time; backend calls within a run are
// strictly sequential.
type Orchestrator struct {
	session     *Session
	storage     ImageStorage
	classifier  ImageClassifier
	bridge      UploadBridge
	publisher   Publisher
	diagnostics DiagnosticsRecorder
	journal     RunJournal
	threshold   Threshold
	stepTimeout time.Duration
	maxImage    int64
	log         *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	state   State
	running bool
	image   *models.SelectedImage
	result  *models.ClassificationResult
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		session:     deps.Session,
		storage:     deps.Storage,
		classifier:  deps.Classifier,
		bridge:      deps.Bridge,
		publisher:   deps.Publisher,
		diagnostics: deps.Diagnostics,
		journal:     deps.Journal,
		threshold:   deps.Threshold,
		stepTimeout: deps.StepTimeout,
		maxImage:    deps.MaxImageBytes,
		log:         deps.Log,
		now:         time.Now,
		state:       StateIdle,
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.publisher == nil {
		o.publisher = NewScanHub()
	}
	if o.diagnostics == nil {
		o.diagnostics = NewMongoDiagnostics(nil, o.log)
	}
	if o.stepTimeout <= 0 {
		o.stepTimeout = DefaultStepTimeout
	}
	if o.maxImage <= 0 {
		o.maxImage = DefaultMaxImageBytes
	}
	return o
}

// Threshold returns the decision cutoff in use.
func (o *Orchestrator) Threshold() Threshold {
	return o.threshold
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Result returns the most recently published verdict, or nil.
func (o *Orchestrator) Result() *models.ClassificationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// SelectedImage returns the image waiting for a run, or nil.
func (o *Orchestrator) SelectedImage() *models.SelectedImage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.image
}

// SelectImage replaces the pending image and discards the previous verdict.
func (o *Orchestrator) SelectImage(img models.SelectedImage) error {
	if !img.IsImage() {
		return ErrNotAnImage
	}
	if len(img.Data) == 0 {
		return &PipelineError{Stage: StageSelection, Kind: KindPrecondition, Message: "The selected image is empty"}
	}
	if int64(len(img.Data)) > o.maxImage {
		return &PipelineError{
			Stage:   StageSelection,
			Kind:    KindPrecondition,
			Message: fmt.Sprintf("Image is too large (max %d MB)", o.maxImage>>20),
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunInProgress
	}
	o.image = &img
	o.result = nil
	return nil
}

// ClearImage drops the pending image and the previous verdict.
func (o *Orchestrator) ClearImage() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunInProgress
	}
	o.image = nil
	o.result = nil
	return nil
}

// Run drives one pipeline pass. Upload and analysis failures abort the run
// and are returned; a submission failure is recorded and swallowed, and the
// verdict is returned as on full success.
func (o *Orchestrator) Run(ctx context.Context) (*models.ClassificationResult, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.notifyFailure(ErrRunInProgress)
		return nil, ErrRunInProgress
	}
	img := o.image
	if img == nil {
		o.mu.Unlock()
		o.notifyFailure(ErrNoImage)
		return nil, ErrNoImage
	}
	identity, ok := o.session.Current()
	if !ok {
		o.mu.Unlock()
		o.notifyFailure(ErrNotSignedIn)
		return nil, ErrNotSignedIn
	}
	o.running = true
	o.result = nil
	o.mu.Unlock()

	run := &models.PipelineRun{
		ID:        uuid.New(),
		Username:  identity.Email,
		StartedAt: o.now().UTC(),
	}
	log := o.log.With(zap.String("run_id", run.ID.String()), zap.String("username", identity.Email))

	o.setState(StateUploading)
	upload, err := o.uploadStep(ctx, identity.Email, img)
	if err != nil {
		return nil, o.fail(ctx, log, run, StageUpload, err)
	}
	run.ImageURL = upload.ImageURL
	if err := o.bridge.SaveUpload(ctx, upload); err != nil {
		log.Warn("upload bridge write failed; keeping result in memory", zap.Error(err))
	}

	o.setState(StateAnalyzing)
	result, err := o.analyzeStep(ctx, img)
	if err != nil {
		return nil, o.fail(ctx, log, run, StageAnalysis, err)
	}
	run.Label = result.Label
	run.Probability = result.Probability
	o.publishResult(result)
	log.Info("analysis complete", zap.String("label", string(result.Label)), zap.Float64("probability", result.Probability))

	o.setState(StateSubmitting)
	if perr := o.submitStep(ctx, identity, upload, result); perr != nil {
		o.diagnostics.RecordPartialFailure(ctx, perr)
	} else {
		run.Submitted = true
	}

	o.mu.Lock()
	o.image = nil
	o.running = false
	o.state = StateIdle
	o.mu.Unlock()
	o.clearBridge(ctx, log)
	o.publisher.Publish(ScanEvent{Type: EventTypeState, State: StateIdle})

	run.Outcome = models.RunSucceeded
	o.recordRun(ctx, log, run)
	return result, nil
}

func (o *Orchestrator) uploadStep(ctx context.Context, username string, img *models.SelectedImage) (*models.UploadResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	return o.storage.UploadEyeImage(stepCtx, username, img)
}

func (o *Orchestrator) analyzeStep(ctx context.Context, img *models.SelectedImage) (*models.ClassificationResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	pred, err := o.classifier.Predict(stepCtx, img)
	if err != nil {
		return nil, err
	}
	return pred.Normalize(o.threshold), nil
}

// submitStep records the verdict with the storage backend. The returned error
// is diagnostic only; callers may discard it.
func (o *Orchestrator) submitStep(ctx context.Context, identity models.Identity, upload *models.UploadResult, result *models.ClassificationResult) *PartialPipelineError {
	if upload == nil || upload.ImageURL == "" {
		bridged, ok := o.bridge.LoadUpload(ctx)
		if !ok {
			return &PartialPipelineError{Username: identity.Email, Err: backendError(StageSubmission, 0, "no upload result to submit")}
		}
		upload = bridged
	}
	sub := models.AnalysisSubmission{
		Username:        identity.Email,
		HasStress:       o.threshold.HasStress(result.Probability),
		ImageURL:        upload.ImageURL,
		ConfidenceLevel: result.Probability,
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	if err := o.storage.SubmitAnalysis(stepCtx, sub); err != nil {
		return &PartialPipelineError{Username: identity.Email, ImageURL: sub.ImageURL, Err: err}
	}
	return nil
}

// fail returns the orchestrator to Idle after an upload or analysis failure.
// The selected image is kept so the user can retry.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, run *models.PipelineRun, stage Stage, err error) error {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		kind := KindBackend
		if isTransport(err) {
			kind = KindTransport
		}
		msg := "Image upload failed. Please try again."
		if stage == StageAnalysis {
			msg = "Analysis failed. Please try again."
		}
		pe = &PipelineError{Stage: stage, Kind: kind, Message: msg, Err: err}
		err = pe
	}

	o.mu.Lock()
	o.running = false
	o.state = StateIdle
	o.mu.Unlock()
	o.clearBridge(ctx, log)
	o.publisher.Publish(ScanEvent{Type: EventTypeState, State: StateIdle})
	o.notifyFailure(pe)

	log.Warn("pipeline run failed", zap.String("stage", string(pe.Stage)), zap.String("kind", string(pe.Kind)), zap.Error(err))

	run.Outcome = models.RunFailed
	run.FailedStage = string(pe.Stage)
	run.ErrorKind = string(pe.Kind)
	run.ErrorMessage = pe.Error()
	o.recordRun(ctx, log, run)
	return err
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.publisher.Publish(ScanEvent{Type: EventTypeState, State: s})
}

func (o *Orchestrator) publishResult(result *models.ClassificationResult) {
	o.mu.Lock()
	o.result = result
	o.mu.Unlock()

	o.publisher.Publish(ScanEvent{Type: EventTypeResult, Result: result})
	o.publisher.Publish(ScanEvent{Type: EventTypeNotification, Level: LevelSuccess, Message: successMessage(result)})
}

func (o *Orchestrator) notifyFailure(pe *PipelineError) {
	o.publisher.Publish(ScanEvent{
		Type:    EventTypeNotification,
		Level:   LevelError,
		Message: pe.Error(),
		Stage:   pe.Stage,
		Kind:    pe.Kind,
	})
}

func (o *Orchestrator) clearBridge(ctx context.Context, log *zap.Logger) {
	if err := o.bridge.ClearUpload(ctx); err != nil {
		log.Warn("failed to clear upload bridge", zap.Error(err))
	}
}

func (o *Orchestrator) recordRun(ctx context.Context, log *zap.Logger, run *models.PipelineRun) {
	if o.journal == nil {
		return
	}
	run.FinishedAt = o.now().UTC()
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := o.journal.Record(jctx, run); err != nil {
		log.Warn("failed to journal pipeline run", zap.Error(err))
	}
}

// successMessage is the single user-facing notification for a completed analysis.
func successMessage(result *models.ClassificationResult) string {
	level := result.StressLevel
	if level == "" {
		level = "Unknown"
	}
	if result.IsStress() {
		return fmt.Sprintf("Analysis complete! %s detected (%.1f%% confidence)", level, result.StressPercentage)
	}
	return fmt.Sprintf("Analysis complete! %s - You're doing well!", level)
}
