// Package pipeline runs one request through image acquisition, model
// loading, captioning, story generation and history.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/picturebook/internal/captioning"
	"github.com/lehigh-university-libraries/picturebook/internal/config"
	"github.com/lehigh-university-libraries/picturebook/internal/images"
	"github.com/lehigh-university-libraries/picturebook/internal/loader"
	"github.com/lehigh-university-libraries/picturebook/internal/metrics"
	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/storage"
	"github.com/lehigh-university-libraries/picturebook/internal/storytelling"
)

// ErrInvalidLength is returned for story lengths outside 50..300 step 50.
var ErrInvalidLength = errors.New("invalid story length")

var (
	// ErrNoImage is returned when a request carries neither bytes nor a URL.
	ErrNoImage = errors.New("no image provided")

	// ErrImageTooLarge is returned for uploads over fetch.max_bytes.
	ErrImageTooLarge = errors.New("image too large")
)

// State is a step of the per-request state machine.
type State string

const (
	StateIdle            State = "idle"
	StateImageAcquired   State = "image_acquired"
	StateModelsReady     State = "models_ready"
	StateDescribing      State = "describing"
	StateDescribeDone    State = "describing:done"
	StateDescribeFailed  State = "describing:failed"
	StateGenerating      State = "generating"
	StateGenerateDone    State = "generating:done"
	StateGenerateFailed  State = "generating:failed"
	StateHistoryAppended State = "history_appended"
)

// Stages named in StageError.
const (
	StageInput    = "input"
	StageAcquire  = "acquire"
	StageLoad     = "load"
	StageDescribe = "describe"
	StageGenerate = "generate"
	StageHistory  = "history"
)

// StageError reports where a run stopped.
type StageError struct {
	Stage string
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Request is one story request. Exactly one of Image or URL is used; Image
// wins when both are set.
type Request struct {
	Image       []byte
	Filename    string
	URL         string
	Style       string
	Length      int
	Lightweight bool
}

// Result is a completed run. Degraded is set when a fallback stood in for a
// model that failed to load.
type Result struct {
	State    State                `json:"state"`
	Image    models.Image         `json:"image"`
	Caption  models.CaptionResult `json:"caption"`
	Story    models.StoryResult   `json:"story"`
	Record   models.HistoryRecord `json:"record"`
	Degraded bool                 `json:"degraded"`
}

// App holds the long-lived state shared by every request.
type App struct {
	Loader           *loader.Loader
	Fetcher          *images.Fetcher
	History          storage.History
	InferenceTimeout time.Duration
	ThumbnailPx      int
	MaxUploadBytes   int64
}

// New builds an App from cfg, opening the configured history store.
func New(ctx context.Context, cfg *config.Config, opts ...loader.Option) (*App, error) {
	var (
		history storage.History
		err     error
	)
	switch cfg.History.Backend {
	case config.HistorySQLite:
		history, err = storage.NewSQLiteStore(ctx, cfg.History.DSN, cfg.History.MaxRecords)
		if err != nil {
			return nil, err
		}
	default:
		history = storage.NewMemoryStore(cfg.History.MaxRecords)
	}

	opts = append([]loader.Option{loader.WithNotifier(metricsNotifier{loader.SlogNotifier{}})}, opts...)
	return &App{
		Loader:           loader.New(cfg, opts...),
		Fetcher:          images.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.MaxBytes),
		History:          history,
		InferenceTimeout: cfg.Inference.Timeout,
		ThumbnailPx:      cfg.History.ThumbnailPx,
		MaxUploadBytes:   cfg.Fetch.MaxBytes,
	}, nil
}

// Close releases the history store.
func (a *App) Close() error {
	return a.History.Close()
}

// Run executes req. Every failure is returned as a *StageError and nothing
// is appended to history unless both caption and story succeed.
func (a *App) Run(ctx context.Context, req Request) (result *Result, err error) {
	state := StateIdle
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Pipeline panicked", "state", state, "panic", r)
			result = nil
			err = &StageError{Stage: "internal", State: state, Err: fmt.Errorf("panic: %v", r)}
		}
		outcome := string(state)
		if err != nil {
			var se *StageError
			if errors.As(err, &se) {
				outcome = string(se.State)
			}
		}
		metrics.Requests.WithLabelValues(outcome).Inc()
	}()

	fail := func(stage string, err error) (*Result, error) {
		slog.Error("Story request failed", "stage", stage, "state", state, "err", err)
		return nil, &StageError{Stage: stage, State: state, Err: err}
	}

	length := req.Length
	if length == 0 {
		length = config.DefaultStoryLength
	}
	if !config.ValidStoryLength(length) {
		return fail(StageInput, fmt.Errorf("%w: %d (must be %d-%d in steps of %d)",
			ErrInvalidLength, length, config.MinStoryLength, config.MaxStoryLength, config.StoryLengthStep))
	}

	style, err := models.ParseStyle(req.Style)
	if err != nil {
		slog.Warn("Unknown style, using the generic template", "style", req.Style)
	}

	// Image acquisition
	start := time.Now()
	img, err := a.acquire(ctx, req)
	observe(StageAcquire, start, err)
	if err != nil {
		return fail(StageAcquire, err)
	}
	state = StateImageAcquired
	metrics.ImageBytes.Observe(float64(len(img.Data)))
	slog.Info("Image acquired", "source", img.Source, "format", img.Format, "width", img.Width, "height", img.Height)

	// Models
	start = time.Now()
	bundle, err := a.Loader.Load(ctx, req.Lightweight)
	observe(StageLoad, start, err)
	if err != nil {
		return fail(StageLoad, err)
	}
	state = StateModelsReady

	// Describe
	state = StateDescribing
	start = time.Now()
	caption, err := a.describe(ctx, img, bundle)
	observe(StageDescribe, start, err)
	if err != nil {
		state = StateDescribeFailed
		return fail(StageDescribe, err)
	}
	state = StateDescribeDone
	slog.Info("Image described", "caption", caption.Text, "source", caption.Source, "model", caption.Model)

	// Generate
	state = StateGenerating
	start = time.Now()
	story, err := a.generate(ctx, caption.Text, style, length, bundle)
	observe(StageGenerate, start, err)
	if err != nil {
		state = StateGenerateFailed
		return fail(StageGenerate, err)
	}
	state = StateGenerateDone

	// History
	thumb, err := images.Thumbnail(img, a.ThumbnailPx)
	if err != nil {
		slog.Warn("Unable to create thumbnail", "err", err)
	}
	meta := *img
	meta.Data = nil
	record := models.HistoryRecord{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now(),
		Image:       meta,
		Thumbnail:   thumb,
		Caption:     *caption,
		Story:       *story,
		Style:       style,
		Lightweight: req.Lightweight,
	}
	if err := a.History.Append(ctx, record); err != nil {
		return fail(StageHistory, fmt.Errorf("failed to append history: %w", err))
	}
	state = StateHistoryAppended
	metrics.HistoryRecords.Inc()
	slog.Info("Story generated", "id", record.ID, "style", style, "length", length, "lightweight", req.Lightweight)

	return &Result{
		State:    state,
		Image:    meta,
		Caption:  *caption,
		Story:    *story,
		Record:   record,
		Degraded: bundle.Degraded(),
	}, nil
}

func (a *App) acquire(ctx context.Context, req Request) (*models.Image, error) {
	switch {
	case len(req.Image) > 0:
		if err := images.CheckExtension(req.Filename); err != nil {
			return nil, err
		}
		if a.MaxUploadBytes > 0 && int64(len(req.Image)) > a.MaxUploadBytes {
			return nil, fmt.Errorf("%w: upload exceeds %d bytes", ErrImageTooLarge, a.MaxUploadBytes)
		}
		return images.Decode(req.Image, req.Filename)
	case req.URL != "":
		data, err := a.Fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return images.Decode(data, req.URL)
	default:
		return nil, ErrNoImage
	}
}

func (a *App) describe(ctx context.Context, img *models.Image, bundle *loader.Bundle) (*models.CaptionResult, error) {
	ctx, cancel := a.inferenceContext(ctx)
	defer cancel()
	return captioning.Describe(ctx, img, bundle)
}

func (a *App) generate(ctx context.Context, caption string, style models.Style, length int, bundle *loader.Bundle) (*models.StoryResult, error) {
	ctx, cancel := a.inferenceContext(ctx)
	defer cancel()
	return storytelling.Generate(ctx, caption, style, length, bundle)
}

func (a *App) inferenceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.InferenceTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.InferenceTimeout)
}

func observe(stage string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.StageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
}

// metricsNotifier counts loader events before passing them on.
type metricsNotifier struct {
	next loader.Notifier
}

func (m metricsNotifier) Notify(e loader.Event) {
	metrics.ModelLoads.WithLabelValues(string(e.Role), string(e.Stage)).Inc()
	m.next.Notify(e)
}
