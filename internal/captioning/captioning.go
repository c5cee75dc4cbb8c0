// Package captioning turns an image into a short text description using one
// of two backend variants selected when models are loaded.
package captioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
)

// ErrNoCaptioner is returned when neither caption backend loaded.
var ErrNoCaptioner = errors.New("no captioning backend available")

// Backend is implemented by Pipeline and ProcessorModelPair only.
type Backend interface {
	Source() models.CaptionSource
	Provider() string
	Model() string
	caption(ctx context.Context, img *models.Image) (string, error)
}

// Capabilities exposes the caption backend chosen at load time. It is
// satisfied by a loaded model bundle.
type Capabilities interface {
	CaptionBackend() Backend
}

// DescribeError is returned for every failed description attempt.
type DescribeError struct {
	Source models.CaptionSource
	Err    error
}

func (e *DescribeError) Error() string {
	if e.Source == "" {
		return "describe failed: " + e.Err.Error()
	}
	return fmt.Sprintf("describe failed (%s): %s", e.Source, e.Err)
}

func (e *DescribeError) Unwrap() error { return e.Err }

// Describe captions img with the backend exposed by caps. It never panics;
// every failure comes back as a *DescribeError.
func Describe(ctx context.Context, img *models.Image, caps Capabilities) (result *models.CaptionResult, err error) {
	var backend Backend
	if caps != nil {
		backend = caps.CaptionBackend()
	}
	if backend == nil {
		return nil, &DescribeError{Err: ErrNoCaptioner}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Caption backend panicked", "source", backend.Source(), "panic", r)
			result = nil
			err = &DescribeError{Source: backend.Source(), Err: fmt.Errorf("backend panic: %v", r)}
		}
	}()

	text, err := backend.caption(ctx, img)
	if err != nil {
		return nil, &DescribeError{Source: backend.Source(), Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &DescribeError{Source: backend.Source(), Err: errors.New("backend returned an empty caption")}
	}

	return &models.CaptionResult{
		Text:     text,
		Source:   backend.Source(),
		Provider: backend.Provider(),
		Model:    backend.Model(),
	}, nil
}
