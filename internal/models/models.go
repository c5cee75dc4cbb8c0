package models

import "time"

// Image is a decoded upload or download. Data holds the original bytes and
// is never modified after decode.
type Image struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // "jpeg", "png", "gif", "webp"
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Source string `json:"source,omitempty"` // file name or URL
}

// CaptionSource records which caption backend variant produced a caption.
type CaptionSource string

const (
	CaptionSourcePipeline       CaptionSource = "pipeline"
	CaptionSourceProcessorModel CaptionSource = "processor_model"
)

// CaptionResult is a description of an image plus its provenance.
type CaptionResult struct {
	Text     string        `json:"text"`
	Source   CaptionSource `json:"source"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
}

// StoryResult is a generated story. Text is the prompt followed by the
// generated continuation.
type StoryResult struct {
	Prompt       string `json:"prompt"`
	Text         string `json:"text"`
	Continuation string `json:"continuation"`
	Style        Style  `json:"style"`
	TargetLength int    `json:"target_length"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
}

// HistoryRecord is one completed request
type HistoryRecord struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	Image       Image         `json:"image"`
	Thumbnail   []byte        `json:"-"`
	Caption     CaptionResult `json:"caption"`
	Story       StoryResult   `json:"story"`
	Style       Style         `json:"style"`
	Lightweight bool          `json:"lightweight"`
}
