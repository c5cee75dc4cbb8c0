package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
)

// Export formats
const (
	FormatParquet = "parquet"
	FormatJSONL   = "jsonl"
	FormatYAML    = "yaml"
)

// ExportRecord is the flattened form of a HistoryRecord used by every export
// format. Thumbnails are only carried by parquet.
type ExportRecord struct {
	ID              string `parquet:"id" json:"id" yaml:"id"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms" json:"created_at_unix_ms" yaml:"createdatunixms"`
	ImageSource     string `parquet:"image_source" json:"image_source" yaml:"imagesource"`
	ImageFormat     string `parquet:"image_format" json:"image_format" yaml:"imageformat"`
	ImageWidth      int32  `parquet:"image_width" json:"image_width" yaml:"imagewidth"`
	ImageHeight     int32  `parquet:"image_height" json:"image_height" yaml:"imageheight"`
	Caption         string `parquet:"caption" json:"caption" yaml:"caption"`
	CaptionSource   string `parquet:"caption_source" json:"caption_source" yaml:"captionsource"`
	CaptionModel    string `parquet:"caption_model" json:"caption_model" yaml:"captionmodel"`
	Style           string `parquet:"style" json:"style" yaml:"style"`
	TargetLength    int32  `parquet:"target_length" json:"target_length" yaml:"targetlength"`
	Story           string `parquet:"story" json:"story" yaml:"story"`
	StoryModel      string `parquet:"story_model" json:"story_model" yaml:"storymodel"`
	Lightweight     bool   `parquet:"lightweight" json:"lightweight" yaml:"lightweight"`
	Thumbnail       []byte `parquet:"thumbnail" json:"-" yaml:"-"`
}

// NewExportRecord flattens rec
func NewExportRecord(rec models.HistoryRecord) ExportRecord {
	return ExportRecord{
		ID:              rec.ID,
		CreatedAtUnixMs: rec.CreatedAt.UnixMilli(),
		ImageSource:     rec.Image.Source,
		ImageFormat:     rec.Image.Format,
		ImageWidth:      int32(rec.Image.Width),
		ImageHeight:     int32(rec.Image.Height),
		Caption:         rec.Caption.Text,
		CaptionSource:   string(rec.Caption.Source),
		CaptionModel:    rec.Caption.Model,
		Style:           string(rec.Style),
		TargetLength:    int32(rec.Story.TargetLength),
		Story:           rec.Story.Text,
		StoryModel:      rec.Story.Model,
		Lightweight:     rec.Lightweight,
		Thumbnail:       rec.Thumbnail,
	}
}

// ContentType returns the MIME type and file extension for format.
func ContentType(format string) (string, string) {
	switch format {
	case FormatJSONL:
		return "application/x-ndjson", ".jsonl"
	case FormatYAML:
		return "application/yaml", ".yaml"
	default:
		return "application/vnd.apache.parquet", ".parquet"
	}
}

// Export writes every record in h to w in the given format
func Export(ctx context.Context, h History, w io.Writer, format string) (int, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = FormatParquet
	}

	records, err := h.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read history: %w", err)
	}
	rows := make([]ExportRecord, len(records))
	for i, rec := range records {
		rows[i] = NewExportRecord(rec)
	}

	switch format {
	case FormatParquet:
		pw := parquet.NewGenericWriter[ExportRecord](w)
		if _, err := pw.Write(rows); err != nil {
			return 0, fmt.Errorf("failed to write parquet rows: %w", err)
		}
		if err := pw.Close(); err != nil {
			return 0, fmt.Errorf("failed to close parquet writer: %w", err)
		}
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return 0, fmt.Errorf("failed to encode record %s: %w", row.ID, err)
			}
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(struct {
			Records []ExportRecord `yaml:"records"`
		}{rows}); err != nil {
			return 0, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unsupported export format: %s (supported: parquet, jsonl, yaml)", format)
	}

	return len(rows), nil
}
