package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
)

//go:embed db/latest_schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

const recordColumns = `id, created_at, image_source, image_format, image_width, image_height,
	thumbnail, caption, caption_source, caption_provider, caption_model,
	story_prompt, story, continuation, style, target_length, story_provider, story_model, lightweight`

// SQLiteStore keeps history in a SQLite database. With the ":memory:" DSN
// nothing outlives the process.
type SQLiteStore struct {
	db         *sql.DB
	maxRecords int
}

var _ History = &SQLiteStore{}

// NewSQLiteStore opens dsn and brings its schema up to date
func NewSQLiteStore(ctx context.Context, dsn string, maxRecords int) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	sqldb.SetMaxOpenConns(1)

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if err := schema.Apply(ctx, sqldb); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &SQLiteStore{db: sqldb, maxRecords: maxRecords}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec models.HistoryRecord) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	_, err = txn.ExecContext(ctx, `INSERT INTO history (`+recordColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.CreatedAt.UnixNano(),
		rec.Image.Source, rec.Image.Format, rec.Image.Width, rec.Image.Height,
		rec.Thumbnail,
		rec.Caption.Text, string(rec.Caption.Source), rec.Caption.Provider, rec.Caption.Model,
		rec.Story.Prompt, rec.Story.Text, rec.Story.Continuation, string(rec.Style), rec.Story.TargetLength,
		rec.Story.Provider, rec.Story.Model, rec.Lightweight,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	if s.maxRecords > 0 {
		_, err = txn.ExecContext(ctx,
			`DELETE FROM history WHERE seq NOT IN (SELECT seq FROM history ORDER BY seq DESC LIMIT ?)`,
			s.maxRecords)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}

	return txn.Commit()
}

func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]models.HistoryRecord, error) {
	if n <= 0 {
		return []models.HistoryRecord{}, nil
	}
	return s.query(ctx, `SELECT `+recordColumns+` FROM history ORDER BY seq DESC LIMIT ?`, n)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) All(ctx context.Context) ([]models.HistoryRecord, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM history ORDER BY seq ASC`)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.HistoryRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.HistoryRecord, error) {
	var (
		rec                                   models.HistoryRecord
		createdAt                             int64
		source, format                        sql.NullString
		captionSource, captionProv, captionMd sql.NullString
		prompt, continuation                  sql.NullString
		storyProv, storyModel                 sql.NullString
		width, height, targetLength           sql.NullInt64
		style                                 string
	)
	err := row.Scan(
		&rec.ID, &createdAt, &source, &format, &width, &height,
		&rec.Thumbnail, &rec.Caption.Text, &captionSource, &captionProv, &captionMd,
		&prompt, &rec.Story.Text, &continuation, &style, &targetLength, &storyProv, &storyModel, &rec.Lightweight,
	)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	rec.CreatedAt = time.Unix(0, createdAt)
	rec.Image = models.Image{
		Source: source.String,
		Format: format.String,
		Width:  int(width.Int64),
		Height: int(height.Int64),
	}
	rec.Caption.Source = models.CaptionSource(captionSource.String)
	rec.Caption.Provider = captionProv.String
	rec.Caption.Model = captionMd.String
	rec.Style = models.Style(style)
	rec.Story.Prompt = prompt.String
	rec.Story.Continuation = continuation.String
	rec.Story.Style = rec.Style
	rec.Story.TargetLength = int(targetLength.Int64)
	rec.Story.Provider = storyProv.String
	rec.Story.Model = storyModel.String
	return rec, nil
}
