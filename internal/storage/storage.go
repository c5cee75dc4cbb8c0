package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
)

// ErrNotFound is returned by Get for unknown record ids.
var ErrNotFound = errors.New("history record not found")

// History is an append-only, time-ordered log of completed requests
type History interface {
	Append(ctx context.Context, rec models.HistoryRecord) error

	// Recent returns at most n records, most recent first. It does not
	// modify the log.
	Recent(ctx context.Context, n int) ([]models.HistoryRecord, error)

	Get(ctx context.Context, id string) (models.HistoryRecord, error)
	Len(ctx context.Context) (int, error)

	// All returns every record in append order.
	All(ctx context.Context) ([]models.HistoryRecord, error)

	Close() error
}

// MemoryStore keeps history in process memory
type MemoryStore struct {
	records    []models.HistoryRecord
	maxRecords int
	mu         sync.RWMutex
}

var _ History = &MemoryStore{}

// NewMemoryStore returns an empty store. maxRecords > 0 evicts the oldest
// records once the bound is reached; 0 keeps everything.
func NewMemoryStore(maxRecords int) *MemoryStore {
	return &MemoryStore{maxRecords: maxRecords}
}

func (s *MemoryStore) Append(_ context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if s.maxRecords > 0 && len(s.records) > s.maxRecords {
		// Copy down so the evicted records can be collected.
		n := copy(s.records, s.records[len(s.records)-s.maxRecords:])
		clear(s.records[n:])
		s.records = s.records[:n]
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n = min(max(n, 0), len(s.records))
	result := make([]models.HistoryRecord, 0, n)
	for i := len(s.records) - 1; i >= len(s.records)-n; i-- {
		result = append(result, s.records[i])
	}
	return result, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID == id {
			return s.records[i], nil
		}
	}
	return models.HistoryRecord{}, ErrNotFound
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) All(_ context.Context) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.HistoryRecord, len(s.records))
	copy(result, s.records)
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }
