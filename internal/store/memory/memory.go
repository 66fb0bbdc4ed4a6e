package memory

import (
	"context"
	"sync"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
)

// Store keeps alert records in a map. Used by tests and as a fallback when
// no durable backend is configured; records do not survive restarts.
type Store struct {
	mu      sync.RWMutex
	records map[alerts.Key]alerts.Record
}

func New() *Store {
	return &Store{records: make(map[alerts.Key]alerts.Record)}
}

func (s *Store) Load(ctx context.Context, key alerts.Key) (*alerts.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *Store) Save(ctx context.Context, key alerts.Key, rec alerts.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *Store) LoadAll(ctx context.Context) (map[alerts.Key]alerts.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[alerts.Key]alerts.Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key alerts.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
