package cache

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps records in process memory. Used in tests and when no
// persistent backend is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Key] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.records, k)
	}
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for k, rec := range s.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneRecord(r Record) Record {
	r.Value = append([]byte(nil), r.Value...)
	return r
}
