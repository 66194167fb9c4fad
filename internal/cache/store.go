package cache

import (
	"context"
	"errors"
	"sort"
	"time"
)

var ErrNotFound = errors.New("cache: record not found")

// Record is one stored value with the time it was written.
type Record struct {
	Key       string
	Value     []byte
	Timestamp time.Time
}

// Store is the key-value backend behind ResultCache.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, keys ...string) error
	// Scan returns every record whose key starts with prefix, newest first.
	Scan(ctx context.Context, prefix string) ([]Record, error)
	Close() error
}

func sortNewestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.After(recs[j].Timestamp)
		}
		return recs[i].Key < recs[j].Key
	})
}
