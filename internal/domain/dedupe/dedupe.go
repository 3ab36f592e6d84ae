// Package dedupe suppresses sale messages that were already accepted.
//
// It only short-circuits repeat submissions at ingress. The sale store's
// unique key stays the authority on whether a sale was persisted.
package dedupe

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/axiesales/pkg/metrics"
)

const defaultMaxSize = 100000

// Deduper records seen sale keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the sale can be submitted again, for example
	// after the queue rejected it.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper keeps the most recently seen keys and evicts the least
// recently used once full.
type inMemoryDeduper struct {
	maxSize int
	seen    *lru.Cache[string, struct{}]
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}

	// lru.New only fails on a non-positive size, which options rule out.
	seen, err := lru.New[string, struct{}](d.maxSize)
	if err != nil {
		panic(err)
	}
	d.seen = seen
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	found, _ := d.seen.ContainsOrAdd(key, struct{}{})
	if found {
		metrics.RecordSaleDuplicate()
	}
	return found
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.seen.Remove(key)
}

func (d *inMemoryDeduper) Size() int64 {
	return int64(d.seen.Len())
}
