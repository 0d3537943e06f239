package store

import (
	"sync"

	"github.com/jward/docgap/internal/model"
)

// Batch buffers analysis results from parallel workers in memory. Nothing
// reaches SQLite until Store.CommitBatch writes the buffer in one
// transaction.
//
// Thread safety: the mutex protects the record slice. Workers call Add
// concurrently; CommitBatch runs after every worker has finished.
type Batch struct {
	mu      sync.Mutex
	records []FileRecord
}

func NewBatch() *Batch {
	return &Batch{}
}

// Add buffers the analysis of path.
func (b *Batch) Add(path, fingerprint string, entities []model.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, FileRecord{Path: path, Fingerprint: fingerprint, Entities: entities})
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Records returns a copy of the buffered records.
func (b *Batch) Records() []FileRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FileRecord, len(b.records))
	copy(out, b.records)
	return out
}
