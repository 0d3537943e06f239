package store

import (
	"time"

	"github.com/jward/docgap/internal/model"
)

// Analysis cache types

// FileRecord is the cached analysis of one file, keyed by path.
type FileRecord struct {
	ID          int64
	Path        string
	Fingerprint string
	AnalyzedAt  time.Time
	Entities    []model.Entity
}

// Generation cache types

// Generation is a cached documentation proposal for one gap fingerprint.
type Generation struct {
	Text       string
	Confidence float64
	Reasoning  string
	Model      string
	CreatedAt  time.Time
	// ExpiresAt is zero for records without a TTL.
	ExpiresAt time.Time
}

// Run history types

type Run struct {
	ID               string
	Root             string
	StartedAt        time.Time
	FinishedAt       time.Time
	Files            int
	Analyzed         int
	Cached           int
	Skipped          int
	Failed           int
	Entities         int
	Documented       int
	Gaps             int
	Generated        int
	GenerationFailed int
	Coverage         float64
	GapCounts        []GapCount
}

type GapCount struct {
	Type     model.GapType
	Severity model.Severity
	Count    int
}

// CoveragePoint is one documentation coverage snapshot of a root.
type CoveragePoint struct {
	RunID      string
	Root       string
	RecordedAt time.Time
	Total      int
	Documented int
	Coverage   float64
}

type CacheStats struct {
	Files              int `json:"files"`
	Generations        int `json:"generations"`
	ExpiredGenerations int `json:"expired_generations"`
	Runs               int `json:"runs"`
}
