package docgap

import (
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/store"
)

// Public type aliases for the internal model and store types that appear in
// the Engine API.

type Entity = model.Entity
type EntityRef = model.EntityRef
type Gap = model.Gap
type GapType = model.GapType
type Severity = model.Severity
type DocInfo = model.DocInfo
type Run = store.Run
type GapCount = store.GapCount
type CoveragePoint = store.CoveragePoint
type CacheStats = store.CacheStats
