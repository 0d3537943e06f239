package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/docgap/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// writeTestFile creates a source file in a fresh temp dir and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// countingAnalyzer returns one function entity per call and counts calls.
type countingAnalyzer struct {
	calls atomic.Int32
}

func (c *countingAnalyzer) Analyze(_ context.Context, path string) ([]model.Entity, error) {
	n := c.calls.Add(1)
	return []model.Entity{{
		Kind:          model.KindFunction,
		Name:          "add",
		QualifiedName: "calc.add",
		Language:      "python",
		Location:      model.Location{File: filepath.Base(path), StartLine: int(n)},
		Visibility:    model.Public,
	}}, nil
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "generations", "runs", "gap_counts", "coverage"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_BadPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	require.Error(t, err)
}

// =============================================================================
// Analysis cache
// =============================================================================

func TestGetOrAnalyze_UnchangedFileSkipsAnalyzer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTestFile(t, "calc.py", "def add(a, b):\n    return a + b\n")
	a := &countingAnalyzer{}

	first, hit, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, first, 1)

	second, hit, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, first, second)
}

func TestGetOrAnalyze_OneByteChangeReanalyzes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTestFile(t, "calc.py", "def add(a, b):\n    return a + b\n")
	a := &countingAnalyzer{}

	_, _, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	before, err := s.FileByPath(ctx, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("def add(a, c):\n    return a + b\n"), 0o644))

	entities, hit, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), a.calls.Load())
	assert.Equal(t, 2, entities[0].Location.StartLine)

	after, err := s.FileByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID, "record overwritten in place")
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
	assert.Equal(t, 2, after.Entities[0].Location.StartLine)
}

func TestGetOrAnalyze_CorruptRecordIsMiss(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTestFile(t, "calc.py", "x = 1\n")
	fp, err := FingerprintFile(path)
	require.NoError(t, err)

	_, err = s.DB().Exec("INSERT INTO files (path, fingerprint, analyzed_at, entities) VALUES (?, ?, 0, ?)",
		path, fp, "{not json")
	require.NoError(t, err)

	_, err = s.FileByPath(ctx, path)
	var corrupt *CacheCorruption
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, path, corrupt.Path)

	fresh, err := s.IsFresh(ctx, path)
	require.NoError(t, err)
	assert.False(t, fresh)

	a := &countingAnalyzer{}
	entities, hit, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, entities, 1)

	rec, err := s.FileByPath(ctx, path)
	require.NoError(t, err)
	assert.Len(t, rec.Entities, 1)
}

func TestGetOrAnalyze_AnalyzerErrorNotCached(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTestFile(t, "bad.py", "def (")
	boom := errors.New("boom")

	_, _, err := s.GetOrAnalyze(ctx, path, AnalyzerFunc(func(context.Context, string) ([]model.Entity, error) {
		return nil, boom
	}))
	require.ErrorIs(t, err, boom)

	rec, err := s.FileByPath(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetOrAnalyze_MissingFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, _, err := s.GetOrAnalyze(context.Background(), filepath.Join(t.TempDir(), "nope.py"), &countingAnalyzer{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReanalyze_BypassesReadButWrites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTestFile(t, "calc.py", "x = 1\n")
	a := &countingAnalyzer{}

	_, _, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	_, err = s.Reanalyze(ctx, path, a)
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())

	rec, err := s.FileByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Entities[0].Location.StartLine)
}

func TestGetOrAnalyze_SamePathSerializes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTestFile(t, "calc.py", "x = 1\n")

	var inFlight, maxInFlight atomic.Int32
	slow := AnalyzerFunc(func(context.Context, string) ([]model.Entity, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Reanalyze(ctx, path, slow)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 0, s.locks.size(), "lock entries released")
}

func TestClear_DoesNotAffectReturnedEntities(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTestFile(t, "calc.py", "x = 1\n")
	a := &countingAnalyzer{}

	_, _, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	held, hit, err := s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	require.True(t, hit)

	require.NoError(t, s.PutGeneration(ctx, "fp", Generation{Text: "Doc."}, time.Hour))
	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, "calc.add", held[0].QualifiedName)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Files)
	assert.Zero(t, st.Generations)

	_, hit, err = s.GetOrAnalyze(ctx, path, a)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPruneMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	for _, p := range []string{"/a.py", "/b.py", "/c.py"} {
		require.NoError(t, s.PutFile(ctx, &FileRecord{Path: p, Fingerprint: "f"}))
	}

	n, err := s.PruneMissing(ctx, []string{"/b.py"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	paths, err := s.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/b.py"}, paths)
}

// =============================================================================
// Generation cache
// =============================================================================

func TestGenerationCache_RoundTripAndExpiry(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return now }

	g, err := s.CachedGeneration(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, g)

	require.NoError(t, s.PutGeneration(ctx, "short", Generation{Text: "Add two numbers.", Confidence: 0.9, Model: "m"}, time.Hour))
	require.NoError(t, s.PutGeneration(ctx, "forever", Generation{Text: "Keep.", Confidence: 0.5}, 0))

	g, err = s.CachedGeneration(ctx, "short")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Add two numbers.", g.Text)
	assert.InDelta(t, 0.9, g.Confidence, 1e-9)
	assert.True(t, g.CreatedAt.Equal(now))
	assert.True(t, g.ExpiresAt.Equal(now.Add(time.Hour)))

	now = now.Add(2 * time.Hour)
	g, err = s.CachedGeneration(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, g, "expired record is a miss")

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Generations)
	assert.Equal(t, 1, st.ExpiredGenerations)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g, err = s.CachedGeneration(ctx, "forever")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.True(t, g.ExpiresAt.IsZero())
}

func TestPutGeneration_Overwrites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutGeneration(ctx, "fp", Generation{Text: "one"}, time.Hour))
	require.NoError(t, s.PutGeneration(ctx, "fp", Generation{Text: "two"}, time.Hour))

	g, err := s.CachedGeneration(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "two", g.Text)
}

// =============================================================================
// Hashing
// =============================================================================

func TestSignatureHash_IgnoresLocation(t *testing.T) {
	t.Parallel()
	e := model.Entity{
		Kind: model.KindFunction, Name: "add", QualifiedName: "calc.add",
		Signature:  model.Signature{Params: []model.Param{{Name: "a"}, {Name: "b"}}},
		Raises:     []string{"TypeError", "ValueError"},
		Location:   model.Location{File: "calc.py", StartLine: 1},
		Visibility: model.Public,
	}
	moved := e
	moved.Location.StartLine = 40
	moved.Raises = []string{"ValueError", "TypeError"}
	assert.Equal(t, SignatureHash(e), SignatureHash(moved))

	renamed := e
	renamed.Signature.Params = []model.Param{{Name: "a"}, {Name: "c"}}
	assert.NotEqual(t, SignatureHash(e), SignatureHash(renamed))

	documented := e
	documented.Doc = &model.DocInfo{Raw: "Add."}
	assert.NotEqual(t, SignatureHash(e), SignatureHash(documented))
}

func TestGapFingerprint_SensitiveToEveryInput(t *testing.T) {
	t.Parallel()
	base := GapFingerprint("sig", model.GapMissingDocstring, "google", "gpt-4o-mini", 0.3)
	assert.Equal(t, base, GapFingerprint("sig", model.GapMissingDocstring, "google", "gpt-4o-mini", 0.3))
	assert.Len(t, base, 64)

	for _, other := range []string{
		GapFingerprint("sig2", model.GapMissingDocstring, "google", "gpt-4o-mini", 0.3),
		GapFingerprint("sig", model.GapUndocumentedReturn, "google", "gpt-4o-mini", 0.3),
		GapFingerprint("sig", model.GapMissingDocstring, "numpy", "gpt-4o-mini", 0.3),
		GapFingerprint("sig", model.GapMissingDocstring, "google", "llama3", 0.3),
		GapFingerprint("sig", model.GapMissingDocstring, "google", "gpt-4o-mini", 0.7),
	} {
		assert.NotEqual(t, base, other)
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
	assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
}

// =============================================================================
// Run history
// =============================================================================

func TestRecordRun_HistoryAndTrend(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, cov := range []float64{40, 55, 70} {
		start := t0.Add(time.Duration(i) * 24 * time.Hour)
		r := &Run{
			ID: []string{"run-a", "run-b", "run-c"}[i], Root: "/proj",
			StartedAt: start, FinishedAt: start.Add(time.Minute),
			Entities: 10, Documented: int(cov / 10), Gaps: 3 - i, Coverage: cov,
			GapCounts: []GapCount{{Type: model.GapMissingDocstring, Severity: model.SeverityCritical, Count: 3 - i}},
		}
		require.NoError(t, s.RecordRun(ctx, r))
	}
	require.NoError(t, s.RecordRun(ctx, &Run{ID: "other", Root: "/elsewhere", StartedAt: t0, FinishedAt: t0}))

	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
	require.Len(t, runs[1].GapCounts, 1)
	assert.Equal(t, 2, runs[1].GapCounts[0].Count)
	assert.True(t, runs[1].StartedAt.Equal(t0.Add(24*time.Hour)))

	trend, err := s.CoverageTrend(ctx, "/proj", t0.Add(12*time.Hour))
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.InDelta(t, 55.0, trend[0].Coverage, 1e-9)
	assert.InDelta(t, 70.0, trend[1].Coverage, 1e-9)

	all, err := s.CoverageTrend(ctx, "/proj", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Runs)
}

func TestRuns_Empty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	runs, err := s.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
