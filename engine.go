package docgap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jward/docgap/internal/analyzer"
	"github.com/jward/docgap/internal/config"
	"github.com/jward/docgap/internal/gaps"
	"github.com/jward/docgap/internal/generate"
	"github.com/jward/docgap/internal/metrics"
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/runtime"
	"github.com/jward/docgap/internal/store"
)

// State is the stage a run is in.
type State string

const (
	StateIdle        State = "idle"
	StateWalking     State = "walking"
	StateAnalyzing   State = "analyzing"
	StateDetecting   State = "detecting"
	StateGenerating  State = "generating"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
)

// Stage names used in diagnostics and stage metrics.
const (
	StageWalk      = "walk"
	StageAnalyze   = "analyze"
	StageRules     = "rules"
	StageDetect    = "detect"
	StageGenerate  = "generate"
	StageAggregate = "aggregate"
	StageApply     = "apply"
)

// Engine orchestrates a documentation-gap run: file discovery, cached
// analysis, gap detection, optional generation and aggregation.
type Engine struct {
	store    *store.Store
	registry *analyzer.Registry
	detector *gaps.Detector
	runtime  *runtime.Runtime
	rules    []runtime.Rule
	rulesFS  fs.FS
	metrics  *metrics.Metrics
	logger   *slog.Logger
	gen      generate.Generator
	dirFS    func(root string) fs.FS

	cfg         *config.Config
	overrides   []func(*config.Config)
	minSeverity model.Severity
	style       model.DocStyle
	write       bool
	debounce    time.Duration

	// runMu serializes runs on one engine.
	runMu     sync.Mutex
	mu        sync.Mutex
	state     State
	stateHook func(State)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine, its store and rule scripts.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConfig replaces the default configuration. The other options that
// touch configuration fields apply on top of it regardless of order.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg != nil {
			c := *cfg
			e.cfg = &c
		}
	}
}

// WithRegistry replaces the default analyzer registry.
func WithRegistry(r *analyzer.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(e *Engine) {
		e.stateHook = fn
	}
}

// WithGitListing lists files with git ls-files when root is a repository,
// so .gitignore is respected. Falls back to a directory walk.
func WithGitListing(enabled bool) Option {
	return func(e *Engine) {
		e.overrides = append(e.overrides, func(c *config.Config) { c.GitListing = enabled })
	}
}

// WithParallelAnalysis analyzes files with n workers. Zero analyzes serially.
func WithParallelAnalysis(n int) Option {
	return func(e *Engine) {
		e.overrides = append(e.overrides, func(c *config.Config) { c.ParallelAnalysis = n })
	}
}

// WithIncremental controls whether cached analyses are reused. When false,
// every file is re-analyzed but the cache is still written.
func WithIncremental(enabled bool) Option {
	return func(e *Engine) {
		e.overrides = append(e.overrides, func(c *config.Config) { c.Incremental = enabled })
	}
}

// WithGenerator enables the generation stage.
func WithGenerator(g generate.Generator) Option {
	return func(e *Engine) {
		e.gen = g
	}
}

// WithWrite allows Apply to modify source files.
func WithWrite(enabled bool) Option {
	return func(e *Engine) {
		e.write = enabled
	}
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRulesFS loads rule scripts from fsys instead of the configured
// rules directory. This enables embedding rules via go:embed.
func WithRulesFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.rulesFS = fsys
	}
}

// WithDebounce sets how long Watch waits for changes to settle.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// New creates an Engine backed by a SQLite database at dbPath. An invalid
// configuration is reported as a *config.ConfigError before the store is
// opened.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      config.Default(),
		registry: analyzer.Default(),
		logger:   slog.Default(),
		state:    StateIdle,
		debounce: 500 * time.Millisecond,
		dirFS:    os.DirFS,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, o := range e.overrides {
		o(e.cfg)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	// Both were validated above.
	e.minSeverity, _ = model.ParseSeverity(e.cfg.MinSeverity)
	e.style, _ = model.ParseDocStyle(e.cfg.Style)

	e.detector = gaps.New(e.cfg.Gaps, gaps.WithSkipHook(func(s gaps.SkippedCheck) {
		e.logger.Warn("gap check skipped", "entity", s.Entity.String(), "check", s.Check, "reason", s.Reason)
	}))

	rtOpts := []runtime.RuntimeOption{runtime.WithLogger(e.logger)}
	if e.rulesFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.rulesFS))
	}
	e.runtime = runtime.NewRuntime(e.cfg.RulesDir, rtOpts...)
	rules, err := e.runtime.LoadRules()
	if err != nil {
		return nil, fmt.Errorf("docgap: %w", err)
	}
	e.rules = rules

	s, err := store.NewStore(dbPath, store.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("docgap: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("docgap: migrate: %w", err)
	}
	e.store = s
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() config.Config {
	return *e.cfg
}

// Rules returns the names of the loaded rule scripts.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

// State returns the stage of the current or most recent run.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	hook := e.stateHook
	e.mu.Unlock()
	e.logger.Debug("run state", "state", string(s))
	if hook != nil {
		hook(s)
	}
}

// Run analyzes root and returns its gaps. Per-file failures are reported in
// the report's diagnostics rather than returned. When ctx is canceled during
// generation, the partial report is returned together with the context
// error; gaps left without documentation are picked up by Resume.
func (e *Engine) Run(ctx context.Context, root string) (*Report, error) {
	return e.run(ctx, root, false)
}

// Resume re-runs root after an interrupted run. Files whose cache record is
// fresh are served from the cache even when incremental analysis is
// disabled, and gaps without a cached generation are attempted again.
func (e *Engine) Resume(ctx context.Context, root string) (*Report, error) {
	return e.run(ctx, root, true)
}

func (e *Engine) run(ctx context.Context, root string, resume bool) (*Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("docgap: resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("docgap: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docgap: %s is not a directory", absRoot)
	}

	p := newPass(absRoot, ulid.Make().String(), resume)
	e.logger.Info("run started", "run", p.report.RunID, "root", absRoot, "resume", resume)

	fail := func(err error) (*Report, error) {
		e.setState(StateIdle)
		return nil, err
	}

	e.setState(StateWalking)
	start := time.Now()
	files, err := e.listFiles(ctx, absRoot, func(rel string, err error) {
		p.diag(rel, StageWalk, err)
	})
	if err != nil {
		return fail(err)
	}
	e.metrics.Stage(StageWalk, start)

	e.setState(StateAnalyzing)
	start = time.Now()
	var entities []model.Entity
	if e.cfg.ParallelAnalysis > 0 {
		entities, err = e.analyzeParallel(ctx, p, files)
	} else {
		entities, err = e.analyzeSerial(ctx, p, files)
	}
	if err != nil {
		return fail(err)
	}
	e.metrics.Stage(StageAnalyze, start)

	e.setState(StateDetecting)
	start = time.Now()
	found, err := e.detect(ctx, p, entities)
	if err != nil {
		return fail(err)
	}
	e.metrics.Stage(StageDetect, start)

	var genErr error
	if e.gen != nil {
		e.setState(StateGenerating)
		start = time.Now()
		genErr = e.generate(ctx, p, entities, found)
		e.metrics.Stage(StageGenerate, start)
	}

	e.setState(StateAggregating)
	start = time.Now()
	e.aggregate(context.WithoutCancel(ctx), p, entities, found)
	e.metrics.Stage(StageAggregate, start)

	e.setState(StateDone)
	st := p.report.Stats
	e.logger.Info("run finished",
		"run", p.report.RunID,
		"files", st.Files,
		"entities", st.Entities,
		"gaps", st.Gaps,
		"coverage", st.Coverage,
		"failed", st.Failed,
		"duration", st.Duration)
	return p.report, genErr
}

// pass holds the state of one run.
type pass struct {
	root    string
	resume  bool
	report  *Report
	sources map[string][]byte
}

func newPass(root, runID string, resume bool) *pass {
	return &pass{
		root:   root,
		resume: resume,
		report: &Report{
			RunID:     runID,
			Root:      root,
			StartedAt: time.Now(),
			Resumed:   resume,
		},
		sources: make(map[string][]byte),
	}
}

func (p *pass) abs(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

func (p *pass) diag(path, stage string, err error) {
	p.report.Diagnostics = append(p.report.Diagnostics, Diagnostic{Path: path, Stage: stage, Err: err})
}

// source returns the contents of a root-relative file, read once per run.
func (p *pass) source(rel string) ([]byte, error) {
	if src, ok := p.sources[rel]; ok {
		return src, nil
	}
	src, err := os.ReadFile(p.abs(rel))
	if err != nil {
		return nil, err
	}
	p.sources[rel] = src
	return src, nil
}

// entitySource returns the entity's text, or nil when the file can no
// longer be read or has shrunk since analysis.
func (p *pass) entitySource(e model.Entity) []byte {
	src, err := p.source(e.Location.File)
	if err != nil {
		return nil
	}
	start, end := e.Location.StartByte, e.Location.EndByte
	if start < 0 || end > len(src) || start > end {
		return nil
	}
	return src[start:end]
}
