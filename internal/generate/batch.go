package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jward/docgap/internal/store"
)

// Cache is the generation cache consulted before and written after every
// successful call. *store.Store satisfies it.
type Cache interface {
	CachedGeneration(ctx context.Context, fp string) (*store.Generation, error)
	PutGeneration(ctx context.Context, fp string, g store.Generation, ttl time.Duration) error
}

var _ Cache = (*store.Store)(nil)

// BatchConfig controls Batch.
type BatchConfig struct {
	// MaxConcurrent bounds in-flight requests. Zero means 5.
	MaxConcurrent int
	// RequestsPerSecond limits attempt starts. Zero means unlimited.
	RequestsPerSecond float64
	// Timeout bounds each attempt. Zero means no per-call timeout.
	Timeout time.Duration
	Retry   RetryConfig
	Cache   Cache
	TTL     time.Duration
	Logger  *slog.Logger
	// Sleep replaces the backoff wait. Tests use it to skip real delays.
	Sleep SleepFunc
	// OnOutcome observes each finished request as it completes. Skipped
	// requests are not reported. Called concurrently.
	OnOutcome func(Outcome)
}

// DefaultBatchConfig returns the default concurrency and retry settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrent: 5,
		Timeout:       60 * time.Second,
		Retry:         DefaultRetryConfig(),
		TTL:           72 * time.Hour,
	}
}

// Outcome is the per-request result of Batch.
type Outcome struct {
	Request  Request
	Result   Result
	Err      error
	Attempts int
	// Cached is set when the result came from the generation cache.
	Cached bool
	// Skipped is set when cancellation stopped the request before it was
	// dispatched or before its attempts ran out.
	Skipped bool
}

func (o Outcome) OK() bool { return o.Err == nil && !o.Skipped }

// ErrNotDispatched marks outcomes skipped by cancellation.
var ErrNotDispatched = errors.New("generation not dispatched")

type flightResult struct {
	res      Result
	attempts int
	cached   bool
}

// Batch generates documentation for every request with bounded concurrency.
// Outcomes are returned in request order. Concurrent requests with the same
// fingerprint share one call, and later ones hit the cache. Cancelling ctx
// stops dispatch immediately; requests already in flight finish (bounded by
// Timeout) and their successes are cached before Batch returns.
func Batch(ctx context.Context, gen Generator, reqs []Request, cfg BatchConfig) []Outcome {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}

	out := make([]Outcome, len(reqs))
	for i, r := range reqs {
		out[i] = Outcome{Request: r, Err: ErrNotDispatched, Skipped: true}
	}

	var group singleflight.Group
	p := pool.New().WithMaxGoroutines(cfg.MaxConcurrent)
	for i := range reqs {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			req := reqs[i]
			key := req.Fingerprint
			if key == "" {
				key = fmt.Sprintf("#%d", i)
			}
			v, err, _ := group.Do(key, func() (any, error) {
				return generateOne(ctx, gen, req, cfg, limiter, logger)
			})
			o := Outcome{Request: req, Err: err, Skipped: errors.Is(err, ErrNotDispatched)}
			if fr, ok := v.(flightResult); ok {
				o.Result, o.Attempts, o.Cached = fr.res, fr.attempts, fr.cached
			}
			out[i] = o
			if cfg.OnOutcome != nil && !o.Skipped {
				cfg.OnOutcome(o)
			}
		})
	}
	p.Wait()
	return out
}

func generateOne(ctx context.Context, gen Generator, req Request, cfg BatchConfig, limiter *rate.Limiter, logger *slog.Logger) (flightResult, error) {
	if cfg.Cache != nil && req.Fingerprint != "" {
		g, err := cfg.Cache.CachedGeneration(ctx, req.Fingerprint)
		if err != nil {
			logger.Warn("generation cache read failed", "fingerprint", req.Fingerprint, "err", err)
		} else if g != nil {
			return flightResult{
				res:    Result{Text: g.Text, Confidence: g.Confidence, Reasoning: g.Reasoning, Model: g.Model},
				cached: true,
			}, nil
		}
	}

	res, attempts, err := retry(ctx, cfg.Retry, cfg.Timeout, cfg.Sleep, func(attemptCtx context.Context) (Result, error) {
		if err := limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrNotDispatched, err)
		}
		return gen.Generate(attemptCtx, req)
	})
	if err != nil {
		logger.Debug("generation failed",
			"entity", req.Gap.Entity.String(),
			"gap", req.Gap.Type,
			"attempts", attempts,
			"err", err)
		return flightResult{attempts: attempts}, err
	}

	if cfg.Cache != nil && req.Fingerprint != "" {
		g := store.Generation{Text: res.Text, Confidence: res.Confidence, Reasoning: res.Reasoning, Model: res.Model}
		if err := cfg.Cache.PutGeneration(context.WithoutCancel(ctx), req.Fingerprint, g, cfg.TTL); err != nil {
			logger.Warn("generation cache write failed", "fingerprint", req.Fingerprint, "err", err)
		}
	}
	return flightResult{res: res, attempts: attempts}, nil
}
