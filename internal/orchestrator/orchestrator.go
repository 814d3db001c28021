// Package orchestrator implements the bounded-concurrency, self-feeding
// worker pool that sequences variant generation, prompt rewriting, rate
// limiting, provider dispatch, deduplication, and persistence for one run.
// It is the core of the pipeline; every other internal package is a
// component it drives.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hurricanerix/imggen/internal/backoff"
	"github.com/hurricanerix/imggen/internal/dedupe"
	"github.com/hurricanerix/imggen/internal/events"
	"github.com/hurricanerix/imggen/internal/logging"
	"github.com/hurricanerix/imggen/internal/persistence"
	"github.com/hurricanerix/imggen/internal/provider"
	"github.com/hurricanerix/imggen/internal/ratelimit"
	"github.com/hurricanerix/imggen/internal/rewrite"
	"github.com/hurricanerix/imggen/internal/variant"
)

// Config holds the per-run orchestrator settings.
type Config struct {
	RunID  string
	OutDir string

	TargetImages uint64
	Concurrency  int
	QueueCap     int
	RatePerMin   int

	BackoffBaseMS   int64
	BackoffFactor   float64
	BackoffJitterMS int64
	MaxAttempts     int

	Resume bool
}

// Extras bundles the optional pipeline stages.
type Extras struct {
	Rewriter     rewrite.Rewriter
	RewriteCache *rewrite.Cache
	Deduper      *dedupe.Deduper
	Post         persistence.PostConfig
}

// jobRecord flows from the producer/self-feeding workers to a worker body.
type jobRecord struct {
	id     uint64
	prompt string
}

// Orchestrator drives one run to completion. It must be constructed with
// New and used for exactly one Run call.
type Orchestrator struct {
	cfg      Config
	provider provider.Provider
	gen      *variant.Generator
	limiter  *ratelimit.Limiter
	bus      *events.Bus
	extras   Extras
	logger   *logging.Logger

	store           *persistence.Store
	completed       uint64
	targetRemaining uint64

	persisted    atomic.Uint64
	issued       atomic.Uint64
	outstanding  atomic.Int64
	nextID       atomic.Uint64
	skippedDupes atomic.Uint64

	// progressMu serializes the persisted increment with its Progress
	// publish so Progress.done never goes backwards on the bus.
	progressMu sync.Mutex

	closeOnce sync.Once
}

// New constructs an Orchestrator. logger may be nil.
func New(cfg Config, prov provider.Provider, gen *variant.Generator, limiter *ratelimit.Limiter, bus *events.Bus, extras Extras, logger *logging.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = cfg.Concurrency * 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger != nil {
		logger = logger.WithRunID(cfg.RunID)
	}
	return &Orchestrator{
		cfg:      cfg,
		provider: prov,
		gen:      gen,
		limiter:  limiter,
		bus:      bus,
		extras:   extras,
		logger:   logger,
	}
}

// SkippedDupes returns the number of dedupe-dropped jobs observed so far.
func (o *Orchestrator) SkippedDupes() uint64 {
	return o.skippedDupes.Load()
}

// Run executes the pipeline to completion: it seeds the initial batch of
// jobs, dispatches them to a bounded worker pool, lets workers self-feed
// replacement jobs as artifacts land, and returns once every worker has
// exited and the queue has drained. It emits Started/Progress/Finished (or
// Failed) events on bus as it goes.
func (o *Orchestrator) Run(ctx context.Context) error {
	store, err := persistence.NewStore(o.cfg.OutDir)
	if err != nil {
		o.bus.Publish(events.Failed(o.cfg.RunID, err.Error()))
		return fmt.Errorf("open persistence store: %w", err)
	}
	o.store = store

	completed := uint64(0)
	if o.cfg.Resume {
		lines, err := store.Manifest().LineCount()
		if err != nil {
			o.bus.Publish(events.Failed(o.cfg.RunID, err.Error()))
			return fmt.Errorf("read manifest for resume: %w", err)
		}
		completed = uint64(lines)
	}
	o.completed = completed
	o.nextID.Store(completed + 1)

	if o.cfg.TargetImages > completed {
		o.targetRemaining = o.cfg.TargetImages - completed
	} else {
		o.targetRemaining = 0
	}

	o.bus.Publish(events.Started(o.cfg.RunID, o.cfg.TargetImages))
	o.log("run %s started: target=%d completed=%d remaining=%d", o.cfg.RunID, o.cfg.TargetImages, completed, o.targetRemaining)

	if o.targetRemaining == 0 {
		o.bus.Publish(events.Finished(o.cfg.RunID))
		return nil
	}

	queue := make(chan jobRecord, o.cfg.QueueCap)
	semaphore := make(chan struct{}, o.cfg.Concurrency)
	var wg sync.WaitGroup

	initial := o.targetRemaining
	if cap2 := uint64(2 * o.cfg.Concurrency); cap2 < initial {
		initial = cap2
	}
	if qc := uint64(o.cfg.QueueCap); qc < initial {
		initial = qc
	}
	for i := uint64(0); i < initial; i++ {
		if !o.tryIssue(ctx, queue) {
			break
		}
	}

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		for job := range queue {
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(j jobRecord) {
				defer wg.Done()
				defer func() { <-semaphore }()
				o.processJob(ctx, j)
				o.outstanding.Add(-1)
				if !o.tryIssue(ctx, queue) {
					o.maybeClose(queue)
				}
			}(job)
		}
	}()

	// Guards the degenerate case where the initial seed loop issued nothing
	// (impossible given targetRemaining > 0 and concurrency/queue_cap >= 1,
	// but cheap to keep the invariant airtight).
	o.maybeClose(queue)

	<-dispatcherDone
	wg.Wait()

	o.bus.Publish(events.Finished(o.cfg.RunID))
	o.log("run %s finished: persisted=%d skipped_dupes=%d", o.cfg.RunID, o.persisted.Load(), o.skippedDupes.Load())
	return nil
}

// tryIssue assigns the next id/prompt pair and pushes it to the queue, if
// the run still needs more persisted artifacts and ctx is not done. It
// reserves outstanding-work accounting before sending so a concurrent
// maybeClose never closes the queue out from under it.
//
// Total issuance this run is capped at targetRemaining. Without this cap, a
// pathological dedupe configuration that rejects every artifact (e.g. a
// threshold spanning the whole hash space) would have workers replace
// dropped jobs forever, since "persisted below target" never becomes false
// on its own. Capping issuance bounds a run to at most targetRemaining
// attempts, trading a literal reading of "replace while persisted < target"
// for one that actually terminates; it also matches the spec's own S2
// scenario (target=5, maximally permissive dedupe) expecting exactly 5
// attempts and 1 persisted result, not an unbounded hunt for 5 successes.
func (o *Orchestrator) tryIssue(ctx context.Context, queue chan<- jobRecord) bool {
	if ctx.Err() != nil {
		return false
	}
	if o.persisted.Load() >= o.targetRemaining {
		return false
	}
	for {
		cur := o.issued.Load()
		if cur >= o.targetRemaining {
			return false
		}
		if o.issued.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	id := o.nextID.Add(1) - 1
	prompt := o.gen.Next()
	o.outstanding.Add(1)
	queue <- jobRecord{id: id, prompt: prompt}
	return true
}

// maybeClose closes the queue exactly once, when no more replacement jobs
// will ever be issued (issuance has reached its targetRemaining cap) and no
// job is still queued or in flight. This is the "requested count" drain condition
// the continuous self-feeding design calls for: closing any earlier would
// drop valid continuation work still being produced by in-flight workers.
func (o *Orchestrator) maybeClose(queue chan jobRecord) {
	if o.issued.Load() >= o.targetRemaining && o.outstanding.Load() == 0 {
		o.closeOnce.Do(func() { close(queue) })
	}
}

// processJob runs one job through the full worker body: rate limit,
// rewrite, generate-with-retry, dedupe, persist. It never returns an error;
// every failure path is logged and the job is simply dropped, per the
// spec's "never abort a run because of one job" error model.
func (o *Orchestrator) processJob(ctx context.Context, job jobRecord) {
	o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d generated prompt", job.id)))

	if err := o.limiter.Acquire(ctx); err != nil {
		o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d cancelled waiting for rate limiter", job.id)))
		return
	}

	promptUsed := job.prompt
	originalPrompt := job.prompt
	rewrittenPrompt := ""
	if o.extras.Rewriter != nil {
		promptUsed, rewrittenPrompt = o.applyRewrite(ctx, job.id, job.prompt)
	}

	artifact, genErr := o.generateWithRetry(ctx, job.id, promptUsed)
	if genErr != nil {
		return
	}

	phash := ""
	if o.extras.Deduper != nil {
		isDup, hashB64, err := o.extras.Deduper.CheckAndInsert(artifact.Bytes)
		if err != nil {
			o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d dedupe error: %v", job.id, err)))
		} else if isDup {
			o.skippedDupes.Add(1)
			o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d dedupe: dropped", job.id)))
			return
		} else {
			phash = hashB64
		}
	}

	entry, warnings, err := o.store.Write(persistence.WriteRequest{
		ID:              job.id,
		RunID:           o.cfg.RunID,
		Provider:        o.provider.Name(),
		Model:           o.provider.Model(),
		Prompt:          promptUsed,
		OriginalPrompt:  originalPrompt,
		RewrittenPrompt: rewrittenPrompt,
		Width:           artifact.Width,
		Height:          artifact.Height,
		CostUSD:         o.provider.PriceUSDPerImage(),
		Phash:           phash,
		PNGBytes:        artifact.Bytes,
		Post:            o.extras.Post,
	})
	if err != nil {
		o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d persist failed: %v", job.id, err)))
		return
	}
	for _, w := range warnings {
		o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d %s", job.id, w)))
	}

	o.progressMu.Lock()
	runDone := o.persisted.Add(1)
	totalDone := o.completed + runDone
	costSoFar := float64(totalDone) * o.provider.PriceUSDPerImage()
	o.bus.Publish(events.Progress(o.cfg.RunID, totalDone, o.cfg.TargetImages, costSoFar))
	o.progressMu.Unlock()
	o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d saved to %s", job.id, entry.Path)))
}

// applyRewrite looks up the rewrite cache, falling back to calling the
// configured rewriter on miss and write-through caching the result. Any
// rewrite failure or empty result falls back to the original prompt.
func (o *Orchestrator) applyRewrite(ctx context.Context, id uint64, original string) (promptUsed, rewritten string) {
	key := rewrite.CacheKey(o.extras.Rewriter, original)

	if o.extras.RewriteCache != nil {
		if cached, ok := o.extras.RewriteCache.Get(key); ok {
			o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d cache hit", id)))
			return cached, cached
		}
	}

	out, err := o.extras.Rewriter.Rewrite(ctx, original)
	if err != nil || out == "" {
		o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d rewrite failed, using original", id)))
		return original, ""
	}

	if o.extras.RewriteCache != nil {
		if err := o.extras.RewriteCache.Put(key, out); err != nil {
			o.log("rewrite cache write failed for #%d: %v", id, err)
		}
	}
	o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d cache miss, rewrote prompt", id)))
	return out, out
}

// generateWithRetry calls the provider under the configured bounded retry
// loop, sleeping with the backoff policy between RateLimited/Transient
// attempts. Fatal errors abort the job immediately; retry exhaustion drops
// it with a log event and no manifest entry, per the spec's error-handling
// design.
func (o *Orchestrator) generateWithRetry(ctx context.Context, id uint64, prompt string) (provider.Artifact, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		artifact, err := o.provider.Generate(ctx, prompt)
		if err == nil {
			return artifact, nil
		}
		lastErr = err

		if provider.Is(err, provider.KindFatal) {
			o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d fatal provider error: %v", id, err)))
			return provider.Artifact{}, err
		}

		if attempt == o.cfg.MaxAttempts {
			o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d exhausted retries: %v", id, err)))
			return provider.Artifact{}, err
		}

		delayMS := backoff.Delay(attempt, o.cfg.BackoffBaseMS, o.cfg.BackoffFactor, o.cfg.BackoffJitterMS)
		o.bus.Publish(events.Log(o.cfg.RunID, fmt.Sprintf("#%d attempt %d failed (%v), retrying in %dms", id, attempt, err, delayMS)))
		timer := time.NewTimer(time.Duration(delayMS) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return provider.Artifact{}, ctx.Err()
		}
		timer.Stop()
	}
	return provider.Artifact{}, lastErr
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Info(format, args...)
	}
}
