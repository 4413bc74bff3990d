package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"torfetch/internal/instance"
	"torfetch/internal/model"
	"torfetch/internal/report"
)

// Fetcher runs one complete fetch including fallback. *fetcher.Engine
// satisfies this.
type Fetcher interface {
	FetchWithFallback(ctx context.Context, videoID string, languages []string) (*model.FetchResult, error)
}

// TitleResolver resolves display titles for fetched videos.
// *transcript.TitleFetcher satisfies this.
type TitleResolver interface {
	Title(ctx context.Context, videoID string) string
}

// FetcherFactory builds the fetcher for one worker slot. The factory
// receives the slot's bound instance and the per-instance rotation lock
// so the engine it builds serializes rotations with every other worker
// on the same instance.
type FetcherFactory func(workerID int, inst model.Instance, rotationLock sync.Locker) Fetcher

// Processor handles concurrent processing of multiple videos.
// It uses errgroup to manage goroutines and respect the worker limit.
//
// Design decision: We use a separate Processor rather than adding batch
// functionality to the engine because:
// 1. It keeps the engine focused on single-fetch execution
// 2. It allows different batch strategies without touching retry logic
// 3. It provides cleaner separation of concerns
type Processor struct {
	// newFetcher creates a fetcher per worker slot. A factory keeps
	// per-slot transport state out of the Processor and lets the caller
	// decide between live rotation and pool-backed connections.
	newFetcher FetcherFactory

	// manager binds worker slots to daemon instances.
	manager *instance.Manager

	// workers is the number of concurrent worker slots.
	workers int

	// titles resolves display titles, nil to skip title lookups.
	titles TitleResolver

	// locks holds one rotation lock per instance id.
	locks map[int]*sync.Mutex

	logger *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the number of concurrent worker slots.
// Default is 3 if not specified.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithTitleResolver enables display title resolution.
func WithTitleResolver(t TitleResolver) Option {
	return func(p *Processor) {
		p.titles = t
	}
}

// WithBatchLogger sets the logger. Defaults to slog.Default().
func WithBatchLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a Processor that builds one fetcher per worker
// slot via the given factory.
func NewProcessor(newFetcher FetcherFactory, manager *instance.Manager, opts ...Option) *Processor {
	p := &Processor{
		newFetcher: newFetcher,
		manager:    manager,
		workers:    3,
		locks:      make(map[int]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	for _, inst := range manager.Instances() {
		p.locks[inst.ID] = &sync.Mutex{}
	}
	return p
}

// Process fetches every video concurrently and returns per-video
// results in input order. Individual failures are recorded in the
// results, not returned: one blocked video must not abort the batch.
// The error return reports context cancellation only.
func (p *Processor) Process(ctx context.Context, videoIDs []string, languages []string) ([]report.VideoResult, error) {
	p.logger.Info("starting batch fetch",
		"total_videos", len(videoIDs),
		"workers", p.workers,
		"instances", p.manager.Count(),
	)
	start := time.Now()

	results := make([]report.VideoResult, len(videoIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, videoID := range videoIDs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// Slot binding is by input index so the instance assignment
			// stays deterministic regardless of scheduling.
			workerID := i % p.workers
			inst := p.manager.Assign(workerID)

			p.logger.Info("fetching video",
				"video_id", videoID,
				"index", i+1,
				"total", len(videoIDs),
				"worker_id", workerID,
				"instance_id", inst.ID,
			)

			f := p.newFetcher(workerID, inst, p.locks[inst.ID])
			results[i] = p.processOne(ctx, f, videoID, languages)
			return nil
		})
	}

	err := g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	p.logger.Info("batch fetch finished",
		"succeeded", succeeded,
		"failed", len(videoIDs)-succeeded,
		"elapsed", time.Since(start).Round(time.Second),
	)
	return results, err
}

// processOne runs one video's fetch and title lookup.
func (p *Processor) processOne(ctx context.Context, f Fetcher, videoID string, languages []string) report.VideoResult {
	result := report.VideoResult{VideoID: videoID}

	fetched, err := f.FetchWithFallback(ctx, videoID, languages)
	if err != nil {
		p.logger.Warn("video fetch failed",
			"video_id", videoID,
			"error", err,
		)
		result.Error = err.Error()
		return result
	}

	result.Method = fetched.Method
	result.Length = fetched.Length
	result.Duration = fetched.Duration

	if p.titles != nil {
		result.Title = p.titles.Title(ctx, videoID)
	}
	return result
}
