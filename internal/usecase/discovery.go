package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
	"SpotFinder/internal/logging"
	"SpotFinder/internal/metrics"
	"SpotFinder/internal/ports"
)

const (
	// CategoryDelay is the pause between two category searches.
	CategoryDelay = 100 * time.Millisecond
	// EnrichBatchSize is the number of candidates sent in one enrichment request.
	EnrichBatchSize = 10
	// EnrichConcurrency caps the enrichment requests in flight.
	EnrichConcurrency = 2
	// DefaultRadiusMeters is used when Discover is called with a zero radius.
	DefaultRadiusMeters = 20 * geo.MetersPerMile

	// StatusNoNewSpots is the terminal status of a run that found nothing to add or refresh.
	StatusNoNewSpots = "No new spots found"
)

// ErrInvalidCenter is returned for a zero or out-of-range search center.
var ErrInvalidCenter = errors.New("center coordinate is invalid")

// Stage is a step of a discovery run. Stages never go backwards.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageLoadingExisting Stage = "loading_existing"
	StageSearching       Stage = "searching"
	StageClassifying     Stage = "classifying"
	StageEnriching       Stage = "enriching"
	StageMerging         Stage = "merging"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// ProgressFunc receives a human-readable message on every stage transition.
type ProgressFunc func(stage Stage, message string)

// DiscoveryFailedError aborts a run. Progress holds the last message emitted before the failure.
type DiscoveryFailedError struct {
	Stage    Stage
	Progress string
	Cause    error
}

func (e *DiscoveryFailedError) Error() string {
	return fmt.Sprintf("discovery failed while %s: %v", e.Stage, e.Cause)
}

func (e *DiscoveryFailedError) Unwrap() error {
	return e.Cause
}

// Result is the outcome of a successful run.
type Result struct {
	// Records is every place within the radius: existing records (refreshed where stale) plus inserts.
	Records  []domain.PlaceRecord
	Inserted []domain.PlaceRecord
	Updated  []domain.PlaceRecord
	// NoNewSpots is set when nothing needed enrichment and the store was not touched.
	NoNewSpots bool
	Status     string
}

// DiscoveryDeps wires the driven adapters into the orchestrator.
// Enricher may be nil, in which case every candidate gets the default enrichment.
type DiscoveryDeps struct {
	Searcher ports.PlaceSearcher
	Enricher ports.Enricher
	Store    ports.RecordStore
	Metrics  *metrics.DiscoveryMetrics
	Logger   *slog.Logger
	Progress ProgressFunc

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Discovery runs the fetch, diff, enrich and reconcile pipeline.
type Discovery struct {
	searcher ports.PlaceSearcher
	enricher ports.Enricher
	store    ports.RecordStore
	metrics  *metrics.DiscoveryMetrics
	logger   *slog.Logger
	progress ProgressFunc
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDiscovery constructs the orchestrator.
func NewDiscovery(deps DiscoveryDeps) *Discovery {
	d := &Discovery{
		searcher: deps.Searcher,
		enricher: deps.Enricher,
		store:    deps.Store,
		metrics:  deps.Metrics,
		logger:   logging.OrDiscard(deps.Logger).With("component", "discovery"),
		progress: deps.Progress,
		now:      deps.Now,
		sleep:    deps.Sleep,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.sleep == nil {
		d.sleep = sleepContext
	}
	return d
}

// queued is a candidate that needs enrichment. match indexes the existing record it refreshes, or -1.
type queued struct {
	candidate domain.Candidate
	match     int
}

// run holds the single-owner state of one Discover call.
type run struct {
	d        *Discovery
	progress ProgressFunc
	stage    Stage
	message  string
	existing []domain.PlaceRecord
}

// Discover finds work spots within radiusMeters of center and reconciles them with the store.
// A zero radius selects DefaultRadiusMeters.
func (d *Discovery) Discover(ctx context.Context, center domain.Coordinate, radiusMeters float64) (Result, error) {
	return d.discover(ctx, center, radiusMeters, d.progress)
}

// DiscoverWithProgress is Discover with a per-call progress callback that replaces the default one.
func (d *Discovery) DiscoverWithProgress(ctx context.Context, center domain.Coordinate, radiusMeters float64, progress ProgressFunc) (Result, error) {
	return d.discover(ctx, center, radiusMeters, progress)
}

func (d *Discovery) discover(ctx context.Context, center domain.Coordinate, radiusMeters float64, progress ProgressFunc) (Result, error) {
	started := time.Now()
	r := &run{d: d, progress: progress, stage: StageIdle}

	res, err := r.execute(ctx, center, radiusMeters)

	elapsed := time.Since(started).Seconds()
	switch {
	case err == nil && res.NoNewSpots:
		d.metrics.RecordRun(metrics.OutcomeNoNew, elapsed)
	case err == nil:
		d.metrics.RecordRun(metrics.OutcomeSuccess, elapsed)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		d.metrics.RecordRun(metrics.OutcomeCancelled, elapsed)
	default:
		d.metrics.RecordRun(metrics.OutcomeFailed, elapsed)
	}
	return res, err
}

func (r *run) execute(ctx context.Context, center domain.Coordinate, radiusMeters float64) (Result, error) {
	if radiusMeters == 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if radiusMeters < 0 || math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) {
		return Result{}, r.fail(ports.ErrInvalidRadius)
	}
	if !center.Valid() {
		return Result{}, r.fail(ErrInvalidCenter)
	}
	if r.d.searcher == nil || r.d.store == nil {
		return Result{}, r.fail(errors.New("discovery is missing a searcher or a record store"))
	}

	r.advance(StageLoadingExisting, "Loading saved spots nearby")
	if err := r.loadExisting(ctx, center, radiusMeters); err != nil {
		return Result{}, r.fail(err)
	}

	queue, err := r.search(ctx, center, radiusMeters)
	if err != nil {
		return Result{}, r.fail(err)
	}

	newCount := 0
	for _, q := range queue {
		if q.match < 0 {
			newCount++
		}
	}
	r.advance(StageClassifying, fmt.Sprintf("Found %d new and %d stale spots", newCount, len(queue)-newCount))

	if len(queue) == 0 {
		r.advance(StageDone, StatusNoNewSpots)
		return Result{
			Records:    r.existing,
			NoNewSpots: true,
			Status:     StatusNoNewSpots,
		}, nil
	}

	r.advance(StageEnriching, fmt.Sprintf("Checking %d spots for wifi, noise and outlets", len(queue)))
	enrichment, err := r.enrich(ctx, queue)
	if err != nil {
		return Result{}, r.fail(err)
	}

	r.advance(StageMerging, "Saving spots")
	return r.merge(ctx, queue, enrichment)
}

func (r *run) advance(stage Stage, message string) {
	r.stage = stage
	r.message = message
	r.d.logger.Info("discovery progress", "stage", string(stage), "message", message)
	if r.progress != nil {
		r.progress(stage, message)
	}
}

func (r *run) fail(cause error) error {
	failed := &DiscoveryFailedError{Stage: r.stage, Progress: r.message, Cause: cause}
	r.d.logger.Error("discovery failed", "stage", string(r.stage), "error", cause)
	r.stage = StageFailed
	if r.progress != nil {
		r.progress(StageFailed, failed.Error())
	}
	return failed
}

// loadExisting fills the run cache with stored records within the true radius.
func (r *run) loadExisting(ctx context.Context, center domain.Coordinate, radiusMeters float64) error {
	records, err := r.d.store.FetchInBox(ctx, geo.BoundingBox(center, radiusMeters))
	if err != nil {
		return fmt.Errorf("load existing spots: %w", err)
	}

	r.existing = make([]domain.PlaceRecord, 0, len(records))
	for _, rec := range records {
		if geo.Distance(center, rec.Coordinate) <= radiusMeters {
			r.existing = append(r.existing, rec)
		}
	}
	r.d.logger.Debug("existing spots loaded", "in_box", len(records), "in_radius", len(r.existing))
	return nil
}

// search queries every category in order and classifies hits against the run cache.
func (r *run) search(ctx context.Context, center domain.Coordinate, radiusMeters float64) ([]queued, error) {
	now := r.d.now()
	var queue []queued

	for i, category := range domain.SearchCategories {
		if i > 0 {
			if err := r.d.sleep(ctx, CategoryDelay); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.advance(StageSearching, fmt.Sprintf("Searching for %s spots", category.SearchTerm()))
		candidates, err := r.d.searcher.Search(ctx, category, center, radiusMeters)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.d.logger.Warn("category search failed, skipping", "category", string(category), "error", err)
			r.d.metrics.RecordSearchFailure(string(category))
			continue
		}

		for _, c := range candidates {
			if c.Category == "" {
				c.Category = category
			}
			idx := geo.FindMatch(c, r.existing)
			switch {
			case idx < 0:
				r.d.metrics.RecordCandidate(metrics.ClassNew)
				queue = append(queue, queued{candidate: c, match: -1})
			case r.existing[idx].IsStale(now):
				r.d.metrics.RecordCandidate(metrics.ClassStale)
				queue = append(queue, queued{candidate: c, match: idx})
			default:
				r.d.metrics.RecordCandidate(metrics.ClassFreshDuplicate)
			}
		}
	}
	return queue, nil
}

// enrich returns one result per queued candidate, in queue order. A failed batch falls back to defaults.
func (r *run) enrich(ctx context.Context, queue []queued) ([]domain.EnrichmentResult, error) {
	results := make([]domain.EnrichmentResult, len(queue))
	for i := range results {
		results[i] = domain.DefaultEnrichment()
	}
	if r.d.enricher == nil {
		r.d.logger.Info("enrichment disabled, using defaults", "candidates", len(queue))
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(EnrichConcurrency)

	for start := 0; start < len(queue); start += EnrichBatchSize {
		start := start
		end := min(start+EnrichBatchSize, len(queue))
		batch := make([]domain.Candidate, 0, end-start)
		for _, q := range queue[start:end] {
			batch = append(batch, q.candidate)
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, err := r.d.enricher.Enrich(ctx, batch)
			if err == nil && len(out) != len(batch) {
				err = fmt.Errorf("enricher returned %d results for %d candidates", len(out), len(batch))
			}
			if err != nil {
				r.d.logger.Warn("enrichment batch failed, using defaults", "offset", start, "size", len(batch), "error", err)
				r.d.metrics.RecordEnrichBatch(true)
				return nil
			}
			copy(results[start:end], out)
			r.d.metrics.RecordEnrichBatch(false)
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// merge reconciles the queue with the run cache and persists the outcome in a single save.
func (r *run) merge(ctx context.Context, queue []queued, enrichment []domain.EnrichmentResult) (Result, error) {
	now := r.d.now()

	working := make([]domain.PlaceRecord, len(r.existing))
	copy(working, r.existing)

	seen := make(map[string]struct{}, len(queue))
	var (
		changes  ports.ChangeSet
		accepted []domain.PlaceRecord
	)

	for i, q := range queue {
		c := q.candidate
		key := geo.CompositeKey(c.Name, c.Address)
		if _, dup := seen[key]; dup {
			continue
		}

		if idx := geo.FindMatch(c, working); idx >= 0 {
			if !working[idx].IsStale(now) {
				continue
			}
			working[idx].Reseed(enrichment[i], now)
			changes.Updates = append(changes.Updates, working[idx])
			seen[key] = struct{}{}
			continue
		}

		if nearAny(c.Coordinate, accepted) {
			continue
		}

		rec := domain.NewPlaceRecord(c, enrichment[i], now)
		if err := rec.Validate(); err != nil {
			r.d.logger.Warn("dropping invalid candidate", "name", c.Name, "error", err)
			continue
		}
		seen[key] = struct{}{}
		accepted = append(accepted, rec)
		changes.Inserts = append(changes.Inserts, rec)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, r.fail(err)
	}

	if changes.Empty() {
		r.advance(StageDone, StatusNoNewSpots)
		return Result{Records: r.existing, NoNewSpots: true, Status: StatusNoNewSpots}, nil
	}

	saved, err := r.d.store.Save(ctx, changes)
	if err != nil {
		return Result{}, r.fail(fmt.Errorf("save spots: %w", err))
	}
	r.d.metrics.RecordWrites(len(saved.Inserted), len(saved.Updated), len(saved.Skipped))
	if len(saved.Skipped) > 0 {
		r.d.logger.Info("store skipped spots saved by a concurrent run", "count", len(saved.Skipped))
	}

	updated := make(map[string]domain.PlaceRecord, len(saved.Updated))
	for _, rec := range saved.Updated {
		updated[rec.ID.String()] = rec
	}

	records := make([]domain.PlaceRecord, 0, len(r.existing)+len(saved.Inserted))
	for _, rec := range r.existing {
		if u, ok := updated[rec.ID.String()]; ok {
			rec = u
		}
		records = append(records, rec)
	}
	records = append(records, saved.Inserted...)

	status := fmt.Sprintf("Added %d new spots, refreshed %d", len(saved.Inserted), len(saved.Updated))
	r.advance(StageDone, status)

	return Result{
		Records:  records,
		Inserted: saved.Inserted,
		Updated:  saved.Updated,
		Status:   status,
	}, nil
}

func nearAny(c domain.Coordinate, records []domain.PlaceRecord) bool {
	for i := range records {
		if geo.Near(c, records[i].Coordinate) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
