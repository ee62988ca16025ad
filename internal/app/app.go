package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SpotFinder/internal/config"
	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
	"SpotFinder/internal/infrastructure/llm"
	"SpotFinder/internal/infrastructure/places"
	"SpotFinder/internal/infrastructure/scheduler"
	"SpotFinder/internal/infrastructure/storage"
	"SpotFinder/internal/infrastructure/telegram"
	"SpotFinder/internal/logging"
	"SpotFinder/internal/metrics"
	"SpotFinder/internal/ports"
	"SpotFinder/internal/search"
	"SpotFinder/internal/usecase"
)

// Options adjusts wiring for a single process.
type Options struct {
	// InMemory replaces the SQLite store with a process-local one.
	InMemory bool
	// Searcher overrides the configured places provider.
	Searcher ports.PlaceSearcher
	// Progress receives stage transitions of every discovery run.
	Progress usecase.ProgressFunc
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.RecordStore
	closers   []func() error
	discovery *usecase.Discovery
	registry  *prometheus.Registry
}

// New builds the runnable application: store, search provider, optional enrichment and metrics.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger, registry: prometheus.NewRegistry()}

	if opts.InMemory {
		a.store = storage.NewMemoryStore()
	} else {
		db, err := storage.OpenSQLite(ctx, cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		a.store = db
		a.closers = append(a.closers, db.Close)
	}

	searcher := opts.Searcher
	if searcher == nil {
		registry := search.NewRegistry()
		registry.Register(places.NewNominatimSearcher(nil, cfg.Places, baseLogger.With("component", "places.nominatim")))

		provider, err := registry.Resolve(cfg.Places.Provider)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		searcher = provider
	}

	var enricher ports.Enricher
	grok, err := llm.NewGrokClient(cfg.Enrichment, nil, baseLogger.With("component", "llm.grok"))
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		baseLogger.Info("GROK_API_KEY not set, spots get default enrichment")
	case err != nil:
		_ = a.Close()
		return nil, fmt.Errorf("build enrichment client: %w", err)
	default:
		enricher = grok
	}

	discoveryMetrics, err := metrics.NewDiscoveryMetrics(a.registry)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a.discovery = usecase.NewDiscovery(usecase.DiscoveryDeps{
		Searcher: searcher,
		Enricher: enricher,
		Store:    a.store,
		Metrics:  discoveryMetrics,
		Logger:   baseLogger,
		Progress: opts.Progress,
	})
	return a, nil
}

// Discover runs a single discovery around center. A zero radiusMiles selects the default radius;
// negative or non-finite values fail the run.
func (a *Application) Discover(ctx context.Context, center domain.Coordinate, radiusMiles float64) (usecase.Result, error) {
	return a.discovery.Discover(ctx, center, milesToMeters(radiusMiles))
}

// Watch runs discovery for the configured home location on every interval until ctx is done.
func (a *Application) Watch(ctx context.Context) error {
	center := domain.Coordinate{Lat: a.cfg.Watch.Latitude, Lng: a.cfg.Watch.Longitude}
	if !center.Valid() {
		return fmt.Errorf("watch location is not configured: %w", usecase.ErrInvalidCenter)
	}
	if !validRadius(a.cfg.Watch.RadiusMiles) {
		return fmt.Errorf("watch radius %v: %w", a.cfg.Watch.RadiusMiles, ports.ErrInvalidRadius)
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(a.cfg.Notifications.Telegram, nil); tg.Enabled() {
		notifier = tg
	}

	if a.cfg.Metrics.Listen != "" {
		stopMetrics := a.serveMetrics(a.cfg.Metrics.Listen)
		defer stopMetrics()
	}

	sched := usecase.NewScheduler(
		scheduler.NewTickerScheduler(a.cfg.Watch.Interval),
		a.discovery,
		notifier,
		usecase.WatchTarget{Center: center, RadiusMeters: milesToMeters(a.cfg.Watch.RadiusMiles)},
		a.logger,
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("watching for new spots", "lat", center.Lat, "lng", center.Lng, "interval", a.cfg.Watch.Interval)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Reset deletes every stored record within radiusMiles of center and returns how many were removed.
func (a *Application) Reset(ctx context.Context, center domain.Coordinate, radiusMiles float64) (int, error) {
	if !center.Valid() {
		return 0, usecase.ErrInvalidCenter
	}
	if !validRadius(radiusMiles) {
		return 0, ports.ErrInvalidRadius
	}
	radius := milesToMeters(radiusMiles)

	records, err := a.store.FetchInBox(ctx, geo.BoundingBox(center, radius))
	if err != nil {
		return 0, fmt.Errorf("load spots: %w", err)
	}

	toDelete := idsWithin(records, center, radius)
	if len(toDelete) == 0 {
		return 0, nil
	}
	return a.store.Delete(ctx, toDelete)
}

// SpotDetails is a stored spot together with its user ratings, oldest first.
type SpotDetails struct {
	Place   domain.PlaceRecord
	Ratings []domain.UserRating
}

// Rate attaches a user rating to the stored spot identified by name and address.
func (a *Application) Rate(ctx context.Context, name, address string, wifi int, noise string, outlets bool, tip string) (domain.UserRating, error) {
	place, err := a.lookup(ctx, name, address)
	if err != nil {
		return domain.UserRating{}, err
	}

	rating := domain.NewUserRating(place.ID, wifi, noise, outlets, tip, time.Now())
	if err := a.store.AddRating(ctx, rating); err != nil {
		return domain.UserRating{}, fmt.Errorf("add rating: %w", err)
	}
	a.logger.Info("rating added", "place", place.Name, "wifi", rating.Wifi)
	return rating, nil
}

// Show returns the stored spot identified by name and address with its ratings.
func (a *Application) Show(ctx context.Context, name, address string) (SpotDetails, error) {
	place, err := a.lookup(ctx, name, address)
	if err != nil {
		return SpotDetails{}, err
	}

	ratings, err := a.store.Ratings(ctx, place.ID)
	if err != nil {
		return SpotDetails{}, fmt.Errorf("load ratings: %w", err)
	}
	return SpotDetails{Place: place, Ratings: ratings}, nil
}

func (a *Application) lookup(ctx context.Context, name, address string) (domain.PlaceRecord, error) {
	place, err := a.store.FetchByKey(ctx, name, address)
	if err != nil {
		return domain.PlaceRecord{}, fmt.Errorf("look up spot: %w", err)
	}
	if place == nil {
		return domain.PlaceRecord{}, fmt.Errorf("%q at %q: %w", name, address, storage.ErrPlaceNotFound)
	}
	return *place, nil
}

// Gatherer exposes the application's metrics registry.
func (a *Application) Gatherer() prometheus.Gatherer {
	return a.registry
}

// Close releases the record store.
func (a *Application) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func idsWithin(records []domain.PlaceRecord, center domain.Coordinate, radius float64) []uuid.UUID {
	var ids []uuid.UUID
	for _, rec := range records {
		if geo.Distance(center, rec.Coordinate) <= radius {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

// milesToMeters maps exactly zero to the default radius. Invalid values pass through so the
// orchestrator rejects them.
func milesToMeters(miles float64) float64 {
	if miles == 0 {
		return usecase.DefaultRadiusMeters
	}
	return miles * geo.MetersPerMile
}

func validRadius(miles float64) bool {
	return miles >= 0 && !math.IsInf(miles, 0) && !math.IsNaN(miles)
}
