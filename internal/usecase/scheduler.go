package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SpotFinder/internal/domain"
	"SpotFinder/internal/logging"
	"SpotFinder/internal/ports"
)

// Discoverer is the part of Discovery the scheduler depends on.
type Discoverer interface {
	Discover(ctx context.Context, center domain.Coordinate, radiusMeters float64) (Result, error)
}

// WatchTarget is the fixed location a scheduler keeps refreshing.
type WatchTarget struct {
	Center       domain.Coordinate
	RadiusMeters float64
}

// Scheduler wires the ticker driver with periodic discovery and the digest notifier.
type Scheduler struct {
	driver    ports.Scheduler
	discovery Discoverer
	notifier  ports.Notifier
	target    WatchTarget
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring discovery runs. notifier may be nil.
func NewScheduler(driver ports.Scheduler, discovery Discoverer, notifier ports.Notifier, target WatchTarget, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		driver:    driver,
		discovery: discovery,
		notifier:  notifier,
		target:    target,
		logger:    logging.OrDiscard(logger).With("component", "watch"),
	}
}

// Start registers the discovery job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.discovery == nil {
		return nil
	}

	job := func(trigger time.Time) {
		_ = s.RunOnce(ctx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// RunOnce performs a single discovery for the watch target and publishes a digest of new spots.
func (s *Scheduler) RunOnce(ctx context.Context, trigger time.Time) error {
	res, err := s.discovery.Discover(ctx, s.target.Center, s.target.RadiusMeters)
	if err != nil {
		s.logger.Error("scheduled discovery failed", "trigger", trigger, "error", err)
		return err
	}
	s.logger.Info("scheduled discovery finished",
		"trigger", trigger,
		"status", res.Status,
		"inserted", len(res.Inserted),
		"updated", len(res.Updated),
		"total", len(res.Records))

	if s.notifier == nil || len(res.Inserted) == 0 {
		return nil
	}

	if err := s.notifier.PublishDigest(ctx, buildDigestMessage(res.Inserted)); err != nil {
		s.logger.Warn("digest not delivered", "error", err)
		return fmt.Errorf("publish digest: %w", err)
	}
	return nil
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func buildDigestMessage(records []domain.PlaceRecord) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%d new work spots nearby*\n\n", len(records))
	for _, rec := range records {
		outlets := "no outlets"
		if rec.HasOutlets {
			outlets = "outlets"
		}
		fmt.Fprintf(&b, "- %s (%s)\n%s\nWiFi %d/5, %s noise, %s\n%s\n\n",
			rec.Name,
			rec.Category,
			rec.Address,
			rec.Wifi,
			rec.Noise,
			outlets,
			rec.Tip)
	}
	return strings.TrimRight(b.String(), "\n")
}
