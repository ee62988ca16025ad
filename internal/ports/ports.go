package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
)

// PlaceSearcher queries an external places index around a point.
type PlaceSearcher interface {
	Search(ctx context.Context, category domain.Category, center domain.Coordinate, radiusMeters float64) ([]domain.Candidate, error)
}

// Enricher derives work-friendliness attributes for a batch of candidates.
// It returns exactly one result per candidate, in input order.
type Enricher interface {
	Enrich(ctx context.Context, batch []domain.Candidate) ([]domain.EnrichmentResult, error)
}

// ChangeSet groups the mutations of one discovery run into a single logical save.
type ChangeSet struct {
	Inserts []domain.PlaceRecord
	Updates []domain.PlaceRecord
}

// Empty reports whether the change set carries no mutations.
func (c ChangeSet) Empty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0
}

// SaveResult reports what the store actually persisted.
type SaveResult struct {
	Inserted []domain.PlaceRecord
	Updated  []domain.PlaceRecord
	// Skipped holds inserts refused because an equivalent place was persisted concurrently.
	Skipped []domain.PlaceRecord
}

// RecordStore persists place records and user ratings.
type RecordStore interface {
	FetchInBox(ctx context.Context, box geo.Box) ([]domain.PlaceRecord, error)
	FetchByKey(ctx context.Context, name, address string) (*domain.PlaceRecord, error)
	Save(ctx context.Context, changes ChangeSet) (SaveResult, error)
	Delete(ctx context.Context, ids []uuid.UUID) (int, error)
	AddRating(ctx context.Context, rating domain.UserRating) error
	Ratings(ctx context.Context, placeID uuid.UUID) ([]domain.UserRating, error)
}

// Notifier streams discovery digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when discovery runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
