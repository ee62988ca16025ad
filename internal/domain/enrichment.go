package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	NoiseLow    = "Low"
	NoiseMedium = "Medium"
	NoiseHigh   = "High"

	DefaultTip = "Auto-discovered"
)

// EnrichmentResult carries the work-friendliness attributes derived for one candidate.
type EnrichmentResult struct {
	Wifi       int
	Noise      string
	HasOutlets bool
	Tip        string
}

// DefaultEnrichment is used whenever the enrichment API is unavailable or gave no answer.
func DefaultEnrichment() EnrichmentResult {
	return EnrichmentResult{
		Wifi:       3,
		Noise:      NoiseMedium,
		HasOutlets: false,
		Tip:        DefaultTip,
	}
}

// Normalize clamps the wifi rating and canonicalises the known noise spellings.
// Unrecognised noise text is kept verbatim.
func (e EnrichmentResult) Normalize() EnrichmentResult {
	e.Wifi = ClampRating(e.Wifi)
	e.Noise = CanonicalNoise(e.Noise)
	e.Tip = strings.TrimSpace(e.Tip)
	if e.Tip == "" {
		e.Tip = DefaultTip
	}
	return e
}

// ClampRating forces a connectivity rating into 1..5.
func ClampRating(v int) int {
	switch {
	case v < 1:
		return 1
	case v > 5:
		return 5
	default:
		return v
	}
}

// CanonicalNoise maps common spellings onto Low/Medium/High.
func CanonicalNoise(value string) string {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "":
		return NoiseMedium
	case "low", "quiet", "silent":
		return NoiseLow
	case "medium", "moderate", "mid":
		return NoiseMedium
	case "high", "loud", "noisy":
		return NoiseHigh
	default:
		return trimmed
	}
}

// UserRating is a user-submitted rating attached to a place. Ratings are append-only.
type UserRating struct {
	ID         uuid.UUID
	PlaceID    uuid.UUID
	Wifi       int
	Noise      string
	HasOutlets bool
	Tip        string
	// CreatedAt is nil for ratings imported from stores that never recorded it.
	CreatedAt *time.Time
}

// NewUserRating clamps the rating and stamps it with a fresh id and creation time.
func NewUserRating(placeID uuid.UUID, wifi int, noise string, outlets bool, tip string, now time.Time) UserRating {
	created := now
	return UserRating{
		ID:         uuid.New(),
		PlaceID:    placeID,
		Wifi:       ClampRating(wifi),
		Noise:      strings.TrimSpace(noise),
		HasOutlets: outlets,
		Tip:        strings.TrimSpace(tip),
		CreatedAt:  &created,
	}
}
