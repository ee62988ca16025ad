package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StaleAfter is how long an enrichment stays valid before the place is re-enriched.
const StaleAfter = 7 * 24 * time.Hour

var (
	ErrEmptyName      = errors.New("place name is empty")
	ErrEmptyAddress   = errors.New("place address is empty")
	ErrZeroCoordinate = errors.New("place coordinate is zero")
)

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// IsZero reports whether both components are zero, which marks an unresolved location.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Valid reports whether the coordinate is non-zero and within WGS84 bounds.
func (c Coordinate) Valid() bool {
	if c.IsZero() {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Category tags a place with the kind of work spot it is.
type Category string

const (
	CategoryCoffee    Category = "coffee"
	CategoryPark      Category = "park"
	CategoryLibrary   Category = "library"
	CategoryCoworking Category = "coworking"
	CategoryUnknown   Category = "unknown"
)

// SearchCategories is the fixed order in which discovery queries the places index.
var SearchCategories = []Category{
	CategoryCoffee,
	CategoryLibrary,
	CategoryPark,
	CategoryCoworking,
}

// SearchTerm returns the free-text query used for the category.
func (c Category) SearchTerm() string {
	switch c {
	case CategoryCoffee:
		return "coffee shop"
	case CategoryLibrary:
		return "library"
	case CategoryPark:
		return "park"
	case CategoryCoworking:
		return "co-working space"
	default:
		return ""
	}
}

// Searchable reports whether the category belongs to the fixed search set.
func (c Category) Searchable() bool {
	return c.SearchTerm() != ""
}

// ParseCategory maps a stored tag back to a Category, defaulting to CategoryUnknown.
func ParseCategory(value string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(value))) {
	case CategoryCoffee:
		return CategoryCoffee
	case CategoryPark:
		return CategoryPark
	case CategoryLibrary:
		return CategoryLibrary
	case CategoryCoworking:
		return CategoryCoworking
	default:
		return CategoryUnknown
	}
}

// PlaceRecord is a persisted work spot.
type PlaceRecord struct {
	ID           uuid.UUID
	Name         string
	Address      string
	Coordinate   Coordinate
	Category     Category
	Wifi         int
	Noise        string
	HasOutlets   bool
	Tip          string
	LastModified time.Time
	// LastSeeded is nil until the record has been enriched at least once.
	LastSeeded *time.Time
	// CloudID is nil until the record has been pushed to a sync backend.
	CloudID *string
}

// NewPlaceRecord builds a record with a fresh identity from a candidate and its enrichment.
func NewPlaceRecord(c Candidate, e EnrichmentResult, now time.Time) PlaceRecord {
	seeded := now
	rec := PlaceRecord{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(c.Name),
		Address:      strings.TrimSpace(c.Address),
		Coordinate:   c.Coordinate,
		Category:     c.Category,
		LastModified: now,
		LastSeeded:   &seeded,
	}
	rec.applyEnrichment(e)
	return rec
}

// Validate enforces the invariants every persisted record must hold.
func (p PlaceRecord) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(p.Address) == "" {
		return ErrEmptyAddress
	}
	if p.Coordinate.IsZero() {
		return ErrZeroCoordinate
	}
	return nil
}

// IsStale reports whether the record needs re-enrichment at now.
func (p PlaceRecord) IsStale(now time.Time) bool {
	if p.LastSeeded == nil {
		return true
	}
	return now.Sub(*p.LastSeeded) > StaleAfter
}

// Reseed overwrites the enrichment fields and bumps both timestamps; identity is kept.
func (p *PlaceRecord) Reseed(e EnrichmentResult, now time.Time) {
	p.applyEnrichment(e)
	seeded := now
	p.LastSeeded = &seeded
	p.LastModified = now
}

func (p *PlaceRecord) applyEnrichment(e EnrichmentResult) {
	e = e.Normalize()
	p.Wifi = e.Wifi
	p.Noise = e.Noise
	p.HasOutlets = e.HasOutlets
	p.Tip = e.Tip
}

// Candidate is a transient search hit that has not been persisted.
type Candidate struct {
	Name       string
	Address    string
	Coordinate Coordinate
	Category   Category
}

// Description renders the candidate the way it is presented to the enrichment model.
func (c Candidate) Description() string {
	if c.Address == "" {
		return c.Name
	}
	return c.Name + " at " + c.Address
}
