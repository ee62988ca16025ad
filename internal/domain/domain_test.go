package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlaceRecordNormalizesEnrichment(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rec := NewPlaceRecord(Candidate{
		Name:       " Sightglass ",
		Address:    "270 7th Street ",
		Coordinate: Coordinate{Lat: 37.777, Lng: -122.4085},
		Category:   CategoryCoffee,
	}, EnrichmentResult{Wifi: 9, Noise: "quiet", Tip: "  "}, now)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, "Sightglass", rec.Name)
	assert.Equal(t, "270 7th Street", rec.Address)
	assert.Equal(t, 5, rec.Wifi)
	assert.Equal(t, NoiseLow, rec.Noise)
	assert.Equal(t, DefaultTip, rec.Tip)
	require.NotNil(t, rec.LastSeeded)
	assert.True(t, rec.LastSeeded.Equal(now))
	assert.Nil(t, rec.CloudID)
	assert.NoError(t, rec.Validate())
}

func TestPlaceRecordValidate(t *testing.T) {
	valid := PlaceRecord{Name: "A", Address: "B", Coordinate: Coordinate{Lat: 1, Lng: 1}}
	assert.NoError(t, valid.Validate())

	noName := valid
	noName.Name = " "
	assert.ErrorIs(t, noName.Validate(), ErrEmptyName)

	noAddress := valid
	noAddress.Address = ""
	assert.ErrorIs(t, noAddress.Validate(), ErrEmptyAddress)

	zero := valid
	zero.Coordinate = Coordinate{}
	assert.ErrorIs(t, zero.Validate(), ErrZeroCoordinate)
}

func TestIsStaleAndReseed(t *testing.T) {
	seeded := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := NewPlaceRecord(Candidate{Name: "A", Address: "B", Coordinate: Coordinate{Lat: 1, Lng: 1}}, DefaultEnrichment(), seeded)
	id := rec.ID

	assert.False(t, rec.IsStale(seeded.Add(StaleAfter)))
	assert.True(t, rec.IsStale(seeded.Add(StaleAfter+time.Second)))
	assert.True(t, PlaceRecord{}.IsStale(seeded), "never enriched is stale")

	now := seeded.Add(30 * 24 * time.Hour)
	rec.Reseed(EnrichmentResult{Wifi: 2, Noise: "LOUD", HasOutlets: true, Tip: "Busy"}, now)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, NoiseHigh, rec.Noise)
	assert.True(t, rec.HasOutlets)
	assert.True(t, rec.LastSeeded.Equal(now))
	assert.True(t, rec.LastModified.Equal(now))
	assert.False(t, rec.IsStale(now))
}

func TestCanonicalNoise(t *testing.T) {
	cases := map[string]string{
		"":               NoiseMedium,
		"Quiet":          NoiseLow,
		" moderate ":     NoiseMedium,
		"noisy":          NoiseHigh,
		"Lively at noon": "Lively at noon",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalNoise(in), in)
	}
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []Category{CategoryCoffee, CategoryLibrary, CategoryPark, CategoryCoworking}, SearchCategories)
	assert.Equal(t, "co-working space", CategoryCoworking.SearchTerm())
	assert.False(t, CategoryUnknown.Searchable())
	assert.Equal(t, CategoryPark, ParseCategory(" PARK "))
	assert.Equal(t, CategoryUnknown, ParseCategory("museum"))
}

func TestCoordinateValid(t *testing.T) {
	assert.False(t, Coordinate{}.Valid())
	assert.False(t, Coordinate{Lat: 91, Lng: 0.1}.Valid())
	assert.True(t, Coordinate{Lat: 0, Lng: 0.1}.Valid())
}

func TestCandidateDescription(t *testing.T) {
	assert.Equal(t, "Blue Bottle at 66 Mint Street", Candidate{Name: "Blue Bottle", Address: "66 Mint Street"}.Description())
	assert.Equal(t, "Blue Bottle", Candidate{Name: "Blue Bottle"}.Description())
}

func TestNewUserRatingClamps(t *testing.T) {
	now := time.Now()
	r := NewUserRating(uuid.New(), 0, " Low ", true, " nice ", now)
	assert.Equal(t, 1, r.Wifi)
	assert.Equal(t, "Low", r.Noise)
	assert.Equal(t, "nice", r.Tip)
	require.NotNil(t, r.CreatedAt)
}
