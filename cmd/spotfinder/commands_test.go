package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotFinder/internal/config"
	"SpotFinder/internal/domain"
	"SpotFinder/internal/infrastructure/storage"
	"SpotFinder/internal/ports"
	"SpotFinder/internal/usecase"
)

func blueBottle() domain.PlaceRecord {
	return domain.NewPlaceRecord(domain.Candidate{
		Name:       "Blue Bottle",
		Address:    "66 Mint Street",
		Coordinate: domain.Coordinate{Lat: 37.7825, Lng: -122.4078},
		Category:   domain.CategoryCoffee,
	}, domain.EnrichmentResult{Wifi: 4, Noise: "Low", HasOutlets: true, Tip: "Great espresso"}, time.Now())
}

// seededConfig returns a config pointing at a fresh database that holds one stored spot.
func seededConfig(t *testing.T) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spots.db")

	store, err := storage.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	_, err = store.Save(context.Background(), ports.ChangeSet{Inserts: []domain.PlaceRecord{blueBottle()}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	return config.Config{
		Database: config.DatabaseConfig{Path: path},
		Places:   config.PlacesConfig{Provider: "nominatim"},
	}
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := rootCommand(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var out bytes.Buffer
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestResetRequiresConfirmation(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{Path: t.TempDir() + "/spots.db"}}
	root := rootCommand(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	root.SetArgs([]string{"reset", "--lat", "37.77", "--lng", "-122.41"})
	root.SetOut(io.Discard)
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestDiscoverRequiresCoordinates(t *testing.T) {
	cfg := config.Config{}
	root := rootCommand(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	root.SetArgs([]string{"discover", "--memory"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	assert.Error(t, root.Execute())
}

func TestResetRejectsNegativeRadius(t *testing.T) {
	cfg := seededConfig(t)

	_, err := execute(t, &cfg, "reset", "--lat", "37.7825", "--lng", "-122.4078", "--radius-miles", "-5", "--yes")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidRadius)

	out, err := execute(t, &cfg, "show", "--name", "Blue Bottle", "--address", "66 Mint Street")
	require.NoError(t, err)
	assert.Contains(t, out, "Blue Bottle (coffee)", "record survives the rejected reset")
}

func TestDiscoverRejectsNegativeRadius(t *testing.T) {
	cfg := config.Config{Places: config.PlacesConfig{Provider: "nominatim"}}

	_, err := execute(t, &cfg, "discover", "--memory", "--lat", "37.77", "--lng", "-122.41", "--radius-miles", "-5")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidRadius)
}

func TestRateAndShowCommands(t *testing.T) {
	cfg := seededConfig(t)

	out, err := execute(t, &cfg, "rate", "--name", "blue bottle", "--address", "66 MINT STREET",
		"--wifi", "9", "--noise", "High", "--outlets", "--tip", "Busy at noon")
	require.NoError(t, err)
	assert.Contains(t, out, "wifi=5 noise=High outlets=yes")

	out, err = execute(t, &cfg, "show", "--name", "Blue Bottle", "--address", "66 Mint Street")
	require.NoError(t, err)
	assert.Contains(t, out, "Blue Bottle (coffee)")
	assert.Contains(t, out, "wifi=4 noise=Low outlets=yes")
	assert.Contains(t, out, "1 ratings")
	assert.Contains(t, out, "- wifi=5 noise=High outlets=yes Busy at noon")
}

func TestRateUnknownSpot(t *testing.T) {
	cfg := seededConfig(t)

	_, err := execute(t, &cfg, "rate", "--name", "Nowhere", "--address", "1 Nowhere Lane")
	assert.ErrorIs(t, err, storage.ErrPlaceNotFound)
}

func TestPrintRecords(t *testing.T) {
	rec := blueBottle()

	var buf bytes.Buffer
	printRecords(&buf, usecase.Result{Records: []domain.PlaceRecord{rec}, Inserted: []domain.PlaceRecord{rec}, Status: "Added 1 new spots, refreshed 0"})

	out := buf.String()
	assert.Contains(t, out, "Added 1 new spots, refreshed 0 (1 spots, 1 new, 0 refreshed)")
	assert.Contains(t, out, "Blue Bottle")
	assert.Contains(t, out, "wifi=4")
	assert.Contains(t, out, "outlets=yes")
}
