package search

import (
	"context"
	"testing"

	"SpotFinder/internal/domain"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Search(context.Context, domain.Category, domain.Coordinate, float64) ([]domain.Candidate, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubProvider{name: "nominatim"})
	reg.Register(stubProvider{name: "fixture"})

	p, err := reg.Resolve("nominatim")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if p.Name() != "nominatim" {
		t.Fatalf("unexpected provider: %s", p.Name())
	}

	if _, err := reg.Resolve("google"); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "fixture" || names[1] != "nominatim" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryZeroValue(t *testing.T) {
	t.Parallel()

	var reg Registry
	reg.Register(stubProvider{name: "fixture"})
	if _, err := reg.Resolve("fixture"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
}
