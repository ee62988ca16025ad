package storage

import (
	"errors"
	"fmt"

	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
)

var (
	ErrNotOpen       = errors.New("record store is not open")
	ErrPlaceNotFound = errors.New("place not found")
)

// conflictsWith reports whether rec describes the same physical place as any of records,
// using the discovery match rule (composite key or proximity).
func conflictsWith(rec domain.PlaceRecord, records []domain.PlaceRecord) bool {
	for i := range records {
		if records[i].ID == rec.ID {
			continue
		}
		if geo.SamePlace(rec.Name, rec.Address, rec.Coordinate, records[i].Name, records[i].Address, records[i].Coordinate) {
			return true
		}
	}
	return false
}

func validateInsert(rec domain.PlaceRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("insert %q: %w", rec.Name, err)
	}
	return nil
}
