package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
	"SpotFinder/internal/ports"
)

// MemoryStore is a process-local RecordStore. Writes are serialised by a mutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.PlaceRecord
	ratings map[uuid.UUID][]domain.UserRating
}

var _ ports.RecordStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[uuid.UUID]domain.PlaceRecord{},
		ratings: map[uuid.UUID][]domain.UserRating{},
	}
}

// FetchInBox returns every record whose coordinate lies in box, ordered by name.
func (m *MemoryStore) FetchInBox(ctx context.Context, box geo.Box) ([]domain.PlaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PlaceRecord
	for _, rec := range m.records {
		if box.Contains(rec.Coordinate) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// FetchByKey returns the record with the given composite key, or nil.
func (m *MemoryStore) FetchByKey(ctx context.Context, name, address string) (*domain.PlaceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := geo.CompositeKey(name, address)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if geo.CompositeKey(rec.Name, rec.Address) == key {
			found := rec
			return &found, nil
		}
	}
	return nil, nil
}

// Save applies updates and inserts atomically. Inserts matching a stored place are skipped.
func (m *MemoryStore) Save(ctx context.Context, changes ports.ChangeSet) (ports.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.SaveResult{}, err
	}
	for _, rec := range changes.Inserts {
		if err := validateInsert(rec); err != nil {
			return ports.SaveResult{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result ports.SaveResult
	for _, rec := range changes.Updates {
		if _, ok := m.records[rec.ID]; !ok {
			continue
		}
		m.records[rec.ID] = rec
		result.Updated = append(result.Updated, rec)
	}

	for _, rec := range changes.Inserts {
		if conflictsWith(rec, m.snapshotLocked(geo.BoundingBox(rec.Coordinate, geo.ProximityMeters), rec)) {
			result.Skipped = append(result.Skipped, rec)
			continue
		}
		m.records[rec.ID] = rec
		result.Inserted = append(result.Inserted, rec)
	}

	return result, nil
}

// snapshotLocked returns records near box plus any sharing rec's composite key.
func (m *MemoryStore) snapshotLocked(box geo.Box, rec domain.PlaceRecord) []domain.PlaceRecord {
	key := geo.CompositeKey(rec.Name, rec.Address)
	var out []domain.PlaceRecord
	for _, existing := range m.records {
		if box.Contains(existing.Coordinate) || geo.CompositeKey(existing.Name, existing.Address) == key {
			out = append(out, existing)
		}
	}
	return out
}

// Delete removes records and their ratings, returning how many records were removed.
func (m *MemoryStore) Delete(ctx context.Context, ids []uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			delete(m.ratings, id)
			removed++
		}
	}
	return removed, nil
}

// AddRating appends a rating to an existing place.
func (m *MemoryStore) AddRating(ctx context.Context, rating domain.UserRating) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rating.PlaceID]; !ok {
		return ErrPlaceNotFound
	}
	rating.Wifi = domain.ClampRating(rating.Wifi)
	m.ratings[rating.PlaceID] = append(m.ratings[rating.PlaceID], rating)
	return nil
}

// Ratings lists a place's ratings in insertion order.
func (m *MemoryStore) Ratings(ctx context.Context, placeID uuid.UUID) ([]domain.UserRating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.UserRating, len(m.ratings[placeID]))
	copy(out, m.ratings[placeID])
	return out, nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func sortRecords(records []domain.PlaceRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}
