package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
	"SpotFinder/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS places (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	address       TEXT NOT NULL,
	norm_key      TEXT NOT NULL UNIQUE,
	lat           REAL NOT NULL,
	lng           REAL NOT NULL,
	category      TEXT NOT NULL,
	wifi          INTEGER NOT NULL,
	noise         TEXT NOT NULL,
	has_outlets   INTEGER NOT NULL,
	tip           TEXT NOT NULL,
	last_modified INTEGER NOT NULL,
	last_seeded   INTEGER,
	cloud_id      TEXT
);
CREATE INDEX IF NOT EXISTS idx_places_lat_lng ON places(lat, lng);

CREATE TABLE IF NOT EXISTS ratings (
	id          TEXT PRIMARY KEY,
	place_id    TEXT NOT NULL REFERENCES places(id) ON DELETE CASCADE,
	wifi        INTEGER NOT NULL,
	noise       TEXT NOT NULL,
	has_outlets INTEGER NOT NULL,
	tip         TEXT NOT NULL,
	created_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_ratings_place ON ratings(place_id);
`

var (
	placeColumns = []string{
		"id", "name", "address", "lat", "lng", "category", "wifi", "noise",
		"has_outlets", "tip", "last_modified", "last_seeded", "cloud_id",
	}
	insertColumns = append(append([]string{}, placeColumns...), "norm_key")
)

// SQLiteStore persists records into a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
	// writeMu serialises Save so the insert re-check and the insert happen as one unit.
	writeMu sync.Mutex
}

var _ ports.RecordStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already-open database; the schema must exist.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FetchInBox returns all records inside the lat/lng rectangle, ordered by name.
func (s *SQLiteStore) FetchInBox(ctx context.Context, box geo.Box) ([]domain.PlaceRecord, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	query, args, err := sq.Select(placeColumns...).
		From("places").
		Where(boxPredicate(box)).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build box query: %w", err)
	}

	return queryPlaces(ctx, s.db, query, args...)
}

// FetchByKey returns the record with the given composite key, or nil when absent.
func (s *SQLiteStore) FetchByKey(ctx context.Context, name, address string) (*domain.PlaceRecord, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	query, args, err := sq.Select(placeColumns...).
		From("places").
		Where(sq.Eq{"norm_key": geo.CompositeKey(name, address)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build key query: %w", err)
	}

	records, err := queryPlaces(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Save applies all updates and inserts in one transaction. Each insert is re-checked against
// persisted rows so concurrent discovery runs cannot store the same place twice.
func (s *SQLiteStore) Save(ctx context.Context, changes ports.ChangeSet) (ports.SaveResult, error) {
	if s.db == nil {
		return ports.SaveResult{}, ErrNotOpen
	}
	for _, rec := range changes.Inserts {
		if err := validateInsert(rec); err != nil {
			return ports.SaveResult{}, err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.SaveResult{}, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var result ports.SaveResult
	for _, rec := range changes.Updates {
		ok, err := updatePlace(ctx, tx, rec)
		if err != nil {
			return ports.SaveResult{}, err
		}
		if ok {
			result.Updated = append(result.Updated, rec)
		}
	}

	for _, rec := range changes.Inserts {
		nearby, err := conflictCandidates(ctx, tx, rec)
		if err != nil {
			return ports.SaveResult{}, err
		}
		if conflictsWith(rec, nearby) {
			result.Skipped = append(result.Skipped, rec)
			continue
		}
		if err := insertPlace(ctx, tx, rec); err != nil {
			return ports.SaveResult{}, err
		}
		result.Inserted = append(result.Inserted, rec)
	}

	if err := tx.Commit(); err != nil {
		return ports.SaveResult{}, fmt.Errorf("commit save: %w", err)
	}
	return result, nil
}

// Delete removes records (and, via cascade, their ratings).
func (s *SQLiteStore) Delete(ctx context.Context, ids []uuid.UUID) (int, error) {
	if s.db == nil {
		return 0, ErrNotOpen
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query, args, err := sq.Delete("places").Where(sq.Eq{"id": keys}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete places: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// AddRating appends a user rating to an existing place.
func (s *SQLiteStore) AddRating(ctx context.Context, rating domain.UserRating) error {
	if s.db == nil {
		return ErrNotOpen
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM places WHERE id = ?`, rating.PlaceID.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPlaceNotFound
	}
	if err != nil {
		return fmt.Errorf("check place: %w", err)
	}

	query, args, err := sq.Insert("ratings").
		Columns("id", "place_id", "wifi", "noise", "has_outlets", "tip", "created_at").
		Values(
			rating.ID.String(),
			rating.PlaceID.String(),
			domain.ClampRating(rating.Wifi),
			rating.Noise,
			rating.HasOutlets,
			rating.Tip,
			nullableTime(rating.CreatedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rating insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

// Ratings lists a place's ratings, oldest first.
func (s *SQLiteStore) Ratings(ctx context.Context, placeID uuid.UUID) ([]domain.UserRating, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	query, args, err := sq.Select("id", "place_id", "wifi", "noise", "has_outlets", "tip", "created_at").
		From("ratings").
		Where(sq.Eq{"place_id": placeID.String()}).
		OrderBy("created_at", "rowid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ratings query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var out []domain.UserRating
	for rows.Next() {
		var (
			r         domain.UserRating
			id, place string
			createdAt sql.NullInt64
		)
		if err := rows.Scan(&id, &place, &r.Wifi, &r.Noise, &r.HasOutlets, &r.Tip, &createdAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse rating id: %w", err)
		}
		if r.PlaceID, err = uuid.Parse(place); err != nil {
			return nil, fmt.Errorf("parse rating place id: %w", err)
		}
		r.CreatedAt = timeFromNullable(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPlaces(ctx context.Context, q queryer, query string, args ...any) ([]domain.PlaceRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	var out []domain.PlaceRecord
	for rows.Next() {
		rec, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanPlace(rows *sql.Rows) (domain.PlaceRecord, error) {
	var (
		rec          domain.PlaceRecord
		id, category string
		lastModified int64
		lastSeeded   sql.NullInt64
		cloudID      sql.NullString
	)
	err := rows.Scan(
		&id,
		&rec.Name,
		&rec.Address,
		&rec.Coordinate.Lat,
		&rec.Coordinate.Lng,
		&category,
		&rec.Wifi,
		&rec.Noise,
		&rec.HasOutlets,
		&rec.Tip,
		&lastModified,
		&lastSeeded,
		&cloudID,
	)
	if err != nil {
		return domain.PlaceRecord{}, fmt.Errorf("scan place: %w", err)
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return domain.PlaceRecord{}, fmt.Errorf("parse place id %q: %w", id, err)
	}
	rec.Category = domain.ParseCategory(category)
	rec.LastModified = time.Unix(0, lastModified).UTC()
	rec.LastSeeded = timeFromNullable(lastSeeded)
	if cloudID.Valid {
		v := cloudID.String
		rec.CloudID = &v
	}
	return rec, nil
}

func conflictCandidates(ctx context.Context, tx *sql.Tx, rec domain.PlaceRecord) ([]domain.PlaceRecord, error) {
	query, args, err := sq.Select(placeColumns...).
		From("places").
		Where(sq.Or{
			sq.Eq{"norm_key": geo.CompositeKey(rec.Name, rec.Address)},
			boxPredicate(geo.BoundingBox(rec.Coordinate, geo.ProximityMeters)),
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build conflict query: %w", err)
	}
	return queryPlaces(ctx, tx, query, args...)
}

func insertPlace(ctx context.Context, tx *sql.Tx, rec domain.PlaceRecord) error {
	query, args, err := sq.Insert("places").
		Columns(insertColumns...).
		Values(
			rec.ID.String(),
			rec.Name,
			rec.Address,
			rec.Coordinate.Lat,
			rec.Coordinate.Lng,
			string(rec.Category),
			rec.Wifi,
			rec.Noise,
			rec.HasOutlets,
			rec.Tip,
			rec.LastModified.UnixNano(),
			nullableTime(rec.LastSeeded),
			nullableString(rec.CloudID),
			geo.CompositeKey(rec.Name, rec.Address),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert place %q: %w", rec.Name, err)
	}
	return nil
}

func updatePlace(ctx context.Context, tx *sql.Tx, rec domain.PlaceRecord) (bool, error) {
	query, args, err := sq.Update("places").
		SetMap(map[string]any{
			"wifi":          rec.Wifi,
			"noise":         rec.Noise,
			"has_outlets":   rec.HasOutlets,
			"tip":           rec.Tip,
			"last_modified": rec.LastModified.UnixNano(),
			"last_seeded":   nullableTime(rec.LastSeeded),
			"cloud_id":      nullableString(rec.CloudID),
		}).
		Where(sq.Eq{"id": rec.ID.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update place %q: %w", rec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func boxPredicate(box geo.Box) sq.And {
	return sq.And{
		sq.GtOrEq{"lat": box.MinLat},
		sq.LtOrEq{"lat": box.MaxLat},
		sq.GtOrEq{"lng": box.MinLng},
		sq.LtOrEq{"lng": box.MaxLng},
	}
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNullable(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
