package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/trafficcv/internal/track"
)

// TrackRecord is the stored lifecycle of one track.
type TrackRecord struct {
	RunID       string     `json:"run_id"`
	TrackID     int        `json:"track_id"`
	Box         track.Box  `json:"box"`
	CreatedTick int        `json:"created_tick"`
	CreatedAt   time.Time  `json:"created_at"`
	EvictedTick *int       `json:"evicted_tick,omitempty"`
	EvictedAt   *time.Time `json:"evicted_at,omitempty"`
}

// TrackRepository provides operations for tracks.
type TrackRepository struct {
	db *sql.DB
}

// Tracks returns the track repository for this store.
func (s *Store) Tracks() *TrackRepository {
	return &TrackRepository{db: s.db}
}

// Create inserts a newly created track.
func (r *TrackRepository) Create(t *TrackRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO tracks (run_id, track_id, x, y, w, h, created_tick, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TrackID, t.Box.X, t.Box.Y, t.Box.W, t.Box.H, t.CreatedTick, t.CreatedAt.UTC(),
	)
	return err
}

// Evict marks a track as evicted.
func (r *TrackRepository) Evict(runID string, trackID, tick int, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE tracks SET evicted_tick = ?, evicted_at = ? WHERE run_id = ? AND track_id = ?`,
		tick, at.UTC(), runID, trackID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRun retrieves the tracks of a run in identifier order.
func (r *TrackRepository) ListByRun(runID string) ([]*TrackRecord, error) {
	rows, err := r.db.Query(
		`SELECT run_id, track_id, x, y, w, h, created_tick, created_at, evicted_tick, evicted_at
		 FROM tracks WHERE run_id = ? ORDER BY track_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []*TrackRecord
	for rows.Next() {
		t := &TrackRecord{}
		var (
			evictedTick sql.NullInt64
			evictedAt   sql.NullTime
		)
		err := rows.Scan(&t.RunID, &t.TrackID, &t.Box.X, &t.Box.Y, &t.Box.W, &t.Box.H,
			&t.CreatedTick, &t.CreatedAt, &evictedTick, &evictedAt)
		if err != nil {
			return nil, err
		}
		if evictedTick.Valid {
			tick := int(evictedTick.Int64)
			t.EvictedTick = &tick
		}
		if evictedAt.Valid {
			at := evictedAt.Time
			t.EvictedAt = &at
		}
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tracks, nil
}
