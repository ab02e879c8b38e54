package store

import (
	"database/sql"
	"strings"
	"time"
)

// Measurement is one latched speed. Speeds are stored in metres per second.
type Measurement struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	TrackID    int       `json:"track_id"`
	SpeedMPS   float64   `json:"speed_mps"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Tick       int       `json:"tick"`
	MeasuredAt time.Time `json:"measured_at"`
}

// MeasurementFilter narrows a measurement query. Zero fields are ignored.
type MeasurementFilter struct {
	RunID string
	Since time.Time
	Until time.Time
	Limit int
}

// MeasurementRepository provides operations for measurements.
type MeasurementRepository struct {
	db *sql.DB
}

// Measurements returns the measurement repository for this store.
func (s *Store) Measurements() *MeasurementRepository {
	return &MeasurementRepository{db: s.db}
}

// Create inserts m and sets its ID.
func (r *MeasurementRepository) Create(m *Measurement) error {
	if m.MeasuredAt.IsZero() {
		m.MeasuredAt = time.Now()
	}
	m.MeasuredAt = m.MeasuredAt.UTC()

	result, err := r.db.Exec(
		`INSERT INTO measurements (run_id, track_id, speed_mps, x, y, tick, measured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.TrackID, m.SpeedMPS, m.X, m.Y, m.Tick, m.MeasuredAt,
	)
	if err != nil {
		return err
	}

	m.ID, err = result.LastInsertId()
	return err
}

// List retrieves measurements matching f, oldest first.
func (r *MeasurementRepository) List(f MeasurementFilter) ([]*Measurement, error) {
	query, args := f.where(`SELECT id, run_id, track_id, speed_mps, x, y, tick, measured_at FROM measurements`)
	query += " ORDER BY measured_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Measurement
	for rows.Next() {
		m := &Measurement{}
		if err := rows.Scan(&m.ID, &m.RunID, &m.TrackID, &m.SpeedMPS, &m.X, &m.Y, &m.Tick, &m.MeasuredAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Speeds returns the stored speeds matching f in metres per second.
func (r *MeasurementRepository) Speeds(f MeasurementFilter) ([]float64, error) {
	query, args := f.where(`SELECT speed_mps FROM measurements`)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var speeds []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		speeds = append(speeds, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return speeds, nil
}

func (f MeasurementFilter) where(base string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, f.RunID)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "measured_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "measured_at < ?")
		args = append(args, f.Until.UTC())
	}
	if len(clauses) == 0 {
		return base, args
	}
	return base + " WHERE " + strings.Join(clauses, " AND "), args
}
