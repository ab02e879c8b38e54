package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run is one pass of the detector over a video source.
type Run struct {
	ID              string     `json:"id"`
	Source          string     `json:"source"`
	PPM             float64    `json:"ppm"`
	FPS             float64    `json:"fps"`
	DetectionPeriod int        `json:"detection_period"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// RunRepository provides operations for runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts r, assigning a new ID and start time when unset.
func (r *RunRepository) Create(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC()

	_, err := r.db.Exec(
		`INSERT INTO runs (id, source, ppm, fps, detection_period, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.PPM, run.FPS, run.DetectionPeriod, run.StartedAt,
	)
	return err
}

// Finish records the end time of a run.
func (r *RunRepository) Finish(id string, at time.Time) error {
	result, err := r.db.Exec(`UPDATE runs SET ended_at = ? WHERE id = ?`, at.UTC(), id)
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

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, source, ppm, fps, detection_period, started_at, ended_at
		 FROM runs WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves all runs, newest first.
func (r *RunRepository) List() ([]*Run, error) {
	rows, err := r.db.Query(
		`SELECT id, source, ppm, fps, detection_period, started_at, ended_at
		 FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var ended sql.NullTime
	if err := row.Scan(&run.ID, &run.Source, &run.PPM, &run.FPS, &run.DetectionPeriod, &run.StartedAt, &ended); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		run.EndedAt = &t
	}
	return run, nil
}
