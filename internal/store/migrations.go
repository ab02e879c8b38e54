package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per processed video source
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			ppm REAL NOT NULL,
			fps REAL NOT NULL,
			detection_period INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Tracks table - vehicle identities within a run
		`CREATE TABLE IF NOT EXISTS tracks (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			track_id INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			w INTEGER NOT NULL,
			h INTEGER NOT NULL,
			created_tick INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			evicted_tick INTEGER,
			evicted_at DATETIME,
			PRIMARY KEY (run_id, track_id)
		)`,

		// Measurements table - latched speeds, stored in metres per second
		`CREATE TABLE IF NOT EXISTS measurements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			track_id INTEGER NOT NULL,
			speed_mps REAL NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			measured_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tracks_run_id ON tracks(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_run_id ON measurements(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_measured_at ON measurements(measured_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
