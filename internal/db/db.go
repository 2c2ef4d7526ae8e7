// Package db persists fitting artifacts — runs, profile scans, derived
// limits — in a SQLite results database.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the results database connection.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the results database at path and ensures
// the baseline schema exists. Use ":memory:" for an ephemeral database in
// tests.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}

	if _, err := sqlDB.Exec(baselineSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create results schema: %w", err)
	}

	return &DB{sqlDB}, nil
}

const baselineSchema = `
	CREATE TABLE IF NOT EXISTS fit_runs (
		run_id       TEXT PRIMARY KEY,
		channel      INTEGER NOT NULL,
		mass_gev     DOUBLE NOT NULL,
		norm         DOUBLE NOT NULL,
		log_like     DOUBLE,
		ts           DOUBLE,
		converged    BOOLEAN,
		evaluations  BIGINT,
		params_json  TEXT,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS scans (
		scan_id      TEXT PRIMARY KEY,
		run_id       TEXT,
		param        TEXT NOT NULL,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(run_id) REFERENCES fit_runs(run_id)
	);
	CREATE TABLE IF NOT EXISTS scan_points (
		scan_id      TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		value        DOUBLE NOT NULL,
		log_like     DOUBLE,
		failed       BOOLEAN NOT NULL DEFAULT 0,
		fail_reason  TEXT,
		PRIMARY KEY(scan_id, seq),
		FOREIGN KEY(scan_id) REFERENCES scans(scan_id)
	);
	CREATE TABLE IF NOT EXISTS derived_limits (
		limit_id     TEXT PRIMARY KEY,
		run_id       TEXT,
		cl           DOUBLE NOT NULL,
		emin_gev     DOUBLE NOT NULL,
		emax_gev     DOUBLE NOT NULL,
		flux_ul      DOUBLE NOT NULL,
		sigmav_ul    DOUBLE NOT NULL,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(run_id) REFERENCES fit_runs(run_id)
	);
`
