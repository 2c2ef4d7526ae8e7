package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/halo-data/sigmav.report/internal/spectra"
)

// FitRun is a persisted fit: the model configuration, the optimized
// likelihood, and the detection statistic.
type FitRun struct {
	RunID       string  `json:"run_id"`
	Channel     int     `json:"channel"`
	MassGeV     float64 `json:"mass_gev"`
	Norm        float64 `json:"norm"`
	LogLike     float64 `json:"log_like"`
	TS          float64 `json:"ts"`
	Converged   bool    `json:"converged"`
	Evaluations int64   `json:"evaluations"`

	// Params holds the full best-fit parameter map as stored in
	// params_json.
	Params map[spectra.ParamName]float64 `json:"params,omitempty"`
}

// RunStore provides persistence for fit runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

// Insert creates a new fit run. If run.RunID is empty, a new UUID is
// generated.
func (s *RunStore) Insert(run *FitRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}

	var paramsJSON []byte
	if run.Params != nil {
		var err error
		paramsJSON, err = json.Marshal(run.Params)
		if err != nil {
			return fmt.Errorf("marshal run params: %w", err)
		}
	}

	query := `
		INSERT INTO fit_runs (
			run_id, channel, mass_gev, norm,
			log_like, ts, converged, evaluations, params_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.RunID,
		run.Channel,
		run.MassGeV,
		run.Norm,
		run.LogLike,
		run.TS,
		run.Converged,
		run.Evaluations,
		nullString(string(paramsJSON)),
	)
	if err != nil {
		return fmt.Errorf("insert fit run: %w", err)
	}
	return nil
}

// Get returns a single fit run by ID.
func (s *RunStore) Get(runID string) (*FitRun, error) {
	query := `
		SELECT run_id, channel, mass_gev, norm,
		       log_like, ts, converged, evaluations, params_json
		FROM fit_runs
		WHERE run_id = ?
	`
	row := s.db.QueryRow(query, runID)

	r := &FitRun{}
	var paramsJSON sql.NullString
	err := row.Scan(&r.RunID, &r.Channel, &r.MassGeV, &r.Norm,
		&r.LogLike, &r.TS, &r.Converged, &r.Evaluations, &paramsJSON)
	if err != nil {
		return nil, fmt.Errorf("get fit run %s: %w", runID, err)
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &r.Params); err != nil {
			return nil, fmt.Errorf("unmarshal run params: %w", err)
		}
	}
	return r, nil
}

// List returns all fit runs, newest first.
func (s *RunStore) List() ([]*FitRun, error) {
	query := `
		SELECT run_id, channel, mass_gev, norm,
		       log_like, ts, converged, evaluations, params_json
		FROM fit_runs
		ORDER BY created_at DESC, run_id
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list fit runs: %w", err)
	}
	defer rows.Close()

	var runs []*FitRun
	for rows.Next() {
		r := &FitRun{}
		var paramsJSON sql.NullString
		if err := rows.Scan(&r.RunID, &r.Channel, &r.MassGeV, &r.Norm,
			&r.LogLike, &r.TS, &r.Converged, &r.Evaluations, &paramsJSON); err != nil {
			return nil, fmt.Errorf("scan fit run row: %w", err)
		}
		if paramsJSON.Valid && paramsJSON.String != "" {
			if err := json.Unmarshal([]byte(paramsJSON.String), &r.Params); err != nil {
				return nil, fmt.Errorf("unmarshal run params: %w", err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
