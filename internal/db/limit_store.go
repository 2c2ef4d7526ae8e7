package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DerivedLimit is a persisted upper limit derived from a fit run.
type DerivedLimit struct {
	LimitID  string  `json:"limit_id"`
	RunID    string  `json:"run_id,omitempty"`
	CL       float64 `json:"cl"`
	EminGeV  float64 `json:"emin_gev"`
	EmaxGeV  float64 `json:"emax_gev"`
	FluxUL   float64 `json:"flux_ul"`
	SigmaVUL float64 `json:"sigmav_ul"`
}

// LimitStore persists derived upper limits.
type LimitStore struct {
	db *sql.DB
}

// NewLimitStore creates a LimitStore backed by the given database.
func NewLimitStore(db *DB) *LimitStore {
	return &LimitStore{db: db.DB}
}

// Insert stores a derived limit. If l.LimitID is empty, a new UUID is
// generated.
func (s *LimitStore) Insert(l *DerivedLimit) error {
	if l.LimitID == "" {
		l.LimitID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO derived_limits (limit_id, run_id, cl, emin_gev, emax_gev, flux_ul, sigmav_ul)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.LimitID, nullString(l.RunID), l.CL, l.EminGeV, l.EmaxGeV, l.FluxUL, l.SigmaVUL)
	if err != nil {
		return fmt.Errorf("insert derived limit: %w", err)
	}
	return nil
}

// ListForRun returns the limits recorded for a fit run, oldest first.
func (s *LimitStore) ListForRun(runID string) ([]*DerivedLimit, error) {
	rows, err := s.db.Query(`
		SELECT limit_id, run_id, cl, emin_gev, emax_gev, flux_ul, sigmav_ul
		FROM derived_limits
		WHERE run_id = ?
		ORDER BY created_at, limit_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list limits for run %s: %w", runID, err)
	}
	defer rows.Close()

	var limits []*DerivedLimit
	for rows.Next() {
		l := &DerivedLimit{}
		var run sql.NullString
		if err := rows.Scan(&l.LimitID, &run, &l.CL, &l.EminGeV, &l.EmaxGeV, &l.FluxUL, &l.SigmaVUL); err != nil {
			return nil, fmt.Errorf("limit row: %w", err)
		}
		l.RunID = run.String
		limits = append(limits, l)
	}
	return limits, rows.Err()
}
