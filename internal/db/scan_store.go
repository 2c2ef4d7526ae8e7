package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/halo-data/sigmav.report/internal/scan"
)

// ScanStore persists profile-likelihood scans and their points.
type ScanStore struct {
	db *sql.DB
}

// NewScanStore creates a ScanStore backed by the given database.
func NewScanStore(db *DB) *ScanStore {
	return &ScanStore{db: db.DB}
}

// Insert stores a scan result, optionally linked to the fit run it
// profiled. It returns the new scan ID.
func (s *ScanStore) Insert(runID string, res *scan.Result) (string, error) {
	if res == nil || len(res.Points) == 0 {
		return "", fmt.Errorf("insert scan: empty result")
	}

	scanID := uuid.New().String()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin scan insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO scans (scan_id, run_id, param) VALUES (?, ?, ?)`,
		scanID, nullString(runID), string(res.Param))
	if err != nil {
		return "", fmt.Errorf("insert scan: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO scan_points (scan_id, seq, value, log_like, failed, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare scan point insert: %w", err)
	}
	defer stmt.Close()

	for i, pt := range res.Points {
		var reason interface{}
		if pt.Err != nil {
			reason = pt.Err.Error()
		}
		if _, err := stmt.Exec(scanID, i, pt.Value, pt.LogLike, pt.Failed(), reason); err != nil {
			return "", fmt.Errorf("insert scan point %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit scan insert: %w", err)
	}
	return scanID, nil
}

// ScanPoint is a persisted scan point row. Failed points carry the
// stored failure reason rather than the original error value.
type ScanPoint struct {
	Seq        int     `json:"seq"`
	Value      float64 `json:"value"`
	LogLike    float64 `json:"log_like"`
	Failed     bool    `json:"failed"`
	FailReason string  `json:"fail_reason,omitempty"`
}

// StoredScan is a persisted scan with its points in sequence order.
type StoredScan struct {
	ScanID string      `json:"scan_id"`
	RunID  string      `json:"run_id,omitempty"`
	Param  string      `json:"param"`
	Points []ScanPoint `json:"points"`
}

// Get returns a stored scan by ID.
func (s *ScanStore) Get(scanID string) (*StoredScan, error) {
	row := s.db.QueryRow(`SELECT scan_id, run_id, param FROM scans WHERE scan_id = ?`, scanID)

	stored := &StoredScan{}
	var runID sql.NullString
	if err := row.Scan(&stored.ScanID, &runID, &stored.Param); err != nil {
		return nil, fmt.Errorf("get scan %s: %w", scanID, err)
	}
	stored.RunID = runID.String

	rows, err := s.db.Query(`
		SELECT seq, value, log_like, failed, fail_reason
		FROM scan_points
		WHERE scan_id = ?
		ORDER BY seq
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("get scan points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pt ScanPoint
		var reason sql.NullString
		if err := rows.Scan(&pt.Seq, &pt.Value, &pt.LogLike, &pt.Failed, &reason); err != nil {
			return nil, fmt.Errorf("scan point row: %w", err)
		}
		pt.FailReason = reason.String
		stored.Points = append(stored.Points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stored, nil
}

// ListForRun returns the scan IDs recorded for a fit run, oldest first.
func (s *ScanStore) ListForRun(runID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT scan_id FROM scans
		WHERE run_id = ?
		ORDER BY created_at, scan_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list scans for run %s: %w", runID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
