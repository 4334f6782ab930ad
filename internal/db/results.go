package db

import (
	"fmt"
	"time"
)

// InsertResults archives a job's per-file results in one transaction.
func (db *DB) InsertResults(jobID string, rows []ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("results begin: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO scan_result (job_id, path, verdict, threat_name, md5, sha256, file_size, quarantined, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("results prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, row := range rows {
		createdAt := row.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.Exec(jobID, row.Path, row.Verdict, row.ThreatName,
			row.MD5, row.SHA256, row.FileSize, row.Quarantined, createdAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("results insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("results commit: %w", err)
	}
	return nil
}

// ListResults returns a job's archived results in scan order.
func (db *DB) ListResults(jobID string) ([]ResultRow, error) {
	rows, err := db.Query(
		`SELECT id, job_id, path, verdict, threat_name, md5, sha256, file_size, quarantined, created_at
		 FROM scan_result WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		if err := rows.Scan(&r.ID, &r.JobID, &r.Path, &r.Verdict, &r.ThreatName,
			&r.MD5, &r.SHA256, &r.FileSize, &r.Quarantined, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("result rows: %w", err)
	}
	return out, nil
}
