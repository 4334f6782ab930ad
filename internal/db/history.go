package db

import (
	"fmt"
	"time"
)

// RecentHistoryLimit is the consumer-facing view size; the full log stays on
// disk regardless.
const RecentHistoryLimit = 50

// AppendHistory records one finished job in the append-only history log.
func (db *DB) AppendHistory(entry HistoryEntry) (HistoryEntry, error) {
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	res, err := db.Exec(
		`INSERT INTO scan_history (started_at, scan_type, total_files, threats, status)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.StartedAt, entry.ScanType, entry.TotalFiles, entry.Threats, entry.Status,
	)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("insert history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("history insert id: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// RecentHistory returns the newest entries, most recent first, capped at
// limit (or RecentHistoryLimit when limit <= 0).
func (db *DB) RecentHistory(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = RecentHistoryLimit
	}
	rows, err := db.Query(
		`SELECT id, started_at, scan_type, total_files, threats, status
		 FROM scan_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.StartedAt, &e.ScanType, &e.TotalFiles, &e.Threats, &e.Status); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return entries, nil
}

// CountHistory reports the full log size, beyond the recent view.
func (db *DB) CountHistory() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM scan_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// ClearHistory deletes the entire log.
func (db *DB) ClearHistory() error {
	if _, err := db.Exec(`DELETE FROM scan_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
