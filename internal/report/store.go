// Package report provides PostgreSQL-backed persistence for abuse reports.
// The in-memory ban decision never depends on the database; this is an audit
// trail for offline review of who reported whom and in which room.
package report

import (
	"context"
	"database/sql"
	"fmt"
)

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Report represents a single abuse report to be persisted. IDs are ephemeral
// connection ids, meaningful only for correlating rows within one incident.
type Report struct {
	ReporterID string
	ReportedID string
	RoomID     string
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts an abuse report.
func (s *Store) Create(ctx context.Context, r *Report) error {
	const query = `
		INSERT INTO abuse_reports (reporter_id, reported_id, room_id)
		VALUES ($1, $2, $3)`

	_, err := s.db.ExecContext(ctx, query, r.ReporterID, r.ReportedID, r.RoomID)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}
