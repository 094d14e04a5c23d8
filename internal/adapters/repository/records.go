package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/tunechart/internal/domain/records"
)

// GetRecords returns the group's records snapshot, or nil when none exists.
// Status columns win over the payload since a lease only touches the columns.
func (s *Store) GetRecords(ctx context.Context, groupID string) (*records.Snapshot, error) {
	var (
		status, runID, mode, errMsg, payload sql.NullString
		started, completed, updated          sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, run_id, mode, calculation_started_at, completed_at, updated_at, error, payload
         FROM records_snapshots WHERE group_id = ?`, groupID).
		Scan(&status, &runID, &mode, &started, &completed, &updated, &errMsg, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}

	snap := &records.Snapshot{}
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), snap); err != nil {
			return nil, fmt.Errorf("decode records payload: %w", err)
		}
	}
	snap.GroupID = groupID
	snap.Status = records.Status(status.String)
	snap.RunID = runID.String
	snap.Mode = records.RunMode(mode.String)
	snap.CalculationStartedAt = parseTime(started)
	snap.CompletedAt = parseTime(completed)
	snap.UpdatedAt = parseTime(updated)
	snap.Error = errMsg.String
	return snap, nil
}

// SaveRecords writes the full snapshot.
func (s *Store) SaveRecords(ctx context.Context, snap *records.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode records payload: %w", err)
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records_snapshots (
             group_id, status, run_id, mode, calculation_started_at, completed_at, updated_at, error, payload
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(group_id) DO UPDATE SET
             status = excluded.status,
             run_id = excluded.run_id,
             mode = excluded.mode,
             calculation_started_at = excluded.calculation_started_at,
             completed_at = excluded.completed_at,
             updated_at = excluded.updated_at,
             error = excluded.error,
             payload = excluded.payload`,
		snap.GroupID, string(snap.Status), nullableString(snap.RunID), nullableString(string(snap.Mode)),
		nullableTime(snap.CalculationStartedAt), nullableTime(snap.CompletedAt), formatTime(updated),
		nullableString(snap.Error), string(payload),
	)
	if err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}

// AcquireRecordsLease marks the group calculating in one statement unless a
// calculation that started at or after staleBefore already holds it.
func (s *Store) AcquireRecordsLease(ctx context.Context, groupID, runID string, startedAt, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records_snapshots (group_id, status, run_id, calculation_started_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(group_id) DO UPDATE SET
             status = excluded.status,
             run_id = excluded.run_id,
             calculation_started_at = excluded.calculation_started_at,
             updated_at = excluded.updated_at
         WHERE records_snapshots.status != ?
            OR records_snapshots.calculation_started_at IS NULL
            OR records_snapshots.calculation_started_at < ?`,
		groupID, string(records.StatusCalculating), runID, formatTime(startedAt), formatTime(startedAt),
		string(records.StatusCalculating), formatTime(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("acquire records lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire records lease: %w", err)
	}
	return n > 0, nil
}
