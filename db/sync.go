// ABOUTME: Sync bookkeeping database operations
// ABOUTME: Persists per-integration checkpoints and append-only run audit rows
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/stlnu/dealsync/models"
)

// GetSyncState returns the checkpoint for an integration, or nil if it has
// never synced.
func GetSyncState(db *sql.DB, integrationName string) (*models.SyncState, error) {
	state := &models.SyncState{}
	var (
		lastSuccess sql.NullTime
		lastCursor  sql.NullString
		lastAttempt sql.NullTime
		lastError   sql.NullString
	)

	err := db.QueryRow(`
		SELECT integration_name, last_successful_sync, last_cursor, last_attempt, last_error,
			created_at, updated_at
		FROM sync_state WHERE integration_name = ?
	`, integrationName).Scan(&state.IntegrationName, &lastSuccess, &lastCursor, &lastAttempt,
		&lastError, &state.CreatedAt, &state.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if lastSuccess.Valid {
		state.LastSuccessfulSync = &lastSuccess.Time
	}
	state.LastCursor = lastCursor.String
	if lastAttempt.Valid {
		state.LastAttempt = &lastAttempt.Time
	}
	state.LastError = lastError.String

	return state, nil
}

// SaveSyncState inserts or updates the checkpoint for an integration.
func SaveSyncState(db *sql.DB, state *models.SyncState) error {
	now := time.Now().UTC()
	state.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO sync_state (integration_name, last_successful_sync, last_cursor,
			last_attempt, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(integration_name) DO UPDATE SET
			last_successful_sync = excluded.last_successful_sync,
			last_cursor = excluded.last_cursor,
			last_attempt = excluded.last_attempt,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, state.IntegrationName, state.LastSuccessfulSync, state.LastCursor,
		state.LastAttempt, state.LastError, now, now)

	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// CreateSyncRun inserts a new audit row, normally in Started status.
func CreateSyncRun(db *sql.DB, run *models.SyncRun) error {
	_, err := db.Exec(`
		INSERT INTO sync_runs (id, started, finished, status, deals_fetched, deals_imported,
			deals_updated, deals_skipped, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Started, run.Finished, run.Status, run.DealsFetched, run.DealsImported,
		run.DealsUpdated, run.DealsSkipped, run.ErrorMessage)

	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// UpdateSyncRun overwrites the outcome fields of an existing run row.
func UpdateSyncRun(db *sql.DB, run *models.SyncRun) error {
	_, err := db.Exec(`
		UPDATE sync_runs
		SET finished = ?, status = ?, deals_fetched = ?, deals_imported = ?,
			deals_updated = ?, deals_skipped = ?, error_message = ?
		WHERE id = ?
	`, run.Finished, run.Status, run.DealsFetched, run.DealsImported,
		run.DealsUpdated, run.DealsSkipped, run.ErrorMessage, run.ID)

	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}
	return nil
}

// HasRunInStatusSince reports whether any run in the given status started at
// or after the cutoff. The scheduler uses this as a soft overlap guard.
func HasRunInStatusSince(db *sql.DB, status string, since time.Time) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sync_runs WHERE status = ? AND started >= ?
	`, status, since).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count sync runs: %w", err)
	}
	return count > 0, nil
}

// ListRecentRuns returns the most recent runs, newest first.
func ListRecentRuns(db *sql.DB, limit int) ([]models.SyncRun, error) {
	rows, err := db.Query(`
		SELECT id, started, finished, status, deals_fetched, deals_imported,
			deals_updated, deals_skipped, error_message
		FROM sync_runs ORDER BY started DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var finished sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.Started, &finished, &run.Status, &run.DealsFetched,
			&run.DealsImported, &run.DealsUpdated, &run.DealsSkipped, &errMsg); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.Finished = &finished.Time
		}
		run.ErrorMessage = errMsg.String
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
