// ABOUTME: Contest and leaderboard entry database operations
// ABOUTME: Entries are a derived view, deleted and reinserted on every recalculation
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stlnu/dealsync/models"
)

// CreateContest inserts a new contest.
func CreateContest(db *sql.DB, contest *models.Contest) error {
	if contest.ID == uuid.Nil {
		contest.ID = uuid.New()
	}
	contest.CreatedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO contests (id, name, description, start_date, end_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, contest.ID.String(), contest.Name, contest.Description, contest.StartDate,
		contest.EndDate, contest.IsActive, contest.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create contest: %w", err)
	}
	return nil
}

// GetContest returns a contest by id, or nil.
func GetContest(db *sql.DB, id uuid.UUID) (*models.Contest, error) {
	row := db.QueryRow(`
		SELECT id, name, description, start_date, end_date, is_active, created_at
		FROM contests WHERE id = ?
	`, id.String())

	contest, err := scanContest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}
	return contest, nil
}

// ListContests returns every contest, newest first.
func ListContests(db *sql.DB) ([]models.Contest, error) {
	rows, err := db.Query(`
		SELECT id, name, description, start_date, end_date, is_active, created_at
		FROM contests ORDER BY start_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contests: %w", err)
	}
	defer rows.Close()

	return collectContests(rows)
}

// ListActiveContests returns contests with the active flag set whose end
// date has not passed. Contests count even before their start date, so
// upcoming windows are swept and seeded with standings right away.
func ListActiveContests(db *sql.DB, now time.Time) ([]models.Contest, error) {
	rows, err := db.Query(`
		SELECT id, name, description, start_date, end_date, is_active, created_at
		FROM contests
		WHERE is_active = 1 AND end_date >= ?
		ORDER BY start_date
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active contests: %w", err)
	}
	defer rows.Close()

	return collectContests(rows)
}

// SetContestActive flips the active flag. Closed contests keep their entries
// frozen at the last computed standings.
func SetContestActive(db *sql.DB, id uuid.UUID, active bool) error {
	_, err := db.Exec(`UPDATE contests SET is_active = ? WHERE id = ?`, active, id.String())
	if err != nil {
		return fmt.Errorf("failed to update contest: %w", err)
	}
	return nil
}

// DeleteEntriesForContest removes every entry for one contest ahead of a
// reinsert.
func DeleteEntriesForContest(db *sql.DB, contestID uuid.UUID) error {
	_, err := db.Exec(`DELETE FROM contest_entries WHERE contest_id = ?`, contestID.String())
	if err != nil {
		return fmt.Errorf("failed to clear contest entries: %w", err)
	}
	return nil
}

// DeleteAllContestEntries clears every entry. Only the window rebuild uses
// this.
func DeleteAllContestEntries(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM contest_entries`)
	if err != nil {
		return fmt.Errorf("failed to clear contest entries: %w", err)
	}
	return nil
}

// InsertContestEntry inserts one leaderboard row.
func InsertContestEntry(db *sql.DB, entry *models.ContestEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	_, err := db.Exec(`
		INSERT INTO contest_entries (id, contest_id, owner_key, user_id, display_label,
			deals_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID.String(), entry.ContestID.String(), entry.OwnerKey, uuidPtr(entry.UserID),
		entry.DisplayLabel, entry.DealsCount, entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert contest entry: %w", err)
	}
	return nil
}

// ListEntriesForContest returns the leaderboard ordered by deal count
// descending, label ascending as the tiebreak.
func ListEntriesForContest(db *sql.DB, contestID uuid.UUID) ([]models.ContestEntry, error) {
	rows, err := db.Query(`
		SELECT id, contest_id, owner_key, user_id, display_label, deals_count, updated_at
		FROM contest_entries
		WHERE contest_id = ?
		ORDER BY deals_count DESC, display_label ASC
	`, contestID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list contest entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ContestEntry
	for rows.Next() {
		var entry models.ContestEntry
		var id, contestID string
		var userID sql.NullString
		if err := rows.Scan(&id, &contestID, &entry.OwnerKey, &userID, &entry.DisplayLabel,
			&entry.DealsCount, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entry.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		entry.ContestID, err = uuid.Parse(contestID)
		if err != nil {
			return nil, err
		}
		if userID.Valid {
			if uid, err := uuid.Parse(userID.String); err == nil {
				entry.UserID = &uid
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanContest(row rowScanner) (*models.Contest, error) {
	contest := &models.Contest{}
	var id string
	var description sql.NullString

	err := row.Scan(&id, &contest.Name, &description, &contest.StartDate, &contest.EndDate,
		&contest.IsActive, &contest.CreatedAt)
	if err != nil {
		return nil, err
	}

	contest.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	contest.Description = description.String

	return contest, nil
}

func collectContests(rows *sql.Rows) ([]models.Contest, error) {
	var contests []models.Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, *contest)
	}
	return contests, rows.Err()
}
