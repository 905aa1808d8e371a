// ABOUTME: Owner mapping database operations
// ABOUTME: Persists external salesperson identities, cached metadata, and local account links
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stlnu/dealsync/models"
)

const ownerMappingColumns = `id, crm_owner_id, email, first_name, last_name, primary_team_name,
	team_names, is_archived, user_id, username, last_seen, last_owner_sync`

// GetOwnerMappingByOwnerID returns the mapping for an external owner id, or nil.
func GetOwnerMappingByOwnerID(db *sql.DB, crmOwnerID string) (*models.OwnerMapping, error) {
	row := db.QueryRow(`
		SELECT `+ownerMappingColumns+`
		FROM owner_mappings WHERE crm_owner_id = ?
	`, crmOwnerID)

	mapping, err := scanOwnerMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner mapping: %w", err)
	}
	return mapping, nil
}

// GetOwnerMappingByEmail returns the mapping with a matching email
// (case-insensitive), or nil.
func GetOwnerMappingByEmail(db *sql.DB, email string) (*models.OwnerMapping, error) {
	row := db.QueryRow(`
		SELECT `+ownerMappingColumns+`
		FROM owner_mappings WHERE LOWER(email) = ?
	`, strings.ToLower(strings.TrimSpace(email)))

	mapping, err := scanOwnerMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner mapping by email: %w", err)
	}
	return mapping, nil
}

// SaveOwnerMapping inserts or fully updates the mapping keyed by external
// owner id.
func SaveOwnerMapping(db *sql.DB, mapping *models.OwnerMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}

	_, err := db.Exec(`
		INSERT INTO owner_mappings (`+ownerMappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(crm_owner_id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			primary_team_name = excluded.primary_team_name,
			team_names = excluded.team_names,
			is_archived = excluded.is_archived,
			user_id = excluded.user_id,
			username = excluded.username,
			last_seen = excluded.last_seen,
			last_owner_sync = excluded.last_owner_sync
	`, mapping.ID.String(), mapping.CRMOwnerID, mapping.Email, mapping.FirstName,
		mapping.LastName, mapping.PrimaryTeamName, mapping.TeamNames, mapping.IsArchived,
		uuidPtr(mapping.UserID), mapping.Username, mapping.LastSeen, mapping.LastOwnerSync)

	if err != nil {
		return fmt.Errorf("failed to save owner mapping: %w", err)
	}
	return nil
}

// UnlinkOwnerMapping clears the local account link on a mapping. This is the
// only way an existing link is removed; automatic resolution never clears or
// replaces one.
func UnlinkOwnerMapping(db *sql.DB, crmOwnerID string) error {
	_, err := db.Exec(`
		UPDATE owner_mappings SET user_id = NULL, username = '' WHERE crm_owner_id = ?
	`, crmOwnerID)
	if err != nil {
		return fmt.Errorf("failed to unlink owner mapping: %w", err)
	}
	return nil
}

// ListOwnerMappings returns every persisted mapping.
func ListOwnerMappings(db *sql.DB) ([]models.OwnerMapping, error) {
	rows, err := db.Query(`
		SELECT ` + ownerMappingColumns + `
		FROM owner_mappings ORDER BY crm_owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.OwnerMapping
	for rows.Next() {
		mapping, err := scanOwnerMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *mapping)
	}

	return mappings, rows.Err()
}

// DeleteAllOwnerMappings clears the mapping table. Only the window rebuild
// uses this.
func DeleteAllOwnerMappings(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM owner_mappings`)
	if err != nil {
		return fmt.Errorf("failed to clear owner mappings: %w", err)
	}
	return nil
}

func scanOwnerMapping(row rowScanner) (*models.OwnerMapping, error) {
	mapping := &models.OwnerMapping{}
	var (
		id          string
		email       sql.NullString
		firstName   sql.NullString
		lastName    sql.NullString
		primaryTeam sql.NullString
		teamNames   sql.NullString
		userID      sql.NullString
		username    sql.NullString
		lastSync    sql.NullTime
	)

	err := row.Scan(&id, &mapping.CRMOwnerID, &email, &firstName, &lastName, &primaryTeam,
		&teamNames, &mapping.IsArchived, &userID, &username, &mapping.LastSeen, &lastSync)
	if err != nil {
		return nil, err
	}

	mapping.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	mapping.Email = email.String
	mapping.FirstName = firstName.String
	mapping.LastName = lastName.String
	mapping.PrimaryTeamName = primaryTeam.String
	mapping.TeamNames = teamNames.String
	mapping.Username = username.String

	if userID.Valid {
		if uid, err := uuid.Parse(userID.String); err == nil {
			mapping.UserID = &uid
		}
	}
	if lastSync.Valid {
		mapping.LastOwnerSync = &lastSync.Time
	}

	return mapping, nil
}

// TouchOwnerMappingSeen stamps last_seen without changing anything else.
func TouchOwnerMappingSeen(db *sql.DB, crmOwnerID string, seen time.Time) error {
	_, err := db.Exec(`
		UPDATE owner_mappings SET last_seen = ? WHERE crm_owner_id = ?
	`, seen, crmOwnerID)
	if err != nil {
		return fmt.Errorf("failed to touch owner mapping: %w", err)
	}
	return nil
}
