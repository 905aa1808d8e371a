// ABOUTME: Local user directory database operations
// ABOUTME: Accounts that owner resolution links mirrored deals and mappings to
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stlnu/dealsync/models"
)

// CreateUser inserts a new local account.
func CreateUser(db *sql.DB, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO users (id, username, email, display_name, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID.String(), user.Username, user.Email, user.DisplayName, user.Role, user.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns a user by id, or nil.
func GetUser(db *sql.DB, id uuid.UUID) (*models.User, error) {
	row := db.QueryRow(`
		SELECT id, username, email, display_name, role, created_at
		FROM users WHERE id = ?
	`, id.String())

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FindUserByUsername returns the user with an exact username match, or nil.
func FindUserByUsername(db *sql.DB, username string) (*models.User, error) {
	row := db.QueryRow(`
		SELECT id, username, email, display_name, role, created_at
		FROM users WHERE username = ?
	`, username)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindUserByEmail returns the user with a matching email (case-insensitive),
// or nil.
func FindUserByEmail(db *sql.DB, email string) (*models.User, error) {
	row := db.QueryRow(`
		SELECT id, username, email, display_name, role, created_at
		FROM users WHERE LOWER(email) = ?
	`, strings.ToLower(strings.TrimSpace(email)))

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// ListUsers returns every local account ordered by username.
func ListUsers(db *sql.DB) ([]models.User, error) {
	rows, err := db.Query(`
		SELECT id, username, email, display_name, role, created_at
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	return users, rows.Err()
}

// UserIsInRole reports whether a user holds the given role.
func UserIsInRole(db *sql.DB, id uuid.UUID, role string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM users WHERE id = ? AND role = ?
	`, id.String(), role).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check user role: %w", err)
	}
	return count > 0, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var id string
	var email, displayName, role sql.NullString

	err := row.Scan(&id, &user.Username, &email, &displayName, &role, &user.CreatedAt)
	if err != nil {
		return nil, err
	}

	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	user.DisplayName = displayName.String
	user.Role = role.String

	return user, nil
}
