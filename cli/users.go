// ABOUTME: User directory CLI commands
// ABOUTME: Seeds the local accounts owner resolution links against
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

// AddUserCommand creates a local user account.
func AddUserCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("user-add", flag.ExitOnError)
	username := fs.String("username", "", "Username, the 4-digit seller number (required)")
	email := fs.String("email", "", "Email address")
	displayName := fs.String("name", "", "Display name")
	role := fs.String("role", "seller", "Role")
	_ = fs.Parse(args)

	if *username == "" {
		return fmt.Errorf("--username is required")
	}

	existing, err := db.FindUserByUsername(database, *username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %s already exists", *username)
	}

	user := &models.User{
		Username:    *username,
		Email:       *email,
		DisplayName: *displayName,
		Role:        *role,
	}
	if err := db.CreateUser(database, user); err != nil {
		return err
	}

	fmt.Printf("✓ User created: %s (ID: %s)\n", user.Username, user.ID)
	return nil
}

// ListUsersCommand lists local user accounts.
func ListUsersCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("user-list", flag.ExitOnError)
	_ = fs.Parse(args)

	users, err := db.ListUsers(database)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "USERNAME\tNAME\tEMAIL\tROLE")
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Username, orDash(u.DisplayName), orDash(u.Email), u.Role)
	}
	return w.Flush()
}
