// ABOUTME: Owner mapping CLI commands
// ABOUTME: Inspecting mappings and clearing manual account links
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/stlnu/dealsync/db"
)

// ListOwnersCommand lists persisted owner mappings.
func ListOwnersCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("owner-list", flag.ExitOnError)
	_ = fs.Parse(args)

	mappings, err := db.ListOwnerMappings(database)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		fmt.Println("No owner mappings found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OWNER ID\tNAME\tEMAIL\tTEAM\tLINKED USER\tARCHIVED")
	for _, m := range mappings {
		name := orDash(m.FirstName + " " + m.LastName)
		linked := "-"
		if m.UserID != nil {
			linked = m.Username
			if linked == "" {
				linked = m.UserID.String()
			}
		}
		archived := "no"
		if m.IsArchived {
			archived = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.CRMOwnerID, name, orDash(m.Email), orDash(m.PrimaryTeamName), linked, archived)
	}
	return w.Flush()
}

// UnlinkOwnerCommand clears the local-account link on a mapping.
func UnlinkOwnerCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("owner-unlink", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: owner unlink <crm-owner-id>")
	}
	ownerID := fs.Arg(0)

	mapping, err := db.GetOwnerMappingByOwnerID(database, ownerID)
	if err != nil {
		return err
	}
	if mapping == nil {
		return fmt.Errorf("no mapping for owner %s", ownerID)
	}
	if mapping.UserID == nil {
		fmt.Printf("Owner %s is not linked\n", ownerID)
		return nil
	}

	if err := db.UnlinkOwnerMapping(database, ownerID); err != nil {
		return err
	}

	fmt.Printf("✓ Owner %s unlinked\n", ownerID)
	return nil
}
