// ABOUTME: Contest and leaderboard CLI commands
// ABOUTME: Contest administration, leaderboard display, and the monthly rollup
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

// AddContestCommand creates a new contest.
func AddContestCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("contest-add", flag.ExitOnError)
	name := fs.String("name", "", "Contest name (required)")
	description := fs.String("description", "", "Contest description")
	start := fs.String("start", "", "Start date, YYYY-MM-DD (required)")
	end := fs.String("end", "", "End date, YYYY-MM-DD inclusive (required)")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if *start == "" || *end == "" {
		return fmt.Errorf("--start and --end are required")
	}

	startDate, err := time.Parse("2006-01-02", *start)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	endDate, err := time.Parse("2006-01-02", *end)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	// Inclusive end-of-day bound
	endDate = endDate.Add(24*time.Hour - time.Second)
	if endDate.Before(startDate) {
		return fmt.Errorf("end date is before start date")
	}

	contest := &models.Contest{
		Name:        *name,
		Description: *description,
		StartDate:   startDate.UTC(),
		EndDate:     endDate.UTC(),
		IsActive:    true,
	}
	if err := db.CreateContest(database, contest); err != nil {
		return err
	}

	fmt.Printf("✓ Contest created: %s (ID: %s)\n", contest.Name, contest.ID)
	fmt.Printf("  Window: %s – %s\n", *start, *end)
	return nil
}

// ListContestsCommand lists all contests.
func ListContestsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("contest-list", flag.ExitOnError)
	_ = fs.Parse(args)

	contests, err := db.ListContests(database)
	if err != nil {
		return err
	}
	if len(contests) == 0 {
		fmt.Println("No contests found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTART\tEND\tACTIVE\tID")
	for _, c := range contests {
		active := "no"
		if c.IsActive {
			active = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Name, c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"), active, c.ID)
	}
	return w.Flush()
}

// CloseContestCommand deactivates a contest, freezing its standings.
func CloseContestCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("contest-close", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: contest close <contest-id>")
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid contest id: %w", err)
	}

	contest, err := db.GetContest(database, id)
	if err != nil {
		return err
	}
	if contest == nil {
		return fmt.Errorf("contest not found: %s", id)
	}

	if err := db.SetContestActive(database, id, false); err != nil {
		return err
	}

	fmt.Printf("✓ Contest closed: %s\n", contest.Name)
	return nil
}

// LeaderboardCommand prints the current standings of one contest.
func LeaderboardCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: leaderboard <contest-id>")
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid contest id: %w", err)
	}

	contest, err := db.GetContest(database, id)
	if err != nil {
		return err
	}
	if contest == nil {
		return fmt.Errorf("contest not found: %s", id)
	}

	entries, err := db.ListEntriesForContest(database, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s – %s)\n\n", contest.Name,
		contest.StartDate.Format("2006-01-02"), contest.EndDate.Format("2006-01-02"))

	if len(entries) == 0 {
		fmt.Println("No entries yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tNAME\tDEALS")
	for i, entry := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, entry.DisplayLabel, entry.DealsCount)
	}
	return w.Flush()
}

// RollupCommand prints per-owner totals for one calendar month.
func RollupCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("rollup", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: rollup <yyyy-mm>")
	}
	start, err := time.Parse("2006-01", fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid month: %w", err)
	}
	end := start.AddDate(0, 1, 0).Add(-time.Second)

	rows, err := db.MonthlyRollup(database, start, end)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("No deals mirrored for %s\n", fs.Arg(0))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OWNER\tEMAIL\tDEALS\tAMOUNT\tPROVISION")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			orDash(r.CRMOwnerID), orDash(r.OwnerEmail), r.DealsCount,
			formatSum(r.AmountSum), formatSum(r.ProvisionSum))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatSum(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
