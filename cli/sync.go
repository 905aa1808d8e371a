// ABOUTME: Sync CLI commands
// ABOUTME: Manual runs, the hourly daemon, status display, and the month rebuild
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/stlnu/dealsync/crm"
	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
	"github.com/stlnu/dealsync/sync"
)

// buildEngine wires the full sync stack from config.
func buildEngine(database *sql.DB) (*sync.Engine, error) {
	cfg, err := crm.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := crm.NewClient(cfg)
	status := crm.NewStatusResolver(cfg, client)
	return sync.NewEngine(database, cfg, client, status), nil
}

// SyncNowCommand runs one incremental sync immediately.
func SyncNowCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync-now", flag.ExitOnError)
	_ = fs.Parse(args)

	engine, err := buildEngine(database)
	if err != nil {
		return err
	}

	fmt.Println("→ Starting sync...")
	result := engine.RunIncrementalSync(context.Background())
	if !result.Succeeded {
		return fmt.Errorf("sync failed: %s", result.Message)
	}

	fmt.Printf("✓ Sync complete: %s\n", result.Message)
	return nil
}

// SyncDaemonCommand runs the hourly scheduler until interrupted.
func SyncDaemonCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync-daemon", flag.ExitOnError)
	_ = fs.Parse(args)

	engine, err := buildEngine(database)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon := sync.NewDaemon(database, engine)
	daemon.Run(ctx)
	return nil
}

// SyncStatusCommand shows the checkpoint and recent runs.
func SyncStatusCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync-status", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Number of recent runs to show")
	_ = fs.Parse(args)

	state, err := db.GetSyncState(database, models.IntegrationDeals)
	if err != nil {
		return fmt.Errorf("failed to read sync state: %w", err)
	}

	if state == nil {
		fmt.Println("No sync has run yet")
	} else {
		fmt.Println("Sync state:")
		if state.LastSuccessfulSync != nil {
			fmt.Printf("  Last success: %s\n", state.LastSuccessfulSync.Format("2006-01-02 15:04:05 MST"))
		} else {
			fmt.Println("  Last success: never (backfill in progress)")
		}
		if state.LastAttempt != nil {
			fmt.Printf("  Last attempt: %s\n", state.LastAttempt.Format("2006-01-02 15:04:05 MST"))
		}
		if state.LastCursor != "" {
			fmt.Printf("  Backfill cursor: %s\n", state.LastCursor)
		}
		if state.LastError != "" {
			fmt.Printf("  Last error: %s\n", state.LastError)
		}
	}

	runs, err := db.ListRecentRuns(database, *limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	fmt.Println("\nRecent runs:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tSTATUS\tFETCHED\tIMPORTED\tUPDATED\tSKIPPED\tERROR")
	for _, run := range runs {
		errMsg := run.ErrorMessage
		if len(errMsg) > 40 {
			errMsg = errMsg[:40] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.Started.Format("2006-01-02 15:04"), run.Status,
			run.DealsFetched, run.DealsImported, run.DealsUpdated, run.DealsSkipped, errMsg)
	}
	return w.Flush()
}

// RebuildMonthCommand wipes and rebuilds the current calendar month.
func RebuildMonthCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("rebuild-month", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	_ = fs.Parse(args)

	if !*yes {
		fmt.Print("This deletes all mirrored deals, owner mappings, and leaderboard entries. Continue? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	engine, err := buildEngine(database)
	if err != nil {
		return err
	}

	fmt.Println("→ Rebuilding current month...")
	result := engine.RebuildCurrentMonthOnly(context.Background())
	if !result.Succeeded {
		return fmt.Errorf("rebuild failed: %s", result.Message)
	}

	fmt.Printf("✓ Rebuild complete: %s\n", result.Message)
	return nil
}
