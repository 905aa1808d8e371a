// ABOUTME: Entry point for the deal sync CLI and daemon
// ABOUTME: Routes subcommands and owns database path resolution
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/stlnu/dealsync/cli"
	"github.com/stlnu/dealsync/db"
)

const version = "0.2.0"

func main() {
	// Local .env wins over nothing, loses to the real environment
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/dealsync/dealsync.db)")
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("dealsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	database, err := db.OpenDatabase(getDatabasePath(*dbPath))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	command := args[0]
	commandArgs := args[1:]

	run := func(err error) {
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
	}

	switch command {
	case "sync":
		sub, subArgs := splitSub(commandArgs)
		switch sub {
		case "now":
			run(cli.SyncNowCommand(database, subArgs))
		case "daemon":
			run(cli.SyncDaemonCommand(database, subArgs))
		case "status":
			run(cli.SyncStatusCommand(database, subArgs))
		case "rebuild-month":
			run(cli.RebuildMonthCommand(database, subArgs))
		default:
			fmt.Println("Usage: dealsync sync <now|daemon|status|rebuild-month>")
			os.Exit(1)
		}

	case "contest":
		sub, subArgs := splitSub(commandArgs)
		switch sub {
		case "add":
			run(cli.AddContestCommand(database, subArgs))
		case "list":
			run(cli.ListContestsCommand(database, subArgs))
		case "close":
			run(cli.CloseContestCommand(database, subArgs))
		default:
			fmt.Println("Usage: dealsync contest <add|list|close>")
			os.Exit(1)
		}

	case "leaderboard":
		run(cli.LeaderboardCommand(database, commandArgs))

	case "rollup":
		run(cli.RollupCommand(database, commandArgs))

	case "user":
		sub, subArgs := splitSub(commandArgs)
		switch sub {
		case "add":
			run(cli.AddUserCommand(database, subArgs))
		case "list":
			run(cli.ListUsersCommand(database, subArgs))
		default:
			fmt.Println("Usage: dealsync user <add|list>")
			os.Exit(1)
		}

	case "owner":
		sub, subArgs := splitSub(commandArgs)
		switch sub {
		case "list":
			run(cli.ListOwnersCommand(database, subArgs))
		case "unlink":
			run(cli.UnlinkOwnerCommand(database, subArgs))
		default:
			fmt.Println("Usage: dealsync owner <list|unlink>")
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func splitSub(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

// getDatabasePath resolves the database location: explicit flag, then
// DEALSYNC_DB_PATH, then the XDG default.
func getDatabasePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv("DEALSYNC_DB_PATH"); envPath != "" {
		return envPath
	}
	return filepath.Join(xdg.DataHome, "dealsync", "dealsync.db")
}

func printUsage() {
	fmt.Println(`dealsync - CRM deal mirror and contest leaderboards

Usage:
  dealsync [flags] <command>

Commands:
  sync now              Run one incremental sync
  sync daemon           Run the hourly background sync
  sync status           Show checkpoint and recent runs
  sync rebuild-month    Wipe and rebuild the current calendar month
  contest add           Create a contest (--name --start --end)
  contest list          List contests
  contest close <id>    Close a contest, freezing its standings
  leaderboard <id>      Show a contest's standings
  rollup <yyyy-mm>      Per-owner totals for one month
  user add              Create a local user (--username)
  user list             List local users
  owner list            List CRM owner mappings
  owner unlink <id>     Clear an owner's local-account link

Flags:
  --db-path <path>      Database location
  --version             Show version`)
}
