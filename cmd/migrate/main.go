// migrate inspects and moves the schema version of a SQLite configuration
// database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/chrissnell/sdofresponse/pkg/config"
	"github.com/chrissnell/sdofresponse/pkg/migrate"
	_ "modernc.org/sqlite"
)

const usage = `Usage: migrate -db config.db <command> [version]

Commands:
  status        Show the applied version and pending migrations (default)
  up            Apply all pending migrations
  down VERSION  Roll back to VERSION
  to VERSION    Move up or down to VERSION
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
			os.Exit(2)
		}
		log.Fatalf("migrate: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dbPath := fs.String("db", "", "Path to the SQLite configuration database")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *dbPath == "" {
		return fmt.Errorf("%w: -db is required", errUsage)
	}

	command, rest := "status", fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	migrator := config.NewMigrator(db).WithLogger(func(template string, args ...any) {
		fmt.Fprintf(stdout, template+"\n", args...)
	})

	switch command {
	case "status":
		return showStatus(ctx, stdout, migrator)
	case "up":
		if err := migrator.MigrateUp(ctx); err != nil {
			return err
		}
	case "down", "to":
		if len(rest) != 1 {
			return fmt.Errorf("%w: %s needs a target version", errUsage, command)
		}
		target, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("%w: invalid version %q", errUsage, rest[0])
		}
		if command == "down" {
			err = migrator.MigrateDown(ctx, target)
		} else {
			err = migrator.MigrateTo(ctx, target)
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
	return showStatus(ctx, stdout, migrator)
}

func showStatus(ctx context.Context, w io.Writer, migrator *migrate.Migrator) error {
	st, err := migrator.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "schema version %d of %d\n", st.Current, st.Latest)
	for _, m := range st.Pending {
		fmt.Fprintf(w, "  pending %03d %s\n", m.Version, m.Name)
	}
	return nil
}
