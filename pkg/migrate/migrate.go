// Package migrate applies versioned SQL migrations to a database/sql handle.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"
)

// Latest targets the newest known migration.
const Latest = -1

// Migration is one schema version with the SQL that enters and leaves it.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// DB is satisfied by *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MigrationProvider loads migrations and keeps the version table.
type MigrationProvider interface {
	GetMigrations() ([]Migration, error)
	CreateMigrationTable(ctx context.Context, db DB) error
	GetCurrentVersion(ctx context.Context, db DB) (int, error)
	SetVersion(ctx context.Context, db DB, version int) error
}

// Logf receives one line per applied migration.
type Logf func(template string, args ...any)

// Status is the applied version and what remains to apply.
type Status struct {
	Current int
	Latest  int
	Pending []Migration
}

// Migrator moves a database between schema versions.
type Migrator struct {
	db       *sql.DB
	provider MigrationProvider
	logf     Logf
}

// NewMigrator returns a migrator for db.
func NewMigrator(db *sql.DB, provider MigrationProvider) *Migrator {
	return &Migrator{
		db:       db,
		provider: provider,
		logf:     func(string, ...any) {},
	}
}

// WithLogger reports applied migrations through logf.
func (m *Migrator) WithLogger(logf Logf) *Migrator {
	if logf != nil {
		m.logf = logf
	}
	return m
}

// step is one migration applied in one direction.
type step struct {
	Migration
	up bool
}

// plan returns the steps leading from version current to target over the
// ascending migrations. target may be Latest or 0 for an empty schema.
func plan(migrations []Migration, current, target int) ([]step, error) {
	if target == Latest {
		target = 0
		if n := len(migrations); n > 0 {
			target = migrations[n-1].Version
		}
	}
	if target != 0 && !slices.ContainsFunc(migrations, func(mg Migration) bool { return mg.Version == target }) {
		return nil, fmt.Errorf("unknown migration version %d", target)
	}

	var steps []step
	if target >= current {
		for _, mg := range migrations {
			if mg.Version > current && mg.Version <= target {
				steps = append(steps, step{mg, true})
			}
		}
		return steps, nil
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		if mg := migrations[i]; mg.Version <= current && mg.Version > target {
			steps = append(steps, step{mg, false})
		}
	}
	return steps, nil
}

// load prepares the version table and returns the applied version and the
// migrations in ascending order.
func (m *Migrator) load(ctx context.Context) (int, []Migration, error) {
	if err := m.provider.CreateMigrationTable(ctx, m.db); err != nil {
		return 0, nil, fmt.Errorf("failed to create migration table: %w", err)
	}
	current, err := m.provider.GetCurrentVersion(ctx, m.db)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get current version: %w", err)
	}
	migrations, err := m.provider.GetMigrations()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get migrations: %w", err)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return current, migrations, nil
}

// MigrateUp applies every pending migration.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	return m.MigrateTo(ctx, Latest)
}

// MigrateDown rolls back to target, which must be below the current version.
func (m *Migrator) MigrateDown(ctx context.Context, target int) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if target < 0 || target >= current {
		return fmt.Errorf("target version %d must be between 0 and current version %d", target, current-1)
	}
	return m.MigrateTo(ctx, target)
}

// MigrateTo applies or rolls back migrations until the schema is at target.
func (m *Migrator) MigrateTo(ctx context.Context, target int) error {
	current, migrations, err := m.load(ctx)
	if err != nil {
		return err
	}
	steps, err := plan(migrations, current, target)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if err := m.apply(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// CurrentVersion returns the applied version, 0 for an empty schema.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	current, _, err := m.load(ctx)
	return current, err
}

// Status reports the applied version and the pending migrations.
func (m *Migrator) Status(ctx context.Context) (Status, error) {
	current, migrations, err := m.load(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Current: current}
	for _, mg := range migrations {
		st.Latest = mg.Version
		if mg.Version > current {
			st.Pending = append(st.Pending, mg)
		}
	}
	return st, nil
}

// apply runs one step and records the resulting version in the same transaction.
func (m *Migrator) apply(ctx context.Context, s step) error {
	direction, stmt, version := "up", s.Up, s.Version
	if !s.up {
		direction, stmt, version = "down", s.Down, s.Version-1
	}
	if stmt == "" {
		return fmt.Errorf("migration %d has no %s SQL", s.Version, direction)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migration %d %s failed: %w", s.Version, direction, err)
	}
	if err := m.provider.SetVersion(ctx, tx, version); err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", s.Version, err)
	}

	m.logf("migrated %s through %d (%s) at %s", direction, s.Version, s.Name, time.Now().Format(time.RFC3339))
	return nil
}
