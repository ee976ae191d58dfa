package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Format: 001_migration_name.up.sql or 001_migration_name.down.sql
var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// FSProvider loads migrations from a directory of an fs.FS, typically an
// embed.FS compiled into the binary.
type FSProvider struct {
	fsys           fs.FS
	dir            string
	migrationTable string
	dbDriver       string // "sqlite" or "postgres"
}

// NewFSProvider creates a migration provider reading dir within fsys.
func NewFSProvider(fsys fs.FS, dir, migrationTable, dbDriver string) *FSProvider {
	if migrationTable == "" {
		migrationTable = "schema_migrations"
	}
	if dbDriver == "" {
		dbDriver = "sqlite"
	}
	return &FSProvider{
		fsys:           fsys,
		dir:            dir,
		migrationTable: migrationTable,
		dbDriver:       dbDriver,
	}
}

// GetMigrations loads all migrations in version order
func (p *FSProvider) GetMigrations() ([]Migration, error) {
	byVersion := make(map[int]*Migration)

	err := fs.WalkDir(p.fsys, p.dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := migrationFile.FindStringSubmatch(path.Base(name))
		if matches == nil {
			return nil
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("invalid version number in file %s: %w", name, err)
		}
		content, err := fs.ReadFile(p.fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: strings.ReplaceAll(matches[2], "_", " ")}
			byVersion[version] = m
		}
		if matches[3] == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", p.dir, err)
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// CreateMigrationTable creates the migration tracking table
func (p *FSProvider) CreateMigrationTable(ctx context.Context, db DB) error {
	stamp := "DATETIME"
	if p.dbDriver == "postgres" {
		stamp = "TIMESTAMP"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at %s DEFAULT CURRENT_TIMESTAMP
		)
	`, p.migrationTable, stamp)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// GetCurrentVersion returns the highest applied migration version
func (p *FSProvider) GetCurrentVersion(ctx context.Context, db DB) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", p.migrationTable)

	var version int
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// SetVersion records version as the highest applied migration, dropping
// records of anything above it.
func (p *FSProvider) SetVersion(ctx context.Context, db DB, version int) error {
	placeholder := "?"
	if p.dbDriver == "postgres" {
		placeholder = "$1"
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE version > %s", p.migrationTable, placeholder)
	if _, err := db.ExecContext(ctx, del, version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	if version == 0 {
		return nil
	}

	var ins string
	if p.dbDriver == "postgres" {
		ins = fmt.Sprintf(`
			INSERT INTO %s (version, applied_at)
			VALUES ($1, CURRENT_TIMESTAMP)
			ON CONFLICT (version) DO UPDATE SET applied_at = CURRENT_TIMESTAMP
		`, p.migrationTable)
	} else {
		ins = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (version, applied_at)
			VALUES (?, CURRENT_TIMESTAMP)
		`, p.migrationTable)
	}
	if _, err := db.ExecContext(ctx, ins, version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}
