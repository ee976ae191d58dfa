package config

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/chrissnell/sdofresponse/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewMigrator returns a migrator for the configuration schema of db.
func NewMigrator(db *sql.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, migrate.NewFSProvider(migrationFS, "migrations", "config_schema_migrations", "sqlite"))
}

// NewSQLiteProvider opens dbPath and brings its schema up to date
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := NewMigrator(db).MigrateUp(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// setting binds one row of the settings table to a ConfigData field
type setting struct {
	section, key string
	get          func(*ConfigData) string
	set          func(*ConfigData, string) error
}

func floatSetting(section, key string, field func(*ConfigData) *float64) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *ConfigData, v string) (err error) {
			*field(c), err = strconv.ParseFloat(v, 64)
			return err
		},
	}
}

func intSetting(section, key string, field func(*ConfigData) *int) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return strconv.Itoa(*field(c)) },
		set: func(c *ConfigData, v string) (err error) {
			*field(c), err = strconv.Atoi(v)
			return err
		},
	}
}

func boolSetting(section, key string, field func(*ConfigData) *bool) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return strconv.FormatBool(*field(c)) },
		set: func(c *ConfigData, v string) (err error) {
			*field(c), err = strconv.ParseBool(v)
			return err
		},
	}
}

func stringSetting(section, key string, field func(*ConfigData) *string) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return *field(c) },
		set: func(c *ConfigData, v string) error {
			*field(c) = v
			return nil
		},
	}
}

var settings = []setting{
	floatSetting("analysis", "time_history_dt", func(c *ConfigData) *float64 { return &c.Analysis.TimeHistoryDt }),
	floatSetting("analysis", "spectrum_dt", func(c *ConfigData) *float64 { return &c.Analysis.SpectrumDt }),
	floatSetting("analysis", "inelastic_dt", func(c *ConfigData) *float64 { return &c.Analysis.InelasticDt }),
	floatSetting("analysis", "tail_seconds", func(c *ConfigData) *float64 { return &c.Analysis.TailSeconds }),
	floatSetting("analysis", "period_start", func(c *ConfigData) *float64 { return &c.Analysis.PeriodStart }),
	floatSetting("analysis", "period_end", func(c *ConfigData) *float64 { return &c.Analysis.PeriodEnd }),
	floatSetting("analysis", "period_step", func(c *ConfigData) *float64 { return &c.Analysis.PeriodStep }),
	intSetting("analysis", "workers", func(c *ConfigData) *int { return &c.Analysis.Workers }),
	floatSetting("analysis", "gravity", func(c *ConfigData) *float64 { return &c.Analysis.Gravity }),

	stringSetting("server", "listen_addr", func(c *ConfigData) *string { return &c.Server.ListenAddr }),
	intSetting("server", "port", func(c *ConfigData) *int { return &c.Server.Port }),
	stringSetting("server", "cert", func(c *ConfigData) *string { return &c.Server.Cert }),
	stringSetting("server", "key", func(c *ConfigData) *string { return &c.Server.Key }),
	boolSetting("server", "enable_cors", func(c *ConfigData) *bool { return &c.Server.EnableCORS }),
	boolSetting("server", "enable_grpc", func(c *ConfigData) *bool { return &c.Server.EnableGRPC }),
	stringSetting("server", "request_timeout", func(c *ConfigData) *string { return &c.Server.RequestTimeout }),

	stringSetting("logging", "file", func(c *ConfigData) *string { return &c.Logging.File }),
	intSetting("logging", "max_size_mb", func(c *ConfigData) *int { return &c.Logging.MaxSizeMB }),
	intSetting("logging", "max_backups", func(c *ConfigData) *int { return &c.Logging.MaxBackups }),
	intSetting("logging", "max_age_days", func(c *ConfigData) *int { return &c.Logging.MaxAgeDays }),
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	rows, err := s.db.Query(`SELECT section, key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	stored := make(map[[2]string]string)
	for rows.Next() {
		var section, key, value string
		if err := rows.Scan(&section, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		stored[[2]string{section, key}] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	for _, st := range settings {
		value, ok := stored[[2]string{st.section, st.key}]
		if !ok {
			continue
		}
		if err := st.set(config, value); err != nil {
			return nil, fmt.Errorf("invalid setting %s.%s = %q: %w", st.section, st.key, value, err)
		}
	}

	archive, err := s.GetArchiveConfig()
	if err != nil {
		return nil, err
	}
	config.Archive = archive

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", s.dbPath, err)
	}
	return config, nil
}

// GetAnalysisConfig returns the analysis section
func (s *SQLiteProvider) GetAnalysisConfig() (*AnalysisData, error) {
	config, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Analysis, nil
}

// GetServerConfig returns the server section
func (s *SQLiteProvider) GetServerConfig() (*ServerData, error) {
	config, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Server, nil
}

// GetArchiveConfig returns the archive configuration, or nil if none is stored
func (s *SQLiteProvider) GetArchiveConfig() (*ArchiveData, error) {
	var archive ArchiveData
	var admin sql.NullString
	err := s.db.QueryRow(`
		SELECT connection_string, create_database, admin_connection_string
		FROM archive_config WHERE id = 1
	`).Scan(&archive.ConnectionString, &archive.CreateDatabase, &admin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query archive config: %w", err)
	}
	if admin.Valid {
		archive.AdminConnectionString = admin.String
	}
	return &archive, nil
}

// IsReadOnly returns false since SQLite supports read/write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to clear settings: %w", err)
	}
	for _, st := range settings {
		if _, err := tx.Exec(
			`INSERT INTO settings (section, key, value, updated_at) VALUES (?, ?, ?, datetime('now'))`,
			st.section, st.key, st.get(configData),
		); err != nil {
			return fmt.Errorf("failed to store setting %s.%s: %w", st.section, st.key, err)
		}
	}

	if err := s.setArchiveConfig(tx, configData.Archive); err != nil {
		return err
	}

	return tx.Commit()
}

// SetArchiveConfig stores the archive configuration. nil removes it.
func (s *SQLiteProvider) SetArchiveConfig(archive *ArchiveData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.setArchiveConfig(tx, archive); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteProvider) setArchiveConfig(tx *sql.Tx, archive *ArchiveData) error {
	if _, err := tx.Exec(`DELETE FROM archive_config`); err != nil {
		return fmt.Errorf("failed to clear archive config: %w", err)
	}
	if archive == nil {
		return nil
	}
	_, err := tx.Exec(`
		INSERT INTO archive_config (id, connection_string, create_database, admin_connection_string)
		VALUES (1, ?, ?, ?)
	`, archive.ConnectionString, archive.CreateDatabase, nullString(archive.AdminConnectionString))
	if err != nil {
		return fmt.Errorf("failed to store archive config: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
