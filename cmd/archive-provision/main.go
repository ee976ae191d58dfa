// archive-provision creates the PostgreSQL run archive and records its
// connection in the SQLite configuration database.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/chrissnell/sdofresponse/internal/app"
	"github.com/chrissnell/sdofresponse/pkg/config"
	"go.uber.org/zap"
)

const (
	DefaultDBName    = "sdofruns"
	DefaultHost      = "localhost"
	DefaultPort      = 5432
	DefaultSSLMode   = "prefer"
	DefaultConfigDB  = "/var/lib/sdofresponse/config.db"
	DefaultAdminUser = "postgres"
)

func main() {
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	testCmd := flag.NewFlagSet("test", flag.ExitOnError)

	// Init command flags
	dbName := initCmd.String("db-name", DefaultDBName, "Database name to create")
	dbUser := initCmd.String("db-user", DefaultAdminUser, "Database user the server connects as")
	dbPassword := initCmd.String("db-password", "", "Password of -db-user (or use SDOF_DB_PASSWORD env var)")
	postgresHost := initCmd.String("postgres-host", DefaultHost, "PostgreSQL host")
	postgresPort := initCmd.Int("postgres-port", DefaultPort, "PostgreSQL port")
	postgresAdmin := initCmd.String("postgres-admin", DefaultAdminUser, "PostgreSQL admin user")
	postgresAdminPassword := initCmd.String("postgres-admin-password", "", "PostgreSQL admin password (or use POSTGRES_ADMIN_PASSWORD env var)")
	sslMode := initCmd.String("ssl-mode", DefaultSSLMode, "SSL mode (disable, require, prefer)")
	configDB := initCmd.String("config-db", DefaultConfigDB, "Path to the sdofresponse config.db")

	statusConfigDB := statusCmd.String("config-db", DefaultConfigDB, "Path to the sdofresponse config.db")
	testConfigDB := testCmd.String("config-db", DefaultConfigDB, "Path to the sdofresponse config.db")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		initCmd.Parse(os.Args[2:])
		if *postgresAdminPassword == "" {
			*postgresAdminPassword = os.Getenv("POSTGRES_ADMIN_PASSWORD")
		}
		if *dbPassword == "" {
			*dbPassword = os.Getenv("SDOF_DB_PASSWORD")
		}
		archive := &config.ArchiveData{
			ConnectionString:      connString(*dbUser, *dbPassword, *postgresHost, *postgresPort, *dbName, *sslMode),
			CreateDatabase:        true,
			AdminConnectionString: connString(*postgresAdmin, *postgresAdminPassword, *postgresHost, *postgresPort, "postgres", *sslMode),
		}
		err = runInit(archive, *configDB)
	case "status":
		statusCmd.Parse(os.Args[2:])
		err = runStatus(*statusConfigDB)
	case "test":
		testCmd.Parse(os.Args[2:])
		err = runTest(*testConfigDB)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("sdofresponse archive provisioner")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  archive-provision init [flags]")
	fmt.Println("  archive-provision status [flags]")
	fmt.Println("  archive-provision test [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init     Create the archive database and schema and store the connection in config.db")
	fmt.Println("  status   Show the archive configuration from config.db")
	fmt.Println("  test     Test the archive connection")
}

func connString(user, password, host string, port int, dbName, sslMode string) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + dbName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

func runInit(archive *config.ArchiveData, configDB string) error {
	fmt.Println("🚀 sdofresponse archive provisioner")
	fmt.Println("===================================")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Opening the archive creates the database and the runs table
	repo, err := app.OpenArchive(ctx, archive, zap.NewNop().Sugar())
	if err != nil {
		return fmt.Errorf("failed to provision archive: %w", err)
	}
	repo.Close()
	fmt.Println("✅ Archive database and schema ready")

	provider, err := config.NewSQLiteProvider(configDB)
	if err != nil {
		return fmt.Errorf("failed to open config database: %w", err)
	}
	defer provider.Close()

	// The database exists now, so the server only needs its own connection.
	stored := &config.ArchiveData{ConnectionString: archive.ConnectionString}
	if err := provider.SetArchiveConfig(stored); err != nil {
		return fmt.Errorf("failed to update config database: %w", err)
	}
	fmt.Printf("✅ Archive connection stored in %s\n", configDB)
	return nil
}

func loadArchiveConfig(configDB string) (*config.ArchiveData, error) {
	provider, err := config.NewSQLiteProvider(configDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open config database: %w", err)
	}
	defer provider.Close()

	archive, err := provider.GetArchiveConfig()
	if err != nil {
		return nil, err
	}
	if archive == nil {
		return nil, fmt.Errorf("no archive configured in %s", configDB)
	}
	return archive, nil
}

func runStatus(configDB string) error {
	archive, err := loadArchiveConfig(configDB)
	if err != nil {
		return err
	}
	fmt.Println("Archive configuration:")
	fmt.Printf("  Connection: %s\n", redact(archive.ConnectionString))
	fmt.Printf("  Create database: %v\n", archive.CreateDatabase)
	return nil
}

func runTest(configDB string) error {
	archive, err := loadArchiveConfig(configDB)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	test := *archive
	test.CreateDatabase = false
	repo, err := app.OpenArchive(ctx, &test, zap.NewNop().Sugar())
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer repo.Close()

	runs, err := repo.List(ctx, "", 1)
	if err != nil {
		return fmt.Errorf("could not query runs: %w", err)
	}
	fmt.Printf("✅ Connected to %s (%d recent run(s) visible)\n", redact(archive.ConnectionString), len(runs))
	return nil
}

// redact hides the password of a URL connection string.
func redact(connectionString string) string {
	u, err := url.Parse(connectionString)
	if err != nil || u.User == nil {
		return connectionString
	}
	return u.Redacted()
}
