package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/sdofresponse/pkg/config"
	"gopkg.in/yaml.v2"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite an existing target file")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
		reverse    = flag.Bool("reverse", false, "Convert SQLite to YAML instead")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db> [-reverse]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	source, target := *yamlFile, *sqliteFile
	if *reverse {
		source, target = target, source
	}

	// Check if source file exists
	if _, err := os.Stat(source); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: source file does not exist: %s\n", source)
		os.Exit(1)
	}

	// Check if target file already exists
	if _, err := os.Stat(target); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: target file already exists: %s\n", target)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting configuration...\n")
	fmt.Printf("  Source: %s\n", source)
	fmt.Printf("  Target: %s\n", target)

	if *dryRun {
		fmt.Println("DRY RUN - No changes will be made")
	}

	configData, err := loadSource(source, *reverse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - nothing written")
		return
	}

	// Remove existing target file if force is specified
	if *force {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing file: %v\n", err)
			os.Exit(1)
		}
	}

	if *reverse {
		err = writeYAML(target, configData)
	} else {
		err = writeSQLite(target, configData)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	if !*reverse {
		fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", target)
	}
}

func loadSource(path string, fromSQLite bool) (*config.ConfigData, error) {
	if !fromSQLite {
		return config.NewYAMLProvider(path).LoadConfig()
	}
	provider, err := config.NewSQLiteProvider(path)
	if err != nil {
		return nil, err
	}
	defer provider.Close()
	return provider.LoadConfig()
}

func writeSQLite(dbPath string, configData *config.ConfigData) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Opening the provider creates the schema
	provider, err := config.NewSQLiteProvider(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite provider: %w", err)
	}
	defer provider.Close()

	if err := provider.SaveConfig(configData); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	fmt.Printf("  Configuration successfully inserted into database\n")
	return nil
}

func writeYAML(path string, configData *config.ConfigData) error {
	out, err := yaml.Marshal(configData)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}

func printConfigSummary(configData *config.ConfigData) {
	a := configData.Analysis
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("Analysis:\n")
	fmt.Printf("  - steps: time history %g s, spectrum %g s, inelastic %g s\n", a.TimeHistoryDt, a.SpectrumDt, a.InelasticDt)
	fmt.Printf("  - periods: %g to %g s every %g s\n", a.PeriodStart, a.PeriodEnd, a.PeriodStep)
	fmt.Printf("  - gravity: %g m/s²\n", a.Gravity)

	s := configData.Server
	fmt.Printf("\nServer:\n")
	fmt.Printf("  - listen: %s:%d (gRPC %v, CORS %v)\n", s.ListenAddr, s.Port, s.EnableGRPC, s.EnableCORS)

	fmt.Printf("\nArchive:\n")
	if configData.Archive != nil {
		fmt.Printf("  - PostgreSQL: %s\n", configData.Archive.ConnectionString)
	} else {
		fmt.Printf("  - disabled\n")
	}
}
