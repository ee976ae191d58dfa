package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/sdofresponse/internal/app"
	"github.com/chrissnell/sdofresponse/internal/constants"
	"github.com/chrissnell/sdofresponse/internal/log"
	"github.com/chrissnell/sdofresponse/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source:\n\t\t\t  YAML: config.yaml\n\t\t\t  SQLite: config.db\n\t\t\t  Use 'config-convert' tool to convert YAML→SQLite")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sdofresponse %s\n", constants.Version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	provider, err := openProvider(*cfgFile, *cfgBackend)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		log.Fatalf("error reading config file. Did you pass the -config flag? Run with -h for help: %v", err)
	}

	// Switch to the rotated log file once we know where it lives
	if cfgData.Logging.File != "" {
		if err := log.InitWithFile(*debug, log.FileOptions{
			Path:       cfgData.Logging.File,
			MaxSizeMB:  cfgData.Logging.MaxSizeMB,
			MaxBackups: cfgData.Logging.MaxBackups,
			MaxAgeDays: cfgData.Logging.MaxAgeDays,
		}); err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
	}
	log.Infow("starting sdofresponse", "version", constants.Version, "config", *cfgFile, "backend", *cfgBackend)

	// Create and run the application
	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func openProvider(cfgFile, cfgBackend string) (config.ConfigProvider, error) {
	filename, _ := filepath.Abs(cfgFile)

	switch cfgBackend {
	case "yaml":
		return config.NewYAMLProvider(filename), nil
	case "sqlite":
		provider, err := config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		return provider, nil
	}
	return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
}
