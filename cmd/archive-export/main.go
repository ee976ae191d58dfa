// archive-export writes archived analysis runs to CSV or JSON lines.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"github.com/lib/pq"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Format   ExportFormat
	Output   string
	Kind     string
	Since    time.Duration
}

// exportedRun is one row of sdof_runs.
type exportedRun struct {
	ID                   string          `json:"id"`
	CreatedAt            time.Time       `json:"created_at"`
	Kind                 string          `json:"kind"`
	Method               string          `json:"method"`
	Samples              int             `json:"samples"`
	ElapsedMS            int64           `json:"elapsed_ms"`
	PeakDisplacement     float64         `json:"peak_displacement"`
	Ductility            *float64        `json:"ductility_demand,omitempty"`
	NormalizedResidual   *float64        `json:"normalized_residual,omitempty"`
	Parameters           json.RawMessage `json:"parameters,omitempty"`
	Periods              []float64       `json:"periods,omitempty"`
	SpectralDisplacement spectrum.Values `json:"spectral_displacement,omitempty"`
}

const exportQuery = `
SELECT id, created_at, kind, method, samples, elapsed_ms, peak_displacement,
       ductility, normalized_residual, parameters, periods, spectral_displacement
FROM sdof_runs
WHERE ($1 = '' OR kind = $1) AND created_at >= $2
ORDER BY created_at`

func main() {
	var cfg Config

	// Parse command line flags
	flag.StringVar(&cfg.Host, "host", "localhost", "Database host")
	flag.IntVar(&cfg.Port, "port", 5432, "Database port")
	flag.StringVar(&cfg.Database, "database", "sdofruns", "Database name")
	flag.StringVar(&cfg.User, "user", "postgres", "Database user")
	flag.StringVar(&cfg.Password, "password", "", "Database password")
	flag.StringVar(&cfg.SSLMode, "sslmode", "disable", "SSL mode (disable, require, etc)")
	formatStr := flag.String("format", "csv", "Export format: csv or json")
	flag.StringVar(&cfg.Output, "output", "sdof_runs", "Output file base name (extension added automatically)")
	flag.StringVar(&cfg.Kind, "kind", "", "Only export runs of this kind: timehistory, spectrum or inelastic")
	flag.DurationVar(&cfg.Since, "since", 0, "Only export runs newer than this (e.g. 72h); 0 exports everything")
	flag.Parse()

	// Validate format
	switch ExportFormat(*formatStr) {
	case FormatCSV, FormatJSON:
		cfg.Format = ExportFormat(*formatStr)
	default:
		log.Fatalf("Invalid format: %s. Must be csv or json", *formatStr)
	}

	// Build connection string
	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Printf("Connected to database %s@%s:%d", cfg.Database, cfg.Host, cfg.Port)

	runs, err := fetchRuns(ctx, db, cfg.Kind, cfg.Since)
	if err != nil {
		log.Fatalf("Failed to read runs: %v", err)
	}

	filename := cfg.Output + "." + string(cfg.Format)
	f, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", filename, err)
	}
	defer f.Close()

	switch cfg.Format {
	case FormatCSV:
		err = writeCSV(f, runs)
	case FormatJSON:
		err = writeJSON(f, runs)
	}
	if err != nil {
		log.Fatalf("Failed to write %s: %v", filename, err)
	}

	log.Printf("Exported %d runs to %s", len(runs), filename)
}

func fetchRuns(ctx context.Context, db *sql.DB, kind string, since time.Duration) ([]exportedRun, error) {
	cutoff := time.Unix(0, 0).UTC()
	if since > 0 {
		cutoff = time.Now().Add(-since)
	}

	rows, err := db.QueryContext(ctx, exportQuery, kind, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []exportedRun
	for rows.Next() {
		var (
			r                   exportedRun
			ductility, residual sql.NullFloat64
			params              []byte
			periods, sd         pq.Float64Array
		)
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Kind, &r.Method, &r.Samples, &r.ElapsedMS,
			&r.PeakDisplacement, &ductility, &residual, &params, &periods, &sd); err != nil {
			return nil, err
		}
		if ductility.Valid {
			r.Ductility = &ductility.Float64
		}
		if residual.Valid {
			r.NormalizedResidual = &residual.Float64
		}
		if len(params) > 0 {
			r.Parameters = params
		}
		r.Periods = periods
		r.SpectralDisplacement = spectrum.Values(sd)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func writeCSV(w io.Writer, runs []exportedRun) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "created_at", "kind", "method", "samples", "elapsed_ms",
		"peak_displacement", "ductility_demand", "normalized_residual", "parameters"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range runs {
		record := []string{
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			r.Kind,
			r.Method,
			strconv.Itoa(r.Samples),
			strconv.FormatInt(r.ElapsedMS, 10),
			formatFloat(&r.PeakDisplacement),
			formatFloat(r.Ductility),
			formatFloat(r.NormalizedResidual),
			string(r.Parameters),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, runs []exportedRun) error {
	enc := json.NewEncoder(w)
	for _, r := range runs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
