package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/sdofresponse/internal/analysis"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Repository reads and writes archived runs.
type Repository struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// Connect opens a gorm connection to PostgreSQL that logs through zl.
func Connect(connectionString string, zl *zap.Logger) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(zl),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to archive database: %w", err)
	}
	return db, nil
}

// New prepares the archive schema on db.
func New(db *gorm.DB, logger *zap.SugaredLogger) (*Repository, error) {
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("could not create archive schema: %w", err)
	}
	return &Repository{db: db, logger: logger}, nil
}

// Record archives a finished run. It satisfies analysis.Recorder.
func (r *Repository) Record(ctx context.Context, run *analysis.Run) error {
	rec, err := FromRun(run)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("could not archive run %s: %w", run.ID, err)
	}
	r.logger.Debugw("archived run", "run", run.ID, "kind", run.Kind, "series_bytes", len(rec.Series))
	return nil
}

// Get returns the run with the given ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	var rec RunRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("could not load run %s: %w", id, err)
	}
	return &rec, nil
}

// List returns the most recent runs, newest first, optionally filtered by kind.
// The stored histories are not loaded.
func (r *Repository) List(ctx context.Context, kind string, limit int) ([]RunRecord, error) {
	q := r.db.WithContext(ctx).Omit("series").Order("created_at DESC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}
	return recs, nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
