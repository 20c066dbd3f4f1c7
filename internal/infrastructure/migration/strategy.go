package migration

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

//go:embed scripts/*.sql
var scripts embed.FS

const scriptsDir = "scripts"

// Strategy defines the interface for different migration strategies
type Strategy interface {
	// Migrate executes the migration strategy
	Migrate(db *gorm.DB, models ...interface{}) error
	// GetName returns the strategy name
	GetName() string
}

// GormAutoMigrateStrategy creates missing tables and columns from the models.
// It never drops anything, which makes it fine for development and tests.
type GormAutoMigrateStrategy struct {
	logger logger.Interface
}

func NewGormAutoMigrateStrategy(log logger.Interface) Strategy {
	return &GormAutoMigrateStrategy{logger: log.With("component", "migration.automigrate")}
}

func (s *GormAutoMigrateStrategy) Migrate(db *gorm.DB, models ...interface{}) error {
	if len(models) == 0 {
		models = AutoMigrateModels()
	}
	s.logger.Infow("running gorm auto migrate", "models", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *GormAutoMigrateStrategy) GetName() string {
	return "gorm_auto_migrate"
}

// GooseStrategy applies the versioned SQL scripts embedded in the binary.
type GooseStrategy struct {
	dialect string
	logger  logger.Interface
}

// NewGooseStrategy targets the given goose dialect (mysql or sqlite3).
func NewGooseStrategy(dialect string, log logger.Interface) *GooseStrategy {
	return &GooseStrategy{
		dialect: dialect,
		logger:  log.With("component", "migration.goose"),
	}
}

func (s *GooseStrategy) prepare() error {
	goose.SetBaseFS(scripts)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

func (s *GooseStrategy) Migrate(db *gorm.DB, models ...interface{}) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := s.prepare(); err != nil {
		return err
	}

	currentVersion, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if err := goose.Up(sqlDB, scriptsDir); err != nil {
		s.logger.Errorw("migration failed", "error", err)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	finalVersion, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to get final version: %w", err)
	}

	s.logger.Infow("migration completed successfully",
		"from_version", currentVersion,
		"to_version", finalVersion)
	return nil
}

func (s *GooseStrategy) GetName() string {
	return "goose"
}

func (s *GooseStrategy) MigrateDown(db *gorm.DB, steps int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := s.prepare(); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := goose.Down(sqlDB, scriptsDir); err != nil {
			s.logger.Errorw("down migration failed", "error", err, "step", i+1)
			return fmt.Errorf("failed to run down migration: %w", err)
		}
	}

	s.logger.Infow("down migration completed successfully", "steps", steps)
	return nil
}

func (s *GooseStrategy) GetVersion(db *gorm.DB) (int64, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := s.prepare(); err != nil {
		return 0, err
	}

	version, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
