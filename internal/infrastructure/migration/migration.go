package migration

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/shared/config"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// Manager handles database migrations with different strategies
type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager picks the strategy for the environment. Development on sqlite
// uses AutoMigrate; everything else runs the versioned scripts.
func NewManager(environment string, db *config.DatabaseConfig, log logger.Interface) *Manager {
	var strategy Strategy
	switch {
	case strings.EqualFold(db.Driver, "sqlite"):
		strategy = NewGormAutoMigrateStrategy(log)
	case strings.EqualFold(environment, constants.EnvDevelopment):
		strategy = NewGormAutoMigrateStrategy(log)
	default:
		strategy = NewGooseStrategy("mysql", log)
	}
	return NewManagerWithStrategy(strategy, log)
}

// NewManagerWithStrategy creates a new migration manager with a specific strategy
func NewManagerWithStrategy(strategy Strategy, log logger.Interface) *Manager {
	return &Manager{
		strategy: strategy,
		logger:   log.With("component", "migration.manager"),
	}
}

// Migrate executes the configured migration strategy
func (m *Manager) Migrate(db *gorm.DB, models ...interface{}) error {
	m.logger.Infow("starting database migration", "strategy", m.strategy.GetName())

	if err := m.strategy.Migrate(db, models...); err != nil {
		m.logger.Errorw("migration failed", "strategy", m.strategy.GetName(), "error", err)
		return fmt.Errorf("migration failed with strategy %s: %w", m.strategy.GetName(), err)
	}

	m.logger.Infow("database migration completed successfully", "strategy", m.strategy.GetName())
	return nil
}

// GetStrategy returns the current migration strategy
func (m *Manager) GetStrategy() Strategy {
	return m.strategy
}
