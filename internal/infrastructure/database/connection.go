package database

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bookwise-inc/bookwise/internal/shared/config"
	appLogger "github.com/bookwise-inc/bookwise/internal/shared/logger"
)

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// Init opens the configured database and keeps it as the process-wide handle.
func Init(cfg *config.DatabaseConfig) error {
	database, err := Open(cfg)
	if err != nil {
		return err
	}

	dbMu.Lock()
	db = database
	dbMu.Unlock()

	appLogger.Info("database connection established",
		"driver", driverName(cfg),
		"database", cfg.Database)
	return nil
}

// Open connects without touching the global handle.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormLogger := gormlogger.New(
		&filteredLogger{},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch driverName(cfg) {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database)
	case "mysql":
		dialector = mysql.New(mysql.Config{
			DSN:                       cfg.GetDSN(),
			SkipInitializeWithVersion: true,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if driverName(cfg) == "sqlite" {
		// one writer; avoids "database is locked" under the batch workers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return database, nil
}

func driverName(cfg *config.DatabaseConfig) string {
	if cfg.Driver == "" {
		return "mysql"
	}
	return strings.ToLower(cfg.Driver)
}

// Get returns the database connection
func Get() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// Close closes the database connection
func Close() error {
	dbMu.RLock()
	currentDB := db
	dbMu.RUnlock()

	if currentDB == nil {
		return nil
	}

	sqlDB, err := currentDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	appLogger.Info("database connection closed")
	return nil
}

// filteredLogger routes gorm output into the application logger and drops
// the driver's startup probes.
type filteredLogger struct{}

func (l *filteredLogger) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "information_schema.schemata") || strings.Contains(lower, "select version()") {
		return
	}

	switch {
	case strings.Contains(lower, "error"):
		appLogger.Error("database error", "details", msg)
	case strings.Contains(lower, "slow sql"):
		appLogger.Warn("slow query", "details", msg)
	default:
		appLogger.Debug("database query", "details", msg)
	}
}
