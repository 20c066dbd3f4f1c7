package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bookwise-inc/bookwise/internal/shared/config"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

func TestNewManager_PicksStrategy(t *testing.T) {
	log := logger.NewNop()

	m := NewManager("production", &config.DatabaseConfig{Driver: "mysql"}, log)
	assert.Equal(t, "goose", m.GetStrategy().GetName())

	m = NewManager("production", &config.DatabaseConfig{Driver: "sqlite"}, log)
	assert.Equal(t, "gorm_auto_migrate", m.GetStrategy().GetName())

	m = NewManager("development", &config.DatabaseConfig{Driver: "mysql"}, log)
	assert.Equal(t, "gorm_auto_migrate", m.GetStrategy().GetName())
}

func TestAutoMigrate_CreatesBillingTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	m := NewManagerWithStrategy(NewGormAutoMigrateStrategy(logger.NewNop()), logger.NewNop())
	require.NoError(t, m.Migrate(db))

	for _, table := range []string{"tenants", "subscriptions", "payments"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	// second run is a no-op
	require.NoError(t, m.Migrate(db))
}

func TestEmbeddedScripts(t *testing.T) {
	entries, err := scripts.ReadDir(scriptsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
