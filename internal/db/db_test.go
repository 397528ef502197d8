package db

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-outage-monitor/config"
	"power-outage-monitor/internal/model"
)

func TestInit_SQLiteMigrates(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:                 "sqlite",
		DSN:                    filepath.Join(t.TempDir(), "periods.db"),
		MaxOpenConns:           1,
		MaxIdleConns:           1,
		ConnMaxLifetimeMinutes: 5,
	}
	gormDB, err := Init(cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, gormDB.Migrator().HasTable(&model.OutagePeriod{}))
	assert.True(t, gormDB.Migrator().HasTable(&model.PushSubscription{}))
	assert.True(t, gormDB.Migrator().HasTable(&model.SubscriptionGroup{}))

	// a second migration over existing tables is a no-op
	require.NoError(t, Migrate(gormDB))
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"}, zerolog.Nop())
	assert.ErrorContains(t, err, "oracle")
}
