package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"comlab-status-backend/config"
	"comlab-status-backend/internal/model"
)

func TestInit_SQLiteMigrates(t *testing.T) {
	gdb, err := Init(&config.DatabaseConfig{
		Driver:   config.DriverSQLite,
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, zerolog.Nop())
	require.NoError(t, err)

	for _, table := range []any{&model.Lab{}, &model.Instructor{}, &model.AttendanceLog{}, &model.PushSubscription{}} {
		assert.True(t, gdb.Migrator().HasTable(table))
	}
	assert.True(t, gdb.Migrator().HasTable("subscription_lab_mapping"))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	// Running the migrations again is harmless.
	require.NoError(t, Migrate(gdb))
}

func TestLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"silent": logger.Silent,
		"ERROR":  logger.Error,
		"info":   logger.Info,
		"":       logger.Warn,
		"warn":   logger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, logLevel(in), in)
	}
}
