// Package storetest opens throwaway in-memory databases for tests.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prodflow/prodflow/pkg/store/postgres"
)

// New returns a migrated store backed by a private in-memory SQLite database.
func New(t testing.TB) *postgres.Store {
	return open(t, false)
}

// NewTransactional is New with every unit of work run in a transaction.
func NewTransactional(t testing.TB) *postgres.Store {
	return open(t, true)
}

func open(t testing.TB, transactional bool) *postgres.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := postgres.NewStoreFromDB(db, zaptest.NewLogger(t), transactional)
	require.NoError(t, s.AutoMigrate())
	return s
}
