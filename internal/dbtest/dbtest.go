// Package dbtest provides throwaway SQLite databases for persistence tests.
package dbtest

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"referral-service/internal/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a migrated in-memory database private to the test.
//
// The pool holds a single connection: SQLite has no row locks, so
// serializing connections stands in for SELECT ... FOR UPDATE and makes
// concurrent transactions queue the same way they would on PostgreSQL.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// PostgresEnv names the DSN of a scratch PostgreSQL database. Tests that
// need real row locks skip when it is unset.
const PostgresEnv = "TEST_POSTGRES_DSN"

// Postgres returns a migrated PostgreSQL database with empty tables and a
// pool of several connections. Every table is truncated before and after
// the test.
func Postgres(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresEnv)
	}

	db, err := database.Open(postgres.Open(dsn), logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)

	truncate := func() error {
		return db.Exec("TRUNCATE profiles, wallet_transactions, commission_events, notifications, prime_subscriptions RESTART IDENTITY").Error
	}
	require.NoError(t, truncate())
	t.Cleanup(func() {
		_ = truncate()
		_ = sqlDB.Close()
	})
	return db
}

// Logger returns a logger that discards output.
func Logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
