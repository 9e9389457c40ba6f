package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/drawguess/config"
	"github.com/wfunc/drawguess/words"
)

// dryRun builds statements against the postgres dialect without a server.
func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: DSN(config.PostgresConfig{Host: "127.0.0.1", Port: 5432, User: "test", DBName: "test"}),
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)
	return db
}

func TestWordBank_Query(t *testing.T) {
	db := dryRun(t)

	var out []string
	stmt := NewWordBank(db, "animals").query(context.Background(), 8).Pluck("text", &out).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, `FROM "words"`)
	assert.Contains(t, sql, "theme = $1")
	assert.Contains(t, sql, "ORDER BY random()")
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, stmt.Vars, "animals")

	stmt = NewWordBank(db, "").query(context.Background(), 8).Pluck("text", &out).Statement
	assert.NotContains(t, stmt.SQL.String(), "theme")
}

func TestWordBank_EmptyResult(t *testing.T) {
	_, err := NewWordBank(dryRun(t), "").Words(context.Background(), 3)
	assert.ErrorIs(t, err, words.ErrNoWords)
}

func TestWordBank_SeedNothing(t *testing.T) {
	n, err := NewWordBank(dryRun(t), "").Seed(context.Background(), "food", []string{" ", ""})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "game"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=game sslmode=disable", dsn)
}
