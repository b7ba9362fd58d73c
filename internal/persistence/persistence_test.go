package persistence

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/office-hours/internal/config"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_history_index.sql", "CREATE INDEX history_ticket_idx ON office_hours__ticket_history (ticket_id)")
	writeMigration(t, dir, "0001_office_hours.sql", "CREATE TABLE office_hours__roster (id BIGINT)")
	writeMigration(t, dir, "README.md", "not sql")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS office_hours__schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO office_hours__schema_migrations").WithArgs("0001_office_hours.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO office_hours__schema_migrations").WithArgs("0002_history_index.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX history_ticket_idx")).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), mock, dir, zap.NewNop()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsMissingDir(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = RunMigrations(context.Background(), mock, filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	assert.ErrorContains(t, err, "read migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisDisabledWithoutLimit(t *testing.T) {
	r := NewRedis(config.RedisConfig{Addr: "127.0.0.1:6379"}, config.RateLimitConfig{SimilarPerWindow: 0}, zap.NewNop())
	assert.Nil(t, r.Client)
	assert.Nil(t, r.Cmdable())
	assert.ErrorIs(t, r.Ping(context.Background()), ErrNotConfigured)
	r.Close()
}

func TestPostgresWithoutDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, pg.PoolHandle())
	assert.ErrorIs(t, pg.Ping(context.Background()), ErrNotConfigured)
}
