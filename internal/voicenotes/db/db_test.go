package db_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/undefinedlabs/go-mpatch"

	"familyvoice/internal/voicenotes/config"
	"familyvoice/internal/voicenotes/db"
	"familyvoice/pkg/db/postgres"
	"familyvoice/pkg/logger"
)

const (
	MigrationsPath = "migrations/voicenotes"

	ErrUnpatchMsg = "failed to unpatch"
)

var errMigrationFailure = errors.New("migration failure")

func safeUnpatch(t *testing.T, p *mpatch.Patch) {
	t.Helper()
	if err := p.Unpatch(); err != nil {
		t.Errorf("%s: %v", ErrUnpatchMsg, err)
	}
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:     "testhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "voicenotes",
		MinConn:  1,
		MaxConn:  5,
	}
}

func TestNew(t *testing.T) {
	err := logger.InitGlobalLoggerWithLevel(logger.Development, "info")
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("success - migrations then pool", func(t *testing.T) {
		migratePatch, err := mpatch.PatchMethod(postgres.MigrateDSN, func(_ context.Context, _, _ string) error {
			return nil
		})
		require.NoError(t, err)
		defer safeUnpatch(t, migratePatch)

		newPatch, err := mpatch.PatchMethod(postgres.New, func(_ context.Context, _ string, _, _ int) (*postgres.Database, error) {
			return &postgres.Database{}, nil
		})
		require.NoError(t, err)
		defer safeUnpatch(t, newPatch)

		database, err := db.New(ctx, testPostgresConfig(), MigrationsPath)

		require.NoError(t, err)
		require.NotNil(t, database)
	})

	t.Run("error - migration failure aborts initialization", func(t *testing.T) {
		migratePatch, err := mpatch.PatchMethod(postgres.MigrateDSN, func(_ context.Context, _, _ string) error {
			return errMigrationFailure
		})
		require.NoError(t, err)
		defer safeUnpatch(t, migratePatch)

		database, err := db.New(ctx, testPostgresConfig(), MigrationsPath)

		require.Nil(t, database)
		require.Error(t, err)
		require.Contains(t, err.Error(), db.ErrDBMigrations)
	})
}

func TestClose(t *testing.T) {
	err := logger.InitGlobalLoggerWithLevel(logger.Development, "info")
	require.NoError(t, err)

	ctx := context.Background()

	closeCalled := false
	patch, err := mpatch.PatchInstanceMethodByName(reflect.TypeOf(&postgres.Database{}), "Close", func(_ *postgres.Database, _ context.Context) {
		closeCalled = true
	})
	require.NoError(t, err)
	defer safeUnpatch(t, patch)

	migratePatch, err := mpatch.PatchMethod(postgres.MigrateDSN, func(_ context.Context, _, _ string) error {
		return nil
	})
	require.NoError(t, err)
	defer safeUnpatch(t, migratePatch)

	newPatch, err := mpatch.PatchMethod(postgres.New, func(_ context.Context, _ string, _, _ int) (*postgres.Database, error) {
		return &postgres.Database{}, nil
	})
	require.NoError(t, err)
	defer safeUnpatch(t, newPatch)

	database, err := db.New(ctx, testPostgresConfig(), MigrationsPath)
	require.NoError(t, err)

	database.Close(ctx)

	require.True(t, closeCalled, "Close should delegate to the underlying pool")
}
