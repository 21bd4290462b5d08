package edgecase

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceassist/internal/config"
	"voiceassist/internal/models"
	"voiceassist/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db))
	return db
}

func TestSeedDefaultsOnlyOnce(t *testing.T) {
	svc := NewService(openTestDB(t), nil, 0)
	ctx := context.Background()

	n, err := svc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(Defaults()), n)

	n, err = svc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	cases, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, cases, len(Defaults()))
	assert.Equal(t, "Ambiguous date", cases[0].CaseName)
	assert.NotEmpty(t, cases[0].ExampleConversation)
	assert.Equal(t, models.RoleUser, cases[0].ExampleConversation[0].Role)
}

func TestListNewestFirstAndGet(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, 0)
	ctx := context.Background()

	older := &models.EdgeCase{CaseName: "older", Scenario: "s", HandlingStrategy: "h"}
	require.NoError(t, db.InsertEdgeCase(ctx, older))
	newer := &models.EdgeCase{CaseName: "newer", Scenario: "s", HandlingStrategy: "h", CreatedAt: older.CreatedAt.Add(1e9)}
	require.NoError(t, db.InsertEdgeCase(ctx, newer))

	cases, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "newer", cases[0].CaseName)
	assert.Empty(t, cases[1].ExampleConversation)

	got, err := svc.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "older", got.CaseName)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListEmptyTable(t *testing.T) {
	cases, err := NewService(openTestDB(t), nil, 0).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cases)
	assert.Empty(t, cases)
}
