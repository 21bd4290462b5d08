package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceassist/internal/config"
	"voiceassist/internal/models"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := Open("sqlite3", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"customers", "appointments", "conversations", "conversation_messages", "edge_cases"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpenUnknownDatabase(t *testing.T) {
	_, err := Open("oracle", &config.Config{Databases: map[string]config.DatabaseConfig{"oracle": {}}})
	assert.Error(t, err)
	_, err = Open("sqlite3", &config.Config{})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{Driver: "pgx"}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", pg.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	lite := &DB{Driver: "sqlite3"}
	assert.Equal(t, "a = ?", lite.Rebind("a = ?"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestDSNBuilders(t *testing.T) {
	assert.Equal(t, "app:pw@tcp(db:3306)/voice?charset=utf8mb4&parseTime=true",
		mysqlDSN(config.DatabaseConfig{Username: "app", Password: "pw", Host: "db", Port: 3306, DBName: "voice", Params: "charset=utf8mb4"}))
	assert.Equal(t, "postgres://app:pw@db:5432/voice?sslmode=disable",
		postgresDSN(config.DatabaseConfig{Username: "app", Password: "pw", Host: "db", DBName: "voice", Params: "sslmode=disable"}))
	assert.Equal(t, "postgres://explicit", postgresDSN(config.DatabaseConfig{DSN: "postgres://explicit"}))
	assert.Equal(t, "pgx", normalizeDriver("postgres"))
	assert.Equal(t, "sqlite3", normalizeDriver("SQLite"))
}

func TestInsertRecords(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	email := "ana@example.com"
	customer := &models.Customer{Name: "Ana", Email: &email}
	require.NoError(t, db.InsertCustomer(ctx, customer))
	assert.NotEmpty(t, customer.ID)

	conv := &models.Conversation{CustomerID: &customer.ID, SessionID: "session_1_abcdefghi"}
	require.NoError(t, db.InsertConversation(ctx, conv))
	assert.Equal(t, models.ConversationActive, conv.Status)
	exists, err := db.ConversationExists(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = db.ConversationExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, db.InsertMessage(ctx, &models.ConversationMessage{
		ConversationID: conv.ID, Role: models.RoleUser, Content: "hi",
	}))
	require.NoError(t, db.FinishConversation(ctx, conv.ID, models.ConversationCompleted, time.Now()))
	assert.Error(t, db.FinishConversation(ctx, "missing", models.ConversationCompleted, time.Now()))

	var status string
	var ended *time.Time
	require.NoError(t, db.QueryRow(`SELECT status, ended_at FROM conversations WHERE id = ?`, conv.ID).Scan(&status, &ended))
	assert.Equal(t, "completed", status)
	assert.NotNil(t, ended)

	appt := &models.Appointment{CustomerID: customer.ID, ServiceType: "haircut", AppointmentDate: time.Now().Add(24 * time.Hour)}
	require.NoError(t, db.InsertAppointment(ctx, appt))
	assert.Equal(t, models.AppointmentPending, appt.Status)

	require.NoError(t, db.InsertEdgeCase(ctx, &models.EdgeCase{CaseName: "x", Scenario: "y", HandlingStrategy: "z"}))
	var example string
	require.NoError(t, db.QueryRow(`SELECT example_conversation FROM edge_cases`).Scan(&example))
	assert.Equal(t, "[]", example)
}
