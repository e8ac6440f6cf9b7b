package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB attempts to connect to a PostgreSQL database for testing.
// It skips the test if the connection cannot be established.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	pgUser := os.Getenv("PGUSER")
	pgPassword := os.Getenv("PGPASSWORD")
	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgDB := os.Getenv("PGDATABASE")

	if pgUser == "" {
		pgUser = "autosphere"
	}
	if pgPassword == "" {
		pgPassword = "password"
	}
	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgDB == "" {
		pgDB = "autosphere_test"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("skipping event store tests: could not connect to postgres: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			aggregate_id UUID NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			data JSONB NOT NULL,
			version INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (aggregate_id, version)
		);
	`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

type testEvent struct {
	Message string `json:"message"`
}

func marshalTestEvent(t testing.TB, message string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(testEvent{Message: message})
	if err != nil {
		t.Fatalf("marshal test event: %v", err)
	}
	return data
}

func TestAppendAndLoad(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	aggregateID := uuid.New()
	for i := 0; i < 3; i++ {
		data := marshalTestEvent(t, fmt.Sprintf("event %d", i))
		err := store.Append(ctx, aggregateID, "account", i, "LoyaltyAccrued", data)
		require.NoError(t, err)
	}

	events, err := store.Load(ctx, aggregateID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for i, event := range events {
		assert.Equal(t, i+1, event.Version)
		assert.Equal(t, aggregateID, event.AggregateID)
		assert.Equal(t, "account", event.AggregateType)
		assert.Equal(t, "LoyaltyAccrued", event.EventType)

		var payload testEvent
		require.NoError(t, json.Unmarshal(event.Data, &payload))
		assert.Equal(t, fmt.Sprintf("event %d", i), payload.Message)
	}
}

func TestLoadVersionRange(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	aggregateID := uuid.New()
	for i := 0; i < 5; i++ {
		err := store.Append(ctx, aggregateID, "account", i, "LoyaltyAccrued", marshalTestEvent(t, "x"))
		require.NoError(t, err)
	}

	events, err := store.Load(ctx, aggregateID, 2, 4)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].Version)
	assert.Equal(t, 4, events[2].Version)
}

func TestAppendConcurrencyConflict(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	aggregateID := uuid.New()
	require.NoError(t, store.Append(ctx, aggregateID, "account", 0, "AccountRegistered", marshalTestEvent(t, "a")))

	// Stale writer still expects an empty stream.
	err := store.Append(ctx, aggregateID, "account", 0, "LoyaltyAccrued", marshalTestEvent(t, "b"))
	assert.True(t, errors.Is(err, ErrConcurrencyConflict), "got %v", err)

	version, err := store.CurrentVersion(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestAppendRejectsNegativeVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)

	err := store.Append(context.Background(), uuid.New(), "account", -1, "AccountRegistered", marshalTestEvent(t, "a"))
	assert.True(t, errors.Is(err, ErrInvalidVersion), "got %v", err)
}

func TestCurrentVersionEmptyStream(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)

	version, err := store.CurrentVersion(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestStreamBatches(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := store.Append(ctx, uuid.New(), "purchase", 0, "PurchaseRecorded", marshalTestEvent(t, "p"))
		require.NoError(t, err)
	}

	batch, err := store.Stream(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	next, err := store.Stream(ctx, batch[1].ID, 2)
	require.NoError(t, err)
	require.NotEmpty(t, next)
	assert.Greater(t, next[0].ID, batch[1].ID)
}

func BenchmarkAppend(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		aggregateID := uuid.New()
		data, _ := json.Marshal(testEvent{Message: fmt.Sprintf("event %d", i)})
		b.StartTimer()

		if err := store.Append(context.Background(), aggregateID, "account", 0, "LoyaltyAccrued", data); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

func BenchmarkLoad(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	for i := 0; i < 10; i++ {
		data, _ := json.Marshal(testEvent{Message: fmt.Sprintf("event %d", i)})
		if err := store.Append(context.Background(), aggregateID, "account", i, "LoyaltyAccrued", data); err != nil {
			b.Fatalf("failed to seed events: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := store.Load(context.Background(), aggregateID, 0, 0); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
	}
}
