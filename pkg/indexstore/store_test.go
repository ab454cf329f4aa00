package indexstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestStore starts a disposable Postgres container, applies
// migrations, and returns a connected Store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := Config{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, Record{
		ConversationID: "conv-1",
		Workspace:      "ws-a",
		AgentClass:     "kubernetes-agent",
		Status:         "running",
		Title:          "Investigate pod crash loop",
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "ws-a", got.Workspace)
	assert.Equal(t, "running", got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_UpsertUpdatesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Record{
		ConversationID: "conv-2", Workspace: "ws-a", Status: "running", Title: "first title",
	}))
	first, err := store.Get(ctx, "conv-2")
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, Record{
		ConversationID: "conv-2", Workspace: "ws-a", Status: "finished", Title: "updated title",
	}))
	second, err := store.Get(ctx, "conv-2")
	require.NoError(t, err)

	assert.Equal(t, "finished", second.Status)
	assert.Equal(t, "updated title", second.Title)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "created_at should not change on update")
	assert.True(t, !second.UpdatedAt.Before(first.UpdatedAt))
}

func TestStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Record{ConversationID: "conv-3", Workspace: "ws-a", Status: "running"}))
	require.NoError(t, store.Delete(ctx, "conv-3"))

	_, err := store.Get(ctx, "conv-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListFiltersByWorkspaceAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Record{ConversationID: "a", Workspace: "ws-1", Status: "running"}))
	require.NoError(t, store.Upsert(ctx, Record{ConversationID: "b", Workspace: "ws-1", Status: "finished"}))
	require.NoError(t, store.Upsert(ctx, Record{ConversationID: "c", Workspace: "ws-2", Status: "running"}))

	result, err := store.List(ctx, ListFilter{Workspace: "ws-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)

	result, err = store.List(ctx, ListFilter{Workspace: "ws-1", Status: "running"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "a", result.Records[0].ConversationID)
}

func TestStore_ListPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Upsert(ctx, Record{
			ConversationID: string(rune('a' + i)),
			Workspace:      "ws-page",
			Status:         "running",
		}))
	}

	page, err := store.List(ctx, ListFilter{Workspace: "ws-page", Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.Len(t, page.Records, 2)

	page2, err := store.List(ctx, ListFilter{Workspace: "ws-page", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page2.Records, 2)
	assert.NotEqual(t, page.Records[0].ConversationID, page2.Records[0].ConversationID)
}

func TestStore_SearchMatchesTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Record{
		ConversationID: "search-1", Workspace: "ws-a", Status: "running",
		Title: "Investigate pod crash loop in payments namespace",
	}))
	require.NoError(t, store.Upsert(ctx, Record{
		ConversationID: "search-2", Workspace: "ws-a", Status: "finished",
		Title: "Rotate expired TLS certificate",
	}))

	results, err := store.Search(ctx, "crash loop", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "search-1", results[0].ConversationID)
}
