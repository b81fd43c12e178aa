package discovery

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func newTestEntry(tenant, artifactType string, state IndexState) *IndexEntry {
	return &IndexEntry{
		ArtifactID:     uuid.NewString(),
		TenantID:       tenant,
		ArtifactType:   artifactType,
		LifecycleState: state,
	}
}

func TestUpsertCreatesAndReplaces(t *testing.T) {
	store := setupTestStore(t)

	entry := newTestEntry("acme", "report", StatePending)
	require.NoError(t, store.Upsert(entry))

	got, err := store.Get(entry.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatePending, got.LifecycleState)

	entry.LifecycleState = StateReady
	require.NoError(t, store.Upsert(entry))

	got, err = store.Get(entry.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, got.LifecycleState)

	var count int64
	require.NoError(t, store.db.Model(&IndexEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetUnknownEntryReturnsNil(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.Get(uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkStateOverwritesState(t *testing.T) {
	store := setupTestStore(t)

	entry := newTestEntry("acme", "report", StatePending)
	require.NoError(t, store.Upsert(entry))
	require.NoError(t, store.MarkState(entry.ArtifactID, StateFailed))

	got, err := store.Get(entry.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.LifecycleState)
}

func TestMarkStateUnknownEntryIsNoop(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.MarkState(uuid.NewString(), StateDeleted))
}

func TestQueryFilters(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.Upsert(newTestEntry("acme", "report", StateReady)))
	require.NoError(t, store.Upsert(newTestEntry("acme", "report", StatePending)))
	require.NoError(t, store.Upsert(newTestEntry("acme", "summary", StateReady)))
	require.NoError(t, store.Upsert(newTestEntry("globex", "report", StateReady)))

	entries, _, total, err := store.Query(QueryFilter{TenantID: "acme"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, entries, 3)

	entries, _, _, err = store.Query(QueryFilter{TenantID: "acme", ArtifactType: "report"}, 10, "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, _, _, err = store.Query(QueryFilter{TenantID: "acme", State: string(StateReady)}, 10, "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestQueryPagination(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < 5; i++ {
		entry := newTestEntry("acme", "report", StateReady)
		// Distinct timestamps keep the page cursor unambiguous.
		entry.UpdatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, store.db.Create(entry).Error)
	}

	page1, token, total, err := store.Query(QueryFilter{TenantID: "acme"}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	require.NotEmpty(t, token)

	page2, token2, _, err := store.Query(QueryFilter{TenantID: "acme"}, 2, token)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotEmpty(t, token2)

	page3, token3, _, err := store.Query(QueryFilter{TenantID: "acme"}, 2, token2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Empty(t, token3)

	seen := map[string]bool{}
	for _, e := range append(append(page1, page2...), page3...) {
		assert.False(t, seen[e.ArtifactID], "entry %s returned twice", e.ArtifactID)
		seen[e.ArtifactID] = true
	}
}

func TestQueryInvalidPageToken(t *testing.T) {
	store := setupTestStore(t)
	_, _, _, err := store.Query(QueryFilter{TenantID: "acme"}, 10, "not-a-timestamp")
	assert.Error(t, err)
}
