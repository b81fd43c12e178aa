package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/artifact"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/cache"
)

func setupArtifactDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&artifact.ArtifactRecord{}))
	return db
}

func newTestRecord(state artifact.LifecycleState, current bool) *artifact.ArtifactRecord {
	id := uuid.NewString()
	return &artifact.ArtifactRecord{
		ArtifactID:       id,
		TenantID:         "acme",
		ArtifactType:     "report",
		LifecycleState:   state,
		Owner:            artifact.OwnerPlatform,
		Purpose:          artifact.PurposeDelivery,
		Version:          1,
		RootArtifactID:   id,
		IsCurrentVersion: current,
	}
}

func TestEntryForStateMapping(t *testing.T) {
	cases := []struct {
		name    string
		state   artifact.LifecycleState
		current bool
		want    IndexState
	}{
		{"current draft", artifact.StateDraft, true, StatePending},
		{"current accepted", artifact.StateAccepted, true, StateReady},
		{"current obsolete", artifact.StateObsolete, true, StateArchived},
		{"superseded accepted", artifact.StateAccepted, false, StateArchived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := EntryFor(newTestRecord(tc.state, tc.current))
			assert.Equal(t, tc.want, entry.LifecycleState)
		})
	}
}

func TestEntryForCarriesProvenance(t *testing.T) {
	rec := newTestRecord(artifact.StateAccepted, true)
	rec.SessionID = "sess-1"
	rec.ExecutionID = "exec-1"
	rec.SourceArtifactIDs = []string{"src-1"}

	entry := EntryFor(rec)
	assert.Equal(t, rec.ArtifactID, entry.ArtifactID)
	assert.Equal(t, "acme", entry.TenantID)
	assert.Equal(t, "sess-1", entry.ProducedBy["session_id"])
	assert.Equal(t, "exec-1", entry.ProducedBy["execution_id"])
	assert.Equal(t, rec.ArtifactID, entry.Lineage["root_artifact_id"])
}

func TestProjectorAppliesEvents(t *testing.T) {
	store := setupTestStore(t)
	p := NewProjector(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	rec := newTestRecord(artifact.StateAccepted, true)
	p.ArtifactChanged(rec)

	require.Eventually(t, func() bool {
		entry, err := store.Get(rec.ArtifactID)
		return err == nil && entry != nil && entry.LifecycleState == StateReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProjectorNeverBlocksWriter(t *testing.T) {
	store := setupTestStore(t)
	p := NewProjector(store, nil)
	// No Run loop draining: fill the buffer past capacity and make sure the
	// producer side still returns.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultEventBuffer+10; i++ {
			p.ArtifactChanged(newTestRecord(artifact.StateDraft, true))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ArtifactChanged blocked with a full event buffer")
	}
}

func TestProjectorInvalidatesCache(t *testing.T) {
	store := setupTestStore(t)
	qc := cache.NewQueryCache(16, time.Minute)
	qc.Set(cache.Key("acme", "index:report"), []byte("stale"))
	qc.Set(cache.Key("globex", "index:report"), []byte("fresh"))

	p := NewProjector(store, nil, WithCache(qc))
	p.apply(EntryFor(newTestRecord(artifact.StateAccepted, true)))

	_, ok := qc.Get(cache.Key("acme", "index:report"))
	assert.False(t, ok, "writer tenant cache entry should be invalidated")
	_, ok = qc.Get(cache.Key("globex", "index:report"))
	assert.True(t, ok, "other tenants keep their cache entries")
}

func TestResyncRebuildsIndex(t *testing.T) {
	indexStore := setupTestStore(t)
	artifactStore := artifact.NewStore(setupArtifactDB(t), nil)

	a, err := artifactStore.Create(&artifact.ArtifactRecord{
		TenantID:     "acme",
		ArtifactType: "report",
		Owner:        artifact.OwnerPlatform,
		Purpose:      artifact.PurposeDelivery,
	})
	require.NoError(t, err)

	p := NewProjector(indexStore, nil)
	require.NoError(t, p.Resync(context.Background(), artifactStore))

	entry, err := indexStore.Get(a.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatePending, entry.LifecycleState)
}

func TestResyncArchivesSupersededVersions(t *testing.T) {
	indexStore := setupTestStore(t)
	artifactStore := artifact.NewStore(setupArtifactDB(t), nil)

	v1, err := artifactStore.Create(&artifact.ArtifactRecord{
		TenantID:     "acme",
		ArtifactType: "report",
		Owner:        artifact.OwnerPlatform,
		Purpose:      artifact.PurposeDelivery,
	})
	require.NoError(t, err)
	_, err = artifactStore.TransitionLifecycle(v1.ArtifactID, artifact.StateAccepted, "")
	require.NoError(t, err)

	// Simulate a stale index: v1 was indexed READY while it was the head.
	p := NewProjector(indexStore, nil)
	require.NoError(t, p.Resync(context.Background(), artifactStore))
	entry, err := indexStore.Get(v1.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, StateReady, entry.LifecycleState)

	v2, err := artifactStore.Supersede(v1.ArtifactID, &artifact.ArtifactRecord{})
	require.NoError(t, err)

	// A full resync must converge the displaced version to ARCHIVED, not
	// leave its READY entry behind.
	require.NoError(t, p.Resync(context.Background(), artifactStore))

	entry, err = indexStore.Get(v1.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StateArchived, entry.LifecycleState)

	head, err := indexStore.Get(v2.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, StatePending, head.LifecycleState)
}
