package artifact

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ArtifactRecord{}))

	// A single connection keeps concurrent test transactions serialized the
	// same way a shared sqlite file would.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestArtifact(tenant, artifactType string) *ArtifactRecord {
	return &ArtifactRecord{
		TenantID:     tenant,
		ArtifactType: artifactType,
		Owner:        OwnerPlatform,
		Purpose:      PurposeDelivery,
	}
}

func TestCreateAssignsRootChainFields(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	a, err := store.Create(newTestArtifact("t1", "parsed_document"))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ArtifactID)
	assert.Equal(t, 1, a.Version)
	assert.True(t, a.IsCurrentVersion)
	assert.Equal(t, a.ArtifactID, a.RootArtifactID)
	assert.Empty(t, a.ParentArtifactID)
	assert.Equal(t, StateDraft, a.LifecycleState)
}

func TestCreateRejectsInvalidEnums(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	a := newTestArtifact("t1", "report")
	a.Owner = "nobody"
	_, err := store.Create(a)
	assert.Error(t, err)

	a = newTestArtifact("t1", "report")
	a.Purpose = "fun"
	_, err = store.Create(a)
	assert.Error(t, err)

	a = newTestArtifact("t1", "")
	_, err = store.Create(a)
	assert.Error(t, err)
}

func TestSupersedeFlipsCurrentVersion(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	v1, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)

	v2, err := store.Supersede(v1.ArtifactID, &ArtifactRecord{PayloadReference: "blob-2"})
	require.NoError(t, err)

	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.IsCurrentVersion)
	assert.Equal(t, v1.ArtifactID, v2.ParentArtifactID)
	assert.Equal(t, v1.RootArtifactID, v2.RootArtifactID)
	assert.Equal(t, v1.ArtifactType, v2.ArtifactType, "type inherited from head")

	old, err := store.Get(v1.ArtifactID)
	require.NoError(t, err)
	assert.False(t, old.IsCurrentVersion)
}

func TestSupersedeStaleVersionConflicts(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	v1, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)
	_, err = store.Supersede(v1.ArtifactID, &ArtifactRecord{})
	require.NoError(t, err)

	// v1 is no longer the head; a second supersede against it must lose.
	_, err = store.Supersede(v1.ArtifactID, &ArtifactRecord{})
	assert.ErrorIs(t, err, ErrSupersedeConflict)
}

func TestConcurrentSupersedeSingleWinner(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	v1, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Supersede(v1.ArtifactID, &ArtifactRecord{})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			conflicts++
		}
	}
	assert.Equal(t, 1, wins, "exactly one supersede must win")
	assert.Equal(t, 1, conflicts)

	// Invariant: exactly one current row, and no duplicate v2.
	chain, err := store.ListVersions(v1.ArtifactID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	current := 0
	for _, a := range chain {
		if a.IsCurrentVersion {
			current++
		}
	}
	assert.Equal(t, 1, current)
}

func TestListVersionsOrderedAndStrictlyIncreasing(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	v1, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)
	v2, err := store.Supersede(v1.ArtifactID, &ArtifactRecord{})
	require.NoError(t, err)
	_, err = store.Supersede(v2.ArtifactID, &ArtifactRecord{})
	require.NoError(t, err)

	chain, err := store.ListVersions(v1.ArtifactID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	for i, a := range chain {
		assert.Equal(t, i+1, a.Version)
		assert.Equal(t, a.Version == 3, a.IsCurrentVersion)
	}
}

func TestGetCurrentFromAnyVersion(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	v1, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)
	v2, err := store.Supersede(v1.ArtifactID, &ArtifactRecord{})
	require.NoError(t, err)
	v3, err := store.Supersede(v2.ArtifactID, &ArtifactRecord{})
	require.NoError(t, err)

	for _, id := range []string{v1.ArtifactID, v2.ArtifactID, v3.ArtifactID} {
		head, err := store.GetCurrent(id)
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, v3.ArtifactID, head.ArtifactID)
	}
}

func TestGetCurrentUnknownIDReturnsNil(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	head, err := store.GetCurrent("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestTransitionLifecycleDraftToAccepted(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	a, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)

	updated, err := store.TransitionLifecycle(a.ArtifactID, StateAccepted, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, updated.LifecycleState)
}

func TestObsoleteIsTerminal(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	a, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)
	_, err = store.TransitionLifecycle(a.ArtifactID, StateObsolete, "reviewer")
	require.NoError(t, err)

	for _, to := range []LifecycleState{StateDraft, StateAccepted} {
		_, err = store.TransitionLifecycle(a.ArtifactID, to, "reviewer")
		var te *TransitionError
		require.ErrorAs(t, err, &te, "obsolete -> %s must be rejected", to)
		assert.Equal(t, "LIFECYCLE_TRANSITION_DENIED", te.Code)
	}
}

func TestTransitionUnknownArtifactReturnsNil(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	a, err := store.TransitionLifecycle("nonexistent", StateAccepted, "")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestLineageSelfReferenceRejected(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	a := newTestArtifact("t1", "summary")
	a.ArtifactID = "art-self"
	a.SourceArtifactIDs = []string{"art-self"}
	_, err := store.Create(a)
	assert.ErrorIs(t, err, ErrLineageCycle)
}

func TestLineageTransitiveCycleRejected(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	base, err := store.Create(newTestArtifact("t1", "document"))
	require.NoError(t, err)

	derived := newTestArtifact("t1", "summary")
	derived.SourceArtifactIDs = []string{base.ArtifactID}
	derived, err = store.Create(derived)
	require.NoError(t, err)

	// A new version of base that lists the derived artifact as a source
	// would make base transitively derive from itself.
	_, err = store.Supersede(base.ArtifactID, &ArtifactRecord{
		ArtifactID:        "next-base",
		SourceArtifactIDs: []string{derived.ArtifactID, "next-base"},
	})
	assert.ErrorIs(t, err, ErrLineageCycle)
}

func TestLineageUnknownSourceTolerated(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	a := newTestArtifact("t1", "summary")
	a.SourceArtifactIDs = []string{"external-ref"}
	_, err := store.Create(a)
	assert.NoError(t, err)
}

func TestListFiltersByTenantTypeAndState(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	_, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)
	_, err = store.Create(newTestArtifact("t1", "summary"))
	require.NoError(t, err)
	_, err = store.Create(newTestArtifact("t2", "report"))
	require.NoError(t, err)

	records, _, total, err := store.List(ListFilter{TenantID: "t1"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, records, 2)

	records, _, total, err = store.List(ListFilter{TenantID: "t1", ArtifactType: "report"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, records, 1)
}

func TestListCurrentOnlyExcludesSuperseded(t *testing.T) {
	store := NewStore(setupTestDB(t), nil)

	v1, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)
	_, err = store.Supersede(v1.ArtifactID, &ArtifactRecord{})
	require.NoError(t, err)

	records, _, total, err := store.List(ListFilter{TenantID: "t1", CurrentOnly: true}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Version)
}

// recordingProjector captures notifications for assertions.
type recordingProjector struct {
	mu     sync.Mutex
	events []projEvent
}

type projEvent struct {
	id      string
	current bool
}

func (p *recordingProjector) ArtifactChanged(a *ArtifactRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, projEvent{id: a.ArtifactID, current: a.IsCurrentVersion})
}

func TestProjectorNotifiedOnWrites(t *testing.T) {
	proj := &recordingProjector{}
	store := NewStore(setupTestDB(t), nil, WithProjector(proj))

	v1, err := store.Create(newTestArtifact("t1", "report"))
	require.NoError(t, err)
	v2, err := store.Supersede(v1.ArtifactID, &ArtifactRecord{})
	require.NoError(t, err)
	_, err = store.TransitionLifecycle(v2.ArtifactID, StateAccepted, "")
	require.NoError(t, err)

	proj.mu.Lock()
	defer proj.mu.Unlock()
	// Supersede changes two rows, so the displaced head is re-notified as
	// non-current alongside the new head.
	assert.Equal(t, []projEvent{
		{id: v1.ArtifactID, current: true},
		{id: v1.ArtifactID, current: false},
		{id: v2.ArtifactID, current: true},
		{id: v2.ArtifactID, current: true},
	}, proj.events)
}
