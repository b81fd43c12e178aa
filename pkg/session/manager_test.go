package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAPI wraps a Store and counts Begin calls, optionally slowing them
// down so concurrent recoveries overlap.
type countingAPI struct {
	store      *Store
	beginCalls atomic.Int64
	beginDelay time.Duration
}

func (c *countingAPI) Begin() (*SessionRecord, error) {
	c.beginCalls.Add(1)
	if c.beginDelay > 0 {
		time.Sleep(c.beginDelay)
	}
	return c.store.Begin()
}

func (c *countingAPI) Get(sessionID string) (*SessionRecord, error) {
	return c.store.Get(sessionID)
}

func (c *countingAPI) Upgrade(sessionID, userID, tenantID, credentials string) (*SessionRecord, error) {
	return c.store.Upgrade(sessionID, userID, tenantID, credentials)
}

func setupManager(t *testing.T) (*Manager, *countingAPI) {
	t.Helper()
	api := &countingAPI{store: setupTestStore(t, nil)}
	return NewManager(api, nil), api
}

func TestManagerBeginsOnFirstUse(t *testing.T) {
	m, api := setupManager(t)
	assert.Equal(t, StateInitializing, m.State())

	rec, err := m.Current()
	require.NoError(t, err)
	assert.NotEmpty(t, rec.SessionID)
	assert.Equal(t, StateAnonymous, m.State())
	assert.Equal(t, int64(1), api.beginCalls.Load())

	// Subsequent calls reuse the lease.
	again, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, again.SessionID)
	assert.Equal(t, int64(1), api.beginCalls.Load())
}

func TestManagerRecoversFromInvalidation(t *testing.T) {
	m, api := setupManager(t)

	rec, err := m.Current()
	require.NoError(t, err)

	// Server revokes the lease behind the client's back.
	require.NoError(t, api.store.Invalidate(rec.SessionID))

	// The next refresh sees "not found" and recovers without caller help.
	recovered, err := m.Refresh()
	require.NoError(t, err)
	assert.NotEqual(t, rec.SessionID, recovered.SessionID)
	assert.Equal(t, StateAnonymous, m.State())

	// Recovery re-enters at Anonymous, never Active.
	assert.Equal(t, StatusAnonymous, recovered.Status)
}

func TestManagerSerializesConcurrentRecovery(t *testing.T) {
	m, api := setupManager(t)

	rec, err := m.Current()
	require.NoError(t, err)
	require.NoError(t, api.store.Invalidate(rec.SessionID))
	api.beginCalls.Store(0)
	api.beginDelay = 200 * time.Millisecond

	// Many callers observe the same invalidation at once; they must share
	// one replacement session instead of racing to create several.
	const callers = 8
	var wg sync.WaitGroup
	results := make([]*SessionRecord, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if m.ObserveError(ErrSessionNotFound) {
				results[n], _ = m.Current()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), api.beginCalls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].SessionID, r.SessionID)
	}
}

func TestManagerUpgradeHappyPath(t *testing.T) {
	m, _ := setupManager(t)

	upgraded, err := m.Upgrade("user-1", "acme", "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, upgraded.Status)
	assert.Equal(t, StateActive, m.State())
}

func TestManagerUpgradeRetriesAfterRecovery(t *testing.T) {
	m, api := setupManager(t)

	rec, err := m.Current()
	require.NoError(t, err)
	require.NoError(t, api.store.Invalidate(rec.SessionID))

	// The upgrade against the dead lease is absorbed: the manager recovers
	// and upgrades the replacement session instead.
	upgraded, err := m.Upgrade("user-1", "acme", "")
	require.NoError(t, err)
	assert.NotEqual(t, rec.SessionID, upgraded.SessionID)
	assert.Equal(t, StatusActive, upgraded.Status)
	assert.Equal(t, StateActive, m.State())
}

func TestManagerIgnoresOrdinaryErrors(t *testing.T) {
	m, _ := setupManager(t)

	_, err := m.Current()
	require.NoError(t, err)

	assert.False(t, m.ObserveError(assert.AnError))
	assert.Equal(t, StateAnonymous, m.State())
}
