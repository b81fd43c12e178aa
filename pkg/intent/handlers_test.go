package intent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/tenancy"
)

func setupTestServer(t *testing.T) (*Store, *httptest.Server) {
	t.Helper()
	store := NewStore(setupTestDB(t), nil)
	handler := tenancy.NewMiddleware(tenancy.ModeSingle)(Router(store, nil))
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return store, srv
}

func TestGetIntentEndpoint(t *testing.T) {
	store, srv := setupTestServer(t)

	in, err := store.Record(newTestIntent("default", "ingest_file"))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/intents/" + in.IntentID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got intentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, in.IntentID, got.IntentID)
	assert.Equal(t, StatusPending, got.Status)
}

func TestGetIntentEndpointNotFound(t *testing.T) {
	_, srv := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/intents/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListIntentsEndpoint(t *testing.T) {
	store, srv := setupTestServer(t)

	_, err := store.Record(newTestIntent("default", "ingest_file"))
	require.NoError(t, err)
	_, err = store.Record(newTestIntent("default", "reparse"))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/intents?type=reparse")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Intents   []intentResponse `json:"intents"`
		TotalSize int              `json:"totalSize"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Intents, 1)
	assert.Equal(t, "reparse", body.Intents[0].IntentType)
}

func TestCancelIntentEndpoint(t *testing.T) {
	store, srv := setupTestServer(t)

	in, err := store.Record(newTestIntent("default", "ingest_file"))
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/intents/"+in.IntentID+":cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := store.Get(in.IntentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCancelIntentEndpointConflictOnTerminal(t *testing.T) {
	store, srv := setupTestServer(t)

	in, err := store.Record(newTestIntent("default", "ingest_file"))
	require.NoError(t, err)
	require.NoError(t, store.MarkInProgress(in.IntentID, uuid.NewString()))
	require.NoError(t, store.MarkTerminal(in.IntentID, StatusCompleted, "", nil))

	resp, err := http.Post(srv.URL+"/intents/"+in.IntentID+":cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
