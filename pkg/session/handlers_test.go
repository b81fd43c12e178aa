package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T, cfg *Config) (*Store, *httptest.Server) {
	t.Helper()
	store := setupTestStore(t, cfg)
	srv := httptest.NewServer(Router(store))
	t.Cleanup(srv.Close)
	return store, srv
}

func TestBeginEndpoint(t *testing.T) {
	_, srv := setupTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotEmpty(t, got.SessionID)
	assert.Equal(t, StatusAnonymous, got.Status)
}

func TestGetSessionEndpointNotFoundAfterRevocation(t *testing.T) {
	store, srv := setupTestServer(t, nil)

	rec, err := store.Begin()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sessions/" + rec.SessionID)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	invResp, err := http.Post(srv.URL+"/sessions/"+rec.SessionID+":invalidate", "application/json", nil)
	require.NoError(t, err)
	invResp.Body.Close()
	require.Equal(t, http.StatusNoContent, invResp.StatusCode)

	resp, err = http.Get(srv.URL + "/sessions/" + rec.SessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpgradeEndpoint(t *testing.T) {
	store, srv := setupTestServer(t, nil)

	rec, err := store.Begin()
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/sessions/"+rec.SessionID+":upgrade", "application/json",
		strings.NewReader(`{"user_id":"user-1","tenant_id":"acme"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, "user-1", got.UserID)
}

func TestUpgradeEndpointUnknownSession(t *testing.T) {
	_, srv := setupTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/sessions/"+uuid.NewString()+":upgrade", "application/json",
		strings.NewReader(`{"user_id":"user-1","tenant_id":"acme"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpgradeEndpointConflict(t *testing.T) {
	store, srv := setupTestServer(t, nil)

	rec, err := store.Begin()
	require.NoError(t, err)
	_, err = store.Upgrade(rec.SessionID, "user-1", "acme", "")
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/sessions/"+rec.SessionID+":upgrade", "application/json",
		strings.NewReader(`{"user_id":"user-2","tenant_id":"acme"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpgradeEndpointRejectsBadCredentials(t *testing.T) {
	store, srv := setupTestServer(t, &Config{SigningKey: "test-key"})

	rec, err := store.Begin()
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/sessions/"+rec.SessionID+":upgrade", "application/json",
		strings.NewReader(`{"user_id":"user-1","tenant_id":"acme","credentials":"garbage"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
