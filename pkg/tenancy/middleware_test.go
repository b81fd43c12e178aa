package tenancy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleTenantResolverDefaultsTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/ledger/v1alpha1/artifacts", nil)
	tc, err := SingleTenantResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "default", tc.TenantID)
}

func TestSingleTenantResolverCapturesSessionHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(SessionHeader, "sess-123")
	tc, err := SingleTenantResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "sess-123", tc.SessionID)
}

func TestHeaderTenantResolverFromHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(TenantHeader, "acme-corp")
	tc, err := HeaderTenantResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", tc.TenantID)
}

func TestHeaderTenantResolverQueryParamWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?tenantId=t1", nil)
	r.Header.Set(TenantHeader, "t2")
	tc, err := HeaderTenantResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "t1", tc.TenantID)
}

func TestHeaderTenantResolverRequiresTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := HeaderTenantResolver{}.Resolve(r)
	assert.Error(t, err)
}

func TestHeaderTenantResolverRejectsInvalidID(t *testing.T) {
	for _, id := range []string{"-leading", "trailing-", "UPPER", "has_underscore"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(TenantHeader, id)
		_, err := HeaderTenantResolver{}.Resolve(r)
		assert.Error(t, err, "tenant id %q should be rejected", id)
	}
}

func TestMiddlewareAttachesContext(t *testing.T) {
	var got TenantContext
	handler := NewMiddleware(ModeHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = TenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(TenantHeader, "t1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t1", got.TenantID)
}

func TestMiddlewareRejectsMissingTenant(t *testing.T) {
	handler := NewMiddleware(ModeHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenantIDFromContextEmptyWithoutTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", TenantIDFromContext(r.Context()))
}
