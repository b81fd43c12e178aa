package tenancy

import (
	"fmt"
	"net/http"
	"regexp"
)

// maxTenantIDLen is the maximum length for a tenant id.
const maxTenantIDLen = 63

// tenantIDRe validates tenant id format: lowercase alphanumeric and hyphens,
// must start and end with an alphanumeric character (DNS label convention).
var tenantIDRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// TenantQueryParam is the query parameter name used for tenant resolution.
const TenantQueryParam = "tenantId"

// TenantHeader is the HTTP header used for tenant resolution.
const TenantHeader = "X-Tenant-Id"

// SessionHeader is the HTTP header carrying the caller's session lease id.
// It is captured into the TenantContext when present; session validation
// itself is the session package's concern.
const SessionHeader = "X-Session-Id"

// TenantResolver resolves the tenant context from an HTTP request.
type TenantResolver interface {
	Resolve(r *http.Request) (TenantContext, error)
}

// SingleTenantResolver always returns the "default" tenant.
type SingleTenantResolver struct{}

// Resolve always returns a TenantContext with TenantID "default".
func (s SingleTenantResolver) Resolve(r *http.Request) (TenantContext, error) {
	return TenantContext{TenantID: "default", SessionID: r.Header.Get(SessionHeader)}, nil
}

// HeaderTenantResolver reads the tenant id from the request query parameter
// or header. In multi-tenant mode the tenant id is always required.
type HeaderTenantResolver struct{}

// Resolve extracts the tenant id from the request. It checks the query
// parameter first, then falls back to the X-Tenant-Id header. Returns an
// error if the tenant id is missing or invalid.
func (h HeaderTenantResolver) Resolve(r *http.Request) (TenantContext, error) {
	id := r.URL.Query().Get(TenantQueryParam)
	if id == "" {
		id = r.Header.Get(TenantHeader)
	}

	if id == "" {
		return TenantContext{}, fmt.Errorf("tenant id is required in multi-tenant mode (use ?tenantId= query param or %s header)", TenantHeader)
	}

	if err := validateTenantID(id); err != nil {
		return TenantContext{}, err
	}

	return TenantContext{TenantID: id, SessionID: r.Header.Get(SessionHeader)}, nil
}

// validateTenantID checks that a tenant id conforms to DNS label rules:
// lowercase alphanumeric and hyphens, 1-63 characters, starts and ends with
// an alphanumeric character.
func validateTenantID(id string) error {
	if len(id) > maxTenantIDLen {
		return fmt.Errorf("tenant id %q exceeds maximum length of %d characters", id, maxTenantIDLen)
	}
	if !tenantIDRe.MatchString(id) {
		return fmt.Errorf("tenant id %q is invalid: must consist of lowercase alphanumeric characters or hyphens, and must start and end with an alphanumeric character", id)
	}
	return nil
}
