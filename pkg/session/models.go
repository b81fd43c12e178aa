// Package session owns the client-visible session lifecycle. The server
// side issues, upgrades, and revokes session leases; the Manager on the
// client side tracks the lease state machine and recovers autonomously when
// the server reports the lease unknown.
package session

import (
	"errors"
	"time"
)

// Status is the server-side status of a session lease.
type Status string

const (
	StatusAnonymous   Status = "anonymous"
	StatusActive      Status = "active"
	StatusInvalidated Status = "invalidated"
)

// ErrSessionNotFound is returned when the server does not recognize a
// session id, either because it never existed or because it was revoked.
// Callers holding a Manager never see this error; the Manager treats it as
// a state transition and recovers.
var ErrSessionNotFound = errors.New("session: not found")

// ErrUpgradeConflict is returned when an upgrade targets a session already
// active for a different user.
var ErrUpgradeConflict = errors.New("session: already active for another user")

// ErrInvalidCredentials is returned when upgrade credentials are missing,
// unverifiable, or bound to a different user.
var ErrInvalidCredentials = errors.New("session: invalid upgrade credentials")

// SessionRecord is the GORM model for one session lease.
// An active session always has both user_id and tenant_id set; an anonymous
// one has neither.
type SessionRecord struct {
	SessionID     string     `gorm:"primaryKey;column:session_id;type:varchar(36)"`
	Status        Status     `gorm:"column:status;index;not null;default:anonymous"`
	TenantID      string     `gorm:"column:tenant_id;index"`
	UserID        string     `gorm:"column:user_id;index"`
	LastSeenAt    time.Time  `gorm:"column:last_seen_at"`
	InvalidatedAt *time.Time `gorm:"column:invalidated_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (SessionRecord) TableName() string { return "sessions" }

// IsActive reports whether the session has been upgraded.
func (s *SessionRecord) IsActive() bool { return s.Status == StatusActive }
