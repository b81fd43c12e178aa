package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/audit"
)

// Store is the server-side session authority: the only component that may
// create, upgrade, or revoke a session lease.
type Store struct {
	db     *gorm.DB
	cfg    *Config
	audit  *audit.Store
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithAudit sets the audit store appended to when sessions are revoked.
func WithAudit(a *audit.Store) StoreOption {
	return func(s *Store) { s.audit = a }
}

// NewStore creates a new session Store.
func NewStore(db *gorm.DB, cfg *Config, logger *slog.Logger, opts ...StoreOption) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates or updates the sessions table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&SessionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate sessions: %w", err)
	}
	return nil
}

// Begin issues a fresh anonymous session.
func (s *Store) Begin() (*SessionRecord, error) {
	rec := &SessionRecord{
		SessionID:  uuid.NewString(),
		Status:     StatusAnonymous,
		LastSeenAt: time.Now(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return rec, nil
}

// Get retrieves a session. Revoked and unknown sessions both return
// ErrSessionNotFound; callers cannot distinguish them, which is what lets
// the server revoke leases unilaterally.
func (s *Store) Get(sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	if err := s.db.First(&rec, "session_id = ?", sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if rec.Status == StatusInvalidated {
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

// Touch updates the session's last-seen time.
func (s *Store) Touch(sessionID string) error {
	err := s.db.Model(&SessionRecord{}).
		Where("session_id = ? AND status <> ?", sessionID, StatusInvalidated).
		Update("last_seen_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// upgradeClaims is the JWT payload upgrade credentials carry.
type upgradeClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Upgrade promotes an anonymous session to active in place, binding it to a
// user and tenant. Idempotent: retrying an upgrade that already succeeded
// for the same (session_id, user_id) returns the active session unchanged.
// Upgrading a session active for a different user returns
// ErrUpgradeConflict.
//
// credentials is a signed JWT whose subject must match userID. Validation is
// skipped when no signing key is configured.
func (s *Store) Upgrade(sessionID, userID, tenantID, credentials string) (*SessionRecord, error) {
	if userID == "" || tenantID == "" {
		return nil, fmt.Errorf("session: user id and tenant id are required for upgrade")
	}
	if err := s.verifyCredentials(userID, credentials); err != nil {
		return nil, err
	}

	var result *SessionRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec SessionRecord
		if err := tx.First(&rec, "session_id = ?", sessionID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrSessionNotFound
			}
			return fmt.Errorf("load session for upgrade: %w", err)
		}

		switch rec.Status {
		case StatusInvalidated:
			return ErrSessionNotFound
		case StatusActive:
			if rec.UserID == userID {
				result = &rec
				return nil
			}
			return ErrUpgradeConflict
		}

		res := tx.Model(&SessionRecord{}).
			Where("session_id = ? AND status = ?", sessionID, StatusAnonymous).
			Updates(map[string]any{
				"status":       StatusActive,
				"user_id":      userID,
				"tenant_id":    tenantID,
				"last_seen_at": time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("upgrade session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}

		rec.Status = StatusActive
		rec.UserID = userID
		rec.TenantID = tenantID
		result = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Invalidate revokes a session lease. Revoking an already-revoked or unknown
// session is not an error; the outcome is the same either way.
func (s *Store) Invalidate(sessionID string) error {
	now := time.Now()
	result := s.db.Model(&SessionRecord{}).
		Where("session_id = ? AND status <> ?", sessionID, StatusInvalidated).
		Updates(map[string]any{
			"status":         StatusInvalidated,
			"invalidated_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("invalidate session: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.appendAudit(sessionID)
	}
	return nil
}

// RevokeIdle invalidates sessions not seen since the idle timeout. Returns
// the number of sessions revoked.
func (s *Store) RevokeIdle(idleTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-idleTimeout)
	result := s.db.Model(&SessionRecord{}).
		Where("status <> ? AND last_seen_at < ?", StatusInvalidated, cutoff).
		Updates(map[string]any{
			"status":         StatusInvalidated,
			"invalidated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("revoke idle sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// verifyCredentials parses and validates the upgrade JWT against the
// configured signing key and checks the subject matches the user being
// bound.
func (s *Store) verifyCredentials(userID, credentials string) error {
	if s.cfg.SigningKey == "" {
		return nil
	}
	if credentials == "" {
		return fmt.Errorf("%w: none supplied", ErrInvalidCredentials)
	}

	var claims upgradeClaims
	_, err := jwt.ParseWithClaims(credentials, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.SigningKey), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject != userID {
		return fmt.Errorf("%w: subject %q does not match user %q", ErrInvalidCredentials, claims.Subject, userID)
	}
	return nil
}

// NewCredentials mints a signed upgrade JWT for a user. Used by tooling and
// tests; production deployments usually receive tokens from an external
// identity provider sharing the signing key.
func NewCredentials(signingKey, userID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := upgradeClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(signingKey))
	if err != nil {
		return "", fmt.Errorf("sign upgrade credentials: %w", err)
	}
	return signed, nil
}

func (s *Store) appendAudit(sessionID string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(&audit.EventRecord{
		EventType: audit.EventSessionInvalidated,
		Actor:     "ledger",
		NewValue:  map[string]any{"session_id": sessionID},
	})
	if err != nil {
		s.logger.Warn("failed to append audit event", "sessionID", sessionID, "error", err)
	}
}
