package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// API is the server surface the Manager drives. The Store satisfies it for
// in-process use; remote callers plug in an HTTP client instead.
type API interface {
	Begin() (*SessionRecord, error)
	Get(sessionID string) (*SessionRecord, error)
	Upgrade(sessionID, userID, tenantID, credentials string) (*SessionRecord, error)
}

// ManagerState is the client-side lifecycle state of the session lease.
type ManagerState string

const (
	StateInitializing   ManagerState = "initializing"
	StateAnonymous      ManagerState = "anonymous"
	StateAuthenticating ManagerState = "authenticating"
	StateActive         ManagerState = "active"
	StateInvalid        ManagerState = "invalid"
	StateRecovering     ManagerState = "recovering"
)

// Manager tracks one caller's session lease through its state machine:
//
//	Initializing -> {Anonymous | Invalid}
//	Anonymous -> Authenticating -> {Active | Invalid}
//	Active -> Invalid            (server reports the lease unknown)
//	Invalid -> Recovering -> Anonymous
//
// A "not found" from the server is never an error to the Manager's caller:
// it is the Invalid transition, followed by autonomous recovery that
// re-enters at Anonymous. Recovery never lands at Active; callers that need
// an active session must upgrade again. Safe for concurrent use; concurrent
// callers observing the same invalidation share a single recovery.
type Manager struct {
	api    API
	logger *slog.Logger

	mu      sync.RWMutex
	state   ManagerState
	current *SessionRecord

	recovery singleflight.Group
}

// NewManager creates a Manager in the Initializing state.
func NewManager(api API, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		api:    api,
		logger: logger.With("component", "session-manager"),
		state:  StateInitializing,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() ManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the session lease, beginning one on first use and
// recovering if the manager is Invalid.
func (m *Manager) Current() (*SessionRecord, error) {
	m.mu.RLock()
	state, current := m.state, m.current
	m.mu.RUnlock()

	switch state {
	case StateAnonymous, StateActive, StateAuthenticating:
		return current, nil
	case StateInitializing, StateInvalid, StateRecovering:
		return m.recover()
	}
	return nil, fmt.Errorf("session: manager in unexpected state %q", state)
}

// Upgrade authenticates the current session in place. If the server no
// longer recognizes the lease, the manager recovers to a fresh anonymous
// session and retries the upgrade against it once.
func (m *Manager) Upgrade(userID, tenantID, credentials string) (*SessionRecord, error) {
	current, err := m.Current()
	if err != nil {
		return nil, err
	}

	m.setState(StateAuthenticating, current)

	upgraded, err := m.api.Upgrade(current.SessionID, userID, tenantID, credentials)
	if errors.Is(err, ErrSessionNotFound) {
		recovered, recErr := m.observeNotFound()
		if recErr != nil {
			return nil, recErr
		}
		m.setState(StateAuthenticating, recovered)
		upgraded, err = m.api.Upgrade(recovered.SessionID, userID, tenantID, credentials)
		if errors.Is(err, ErrSessionNotFound) {
			// The replacement vanished too; give up on this attempt but
			// leave the manager recovering rather than wedged.
			_, _ = m.observeNotFound()
			return nil, fmt.Errorf("session: lease lost during upgrade")
		}
	}
	if err != nil {
		// Authentication failed on a live session: drop back to Anonymous.
		m.setState(StateAnonymous, current)
		return nil, err
	}

	m.setState(StateActive, upgraded)
	return upgraded, nil
}

// Refresh re-validates the lease against the server, recovering when the
// server no longer recognizes it.
func (m *Manager) Refresh() (*SessionRecord, error) {
	current, err := m.Current()
	if err != nil {
		return nil, err
	}

	fresh, err := m.api.Get(current.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return m.observeNotFound()
	}
	if err != nil {
		return nil, err
	}

	if fresh.IsActive() {
		m.setState(StateActive, fresh)
	} else {
		m.setState(StateAnonymous, fresh)
	}
	return fresh, nil
}

// ObserveError lets callers feed errors from their own session-scoped calls
// through the state machine. Returns true when the error was a lease
// invalidation that the manager absorbed; the caller should retry with the
// recovered session rather than surface the error.
func (m *Manager) ObserveError(err error) bool {
	if !errors.Is(err, ErrSessionNotFound) {
		return false
	}
	_, recErr := m.observeNotFound()
	return recErr == nil
}

// observeNotFound transitions to Invalid and runs recovery.
func (m *Manager) observeNotFound() (*SessionRecord, error) {
	m.setState(StateInvalid, nil)
	return m.recover()
}

// recover creates a replacement anonymous session. Concurrent callers
// observing the same invalidation coalesce onto one in-flight recovery and
// share its result.
func (m *Manager) recover() (*SessionRecord, error) {
	v, err, _ := m.recovery.Do("recover", func() (any, error) {
		m.setState(StateRecovering, nil)
		m.logger.Info("recovering session lease")

		rec, err := m.api.Begin()
		if err != nil {
			m.setState(StateInvalid, nil)
			return nil, fmt.Errorf("session recovery: %w", err)
		}

		m.setState(StateAnonymous, rec)
		m.logger.Info("session lease recovered", "sessionID", rec.SessionID)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SessionRecord), nil
}

func (m *Manager) setState(state ManagerState, rec *SessionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	if rec != nil {
		m.current = rec
	}
}
