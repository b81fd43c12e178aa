package intent

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/audit"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/dbjson"
)

// ErrIllegalStatusChange is returned when a status update would move an
// intent backwards or out of a terminal status.
var ErrIllegalStatusChange = errors.New("intent: illegal status change")

// Store provides database operations for the intent execution log.
type Store struct {
	db     *gorm.DB
	audit  *audit.Store
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithAudit sets the audit store appended to when intents are recorded and
// reach a terminal status.
func WithAudit(a *audit.Store) StoreOption {
	return func(s *Store) { s.audit = a }
}

// NewStore creates a new intent Store.
func NewStore(db *gorm.DB, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates or updates the intent_executions table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&IntentRecord{}); err != nil {
		return fmt.Errorf("auto-migrate intent_executions: %w", err)
	}
	return nil
}

// Record durably persists a pending intent. It must be called before any
// side-effecting work begins; a crash after Record leaves a pending row the
// recovery sweep can re-submit.
//
// If the record carries an idempotency key and a non-terminal intent with the
// same key already exists, the existing intent is returned instead of
// creating a duplicate. Terminal rows with the same key are immutable history
// and do not block a fresh submission. Safe for concurrent use.
func (s *Store) Record(in *IntentRecord) (*IntentRecord, error) {
	if in.IntentType == "" {
		return nil, fmt.Errorf("intent: intent_type is required")
	}
	if in.IntentID == "" {
		in.IntentID = uuid.NewString()
	}
	if in.TenantID == "" {
		in.TenantID = "default"
	}
	in.Status = StatusPending

	if in.IdempotencyKey == "" {
		if err := s.db.Create(in).Error; err != nil {
			return nil, fmt.Errorf("record intent: %w", err)
		}
		s.appendAudit(audit.EventIntentRecorded, in, nil)
		return in, nil
	}

	key := in.IdempotencyKey
	in.ActiveIdempotencyKey = &key

	var result *IntentRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing IntentRecord
		err := tx.Where("active_idempotency_key = ?", key).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("check idempotency key: %w", err)
		}
		if err := tx.Create(in).Error; err != nil {
			return fmt.Errorf("record intent: %w", err)
		}
		result = in
		return nil
	})
	if err != nil {
		// Under READ COMMITTED two concurrent submissions can both miss the
		// read; the unique index on active_idempotency_key then fails the
		// loser's insert. Dedupe against the surviving row.
		var existing IntentRecord
		if lookErr := s.db.Where("active_idempotency_key = ?", key).First(&existing).Error; lookErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	if result == in {
		s.appendAudit(audit.EventIntentRecorded, in, nil)
	}
	return result, nil
}

// MarkInProgress transitions a pending intent to in_progress and attaches the
// execution id. Returns ErrIllegalStatusChange if the intent is not pending.
func (s *Store) MarkInProgress(intentID, executionID string) error {
	now := time.Now()
	result := s.db.Model(&IntentRecord{}).
		Where("intent_id = ? AND status = ?", intentID, StatusPending).
		Updates(map[string]any{
			"status":        StatusInProgress,
			"execution_id":  executionID,
			"started_at":    now,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("mark intent in progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.statusChangeError(intentID, StatusInProgress)
	}
	return nil
}

// MarkTerminal transitions an in_progress intent to a terminal status,
// recording the error message and produced artifact ids. completed_at is set
// exactly when the row becomes terminal. Pending intents may be marked
// cancelled or failed without ever having started.
func (s *Store) MarkTerminal(intentID string, status Status, errMsg string, producedArtifactIDs []string) error {
	if !validTerminal(status) {
		return fmt.Errorf("intent: %q is not a terminal status", status)
	}

	fromStatuses := []Status{StatusInProgress}
	if status == StatusCancelled || status == StatusFailed {
		fromStatuses = append(fromStatuses, StatusPending)
	}

	now := time.Now()
	updates := map[string]any{
		"status":       status,
		"error":        errMsg,
		"completed_at": now,
		// Terminal rows release their key so a later submission may reuse it.
		"active_idempotency_key": nil,
	}
	if len(producedArtifactIDs) > 0 {
		updates["produced_artifact_ids"] = dbjson.StringSlice(producedArtifactIDs)
	}

	result := s.db.Model(&IntentRecord{}).
		Where("intent_id = ? AND status IN ?", intentID, fromStatuses).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("mark intent terminal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.statusChangeError(intentID, status)
	}

	if s.audit != nil {
		if in, err := s.Get(intentID); err == nil && in != nil {
			s.appendAudit(audit.EventIntentTerminal, in, map[string]any{
				"status": string(status),
				"error":  errMsg,
			})
		}
	}
	return nil
}

// ClaimPending atomically picks the oldest pending intent and transitions it
// to in_progress. Intents that never received an execution id (recovered
// rows recorded outside the coordinator) are assigned one here. Returns
// nil when no pending work is available.
func (s *Store) ClaimPending() (*IntentRecord, error) {
	var claimed IntentRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("status = ?", StatusPending).
			Order("created_at ASC").
			Limit(1).
			First(&claimed).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		executionID := claimed.ExecutionID
		if executionID == "" {
			executionID = uuid.NewString()
		}

		now := time.Now()
		result := tx.Model(&IntentRecord{}).
			Where("intent_id = ? AND status = ?", claimed.IntentID, StatusPending).
			Updates(map[string]any{
				"status":        StatusInProgress,
				"execution_id":  executionID,
				"started_at":    now,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Another worker claimed it between our read and update.
			claimed = IntentRecord{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending intent: %w", err)
	}
	if claimed.IntentID == "" {
		return nil, nil
	}

	if err := s.db.First(&claimed, "intent_id = ?", claimed.IntentID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed intent: %w", err)
	}
	return &claimed, nil
}

// GetByExecution retrieves the intent carrying the given execution id.
// Returns nil, nil when unknown.
func (s *Store) GetByExecution(executionID string) (*IntentRecord, error) {
	var in IntentRecord
	if err := s.db.First(&in, "execution_id = ?", executionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get intent by execution: %w", err)
	}
	return &in, nil
}

// Cancel marks an intent cancelled. Best-effort: artifacts already committed
// by the time cancellation lands are not rolled back.
func (s *Store) Cancel(intentID string) error {
	return s.MarkTerminal(intentID, StatusCancelled, "cancelled by caller", nil)
}

// Get retrieves an intent by id. Returns nil, nil when unknown.
func (s *Store) Get(intentID string) (*IntentRecord, error) {
	var in IntentRecord
	if err := s.db.First(&in, "intent_id = ?", intentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return &in, nil
}

// ListPending returns pending intents for a tenant, oldest first, optionally
// narrowed to one target artifact. The recovery sweep re-submits these.
func (s *Store) ListPending(tenantID, targetArtifactID string) ([]IntentRecord, error) {
	q := s.db.Where("status = ?", StatusPending)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if targetArtifactID != "" {
		q = q.Where("target_artifact_id = ?", targetArtifactID)
	}

	var records []IntentRecord
	if err := q.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	return records, nil
}

// ListFilter defines filters for listing intents.
type ListFilter struct {
	TenantID   string
	SessionID  string
	IntentType string
	Status     string
}

// List returns paginated intents matching the filter, newest first.
func (s *Store) List(filter ListFilter, pageSize int, pageToken string) ([]IntentRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&IntentRecord{})
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.SessionID != "" {
			q = q.Where("session_id = ?", filter.SessionID)
		}
		if filter.IntentType != "" {
			q = q.Where("intent_type = ?", filter.IntentType)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count intents: %w", err)
	}

	query := buildQuery(s.db).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []IntentRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list intents: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// FailStuck marks in_progress intents whose execution started before the
// timeout as failed. Run at startup and periodically so crashed executions
// do not stay in_progress forever.
func (s *Store) FailStuck(claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-claimTimeout)
	result := s.db.Model(&IntentRecord{}).
		Where("status = ? AND started_at < ?", StatusInProgress, cutoff).
		Updates(map[string]any{
			"status":                 StatusFailed,
			"error":                  "execution timed out (stuck intent recovery)",
			"completed_at":           time.Now(),
			"active_idempotency_key": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("fail stuck intents: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// statusChangeError distinguishes an unknown intent from an illegal
// transition after a guarded update matched no rows.
func (s *Store) statusChangeError(intentID string, to Status) error {
	in, err := s.Get(intentID)
	if err != nil {
		return err
	}
	if in == nil {
		return fmt.Errorf("intent not found: %s", intentID)
	}
	return fmt.Errorf("%w: %s -> %s for intent %s", ErrIllegalStatusChange, in.Status, to, intentID)
}

func (s *Store) appendAudit(eventType string, in *IntentRecord, newValue map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(&audit.EventRecord{
		TenantID:  in.TenantID,
		EventType: eventType,
		Actor:     "ledger",
		IntentID:  in.IntentID,
		NewValue:  newValue,
	})
	if err != nil {
		s.logger.Warn("failed to append audit event", "eventType", eventType, "intentID", in.IntentID, "error", err)
	}
}
