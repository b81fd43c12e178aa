// Package intent implements the durable intent execution log: every unit of
// work a caller requests is persisted here before any side effect begins, so
// a crashed execution can always be found and resumed or failed explicitly.
package intent

import (
	"time"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/dbjson"
)

// Status represents the lifecycle status of an intent execution.
// Transitions move only forward: pending -> in_progress -> one of the
// terminal statuses. Terminal rows are immutable history.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IntentRecord is the GORM model for one intent execution log row.
type IntentRecord struct {
	IntentID            string             `gorm:"primaryKey;column:intent_id;type:varchar(36)"`
	TenantID            string             `gorm:"column:tenant_id;index:idx_intent_tenant_status,priority:1;default:default;not null"`
	SessionID           string             `gorm:"column:session_id;index"`
	IntentType          string             `gorm:"column:intent_type;not null"`
	Status              Status             `gorm:"column:status;index:idx_intent_tenant_status,priority:2;index:idx_intent_status;not null;default:pending"`
	TargetArtifactID    string             `gorm:"column:target_artifact_id;index"`
	Context             dbjson.Map         `gorm:"column:context;type:text"`
	ExecutionID         string             `gorm:"column:execution_id;index"`
	Error               string             `gorm:"column:error"`
	ProducedArtifactIDs dbjson.StringSlice `gorm:"column:produced_artifact_ids;type:text"`
	IdempotencyKey      string             `gorm:"column:idempotency_key;index:idx_intent_idemp_key"`
	// ActiveIdempotencyKey mirrors IdempotencyKey while the row is
	// non-terminal and is nulled when the row reaches a terminal status.
	// The unique index makes concurrent same-key submissions collide at the
	// database even under READ COMMITTED, while NULL keeps terminal history
	// and keyless rows out of the constraint.
	ActiveIdempotencyKey *string    `gorm:"column:active_idempotency_key;uniqueIndex:uniq_intent_active_idemp_key"`
	AttemptCount        int                `gorm:"column:attempt_count;default:0"`
	StartedAt           *time.Time         `gorm:"column:started_at"`
	CompletedAt         *time.Time         `gorm:"column:completed_at"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (IntentRecord) TableName() string { return "intent_executions" }

// IsTerminal returns true if the intent has reached a terminal status.
func (i *IntentRecord) IsTerminal() bool {
	switch i.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// validTerminal reports whether s is one of the terminal statuses.
func validTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
