// Package audit provides an append-only trail of ledger mutations: artifact
// creation, supersession, lifecycle transitions, and intent outcomes.
package audit

import (
	"time"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/dbjson"
)

// Event types recorded by the ledger.
const (
	EventArtifactCreated     = "artifact.created"
	EventArtifactSuperseded  = "artifact.superseded"
	EventArtifactTransition  = "artifact.lifecycle_transition"
	EventIntentRecorded      = "intent.recorded"
	EventIntentTerminal      = "intent.terminal"
	EventSessionInvalidated  = "session.invalidated"
)

// EventRecord is an immutable audit log entry.
type EventRecord struct {
	ID         string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	TenantID   string     `gorm:"column:tenant_id;index:idx_audit_tenant_time,priority:1;default:default;not null"`
	EventType  string     `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null"`
	Actor      string     `gorm:"column:actor;not null"`
	ArtifactID string     `gorm:"column:artifact_id;index:idx_audit_artifact_time,priority:1"`
	IntentID   string     `gorm:"column:intent_id;index"`
	Outcome    string     `gorm:"column:outcome;not null"` // success, failure, denied
	Reason     string     `gorm:"column:reason"`
	OldValue   dbjson.Map `gorm:"column:old_value;type:text"`
	NewValue   dbjson.Map `gorm:"column:new_value;type:text"`
	CreatedAt  time.Time  `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_artifact_time,priority:2;index:idx_audit_tenant_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }
