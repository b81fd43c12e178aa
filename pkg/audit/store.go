package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store provides append-only operations for audit event records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new audit Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit_events: %w", err)
	}
	return nil
}

// Append creates a new immutable audit event record. An empty ID is assigned
// a fresh UUID; an empty outcome defaults to success.
func (s *Store) Append(event *EventRecord) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Outcome == "" {
		event.Outcome = "success"
	}
	if event.TenantID == "" {
		event.TenantID = "default"
	}
	if err := s.db.Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListByArtifact returns paginated audit events for a specific artifact,
// ordered by created_at DESC (newest first). pageToken is an RFC3339Nano
// timestamp; events with created_at < pageToken are returned.
func (s *Store) ListByArtifact(artifactID string, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	return s.list(s.db.Where("artifact_id = ?", artifactID), pageSize, pageToken)
}

// ListByTenant returns paginated audit events for a tenant, optionally
// filtered by event type, ordered by created_at DESC.
func (s *Store) ListByTenant(tenantID, eventType string, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	q := s.db.Where("tenant_id = ?", tenantID)
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	return s.list(q, pageSize, pageToken)
}

func (s *Store) list(base *gorm.DB, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var totalSize int64
	if err := base.Session(&gorm.Session{}).Model(&EventRecord{}).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := base.Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan deletes audit events created before the given cutoff time.
// Returns the number of deleted records.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
