package discovery

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store provides keyed-row upsert and query operations for the discovery
// index. Writes tolerate lock-free concurrent writers; the last upsert for
// an artifact id wins.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new discovery Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the discovery_entries table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&IndexEntry{}); err != nil {
		return fmt.Errorf("auto-migrate discovery_entries: %w", err)
	}
	return nil
}

// Upsert creates or replaces the index entry for an artifact.
func (s *Store) Upsert(entry *IndexEntry) error {
	if entry.TenantID == "" {
		entry.TenantID = "default"
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "artifact_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tenant_id", "artifact_type", "lifecycle_state",
			"semantic_descriptor", "produced_by", "lineage", "updated_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("upsert discovery entry: %w", err)
	}
	return nil
}

// MarkState overwrites the coarse lifecycle state of an existing entry.
// Missing entries are ignored; the projector may not have caught up yet.
func (s *Store) MarkState(artifactID string, state IndexState) error {
	err := s.db.Model(&IndexEntry{}).
		Where("artifact_id = ?", artifactID).
		Update("lifecycle_state", state).Error
	if err != nil {
		return fmt.Errorf("mark discovery state: %w", err)
	}
	return nil
}

// Get retrieves the index entry for an artifact. Returns nil, nil when the
// artifact has not been projected yet.
func (s *Store) Get(artifactID string) (*IndexEntry, error) {
	var entry IndexEntry
	err := s.db.Where("artifact_id = ?", artifactID).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get discovery entry: %w", err)
	}
	return &entry, nil
}

// QueryFilter defines filters for querying the index.
type QueryFilter struct {
	TenantID     string
	ArtifactType string
	State        string
}

// Query returns paginated index entries matching the filter, newest first.
// Results may lag the artifact store by contract.
func (s *Store) Query(filter QueryFilter, pageSize int, pageToken string) ([]IndexEntry, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&IndexEntry{})
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.ArtifactType != "" {
			q = q.Where("artifact_type = ?", filter.ArtifactType)
		}
		if filter.State != "" {
			q = q.Where("lifecycle_state = ?", filter.State)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count discovery entries: %w", err)
	}

	query := buildQuery(s.db).Order("updated_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("updated_at < ?", t)
	}

	var entries []IndexEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, "", 0, fmt.Errorf("query discovery entries: %w", err)
	}

	var nextToken string
	if len(entries) > pageSize {
		nextToken = entries[pageSize-1].UpdatedAt.Format(time.RFC3339Nano)
		entries = entries[:pageSize]
	}

	return entries, nextToken, int(totalSize), nil
}
