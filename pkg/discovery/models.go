// Package discovery maintains a denormalized, eventually-consistent
// projection of the artifact store optimized for filtering and listing.
// The index is never the source of truth: readers needing guaranteed-fresh
// data must resolve through the artifact store.
package discovery

import (
	"time"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/dbjson"
)

// IndexState is the coarse lifecycle state carried by index entries. It is
// deliberately separate from the artifact store's lifecycle states.
type IndexState string

const (
	StatePending  IndexState = "PENDING"
	StateReady    IndexState = "READY"
	StateFailed   IndexState = "FAILED"
	StateArchived IndexState = "ARCHIVED"
	StateDeleted  IndexState = "DELETED"
)

// IndexEntry is the GORM model for one discovery index row, keyed by
// artifact id.
type IndexEntry struct {
	ArtifactID         string     `gorm:"primaryKey;column:artifact_id;type:varchar(36)"`
	TenantID           string     `gorm:"column:tenant_id;index:idx_entry_tenant_type,priority:1;default:default;not null"`
	ArtifactType       string     `gorm:"column:artifact_type;index:idx_entry_tenant_type,priority:2;not null"`
	LifecycleState     IndexState `gorm:"column:lifecycle_state;index;not null"`
	SemanticDescriptor dbjson.Map `gorm:"column:semantic_descriptor;type:text"`
	ProducedBy         dbjson.Map `gorm:"column:produced_by;type:text"`
	Lineage            dbjson.Map `gorm:"column:lineage;type:text"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (IndexEntry) TableName() string { return "discovery_entries" }
