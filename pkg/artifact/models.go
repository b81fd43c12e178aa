// Package artifact implements the authoritative store for produced artifacts:
// identity, version chains, lifecycle state, ownership, and lineage.
package artifact

import (
	"errors"
	"time"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/dbjson"
)

// LifecycleState is the governance status of an artifact's content.
type LifecycleState string

const (
	StateDraft    LifecycleState = "draft"
	StateAccepted LifecycleState = "accepted"
	StateObsolete LifecycleState = "obsolete"
)

// Owner identifies who owns an artifact's content.
type Owner string

const (
	OwnerClient   Owner = "client"
	OwnerPlatform Owner = "platform"
	OwnerShared   Owner = "shared"
)

// Purpose classifies why an artifact exists.
type Purpose string

const (
	PurposeDecisionSupport Purpose = "decision_support"
	PurposeDelivery        Purpose = "delivery"
	PurposeGovernance      Purpose = "governance"
	PurposeLearning        Purpose = "learning"
)

// ErrSupersedeConflict is returned to the loser of a concurrent supersession
// race on the same version chain. The caller may retry against the new
// current version.
var ErrSupersedeConflict = errors.New("artifact: version chain superseded concurrently")

// ErrLineageCycle is returned when an artifact's sources would (transitively)
// include the artifact itself.
var ErrLineageCycle = errors.New("artifact: lineage cycle detected")

// ArtifactRecord is the GORM model for one version of an artifact.
// A version chain is the set of rows sharing a root_artifact_id; the root row
// has parent_artifact_id empty and root_artifact_id equal to its own id.
type ArtifactRecord struct {
	ArtifactID        string             `gorm:"primaryKey;column:artifact_id;type:varchar(36)"`
	TenantID          string             `gorm:"column:tenant_id;index:idx_artifact_tenant_type,priority:1;default:default;not null"`
	SessionID         string             `gorm:"column:session_id;index"`
	SolutionID        string             `gorm:"column:solution_id"`
	ExecutionID       string             `gorm:"column:execution_id;index"`
	ArtifactType      string             `gorm:"column:artifact_type;index:idx_artifact_tenant_type,priority:2;not null"`
	LifecycleState    LifecycleState     `gorm:"column:lifecycle_state;default:draft;not null"`
	Owner             Owner              `gorm:"column:owner;default:platform;not null"`
	Purpose           Purpose            `gorm:"column:purpose;default:delivery;not null"`
	PayloadReference  string             `gorm:"column:payload_reference"`
	Metadata          dbjson.Map         `gorm:"column:metadata;type:text"`
	Regenerable       bool               `gorm:"column:regenerable;default:false"`
	RetentionPolicy   string             `gorm:"column:retention_policy"`
	Version           int                `gorm:"column:version;uniqueIndex:idx_chain_version,priority:2;not null;default:1"`
	ParentArtifactID  string             `gorm:"column:parent_artifact_id;index"`
	RootArtifactID    string             `gorm:"column:root_artifact_id;uniqueIndex:idx_chain_version,priority:1;index:idx_chain_current,priority:1;not null"`
	IsCurrentVersion  bool               `gorm:"column:is_current_version;index:idx_chain_current,priority:2;not null;default:true"`
	SourceArtifactIDs dbjson.StringSlice `gorm:"column:source_artifact_ids;type:text"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (ArtifactRecord) TableName() string { return "artifacts" }

// IsRoot reports whether this record is the first version of its chain.
func (a *ArtifactRecord) IsRoot() bool { return a.ParentArtifactID == "" }

// validOwner reports whether o is one of the enumerated owners.
func validOwner(o Owner) bool {
	switch o {
	case OwnerClient, OwnerPlatform, OwnerShared:
		return true
	}
	return false
}

// validPurpose reports whether p is one of the enumerated purposes.
func validPurpose(p Purpose) bool {
	switch p {
	case PurposeDecisionSupport, PurposeDelivery, PurposeGovernance, PurposeLearning:
		return true
	}
	return false
}

// validState reports whether s is one of the enumerated lifecycle states.
func validState(s LifecycleState) bool {
	switch s {
	case StateDraft, StateAccepted, StateObsolete:
		return true
	}
	return false
}
