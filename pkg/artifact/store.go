package artifact

import (
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/audit"
)

// Projector receives artifact change notifications for the discovery index.
// Notification is best-effort: a projector failure never fails the
// originating write, so the method has no error return.
type Projector interface {
	ArtifactChanged(a *ArtifactRecord)
}

// Store provides the authoritative database operations for artifacts.
// It is the single writer of artifact truth; the discovery index and any
// caller-side caches are read-only derivatives.
type Store struct {
	db        *gorm.DB
	machine   *LifecycleMachine
	projector Projector
	audit     *audit.Store
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithProjector sets the discovery projector notified after every write.
func WithProjector(p Projector) StoreOption {
	return func(s *Store) { s.projector = p }
}

// WithAudit sets the audit store appended to on every mutation.
func WithAudit(a *audit.Store) StoreOption {
	return func(s *Store) { s.audit = a }
}

// NewStore creates a new artifact Store.
func NewStore(db *gorm.DB, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:      db,
		machine: NewLifecycleMachine(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates or updates the artifacts table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&ArtifactRecord{}); err != nil {
		return fmt.Errorf("auto-migrate artifacts: %w", err)
	}
	return nil
}

// Create inserts a new root artifact (version 1, current). The artifact id
// is assigned when empty; lineage sources are validated for cycles.
func (s *Store) Create(a *ArtifactRecord) (*ArtifactRecord, error) {
	if a.ArtifactID == "" {
		a.ArtifactID = uuid.New().String()
	}
	if a.TenantID == "" {
		a.TenantID = "default"
	}
	if a.LifecycleState == "" {
		a.LifecycleState = StateDraft
	}
	if a.Owner == "" {
		a.Owner = OwnerPlatform
	}
	if a.Purpose == "" {
		a.Purpose = PurposeDelivery
	}
	if err := validateEnums(a); err != nil {
		return nil, err
	}

	a.Version = 1
	a.ParentArtifactID = ""
	a.RootArtifactID = a.ArtifactID
	a.IsCurrentVersion = true

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.validateLineage(tx, a.ArtifactID, a.SourceArtifactIDs); err != nil {
			return err
		}
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(audit.EventArtifactCreated, a, nil)
	s.notify(a)
	return a, nil
}

// Supersede creates the next version of the chain headed by versionID and
// flips is_current_version from the old head to the new row as a single
// atomic unit. versionID must be the chain's current head: superseding a
// stale version returns ErrSupersedeConflict, so two concurrent
// supersessions of the same head serialize with exactly one winner. The
// loser may retry against the new current version. The next record supplies
// the new content; identity, chain, and version fields are assigned here.
func (s *Store) Supersede(versionID string, next *ArtifactRecord) (*ArtifactRecord, error) {
	var created *ArtifactRecord
	var displaced *ArtifactRecord

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var head ArtifactRecord
		if err := tx.Where("artifact_id = ?", versionID).First(&head).Error; err != nil {
			return err
		}
		if !head.IsCurrentVersion {
			return ErrSupersedeConflict
		}

		if next.ArtifactID == "" {
			next.ArtifactID = uuid.New().String()
		}
		next.TenantID = head.TenantID
		if next.ArtifactType == "" {
			next.ArtifactType = head.ArtifactType
		}
		if next.LifecycleState == "" {
			next.LifecycleState = StateDraft
		}
		if next.Owner == "" {
			next.Owner = head.Owner
		}
		if next.Purpose == "" {
			next.Purpose = head.Purpose
		}
		if err := validateEnums(next); err != nil {
			return err
		}
		if err := s.validateLineage(tx, next.ArtifactID, next.SourceArtifactIDs); err != nil {
			return err
		}

		next.Version = head.Version + 1
		next.ParentArtifactID = head.RootArtifactID
		next.RootArtifactID = head.RootArtifactID
		next.IsCurrentVersion = true

		// Guarded flip: the WHERE clause on is_current_version makes the
		// loser of a concurrent race observe zero affected rows.
		res := tx.Model(&ArtifactRecord{}).
			Where("artifact_id = ? AND is_current_version = ?", head.ArtifactID, true).
			Update("is_current_version", false)
		if res.Error != nil {
			return fmt.Errorf("flip current version: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSupersedeConflict
		}

		// The unique (root_artifact_id, version) index is the backstop for
		// races the guarded update cannot see.
		if err := tx.Create(next).Error; err != nil {
			return ErrSupersedeConflict
		}

		head.IsCurrentVersion = false
		displaced = &head
		created = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(audit.EventArtifactSuperseded, created, map[string]any{
		"version": created.Version - 1,
	})
	// Both rows changed: the old head must re-index as non-current.
	s.notify(displaced)
	s.notify(created)
	return created, nil
}

// Get retrieves an artifact version by id. Returns nil, nil if no record
// exists.
func (s *Store) Get(artifactID string) (*ArtifactRecord, error) {
	var a ArtifactRecord
	err := s.db.Where("artifact_id = ?", artifactID).First(&a).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return &a, nil
}

// GetCurrent resolves the current version of the chain containing the given
// artifact id (root or any version). Returns nil, nil if the id is unknown.
func (s *Store) GetCurrent(anyVersionID string) (*ArtifactRecord, error) {
	head, err := currentOfChain(s.db, anyVersionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return head, nil
}

// ListVersions returns the full version chain containing the given artifact
// id, ordered by version ascending.
func (s *Store) ListVersions(anyVersionID string) ([]ArtifactRecord, error) {
	rootID, err := rootOfChain(s.db, anyVersionID)
	if err != nil {
		return nil, err
	}

	var records []ArtifactRecord
	err = s.db.Where("root_artifact_id = ?", rootID).Order("version ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return records, nil
}

// TransitionLifecycle moves an artifact to a new lifecycle state, validated
// against the legal-transition table. The update is guarded on the current
// state so a concurrent transition cannot be lost.
func (s *Store) TransitionLifecycle(artifactID string, to LifecycleState, actor string) (*ArtifactRecord, error) {
	var updated *ArtifactRecord
	var from LifecycleState

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var a ArtifactRecord
		if err := tx.Where("artifact_id = ?", artifactID).First(&a).Error; err != nil {
			return err
		}
		from = a.LifecycleState

		if err := s.machine.ValidateTransition(a.LifecycleState, to); err != nil {
			return err
		}
		if a.LifecycleState == to {
			updated = &a
			return nil
		}

		res := tx.Model(&ArtifactRecord{}).
			Where("artifact_id = ? AND lifecycle_state = ?", artifactID, a.LifecycleState).
			Update("lifecycle_state", to)
		if res.Error != nil {
			return fmt.Errorf("transition lifecycle: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &TransitionError{
				Code:    "LIFECYCLE_CONCURRENT_TRANSITION",
				From:    a.LifecycleState,
				To:      to,
				Message: "lifecycle state changed concurrently, re-read and retry",
			}
		}

		a.LifecycleState = to
		a.UpdatedAt = time.Now()
		updated = &a
		return nil
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	if from != updated.LifecycleState {
		s.appendAuditWithActor(audit.EventArtifactTransition, updated, actor, map[string]any{
			"from": string(from),
			"to":   string(updated.LifecycleState),
		})
		s.notify(updated)
	}
	return updated, nil
}

// ListFilter defines filters for listing artifacts.
type ListFilter struct {
	TenantID     string
	ArtifactType string
	State        string
	CurrentOnly  bool
}

// List returns paginated artifacts matching the given filter, newest first.
// pageToken is an RFC3339Nano timestamp over created_at.
func (s *Store) List(filter ListFilter, pageSize int, pageToken string) ([]ArtifactRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&ArtifactRecord{})
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.ArtifactType != "" {
			q = q.Where("artifact_type = ?", filter.ArtifactType)
		}
		if filter.State != "" {
			q = q.Where("lifecycle_state = ?", filter.State)
		}
		if filter.CurrentOnly {
			q = q.Where("is_current_version = ?", true)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count artifacts: %w", err)
	}

	query := buildQuery(s.db).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []ArtifactRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list artifacts: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// rootOfChain resolves the chain root id for any version id.
func rootOfChain(db *gorm.DB, anyVersionID string) (string, error) {
	var a ArtifactRecord
	if err := db.Select("artifact_id", "root_artifact_id").
		Where("artifact_id = ?", anyVersionID).First(&a).Error; err != nil {
		return "", err
	}
	return a.RootArtifactID, nil
}

// currentOfChain resolves the current head of the chain containing
// anyVersionID. Returns nil if the chain has no current row (mid-flip
// observation is prevented by running inside the caller's transaction).
func currentOfChain(db *gorm.DB, anyVersionID string) (*ArtifactRecord, error) {
	rootID, err := rootOfChain(db, anyVersionID)
	if err != nil {
		return nil, err
	}

	var head ArtifactRecord
	err = db.Where("root_artifact_id = ? AND is_current_version = ?", rootID, true).
		First(&head).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve current version: %w", err)
	}
	return &head, nil
}

// validateLineage walks source_artifact_ids transitively and rejects any
// derivation that would make artifactID a (transitive) source of itself.
// Unknown source ids are treated as leaves; the DAG property is enforced
// logically, not by a database constraint.
func (s *Store) validateLineage(tx *gorm.DB, artifactID string, sources []string) error {
	if len(sources) == 0 {
		return nil
	}

	visited := mapset.NewThreadUnsafeSet[string]()
	frontier := append([]string(nil), sources...)

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]

		if id == artifactID {
			return ErrLineageCycle
		}
		if !visited.Add(id) {
			continue
		}

		var src ArtifactRecord
		err := tx.Select("artifact_id", "source_artifact_ids").
			Where("artifact_id = ?", id).First(&src).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return fmt.Errorf("resolve lineage source: %w", err)
		}
		frontier = append(frontier, src.SourceArtifactIDs...)
	}

	return nil
}

// validateEnums rejects values outside the enumerated constraint sets.
func validateEnums(a *ArtifactRecord) error {
	if a.ArtifactType == "" {
		return fmt.Errorf("artifact: artifact_type is required")
	}
	if !validState(a.LifecycleState) {
		return fmt.Errorf("artifact: invalid lifecycle_state %q", a.LifecycleState)
	}
	if !validOwner(a.Owner) {
		return fmt.Errorf("artifact: invalid owner %q", a.Owner)
	}
	if !validPurpose(a.Purpose) {
		return fmt.Errorf("artifact: invalid purpose %q", a.Purpose)
	}
	return nil
}

// notify forwards the change to the projector when one is configured.
func (s *Store) notify(a *ArtifactRecord) {
	if s.projector == nil {
		return
	}
	copied := *a
	s.projector.ArtifactChanged(&copied)
}

func (s *Store) appendAudit(eventType string, a *ArtifactRecord, newValue map[string]any) {
	s.appendAuditWithActor(eventType, a, "ledger", newValue)
}

func (s *Store) appendAuditWithActor(eventType string, a *ArtifactRecord, actor string, newValue map[string]any) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = "ledger"
	}
	err := s.audit.Append(&audit.EventRecord{
		TenantID:   a.TenantID,
		EventType:  eventType,
		Actor:      actor,
		ArtifactID: a.ArtifactID,
		NewValue:   newValue,
	})
	if err != nil {
		s.logger.Warn("failed to append audit event", "eventType", eventType, "artifactID", a.ArtifactID, "error", err)
	}
}
