package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/artifact"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/cache"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/dbjson"
)

const (
	defaultEventBuffer  = 256
	defaultRetryLimit   = 64
	defaultRetryBackoff = 5 * time.Second
)

// Projector subscribes to artifact store change notifications and maintains
// the discovery index from them. Index updates are best-effort: a failed
// upsert is queued for retry and never surfaces to the writer that produced
// the change.
type Projector struct {
	store   *Store
	logger  *slog.Logger
	cache   *cache.QueryCache
	events  chan *artifact.ArtifactRecord
	retries []*IndexEntry
	backoff time.Duration
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithCache invalidates the given query cache for a tenant after each
// successful index write.
func WithCache(c *cache.QueryCache) ProjectorOption {
	return func(p *Projector) { p.cache = c }
}

// WithRetryBackoff overrides the interval between retry sweeps.
func WithRetryBackoff(d time.Duration) ProjectorOption {
	return func(p *Projector) { p.backoff = d }
}

// NewProjector creates a Projector writing to store.
func NewProjector(store *Store, logger *slog.Logger, opts ...ProjectorOption) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Projector{
		store:   store,
		logger:  logger.With("component", "discovery-projector"),
		events:  make(chan *artifact.ArtifactRecord, defaultEventBuffer),
		backoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ArtifactChanged implements artifact.Projector. It never blocks the caller:
// when the event buffer is full the event is dropped and logged, relying on
// a later change or resync to converge.
func (p *Projector) ArtifactChanged(rec *artifact.ArtifactRecord) {
	select {
	case p.events <- rec:
	default:
		p.logger.Warn("event buffer full, dropping index update", "artifact_id", rec.ArtifactID)
	}
}

// Run consumes events until ctx is cancelled. It is intended to run in a
// single goroutine; entries for the same artifact are applied in arrival
// order.
func (p *Projector) Run(ctx context.Context) {
	ticker := time.NewTicker(p.backoff)
	defer ticker.Stop()

	p.logger.Info("projector started", "buffer", cap(p.events))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("projector stopped", "pending_retries", len(p.retries))
			return
		case rec := <-p.events:
			p.apply(EntryFor(rec))
		case <-ticker.C:
			p.drainRetries()
		}
	}
}

// apply writes one entry, queueing it for retry on failure.
func (p *Projector) apply(entry *IndexEntry) {
	if err := p.store.Upsert(entry); err != nil {
		p.logger.Error("index upsert failed, queueing retry",
			"artifact_id", entry.ArtifactID, "error", err)
		p.queueRetry(entry)
		return
	}
	if p.cache != nil {
		p.cache.InvalidateTenant(entry.TenantID)
	}
}

func (p *Projector) queueRetry(entry *IndexEntry) {
	if len(p.retries) >= defaultRetryLimit {
		// Drop the oldest; the index re-converges on the next change.
		p.retries = p.retries[1:]
	}
	p.retries = append(p.retries, entry)
}

func (p *Projector) drainRetries() {
	if len(p.retries) == 0 {
		return
	}
	pending := p.retries
	p.retries = nil
	for _, entry := range pending {
		p.apply(entry)
	}
}

// Resync rebuilds index entries for every artifact version, paging through
// the artifact store. Superseded versions are included so their entries
// converge to ARCHIVED. It converges the index after dropped events or
// downtime.
func (p *Projector) Resync(ctx context.Context, artifacts *artifact.Store) error {
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, next, _, err := artifacts.List(artifact.ListFilter{}, 100, pageToken)
		if err != nil {
			return err
		}
		for i := range records {
			p.apply(EntryFor(&records[i]))
		}
		if next == "" {
			return nil
		}
		pageToken = next
	}
}

// EntryFor maps an artifact version onto an index entry, collapsing the
// store's lifecycle onto the index's coarse states. Superseded versions and
// obsolete artifacts index as ARCHIVED; accepted as READY; drafts as PENDING.
func EntryFor(rec *artifact.ArtifactRecord) *IndexEntry {
	state := StatePending
	switch {
	case !rec.IsCurrentVersion:
		state = StateArchived
	case rec.LifecycleState == artifact.StateObsolete:
		state = StateArchived
	case rec.LifecycleState == artifact.StateAccepted:
		state = StateReady
	}

	return &IndexEntry{
		ArtifactID:     rec.ArtifactID,
		TenantID:       rec.TenantID,
		ArtifactType:   rec.ArtifactType,
		LifecycleState: state,
		SemanticDescriptor: dbjson.Map{
			"purpose":         string(rec.Purpose),
			"owner":           string(rec.Owner),
			"version":         rec.Version,
			"lifecycle_state": string(rec.LifecycleState),
		},
		ProducedBy: dbjson.Map{
			"session_id":   rec.SessionID,
			"solution_id":  rec.SolutionID,
			"execution_id": rec.ExecutionID,
		},
		Lineage: dbjson.Map{
			"parent_artifact_id":  rec.ParentArtifactID,
			"root_artifact_id":    rec.RootArtifactID,
			"source_artifact_ids": []string(rec.SourceArtifactIDs),
		},
	}
}
