package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/artifact"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/blob"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/discovery"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/intent"
)

// Coordinator drives intents from submission to a terminal outcome. The
// intent log row is written before any side effect, so a crash at any point
// leaves either a pending row (re-claimed by a worker) or an in_progress row
// (failed by the recovery sweep after the claim timeout).
type Coordinator struct {
	intents   *intent.Store
	artifacts *artifact.Store
	index     *discovery.Store
	blobs     blob.Store
	registry  *Registry
	cfg       *Config
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // execution id -> cancel
	wg      sync.WaitGroup
}

// New creates a Coordinator. index and blobs may be nil; the failure path
// then skips index demotion and payload persistence respectively.
func New(intents *intent.Store, artifacts *artifact.Store, index *discovery.Store, blobs blob.Store, registry *Registry, cfg *Config, logger *slog.Logger) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		intents:   intents,
		artifacts: artifacts,
		index:     index,
		blobs:     blobs,
		registry:  registry,
		cfg:       cfg,
		logger:    logger.With("component", "coordinator"),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit durably records the intent and returns an execution id immediately.
// Execution happens asynchronously; callers observe progress by polling
// Status. Submissions carrying an idempotency key that matches a non-terminal
// intent return that intent's execution id instead of starting a new one.
func (c *Coordinator) Submit(in *intent.IntentRecord) (string, error) {
	if _, ok := c.registry.Lookup(in.IntentType); !ok {
		return "", &ErrUnknownIntentType{IntentType: in.IntentType}
	}

	// The execution id is assigned up front so callers can poll before a
	// worker picks the intent up.
	in.ExecutionID = uuid.NewString()

	recorded, err := c.intents.Record(in)
	if err != nil {
		return "", err
	}
	// On an idempotent replay the caller gets the original intent back.
	*in = *recorded
	return recorded.ExecutionID, nil
}

// ExecutionStatus is the caller-visible result of a status poll.
type ExecutionStatus struct {
	ExecutionID string                    `json:"execution_id"`
	IntentID    string                    `json:"intent_id"`
	Status      intent.Status             `json:"status"`
	Artifacts   []artifact.ArtifactRecord `json:"artifacts,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// ErrExecutionNotFound reports an unknown execution id.
var ErrExecutionNotFound = errors.New("coordinator: execution not found")

// Status reports the state of an execution, resolving produced artifacts
// through the artifact store once the intent has completed.
func (c *Coordinator) Status(executionID string) (*ExecutionStatus, error) {
	in, err := c.intents.GetByExecution(executionID)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, ErrExecutionNotFound
	}

	st := &ExecutionStatus{
		ExecutionID: executionID,
		IntentID:    in.IntentID,
		Status:      in.Status,
		Error:       in.Error,
	}
	for _, id := range in.ProducedArtifactIDs {
		a, err := c.artifacts.Get(id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			st.Artifacts = append(st.Artifacts, *a)
		}
	}
	return st, nil
}

// Cancel marks the intent cancelled and signals the running collaborator, if
// any, to stop. Best-effort: artifacts already committed stay committed.
func (c *Coordinator) Cancel(intentID string) error {
	in, err := c.intents.Get(intentID)
	if err != nil {
		return err
	}
	if in == nil {
		return fmt.Errorf("intent not found: %s", intentID)
	}

	if err := c.intents.Cancel(intentID); err != nil {
		return err
	}

	c.mu.Lock()
	cancel, ok := c.cancels[in.ExecutionID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Run starts the worker pool and the recovery sweep. It blocks until ctx is
// cancelled, then waits for in-flight executions to finish.
func (c *Coordinator) Run(ctx context.Context) {
	if !c.cfg.Enabled {
		c.logger.Info("coordinator workers disabled")
		return
	}

	c.logger.Info("coordinator starting",
		"concurrency", c.cfg.Concurrency,
		"pollInterval", c.cfg.PollInterval.String(),
		"intentTypes", c.registry.Types())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sweepLoop(ctx)
	}()

	for i := 0; i < c.cfg.Concurrency; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			c.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	c.logger.Info("coordinator shutting down, waiting for executions to finish")
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

func (c *Coordinator) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.processOne(ctx, workerID)
		}
	}
}

// processOne claims and executes a single pending intent.
func (c *Coordinator) processOne(ctx context.Context, workerID int) {
	in, err := c.intents.ClaimPending()
	if err != nil {
		c.logger.Error("failed to claim intent", "workerID", workerID, "error", err)
		return
	}
	if in == nil {
		return
	}

	c.logger.Info("executing intent",
		"workerID", workerID,
		"intentID", in.IntentID,
		"executionID", in.ExecutionID,
		"intentType", in.IntentType,
		"attempt", in.AttemptCount)

	collab, ok := c.registry.Lookup(in.IntentType)
	if !ok {
		c.finish(in, intent.StatusFailed, "no collaborator registered for intent type "+in.IntentType, nil)
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, c.cfg.ExecutionTimeout)
	c.mu.Lock()
	c.cancels[in.ExecutionID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, in.ExecutionID)
		c.mu.Unlock()
		cancel()
	}()

	result, execErr := collab.Execute(execCtx, in)

	if execErr != nil {
		// Any partial output stays draft and is demoted in the index so
		// discovery never shows it as usable.
		var draftIDs []string
		if result != nil {
			draftIDs = c.persistArtifacts(ctx, in, result.Artifacts, artifact.StateDraft)
			for _, id := range draftIDs {
				c.demoteIndexEntry(id)
			}
		}
		c.finish(in, intent.StatusFailed, execErr.Error(), draftIDs)
		return
	}

	var producedIDs []string
	if result != nil {
		producedIDs = c.persistArtifacts(ctx, in, result.Artifacts, "")
	}
	c.finish(in, intent.StatusCompleted, "", producedIDs)
}

// persistArtifacts writes the collaborator's output through the artifact
// store, stamping provenance from the intent. forceState, when set,
// overrides the lifecycle state of every written artifact.
func (c *Coordinator) persistArtifacts(ctx context.Context, in *intent.IntentRecord, produced []ProducedArtifact, forceState artifact.LifecycleState) []string {
	var ids []string
	for _, p := range produced {
		a := p.Artifact
		if a == nil {
			continue
		}
		a.TenantID = in.TenantID
		a.SessionID = in.SessionID
		a.ExecutionID = in.ExecutionID
		if forceState != "" {
			a.LifecycleState = forceState
		}

		if len(p.Payload) > 0 && c.blobs != nil {
			ref, err := c.blobs.Put(ctx, p.Payload)
			if err != nil {
				c.logger.Error("failed to persist artifact payload",
					"intentID", in.IntentID, "error", err)
				continue
			}
			a.PayloadReference = ref
		}

		var written *artifact.ArtifactRecord
		var err error
		if p.SupersedesID != "" {
			written, err = c.artifacts.Supersede(p.SupersedesID, a)
		} else {
			written, err = c.artifacts.Create(a)
		}
		if err != nil {
			c.logger.Error("failed to write artifact",
				"intentID", in.IntentID,
				"supersedes", p.SupersedesID,
				"error", err)
			continue
		}
		ids = append(ids, written.ArtifactID)
	}
	return ids
}

// finish flips the intent to a terminal status, tolerating a concurrent
// cancellation that already made it terminal.
func (c *Coordinator) finish(in *intent.IntentRecord, status intent.Status, errMsg string, producedIDs []string) {
	err := c.intents.MarkTerminal(in.IntentID, status, errMsg, producedIDs)
	if err != nil {
		if errors.Is(err, intent.ErrIllegalStatusChange) {
			c.logger.Info("intent already terminal, outcome discarded",
				"intentID", in.IntentID, "outcome", string(status))
			return
		}
		c.logger.Error("failed to mark intent terminal",
			"intentID", in.IntentID, "error", err)
		return
	}
	c.logger.Info("intent finished",
		"intentID", in.IntentID,
		"executionID", in.ExecutionID,
		"status", string(status),
		"artifacts", len(producedIDs))
}

// demoteIndexEntry marks an artifact FAILED in the discovery index so partial
// output is excluded from browsing. Failures here are logged only; the
// intent outcome is already decided.
func (c *Coordinator) demoteIndexEntry(artifactID string) {
	if c.index == nil {
		return
	}
	if err := c.index.MarkState(artifactID, discovery.StateFailed); err != nil {
		c.logger.Warn("failed to demote index entry", "artifactID", artifactID, "error", err)
	}
}

// sweepLoop periodically fails in_progress intents whose claim has expired.
// Pending rows need no sweep: workers re-claim them whenever they poll.
func (c *Coordinator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.cfg.ClaimTimeout <= 0 {
				continue
			}
			failed, err := c.intents.FailStuck(c.cfg.ClaimTimeout)
			if err != nil {
				c.logger.Error("recovery sweep failed", "error", err)
			} else if failed > 0 {
				c.logger.Info("recovery sweep failed stuck intents", "count", failed)
			}
		}
	}
}
