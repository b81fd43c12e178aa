// Package coordinator accepts intent submissions, records them durably,
// and drives execution to a terminal outcome by delegating the actual work
// to external collaborators registered per intent type.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/artifact"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/intent"
)

// ProducedArtifact is one artifact emitted by a collaborator. When Payload is
// non-empty the coordinator persists it to blob storage and sets the
// artifact's payload reference. When SupersedesID names an existing current
// version, the artifact is written as that chain's next version instead of a
// new root.
type ProducedArtifact struct {
	Artifact     *artifact.ArtifactRecord
	Payload      []byte
	SupersedesID string
}

// Result is what a collaborator returns from one execution.
type Result struct {
	Artifacts []ProducedArtifact
}

// Collaborator executes the work behind one intent type. Execution is opaque
// to the coordinator: it may call remote services, parse files, or run
// models. Implementations should honor ctx cancellation when they can; the
// coordinator treats cancellation as best-effort.
//
// A collaborator may return partial artifacts alongside an error. The
// coordinator writes those as drafts and excludes them from discovery until
// a later successful intent promotes them.
type Collaborator interface {
	Execute(ctx context.Context, in *intent.IntentRecord) (*Result, error)
}

// CollaboratorFunc adapts a function to the Collaborator interface.
type CollaboratorFunc func(ctx context.Context, in *intent.IntentRecord) (*Result, error)

// Execute implements Collaborator.
func (f CollaboratorFunc) Execute(ctx context.Context, in *intent.IntentRecord) (*Result, error) {
	return f(ctx, in)
}

// Registry maps intent types to their collaborators. Safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	collaborators map[string]Collaborator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{collaborators: make(map[string]Collaborator)}
}

// Register binds a collaborator to an intent type, replacing any previous
// binding.
func (r *Registry) Register(intentType string, c Collaborator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collaborators[intentType] = c
}

// Lookup resolves the collaborator for an intent type.
func (r *Registry) Lookup(intentType string) (Collaborator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collaborators[intentType]
	return c, ok
}

// Types returns the registered intent types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.collaborators))
	for t := range r.collaborators {
		types = append(types, t)
	}
	return types
}

// ErrUnknownIntentType reports submission of an intent type with no
// registered collaborator.
type ErrUnknownIntentType struct {
	IntentType string
}

func (e *ErrUnknownIntentType) Error() string {
	return fmt.Sprintf("coordinator: no collaborator registered for intent type %q", e.IntentType)
}
