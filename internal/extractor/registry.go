// Package extractor defines the registry Workers use to resolve a Job's
// Kind to the Extractor that runs it. Concrete browser-automation
// extractors are wired in from outside this module at startup; this
// package ships only the registry and a failing stub, used by tests and
// for kinds that have no real implementation wired in.
package extractor

import (
	"context"
	"sync"

	"github.com/paraito/registre-extractor/internal/extractorerr"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

// Registry resolves a JobKind to its Extractor.
type Registry struct {
	mu         sync.RWMutex
	extractors map[models.JobKind]interfaces.Extractor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[models.JobKind]interfaces.Extractor)}
}

func (r *Registry) Register(extractor interfaces.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[extractor.Kind()] = extractor
}

func (r *Registry) Resolve(kind models.JobKind) (interfaces.Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[kind]
	return e, ok
}

var _ interfaces.ExtractorRegistry = (*Registry)(nil)

// Stub is a no-op Extractor used by tests and by deployments that have
// not yet wired a real browser-automation implementation for a kind. It
// always reports a permanent failure rather than silently succeeding, so
// an unwired kind surfaces loudly instead of corrupting job state.
type Stub struct {
	kind models.JobKind
}

// NewStub creates a Stub for the given kind.
func NewStub(kind models.JobKind) *Stub {
	return &Stub{kind: kind}
}

func (s *Stub) Kind() models.JobKind {
	return s.kind
}

func (s *Stub) Extract(ctx context.Context, job *models.Job) (string, error) {
	return "", extractorerr.Wrapf(extractorerr.KindPermanent, "no extractor wired for kind %q", s.kind)
}

var _ interfaces.Extractor = (*Stub)(nil)
