package workflow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/extract"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

// Registry holds independent workflows keyed by id. Workflows untouched for
// longer than the TTL are dropped when a new one is created, unless busy.
type Registry struct {
	extractor extract.Extractor
	submitter submit.Submitter
	ttl       time.Duration
	logger    *slog.Logger
	opts      []Option
	now       func() time.Time

	mu        sync.Mutex
	workflows map[uuid.UUID]*Workflow
}

func NewRegistry(extractor extract.Extractor, submitter submit.Submitter, ttl time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		extractor: extractor,
		submitter: submitter,
		ttl:       ttl,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		workflows: make(map[uuid.UUID]*Workflow),
	}
}

func (r *Registry) Create() *Workflow {
	w := New(r.extractor, r.submitter, r.logger, r.opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.workflows[w.ID()] = w
	r.logger.Info("workflow.session.created", "workflow_id", w.ID().String(), "active", len(r.workflows))
	return w
}

func (r *Registry) Get(id uuid.UUID) (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[id]
	if !ok {
		return nil, common.NewAppError("SESSION_NOT_FOUND", "session "+id.String()+" not found", common.ErrNotFound)
	}
	return w, nil
}

// Delete removes a workflow. Busy workflows are kept and ErrBusy returned.
func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[id]
	if !ok {
		return common.NewAppError("SESSION_NOT_FOUND", "session "+id.String()+" not found", common.ErrNotFound)
	}
	if w.State().Busy() {
		return ErrBusy
	}
	delete(r.workflows, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workflows)
}

func (r *Registry) sweepLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.now().Add(-r.ttl)
	for id, w := range r.workflows {
		snap := w.Snapshot()
		if snap.State.Busy() || snap.UpdatedAt.After(cutoff) {
			continue
		}
		delete(r.workflows, id)
		r.logger.Info("workflow.session.expired", "workflow_id", id.String(), "state", snap.State)
	}
}
