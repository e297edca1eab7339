// Package workflow drives one invoice from document selection through
// extraction, human confirmation and submission.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/constants"
	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/extract"
	"github.com/joseph-ayodele/invoice-attestor/internal/fingerprint"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrBusy is returned for actions attempted while an outbound call is in flight.
	ErrBusy = errors.New("workflow busy")
)

// Failure describes why a workflow ended in Failed.
type Failure struct {
	Kind    common.ErrorKind `json:"kind"`
	Message string           `json:"message"`
	Err     error            `json:"-"`
}

// TransitionHook observes state changes. It runs with the workflow locked and
// must not call back into it.
type TransitionHook func(id uuid.UUID, from, to constants.WorkflowState)

type Option func(*Workflow)

func WithSchema(schema []entity.FieldSpec) Option {
	return func(w *Workflow) { w.schema = schema }
}

func WithTransitionHook(h TransitionHook) Option {
	return func(w *Workflow) { w.hook = h }
}

func WithID(id uuid.UUID) Option {
	return func(w *Workflow) { w.id = id }
}

// Workflow is safe for concurrent use. The lock is released while the
// extractor or submitter runs; busy states keep every other action out.
type Workflow struct {
	id        uuid.UUID
	extractor extract.Extractor
	submitter submit.Submitter
	schema    []entity.FieldSpec
	hook      TransitionHook
	logger    *slog.Logger

	mu        sync.Mutex
	state     constants.WorkflowState
	doc       entity.SourceDocument
	fileFP    fingerprint.FileFingerprint
	dataFP    fingerprint.DataFingerprint
	record    *entity.ExtractedRecord
	receipt   *submit.Receipt
	failure   *Failure
	updatedAt time.Time
}

func New(extractor extract.Extractor, submitter submit.Submitter, logger *slog.Logger, opts ...Option) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workflow{
		id:        uuid.New(),
		extractor: extractor,
		submitter: submitter,
		logger:    logger,
		state:     constants.StateIdle,
		updatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("workflow_id", w.id.String())
	return w
}

func (w *Workflow) ID() uuid.UUID { return w.id }

func (w *Workflow) State() constants.WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SelectDocument replaces the current document and discards everything
// derived from the previous one, returning the workflow to Idle. Refused only
// while an operation is in flight.
func (w *Workflow) SelectDocument(doc entity.SourceDocument) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Busy() {
		return ErrBusy
	}
	w.clearDerived()
	w.doc = doc
	w.transition(constants.StateIdle)
	w.touch()
	w.logger.Info("workflow.document.selected", "name", doc.Name, "media_type", doc.MediaType, "size", doc.Size())
	return nil
}

// StartExtraction hashes the selected document and runs the extractor. It
// reports false without error when extraction is already under way. Adapter
// failures move the workflow to Failed and are read back through Snapshot;
// the returned error only signals a rejected call.
func (w *Workflow) StartExtraction(ctx context.Context) (bool, error) {
	w.mu.Lock()
	switch {
	case w.state == constants.StateHashing || w.state == constants.StateExtracting:
		state := w.state
		w.mu.Unlock()
		w.logger.Debug("workflow.extract.ignored", "state", state)
		return false, nil
	case w.state != constants.StateIdle:
		state := w.state
		w.mu.Unlock()
		return false, fmt.Errorf("%w: extract in %s", ErrInvalidTransition, state)
	case w.doc.IsZero():
		w.mu.Unlock()
		return false, common.NewKindError(common.KindPrecondition, "no document selected", nil)
	}
	doc := w.doc
	schema := w.schema
	w.transition(constants.StateHashing)
	w.mu.Unlock()

	start := time.Now()
	fp := fingerprint.HashDocument(doc)

	w.mu.Lock()
	w.fileFP = fp
	w.transition(constants.StateExtracting)
	w.mu.Unlock()
	w.logger.Info("workflow.hash.done", "file_fingerprint", fp.String(), "elapsed_ms", time.Since(start).Milliseconds())

	rec, err := w.extractor.Extract(ctx, doc, schema)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.fail(err)
		return true, nil
	}
	w.record = &rec
	w.transition(constants.StateAwaitingConfirmation)
	w.logger.Info("workflow.extract.done", "fields", rec.Keys(), "elapsed_ms", time.Since(start).Milliseconds())
	return true, nil
}

// Confirm accepts the extracted preview and submits the attestation. Like
// StartExtraction, adapter failures end in Failed rather than an error.
func (w *Workflow) Confirm(ctx context.Context) error {
	w.mu.Lock()
	if w.state != constants.StateAwaitingConfirmation {
		state := w.state
		w.mu.Unlock()
		if state.Busy() {
			return ErrBusy
		}
		return fmt.Errorf("%w: confirm in %s", ErrInvalidTransition, state)
	}

	rec := *w.record
	dataFP, err := fingerprint.HashRecord(rec)
	if err != nil {
		w.fail(err)
		w.mu.Unlock()
		return nil
	}
	w.dataFP = dataFP

	recordID := rec.RecordID()
	if recordID == "" {
		w.fail(common.NewKindError(common.KindPrecondition, "extracted record has no "+constants.FieldInvoiceNumber, nil))
		w.mu.Unlock()
		return nil
	}
	recordJSON, _ := fingerprint.Canonicalize(rec.Map())

	att := submit.Attestation{
		RecordID:        recordID,
		FileFingerprint: w.fileFP,
		DataFingerprint: dataFP,
		DocumentName:    w.doc.Name,
		MediaType:       w.doc.MediaType,
		RecordJSON:      string(recordJSON),
	}
	w.transition(constants.StateSubmitting)
	w.mu.Unlock()

	start := time.Now()
	receipt, err := w.submitter.Submit(ctx, att)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.fail(err)
		return nil
	}
	w.receipt = &receipt
	w.transition(constants.StateSucceeded)
	w.logger.Info("workflow.submit.done",
		"record_id", recordID,
		"backend", receipt.Backend,
		"receipt_id", receipt.ID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Retry returns a failed workflow to Idle with the same document selected.
func (w *Workflow) Retry() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != constants.StateFailed {
		return fmt.Errorf("%w: retry in %s", ErrInvalidTransition, w.state)
	}
	w.clearDerived()
	w.transition(constants.StateIdle)
	return nil
}

// Reset discards the document and all derived data.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Busy() {
		return ErrBusy
	}
	w.clearDerived()
	w.doc = entity.SourceDocument{}
	w.transition(constants.StateIdle)
	return nil
}

func (w *Workflow) clearDerived() {
	w.fileFP = ""
	w.dataFP = ""
	w.record = nil
	w.receipt = nil
	w.failure = nil
}

func (w *Workflow) touch() {
	w.updatedAt = time.Now().UTC()
}

// transition must be called with mu held.
func (w *Workflow) transition(to constants.WorkflowState) {
	from := w.state
	w.state = to
	w.touch()
	if from == to {
		return
	}
	w.logger.Info("workflow.transition", "from", from, "to", to)
	if w.hook != nil {
		w.hook(w.id, from, to)
	}
}

// fail must be called with mu held.
func (w *Workflow) fail(err error) {
	kind := common.Classify(err)
	w.failure = &Failure{Kind: kind, Message: failureMessage(kind, err), Err: err}
	w.logger.Warn("workflow.failed", "kind", kind, "error", err)
	w.transition(constants.StateFailed)
}

func failureMessage(kind common.ErrorKind, err error) string {
	var detail string
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		detail = appErr.Message
	}
	withDetail := func(base string) string {
		if detail == "" {
			return base
		}
		return base + ": " + detail
	}

	switch kind {
	case common.KindEncoding:
		return withDetail("The extracted data could not be serialized for fingerprinting")
	case common.KindMalformedResponse:
		return "The extraction service did not return a readable JSON object. Reset and try again."
	case common.KindPrecondition:
		return withDetail("Required information is missing")
	case common.KindUserRejected:
		return "The signer rejected the request."
	case common.KindInsufficientResources:
		return "The signing account does not have enough funds or quota to record this invoice."
	case common.KindDuplicateRecord:
		return "This invoice number has already been attested."
	case common.KindNetwork:
		return "A network error interrupted the request. Check connectivity and try again."
	default:
		return withDetail("Something went wrong")
	}
}
