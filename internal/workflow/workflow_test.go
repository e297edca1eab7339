package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-attestor/constants"
	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/extract"
	"github.com/joseph-ayodele/invoice-attestor/internal/fingerprint"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

type fakeModel struct {
	text string
	err  error
}

func (m *fakeModel) Generate(context.Context, llm.VisionRequest) (string, error) { return m.text, m.err }
func (m *fakeModel) ModelName() string                                            { return "fake" }

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	rec   entity.ExtractedRecord
	err   error
	gate  chan struct{}
}

func (f *fakeExtractor) Extract(context.Context, entity.SourceDocument, []entity.FieldSpec) (entity.ExtractedRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.rec, f.err
}

type fakeSubmitter struct {
	calls   int
	last    submit.Attestation
	receipt submit.Receipt
	err     error
}

func (f *fakeSubmitter) Name() string { return "fake" }

func (f *fakeSubmitter) Submit(_ context.Context, a submit.Attestation) (submit.Receipt, error) {
	f.calls++
	f.last = a
	if f.err != nil {
		return submit.Receipt{}, f.err
	}
	return f.receipt, nil
}

func invoiceDoc() entity.SourceDocument {
	return entity.NewSourceDocument("invoice.png", "image/png", []byte("\x89PNG fake invoice bytes"))
}

func modelExtractor(text string) extract.Extractor {
	return extract.NewAdapter(&fakeModel{text: text}, nil)
}

func TestScenario1ExtractionReachesAwaitingConfirmation(t *testing.T) {
	w := New(modelExtractor(`{"invoice_number":"INV-1","total_amount":100}`), &fakeSubmitter{}, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))

	ran, err := w.StartExtraction(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	snap := w.Snapshot()
	assert.Equal(t, constants.StateAwaitingConfirmation, snap.State)
	require.NotNil(t, snap.Record)
	got, err := snap.Record.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"invoice_number":"INV-1","total_amount":100}`, string(got))
	assert.Equal(t, fingerprint.HashDocument(invoiceDoc()).String(), snap.FileFingerprint)
	assert.Empty(t, snap.DataFingerprint)
}

func TestScenario2FreeTextFailsWithMalformedResponse(t *testing.T) {
	w := New(modelExtractor("Sorry, I could not read this invoice."), &fakeSubmitter{}, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))

	_, err := w.StartExtraction(context.Background())
	require.NoError(t, err)

	snap := w.Snapshot()
	assert.Equal(t, constants.StateFailed, snap.State)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, common.KindMalformedResponse, snap.Failure.Kind)
	assert.NotEmpty(t, snap.Failure.Message)
	assert.Nil(t, snap.Record)
}

func TestScenario3ConfirmReachesSucceeded(t *testing.T) {
	sub := &fakeSubmitter{receipt: submit.Receipt{ID: "abc123", Backend: "fake"}}
	w := New(modelExtractor(`{"invoice_number":"INV-1","total_amount":100}`), sub, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))
	_, err := w.StartExtraction(context.Background())
	require.NoError(t, err)

	require.NoError(t, w.Confirm(context.Background()))

	snap := w.Snapshot()
	assert.Equal(t, constants.StateSucceeded, snap.State)
	require.NotNil(t, snap.Receipt)
	assert.Equal(t, "abc123", snap.Receipt.ID)

	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, "INV-1", sub.last.RecordID)
	assert.Equal(t, fingerprint.HashDocument(invoiceDoc()), sub.last.FileFingerprint)
	want, err := fingerprint.HashCanonicalJSON(map[string]any{"invoice_number": "INV-1", "total_amount": 100})
	require.NoError(t, err)
	assert.Equal(t, want, sub.last.DataFingerprint)
	assert.Equal(t, want.String(), snap.DataFingerprint)
	assert.Equal(t, `{"invoice_number":"INV-1","total_amount":100}`, sub.last.RecordJSON)
	assert.Equal(t, "invoice.png", sub.last.DocumentName)
}

func TestScenario4RejectedSubmissionThenReset(t *testing.T) {
	sub := &fakeSubmitter{err: common.NewKindError(common.KindUserRejected, "user denied", nil)}
	w := New(modelExtractor(`{"invoice_number":"INV-1"}`), sub, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))
	_, err := w.StartExtraction(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Confirm(context.Background()))

	snap := w.Snapshot()
	assert.Equal(t, constants.StateFailed, snap.State)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, common.KindUserRejected, snap.Failure.Kind)
	assert.ErrorIs(t, snap.Failure.Err, common.ErrUserRejected)

	require.NoError(t, w.Reset())
	snap = w.Snapshot()
	assert.Equal(t, constants.StateIdle, snap.State)
	assert.Nil(t, snap.Document)
	assert.Nil(t, snap.Record)
	assert.Nil(t, snap.Receipt)
	assert.Nil(t, snap.Failure)
	assert.Empty(t, snap.FileFingerprint)
}

func TestScenario5KeyOrderDoesNotChangeDataFingerprint(t *testing.T) {
	a, err := fingerprint.HashCanonicalJSON(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := fingerprint.HashCanonicalJSON(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	recA, _ := entity.RecordFromMap(map[string]any{"a": 1.0, "b": 2.0}, nil)
	recB, _ := entity.RecordFromMap(map[string]any{"b": 2.0, "a": 1.0}, nil)
	fa, err := fingerprint.HashRecord(recA)
	require.NoError(t, err)
	fb, err := fingerprint.HashRecord(recB)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Equal(t, a, fa)
}

func TestConfirmFromIdleIsRejected(t *testing.T) {
	sub := &fakeSubmitter{}
	w := New(&fakeExtractor{}, sub, nil)

	err := w.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, constants.StateIdle, w.State())
	assert.Zero(t, sub.calls)

	require.NoError(t, w.SelectDocument(invoiceDoc()))
	assert.ErrorIs(t, w.Confirm(context.Background()), ErrInvalidTransition)
	assert.Zero(t, sub.calls)
}

func TestStartExtractionWithoutDocument(t *testing.T) {
	ext := &fakeExtractor{}
	w := New(ext, &fakeSubmitter{}, nil)

	ran, err := w.StartExtraction(context.Background())
	assert.False(t, ran)
	assert.ErrorIs(t, err, common.ErrPrecondition)
	assert.Equal(t, constants.StateIdle, w.State())
	assert.Zero(t, ext.calls)
}

func TestResetFromSucceededClearsRecordAndReceipt(t *testing.T) {
	rec, _ := entity.RecordFromMap(map[string]any{"invoice_number": "INV-7"}, entity.DefaultInvoiceSchema())
	w := New(&fakeExtractor{rec: rec}, &fakeSubmitter{receipt: submit.Receipt{ID: "0xfeed"}}, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))
	_, err := w.StartExtraction(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Confirm(context.Background()))
	require.Equal(t, constants.StateSucceeded, w.State())

	_, err = w.StartExtraction(context.Background())
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, w.Reset())
	snap := w.Snapshot()
	assert.Equal(t, constants.StateIdle, snap.State)
	assert.Nil(t, snap.Record)
	assert.Nil(t, snap.Receipt)
	assert.Empty(t, snap.DataFingerprint)
}

func TestConfirmWithoutInvoiceNumberFails(t *testing.T) {
	rec, _ := entity.RecordFromMap(map[string]any{"total_amount": 10.5}, entity.DefaultInvoiceSchema())
	sub := &fakeSubmitter{}
	w := New(&fakeExtractor{rec: rec}, sub, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))
	_, err := w.StartExtraction(context.Background())
	require.NoError(t, err)

	require.NoError(t, w.Confirm(context.Background()))
	snap := w.Snapshot()
	assert.Equal(t, constants.StateFailed, snap.State)
	assert.Equal(t, common.KindPrecondition, snap.Failure.Kind)
	assert.Contains(t, snap.Failure.Message, constants.FieldInvoiceNumber)
	assert.Zero(t, sub.calls)
}

func TestRetryKeepsDocument(t *testing.T) {
	ext := &fakeExtractor{err: common.NewKindError(common.KindNetwork, "timeout", context.DeadlineExceeded)}
	w := New(ext, &fakeSubmitter{}, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))
	_, err := w.StartExtraction(context.Background())
	require.NoError(t, err)
	require.Equal(t, constants.StateFailed, w.State())
	assert.Equal(t, common.KindNetwork, w.Snapshot().Failure.Kind)

	assert.ErrorIs(t, w.Confirm(context.Background()), ErrInvalidTransition)

	require.NoError(t, w.Retry())
	snap := w.Snapshot()
	assert.Equal(t, constants.StateIdle, snap.State)
	require.NotNil(t, snap.Document)
	assert.Equal(t, "invoice.png", snap.Document.Name)
	assert.Nil(t, snap.Failure)

	ext.err = nil
	ext.rec, _ = entity.RecordFromMap(map[string]any{"invoice_number": "INV-2"}, nil)
	_, err = w.StartExtraction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.StateAwaitingConfirmation, w.State())
	assert.Equal(t, 2, ext.calls)

	assert.ErrorIs(t, w.Retry(), ErrInvalidTransition)
}

func TestUnclassifiedAdapterErrorIsUnknown(t *testing.T) {
	w := New(&fakeExtractor{err: errors.New("boom")}, &fakeSubmitter{}, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))
	_, err := w.StartExtraction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.KindUnknown, w.Snapshot().Failure.Kind)
}

func TestSecondStartWhileExtractingIsIgnored(t *testing.T) {
	rec, _ := entity.RecordFromMap(map[string]any{"invoice_number": "INV-3"}, nil)
	ext := &fakeExtractor{rec: rec, gate: make(chan struct{})}

	extracting := make(chan struct{})
	var transitions []constants.WorkflowState
	hook := func(_ uuid.UUID, _, to constants.WorkflowState) {
		transitions = append(transitions, to)
		if to == constants.StateExtracting {
			close(extracting)
		}
	}
	w := New(ext, &fakeSubmitter{}, nil, WithTransitionHook(hook))
	require.NoError(t, w.SelectDocument(invoiceDoc()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.StartExtraction(context.Background())
	}()

	select {
	case <-extracting:
	case <-time.After(5 * time.Second):
		t.Fatal("extraction never started")
	}

	ran, err := w.StartExtraction(context.Background())
	assert.NoError(t, err)
	assert.False(t, ran)
	assert.ErrorIs(t, w.Reset(), ErrBusy)
	assert.ErrorIs(t, w.SelectDocument(invoiceDoc()), ErrBusy)
	assert.ErrorIs(t, w.Confirm(context.Background()), ErrBusy)
	assert.Equal(t, constants.StateExtracting, w.Snapshot().State)

	close(ext.gate)
	<-done

	assert.Equal(t, 1, ext.calls)
	assert.Equal(t, []constants.WorkflowState{
		constants.StateHashing,
		constants.StateExtracting,
		constants.StateAwaitingConfirmation,
	}, transitions)
}

func TestSelectDocumentOutsideIdleStartsOver(t *testing.T) {
	rec, _ := entity.RecordFromMap(map[string]any{"invoice_number": "INV-7"}, entity.DefaultInvoiceSchema())
	cases := map[string]struct {
		submitErr error
		confirm   bool
		want      constants.WorkflowState
	}{
		"awaiting confirmation": {want: constants.StateAwaitingConfirmation},
		"succeeded":             {confirm: true, want: constants.StateSucceeded},
		"failed":                {confirm: true, submitErr: common.NewKindError(common.KindNetwork, "down", nil), want: constants.StateFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			sub := &fakeSubmitter{receipt: submit.Receipt{ID: "0xfeed"}, err: tc.submitErr}
			w := New(&fakeExtractor{rec: rec}, sub, nil)
			require.NoError(t, w.SelectDocument(invoiceDoc()))
			_, err := w.StartExtraction(context.Background())
			require.NoError(t, err)
			if tc.confirm {
				require.NoError(t, w.Confirm(context.Background()))
			}
			require.Equal(t, tc.want, w.State())

			next := entity.NewSourceDocument("next.pdf", "application/pdf", []byte("%PDF-1.4 next"))
			require.NoError(t, w.SelectDocument(next))

			snap := w.Snapshot()
			assert.Equal(t, constants.StateIdle, snap.State)
			require.NotNil(t, snap.Document)
			assert.Equal(t, "next.pdf", snap.Document.Name)
			assert.Empty(t, snap.FileFingerprint)
			assert.Empty(t, snap.DataFingerprint)
			assert.Nil(t, snap.Record)
			assert.Nil(t, snap.Receipt)
			assert.Nil(t, snap.Failure)
		})
	}
}

func TestSelectDocumentDiscardsPreviousFingerprint(t *testing.T) {
	w := New(&fakeExtractor{}, &fakeSubmitter{}, nil)
	require.NoError(t, w.SelectDocument(invoiceDoc()))
	other := entity.NewSourceDocument("other.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, w.SelectDocument(other))

	snap := w.Snapshot()
	require.NotNil(t, snap.Document)
	assert.Equal(t, "other.pdf", snap.Document.Name)
	assert.Equal(t, constants.MediaTypePDF, snap.Document.MediaType)
	assert.Empty(t, snap.FileFingerprint)
}

func TestFailureMessages(t *testing.T) {
	for _, kind := range []common.ErrorKind{
		common.KindEncoding,
		common.KindMalformedResponse,
		common.KindPrecondition,
		common.KindUserRejected,
		common.KindInsufficientResources,
		common.KindDuplicateRecord,
		common.KindNetwork,
		common.KindUnknown,
	} {
		msg := failureMessage(kind, common.NewKindError(kind, "detail", nil))
		assert.NotEmpty(t, msg, kind)
	}
	assert.Equal(t, "This invoice number has already been attested.",
		failureMessage(common.KindDuplicateRecord, common.NewKindError(common.KindDuplicateRecord, "x", nil)))
}
