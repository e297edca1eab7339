package submit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// Journal is the local record of completed attestations.
type Journal interface {
	GetByRecordID(ctx context.Context, recordID string) (*entity.Attestation, error)
	Append(ctx context.Context, a *entity.Attestation) error
}

// Journaled rejects record IDs the journal already holds before touching the
// external store, and journals every successful submission.
type Journaled struct {
	next    Submitter
	journal Journal
	logger  *slog.Logger
}

func NewJournaled(next Submitter, journal Journal, logger *slog.Logger) *Journaled {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journaled{next: next, journal: journal, logger: logger}
}

func (j *Journaled) Name() string { return j.next.Name() }

func (j *Journaled) Submit(ctx context.Context, a Attestation) (Receipt, error) {
	if err := a.Validate(); err != nil {
		return Receipt{}, err
	}

	existing, err := j.journal.GetByRecordID(ctx, a.RecordID)
	switch {
	case err == nil && existing != nil:
		j.logger.Warn("submit.journal.duplicate", "record_id", a.RecordID, "receipt_id", existing.ReceiptID)
		return Receipt{}, common.NewKindError(common.KindDuplicateRecord, "invoice number already attested as "+existing.ReceiptID, nil)
	case err != nil && !errors.Is(err, common.ErrNotFound):
		// the external store stays authoritative for duplicates
		j.logger.Warn("submit.journal.lookup_failed", "record_id", a.RecordID, "error", err)
	}

	receipt, err := j.next.Submit(ctx, a)
	if err != nil {
		return Receipt{}, err
	}

	row := &entity.Attestation{
		ID:              uuid.New(),
		RecordID:        a.RecordID,
		FileFingerprint: a.FileFingerprint.String(),
		DataFingerprint: a.DataFingerprint.String(),
		Backend:         receipt.Backend,
		ReceiptID:       receipt.ID,
		ExplorerURL:     receipt.ExplorerURL,
		DocumentName:    a.DocumentName,
		MediaType:       a.MediaType,
		RecordJSON:      a.RecordJSON,
		CreatedAt:       receipt.SubmittedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := j.journal.Append(ctx, row); err != nil {
		j.logger.Error("submit.journal.append_failed", "record_id", a.RecordID, "receipt_id", receipt.ID, "error", err)
	}
	return receipt, nil
}
