package submit

import (
	"context"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/fingerprint"
)

// Attestation is the triple recorded on the external store.
type Attestation struct {
	RecordID        string
	FileFingerprint fingerprint.FileFingerprint
	DataFingerprint fingerprint.DataFingerprint

	// Journal metadata; never part of the submitted payload.
	DocumentName string
	MediaType    string
	RecordJSON   string
}

// Validate fails with a PreconditionError when any part of the triple is empty.
func (a Attestation) Validate() error {
	val := common.NewValidator()
	val.Field("record_id", a.RecordID, common.Required)
	val.Field("file_fingerprint", string(a.FileFingerprint), common.Required)
	val.Field("data_fingerprint", string(a.DataFingerprint), common.Required)
	if val.HasErrors() {
		return common.NewKindError(common.KindPrecondition, val.ErrorMessage(), nil)
	}
	return nil
}

// Payload is the canonical JSON memo form of the triple.
func (a Attestation) Payload() ([]byte, error) {
	return fingerprint.Canonicalize(map[string]any{
		"invoiceNumber":   strings.TrimSpace(a.RecordID),
		"fileFingerprint": a.FileFingerprint.Prefixed(),
		"dataFingerprint": a.DataFingerprint.Prefixed(),
	})
}

// Receipt identifies a completed attestation on the external store.
type Receipt struct {
	ID          string    `json:"id"`
	Backend     string    `json:"backend"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submitter records an attestation on exactly one external mechanism. Errors
// carry one of UserRejected, InsufficientResources, DuplicateRecord,
// NetworkError, UnknownError or PreconditionError.
type Submitter interface {
	Submit(ctx context.Context, a Attestation) (Receipt, error)
	Name() string
}
