package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/constants"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

// DocumentInfo describes the selected document without its content.
type DocumentInfo struct {
	Name       string    `json:"name"`
	MediaType  string    `json:"media_type"`
	Size       int       `json:"size"`
	Pages      int       `json:"pages,omitempty"`
	SelectedAt time.Time `json:"selected_at"`
}

// Snapshot is a point-in-time copy of a workflow's observable state.
type Snapshot struct {
	ID              uuid.UUID               `json:"id"`
	State           constants.WorkflowState `json:"state"`
	Document        *DocumentInfo           `json:"document,omitempty"`
	FileFingerprint string                  `json:"file_fingerprint,omitempty"`
	DataFingerprint string                  `json:"data_fingerprint,omitempty"`
	Record          *entity.ExtractedRecord `json:"record,omitempty"`
	Receipt         *submit.Receipt         `json:"receipt,omitempty"`
	Failure         *Failure                `json:"failure,omitempty"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		ID:              w.id,
		State:           w.state,
		FileFingerprint: w.fileFP.String(),
		DataFingerprint: w.dataFP.String(),
		UpdatedAt:       w.updatedAt,
	}
	if !w.doc.IsZero() {
		s.Document = &DocumentInfo{
			Name:       w.doc.Name,
			MediaType:  w.doc.MediaType,
			Size:       w.doc.Size(),
			Pages:      w.doc.Pages,
			SelectedAt: w.doc.SelectedAt,
		}
	}
	if w.record != nil {
		rec := *w.record
		s.Record = &rec
	}
	if w.receipt != nil {
		r := *w.receipt
		s.Receipt = &r
	}
	if w.failure != nil {
		f := *w.failure
		s.Failure = &f
	}
	return s
}
