package entity

import (
	"time"

	"github.com/google/uuid"
)

// Attestation is one journal row: a submitted fingerprint triple and its receipt.
type Attestation struct {
	ID              uuid.UUID `json:"id"`
	RecordID        string    `json:"record_id"`
	FileFingerprint string    `json:"file_fingerprint"`
	DataFingerprint string    `json:"data_fingerprint"`
	Backend         string    `json:"backend"`
	ReceiptID       string    `json:"receipt_id"`
	ExplorerURL     string    `json:"explorer_url,omitempty"`
	DocumentName    string    `json:"document_name,omitempty"`
	MediaType       string    `json:"media_type,omitempty"`
	RecordJSON      string    `json:"record_json,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
