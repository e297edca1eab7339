// Package fingerprint computes the SHA-256 digests recorded by an attestation:
// one over the raw document bytes and one over the canonical JSON of the
// extracted record.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// FileFingerprint is the lowercase hex SHA-256 of a document's bytes.
type FileFingerprint string

// DataFingerprint is the lowercase hex SHA-256 of a record's canonical JSON.
type DataFingerprint string

func (f FileFingerprint) String() string { return string(f) }

// Prefixed renders the 0x form used in contract calls.
func (f FileFingerprint) Prefixed() string { return prefixed(string(f)) }

func (d DataFingerprint) String() string { return string(d) }

func (d DataFingerprint) Prefixed() string { return prefixed(string(d)) }

func prefixed(s string) string {
	if s == "" {
		return ""
	}
	return "0x" + s
}

func HashBytes(b []byte) FileFingerprint {
	sum := sha256.Sum256(b)
	return FileFingerprint(hex.EncodeToString(sum[:]))
}

func HashReader(r io.Reader) (FileFingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", common.WrapError(err, "hash reader")
	}
	return FileFingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

func HashDocument(doc entity.SourceDocument) FileFingerprint {
	// bytes.Reader never fails
	fp, _ := HashReader(doc.Reader())
	return fp
}

// HashCanonicalJSON digests the canonical serialization of record. It fails
// with an EncodingError when a value is nil, non-scalar or not a finite number.
func HashCanonicalJSON(record map[string]any) (DataFingerprint, error) {
	b, err := Canonicalize(record)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return DataFingerprint(hex.EncodeToString(sum[:])), nil
}

func HashRecord(rec entity.ExtractedRecord) (DataFingerprint, error) {
	return HashCanonicalJSON(rec.Map())
}
