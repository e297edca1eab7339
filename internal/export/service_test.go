package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

type fakeLister struct {
	rows     []*entity.Attestation
	from, to *time.Time
}

func (f *fakeLister) List(_ context.Context, from, to *time.Time) ([]*entity.Attestation, error) {
	f.from, f.to = from, to
	return f.rows, nil
}

func TestExportAttestationsXLSX(t *testing.T) {
	lister := &fakeLister{rows: []*entity.Attestation{{
		RecordID:        "INV-1",
		FileFingerprint: "aa",
		DataFingerprint: "bb",
		Backend:         "evm",
		ReceiptID:       "0xfeed",
		ExplorerURL:     "https://explorer/tx/0xfeed",
		DocumentName:    "inv.pdf",
		RecordJSON:      `{"invoice_number":"INV-1","invoice_date":"2025-02-01","vendor_gstin":"29abcde1234f1z5","total_amount":1180.5}`,
		CreatedAt:       time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}}}

	out, err := NewService(lister, nil).ExportAttestationsXLSX(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, lister.from)
	assert.Nil(t, lister.to)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	cell := func(axis string) string {
		v, err := f.GetCellValue("Attestations", axis)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Invoice Number", cell("B1"))
	assert.Equal(t, "2025-02-03T10:00:00Z", cell("A2"))
	assert.Equal(t, "INV-1", cell("B2"))
	assert.Equal(t, "2025-02-01", cell("C2"))
	assert.Equal(t, "29ABCDE1234F1Z5", cell("D2"))
	assert.Equal(t, "1180.5", cell("G2"))
	assert.Equal(t, "0xfeed", cell("K2"))
	assert.Equal(t, "", cell("B3"))
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	f, to := Window(&from, nil, now)
	require.NotNil(t, f)
	require.NotNil(t, to)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *f)
	assert.Equal(t, time.Date(2025, 6, 10, 23, 59, 59, 999999999, time.UTC), *to)

	f, to = Window(nil, &from, now)
	assert.Nil(t, f)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 59, 999999999, time.UTC), *to)

	f, to = Window(nil, nil, now)
	assert.Nil(t, f)
	assert.Nil(t, to)
}
