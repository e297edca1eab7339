package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// Lister is the journal query the export needs.
type Lister interface {
	List(ctx context.Context, fromDate, toDate *time.Time) ([]*entity.Attestation, error)
}

// Service produces XLSX bytes from the attestation journal.
type Service struct {
	journal Lister
	logger  *slog.Logger
}

func NewService(journal Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{journal: journal, logger: logger}
}

// ExportAttestationsXLSX returns an XLSX workbook (as bytes) for the given date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> the whole journal.
func (s *Service) ExportAttestationsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	fromDate, toDate := Window(from, to, time.Now())

	rows, err := s.journal.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query attestations: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	const sheet = "Attestations"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Attested At",
		"Invoice Number",
		"Invoice Date",
		"Vendor GSTIN",
		"Taxable Amount",
		"Total Tax",
		"Total Amount",
		"File Fingerprint",
		"Data Fingerprint",
		"Backend",
		"Receipt",
		"Explorer URL",
		"Document",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, a := range rows {
		inv := invoiceOf(a, s.logger)
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, a.CreatedAt.UTC().Format(time.RFC3339))
		write(2, a.RecordID)
		write(3, dateOrEmpty(inv.Date))
		write(4, stringOrEmpty(inv.VendorGSTIN))
		write(5, numberOrEmpty(inv.TaxableAmount))
		write(6, numberOrEmpty(inv.TotalTax))
		write(7, numberOrEmpty(inv.TotalAmount))
		write(8, a.FileFingerprint)
		write(9, a.DataFingerprint)
		write(10, a.Backend)
		write(11, a.ReceiptID)
		write(12, a.ExplorerURL)
		write(13, truncate(a.DocumentName, 140))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 22) // attested at
	_ = f.SetColWidth(sheet, "B", "D", 20) // invoice identity
	_ = f.SetColWidth(sheet, "E", "G", 14) // amounts
	_ = f.SetColWidth(sheet, "H", "I", 68) // fingerprints
	_ = f.SetColWidth(sheet, "J", "J", 10)
	_ = f.SetColWidth(sheet, "K", "L", 60)
	_ = f.SetColWidth(sheet, "M", "M", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// Window turns date bounds into an inclusive timestamp range in UTC.
func Window(from, to *time.Time, now time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to == nil && fromDate != nil {
		to = &now
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Nanosecond)
		toDate = &t
	}
	return fromDate, toDate
}

func invoiceOf(a *entity.Attestation, logger *slog.Logger) entity.Invoice {
	if a.RecordJSON == "" {
		return entity.Invoice{}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(a.RecordJSON)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		logger.Warn("export.record.unreadable", "record_id", a.RecordID, "error", err)
		return entity.Invoice{}
	}
	rec, _ := entity.RecordFromMap(raw, entity.DefaultInvoiceSchema())
	return rec.Invoice()
}

func dateOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func numberOrEmpty(n *json.Number) any {
	if n == nil {
		return ""
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
