package ingest

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/invoice-attestor/constants"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// Loader turns raw bytes into a SourceDocument.
type Loader struct {
	maxBytes int64
	logger   *slog.Logger
}

func NewLoader(maxMB int, logger *slog.Logger) *Loader {
	if maxMB <= 0 {
		maxMB = constants.MaxDocumentMB
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{maxBytes: int64(maxMB) << 20, logger: logger}
}

func (l *Loader) MaxBytes() int64 { return l.maxBytes }

// LoadFile reads a document from the local filesystem. The declared media
// type comes from the file extension.
func (l *Loader) LoadFile(path string) (entity.SourceDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.SourceDocument{}, fmt.Errorf("abs path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return entity.SourceDocument{}, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	return l.Load(filepath.Base(abs), "", f)
}

// Load reads at most the size limit from r. declaredType may be empty or
// application/octet-stream, in which case the extension of name decides.
// Both the declared and the sniffed type must be on the allow-list and agree.
func (l *Loader) Load(name, declaredType string, r io.Reader) (entity.SourceDocument, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return entity.SourceDocument{}, fmt.Errorf("read %s: %w", name, err)
	}
	switch {
	case len(data) == 0:
		return entity.SourceDocument{}, invalid("EMPTY_DOCUMENT", ErrEmptyDocument, name+" is empty")
	case int64(len(data)) > l.maxBytes:
		return entity.SourceDocument{}, invalid("DOCUMENT_TOO_LARGE", ErrDocumentTooLarge,
			fmt.Sprintf("%s exceeds %d MB", name, l.maxBytes>>20))
	}

	declared := constants.NormalizeMediaType(declaredType)
	if declared == "" || declared == "application/octet-stream" {
		declared = constants.MediaTypeForExt(filepath.Ext(name))
	}
	if !constants.IsAllowedMediaType(declared) {
		return entity.SourceDocument{}, invalid("UNSUPPORTED_MEDIA", ErrUnsupportedMedia,
			fmt.Sprintf("%s: media type %q is not accepted", name, declaredType))
	}

	sniffed := constants.NormalizeMediaType(mimetype.Detect(data).String())
	if sniffed != declared {
		l.logger.Warn("ingest.media.mismatch", "name", name, "declared", declared, "sniffed", sniffed)
		return entity.SourceDocument{}, invalid("UNSUPPORTED_MEDIA", ErrUnsupportedMedia,
			fmt.Sprintf("%s: content is %s, not %s", name, sniffed, declared))
	}

	doc := entity.NewSourceDocument(name, declared, data)
	if doc.IsPDF() {
		pages, err := pageCount(data)
		if err != nil {
			l.logger.Warn("ingest.pdf.unreadable", "name", name, "error", err)
			return entity.SourceDocument{}, invalid("UNREADABLE_PDF", ErrUnreadablePDF, name+": "+err.Error())
		}
		doc = doc.WithPages(pages)
	}

	l.logger.Debug("ingest.document.loaded", "name", name, "media_type", declared, "size", len(data), "pages", doc.Pages)
	return doc, nil
}

func pageCount(data []byte) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), cfg)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("no pages")
	}
	return n, nil
}
