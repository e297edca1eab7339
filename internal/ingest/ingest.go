// Package ingest loads invoice documents from disk or uploads and enforces
// the media allow-list and size limit before a workflow sees them.
package ingest

import (
	"errors"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
)

var (
	ErrEmptyDocument    = errors.New("document is empty")
	ErrDocumentTooLarge = errors.New("document exceeds size limit")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrUnreadablePDF    = errors.New("pdf could not be parsed")
)

// FileResult is the per-file outcome of a directory run.
type FileResult struct {
	Path string
	Err  error
}

// DirStats summarizes a directory run.
type DirStats struct {
	Scanned    uint32
	Matched    uint32
	Succeeded  uint32
	Duplicates uint32
	Failed     uint32
}

func (s *DirStats) record(err error) {
	switch {
	case err == nil:
		s.Succeeded++
	case errors.Is(err, common.ErrDuplicateRecord):
		s.Duplicates++
	default:
		s.Failed++
	}
}

func invalid(code string, sentinel error, msg string) error {
	return common.NewAppError(code, msg, errors.Join(sentinel, common.ErrInvalidInput))
}
