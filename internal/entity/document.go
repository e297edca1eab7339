package entity

import (
	"bytes"
	"encoding/base64"
	"io"
	"time"

	"github.com/joseph-ayodele/invoice-attestor/constants"
)

// SourceDocument is an uploaded invoice file. The content is copied in and
// never handed out mutable; a new selection replaces the whole value.
type SourceDocument struct {
	Name       string    `json:"name"`
	MediaType  string    `json:"media_type"`
	Pages      int       `json:"pages,omitempty"`
	SelectedAt time.Time `json:"selected_at"`

	content []byte
}

func NewSourceDocument(name, mediaType string, content []byte) SourceDocument {
	return SourceDocument{
		Name:       name,
		MediaType:  constants.NormalizeMediaType(mediaType),
		SelectedAt: time.Now().UTC(),
		content:    bytes.Clone(content),
	}
}

// WithPages returns a copy annotated with a PDF page count.
func (d SourceDocument) WithPages(n int) SourceDocument {
	d.Pages = n
	return d
}

func (d SourceDocument) IsZero() bool {
	return d.content == nil && d.Name == ""
}

func (d SourceDocument) Size() int {
	return len(d.content)
}

func (d SourceDocument) IsPDF() bool {
	return d.MediaType == constants.MediaTypePDF
}

// Bytes returns a private copy of the content.
func (d SourceDocument) Bytes() []byte {
	return bytes.Clone(d.content)
}

// Reader streams the content without exposing the backing slice.
func (d SourceDocument) Reader() io.Reader {
	return bytes.NewReader(d.content)
}

// DataURL renders the content as a base64 data URL.
func (d SourceDocument) DataURL() string {
	mt := d.MediaType
	if mt == "" {
		mt = "application/octet-stream"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(d.content)
}
