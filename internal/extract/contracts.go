package extract

import (
	"context"

	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// Extractor turns a document into a structured record. An empty schema means
// entity.DefaultInvoiceSchema.
type Extractor interface {
	Extract(ctx context.Context, doc entity.SourceDocument, schema []entity.FieldSpec) (entity.ExtractedRecord, error)
}
