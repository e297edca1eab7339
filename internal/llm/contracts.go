package llm

import (
	"context"

	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// VisionRequest is one document-plus-instructions call to a vision model.
type VisionRequest struct {
	System   string
	Prompt   string
	Document entity.SourceDocument
	// Schema is the JSON Schema of the expected object, for backends that can
	// constrain their output with it.
	Schema map[string]any
}

// VisionModel is an external vision-capable model. Generate returns the raw
// text of the model's answer; errors are already classified into the
// attestation taxonomy.
type VisionModel interface {
	Generate(ctx context.Context, req VisionRequest) (string, error)
	ModelName() string
}
