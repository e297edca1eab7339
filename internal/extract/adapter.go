package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm"
)

// Adapter implements Extractor over a vision model. It makes exactly one model
// call per Extract and keeps no state between calls.
type Adapter struct {
	model  llm.VisionModel
	logger *slog.Logger
}

func NewAdapter(model llm.VisionModel, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{model: model, logger: logger}
}

func (a *Adapter) Extract(ctx context.Context, doc entity.SourceDocument, schema []entity.FieldSpec) (entity.ExtractedRecord, error) {
	if doc.IsZero() || doc.Size() == 0 {
		return entity.ExtractedRecord{}, common.NewKindError(common.KindPrecondition, "no document content to extract from", nil)
	}
	if len(schema) == 0 {
		schema = entity.DefaultInvoiceSchema()
	}

	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()
	a.logger.Info("llm.extract.start",
		"req_id", rid,
		"workflow_id", common.WorkflowIDFromContext(ctx),
		"model", a.model.ModelName(),
		"document", doc.Name,
		"fields", len(schema),
	)

	jsonSchema := llm.BuildRecordJSONSchema(schema)
	text, err := a.model.Generate(ctx, llm.VisionRequest{
		System:   llm.BuildSystemPrompt(schema),
		Prompt:   llm.BuildUserPrompt(doc, schema),
		Document: doc,
		Schema:   jsonSchema,
	})
	if err != nil {
		a.logger.Error("llm.extract.model_error",
			"req_id", rid, "error", err, "kind", common.Classify(err),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractedRecord{}, ensureKind(err)
	}

	raw, err := llm.DecodeObject(text)
	if err != nil {
		a.logger.Error("llm.extract.malformed",
			"req_id", rid, "error", err, "response_len", len(text),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractedRecord{}, err
	}

	// Advisory only: callers tolerate missing and mistyped fields.
	if obj, oErr := llm.ExtractJSONObject(text); oErr == nil {
		if vErr := llm.ValidateJSONAgainstSchema(jsonSchema, llm.Compact(obj)); vErr != nil {
			a.logger.Warn("llm.extract.schema_mismatch", "req_id", rid, "error", vErr)
		}
	}

	rec, dropped := entity.RecordFromMap(raw, schema)
	if len(dropped) > 0 {
		a.logger.Warn("llm.extract.normalize_sanitize", "req_id", rid, "dropped", dropped)
	}

	a.logger.Info("llm.extract.ok",
		"req_id", rid,
		"record_id", rec.RecordID(),
		"fields", rec.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// ensureKind wraps errors from models that did not classify their own failures.
func ensureKind(err error) error {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	kind := common.Classify(err)
	return common.NewKindError(kind, "vision model call failed", err)
}
