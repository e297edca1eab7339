package llm

import (
	"strings"

	"github.com/joseph-ayodele/invoice-attestor/constants"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
)

// BuildSystemPrompt states the output contract: a single JSON object with
// exactly the requested keys.
func BuildSystemPrompt(schema []entity.FieldSpec) string {
	names := make([]string, 0, len(schema))
	for _, f := range schema {
		names = append(names, f.Name)
	}
	parts := []string{
		"You are an invoice data extractor.",
		"Return ONLY one JSON object, with no prose and no markdown code fences.",
		"Use exactly these keys: " + strings.Join(names, ", ") + ".",
		"Never output null. If a field is not visible on the document, omit it.",
		"Dates are ISO-8601 (YYYY-MM-DD).",
		"Numbers are plain JSON numbers without currency symbols or thousands separators.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt enumerates each field and its expected shape.
func BuildUserPrompt(doc entity.SourceDocument, schema []entity.FieldSpec) string {
	var b strings.Builder
	b.WriteString("Extract the following fields from the attached ")
	if doc.IsPDF() {
		b.WriteString("PDF invoice")
	} else {
		b.WriteString("invoice image")
	}
	if doc.Name != "" {
		b.WriteString(" (")
		b.WriteString(doc.Name)
		b.WriteString(")")
	}
	b.WriteString(":\n")
	for _, f := range schema {
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(shapeOf(f))
		if d := strings.TrimSpace(f.Description); d != "" {
			b.WriteString(", ")
			b.WriteString(d)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func shapeOf(f entity.FieldSpec) string {
	switch f.Kind {
	case constants.FieldISODate:
		return `string in "YYYY-MM-DD" format`
	case constants.FieldNumber:
		return "number"
	default:
		if f.Name == constants.FieldVendorGSTIN {
			return "string, 15 characters"
		}
		return "string"
	}
}
