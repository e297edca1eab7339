package extract_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/extract"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm"
)

type stubModel struct {
	out   string
	err   error
	calls atomic.Int32
	last  llm.VisionRequest
}

func (s *stubModel) Generate(_ context.Context, req llm.VisionRequest) (string, error) {
	s.calls.Add(1)
	s.last = req
	return s.out, s.err
}

func (s *stubModel) ModelName() string { return "stub" }

func doc() entity.SourceDocument {
	return entity.NewSourceDocument("inv.png", "image/png", []byte("png bytes"))
}

func TestExtractParsesRecord(t *testing.T) {
	m := &stubModel{out: "```json\n{\"invoice_number\":\"INV-1\",\"total_amount\":100}\n```"}
	a := extract.NewAdapter(m, nil)

	rec, err := a.Extract(context.Background(), doc(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"invoice_number": "INV-1", "total_amount": json.Number("100")}, rec.Map())
	assert.EqualValues(t, 1, m.calls.Load())

	assert.Contains(t, m.last.Prompt, "- total_amount: number")
	assert.Contains(t, m.last.System, "invoice_number")
	assert.Equal(t, "inv.png", m.last.Document.Name)
	assert.NotEmpty(t, m.last.Schema)
}

func TestExtractCustomSchemaLimitsFields(t *testing.T) {
	m := &stubModel{out: `{"invoice_number":"INV-9","po_number":"PO-1","total_amount":5}`}
	schema := []entity.FieldSpec{{Name: "invoice_number", Kind: "string"}, {Name: "po_number", Kind: "string"}}

	rec, err := extract.NewAdapter(m, nil).Extract(context.Background(), doc(), schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice_number", "po_number"}, rec.Keys())
	assert.NotContains(t, m.last.Prompt, "total_amount")
}

func TestExtractToleratesMissingFields(t *testing.T) {
	m := &stubModel{out: `{"invoice_date":"2024-02-30","total_amount":"lots"}`}

	rec, err := extract.NewAdapter(m, nil).Extract(context.Background(), doc(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", rec.RecordID())
	assert.Equal(t, 2, rec.Len())
}

func TestExtractMalformedResponse(t *testing.T) {
	for _, out := range []string{"Sorry, I cannot read this invoice.", `{"invoice_number": INV-1}`} {
		m := &stubModel{out: out}
		_, err := extract.NewAdapter(m, nil).Extract(context.Background(), doc(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrMalformedResponse)
		assert.EqualValues(t, 1, m.calls.Load())
	}
}

func TestExtractDoesNotRetryModelErrors(t *testing.T) {
	m := &stubModel{err: common.NewKindError(common.KindNetwork, "timeout", nil)}
	_, err := extract.NewAdapter(m, nil).Extract(context.Background(), doc(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNetwork)
	assert.EqualValues(t, 1, m.calls.Load())
}

func TestExtractClassifiesBareModelErrors(t *testing.T) {
	m := &stubModel{err: errors.New("kaboom")}
	_, err := extract.NewAdapter(m, nil).Extract(context.Background(), doc(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknown)
}

func TestExtractRequiresDocument(t *testing.T) {
	m := &stubModel{}
	_, err := extract.NewAdapter(m, nil).Extract(context.Background(), entity.SourceDocument{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPrecondition)
	assert.EqualValues(t, 0, m.calls.Load())
}
