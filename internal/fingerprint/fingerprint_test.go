package fingerprint_test

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/fingerprint"
)

func TestHashBytesKnownVectors(t *testing.T) {
	assert.Equal(t, fingerprint.FileFingerprint("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"), fingerprint.HashBytes(nil))
	assert.Equal(t, fingerprint.FileFingerprint("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"), fingerprint.HashBytes([]byte("abc")))
	assert.Equal(t, "0xba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", fingerprint.HashBytes([]byte("abc")).Prefixed())
}

func TestHashBytesDeterministic(t *testing.T) {
	b := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 4096)
	assert.Equal(t, fingerprint.HashBytes(b), fingerprint.HashBytes(b))

	fromReader, err := fingerprint.HashReader(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, fingerprint.HashBytes(b), fromReader)
}

func TestHashBytesSensitiveToSingleByte(t *testing.T) {
	a := []byte("invoice INV-1 total 100")
	b := bytes.Clone(a)
	b[len(b)-1] ^= 0x01
	assert.NotEqual(t, fingerprint.HashBytes(a), fingerprint.HashBytes(b))
}

func TestHashDocumentMatchesHashBytes(t *testing.T) {
	content := []byte("%PDF-1.7 fake")
	doc := entity.NewSourceDocument("inv.pdf", "application/pdf", content)
	assert.Equal(t, fingerprint.HashBytes(content), fingerprint.HashDocument(doc))
	assert.Len(t, fingerprint.HashDocument(doc).String(), 64)
}

func TestHashCanonicalJSONOrderIndependent(t *testing.T) {
	// Go maps carry no order; build the two records from differently ordered JSON text.
	var r1, r2 map[string]any
	dec := func(s string, into *map[string]any) {
		d := json.NewDecoder(bytes.NewReader([]byte(s)))
		d.UseNumber()
		require.NoError(t, d.Decode(into))
	}
	dec(`{"a":1,"b":2}`, &r1)
	dec(`{"b":2,"a":1}`, &r2)

	h1, err := fingerprint.HashCanonicalJSON(r1)
	require.NoError(t, err)
	h2, err := fingerprint.HashCanonicalJSON(r2)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, fingerprint.DataFingerprint("43258cff783fe7036d8a43033f830adfc60ec037382473548ac742b888292777"), h1)
}

func TestHashCanonicalJSONNumberFormatting(t *testing.T) {
	want, err := fingerprint.HashCanonicalJSON(map[string]any{"invoice_number": "INV-1", "total_amount": 100})
	require.NoError(t, err)
	assert.Equal(t, fingerprint.DataFingerprint("f0547c909ba70774544a26abfdcf476677382c972944f003b230b647d3403698"), want)

	for _, n := range []any{json.Number("100"), json.Number("100.0"), json.Number("1e2"), 100.0, int64(100)} {
		got, err := fingerprint.HashCanonicalJSON(map[string]any{"invoice_number": "INV-1", "total_amount": n})
		require.NoError(t, err)
		assert.Equal(t, want, got, "%v (%T)", n, n)
	}
}

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name string
		in   map[string]any
		want string
	}{
		{"empty", map[string]any{}, `{}`},
		{"sorted keys", map[string]any{"z": true, "a": "x", "m": false}, `{"a":"x","m":false,"z":true}`},
		{"escapes", map[string]any{"s": "a\"b\\c\n\u0001é"}, `{"s":"a\"b\\c\n\u0001é"}`},
		{"fractions", map[string]any{"n": json.Number("0.10")}, `{"n":0.1}`},
		{"small", map[string]any{"n": 1e-7}, `{"n":1e-7}`},
		{"large", map[string]any{"n": 1e21}, `{"n":1e+21}`},
		{"negative", map[string]any{"n": -12.5}, `{"n":-12.5}`},
		{"negative zero", map[string]any{"n": math.Copysign(0, -1)}, `{"n":0}`},
		{"integer past 2^53", map[string]any{"n": json.Number("9007199254740993")}, `{"n":9007199254740993}`},
		{"negative integer", map[string]any{"n": json.Number("-42")}, `{"n":-42}`},
		{"integer negative zero", map[string]any{"n": json.Number("-0")}, `{"n":0}`},
		{"uint64 max", map[string]any{"n": uint64(math.MaxUint64)}, `{"n":18446744073709551615}`},
		{"integer at 1e21", map[string]any{"n": json.Number("1000000000000000000000")}, `{"n":1e+21}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fingerprint.Canonicalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestHashCanonicalJSONEncodingErrors(t *testing.T) {
	cases := map[string]map[string]any{
		"nil record":   nil,
		"undefined":    {"a": nil},
		"nested":       {"a": map[string]any{"b": 1}},
		"array":        {"a": []any{1}},
		"nan":          {"a": math.NaN()},
		"inf":          {"a": math.Inf(1)},
		"bad number":   {"a": json.Number("1x")},
		"struct value": {"a": struct{}{}},
		"invalid utf8": {"a": "\xff"},
		"invalid key":  {"\xfe": "x"},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fingerprint.HashCanonicalJSON(rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrEncoding)
			assert.Equal(t, common.KindEncoding, common.Classify(err))
		})
	}
}

func TestHashCanonicalJSONLargeIntegersStayDistinct(t *testing.T) {
	a, err := fingerprint.HashCanonicalJSON(map[string]any{"n": json.Number("9007199254740993")})
	require.NoError(t, err)
	b, err := fingerprint.HashCanonicalJSON(map[string]any{"n": json.Number("9007199254740992")})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRecordEqualsHashOfMap(t *testing.T) {
	rec := entity.NewRecord(map[string]entity.FieldValue{
		"invoice_number": entity.StringValue("INV-1"),
		"total_amount":   entity.NumberValue("100"),
	})
	got, err := fingerprint.HashRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.DataFingerprint("f0547c909ba70774544a26abfdcf476677382c972944f003b230b647d3403698"), got)
}
