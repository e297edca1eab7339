package entity

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-attestor/constants"
)

// FieldSpec describes one field requested from the extraction model.
type FieldSpec struct {
	Name        string              `json:"name"`
	Kind        constants.FieldKind `json:"kind"`
	Description string              `json:"description,omitempty"`
	Required    bool                `json:"required,omitempty"`
}

// DefaultInvoiceSchema is the invoice field set used when a caller passes none.
func DefaultInvoiceSchema() []FieldSpec {
	return []FieldSpec{
		{Name: constants.FieldInvoiceNumber, Kind: constants.FieldString, Description: "the invoice number as printed", Required: true},
		{Name: constants.FieldInvoiceDate, Kind: constants.FieldISODate, Description: "the invoice date"},
		{Name: constants.FieldVendorGSTIN, Kind: constants.FieldString, Description: "the vendor's 15-character GSTIN"},
		{Name: constants.FieldTaxableAmount, Kind: constants.FieldNumber, Description: "amount before tax"},
		{Name: constants.FieldTotalTax, Kind: constants.FieldNumber, Description: "sum of all taxes"},
		{Name: constants.FieldTotalAmount, Kind: constants.FieldNumber, Description: "grand total payable"},
	}
}

type ValueKind int

const (
	ValueString ValueKind = iota + 1
	ValueNumber
	ValueBool
)

// FieldValue is a tagged scalar. Numbers keep their textual form.
type FieldValue struct {
	kind ValueKind
	str  string
	num  json.Number
	b    bool
}

func StringValue(s string) FieldValue      { return FieldValue{kind: ValueString, str: s} }
func NumberValue(n json.Number) FieldValue { return FieldValue{kind: ValueNumber, num: n} }
func BoolValue(b bool) FieldValue          { return FieldValue{kind: ValueBool, b: b} }

func (v FieldValue) Kind() ValueKind { return v.kind }

// Any returns the value as string, json.Number or bool.
func (v FieldValue) Any() any {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num
	case ValueBool:
		return v.b
	}
	return nil
}

func (v FieldValue) String() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num.String()
	case ValueBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// ExtractedRecord is the validated set of scalar fields read from a document.
type ExtractedRecord struct {
	fields map[string]FieldValue
}

func NewRecord(fields map[string]FieldValue) ExtractedRecord {
	cp := make(map[string]FieldValue, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return ExtractedRecord{fields: cp}
}

// RecordFromMap ingests a decoded model response. Keys are folded onto the
// schema (exact names first, then synonyms), nulls, empty strings and
// non-scalar values are dropped, as are keys outside a non-empty schema.
// The returned slice lists what was dropped, for logging.
func RecordFromMap(raw map[string]any, schema []FieldSpec) (ExtractedRecord, []string) {
	allowed := make(map[string]struct{}, len(schema))
	for _, f := range schema {
		allowed[f.Name] = struct{}{}
	}
	inSchema := func(k string) bool {
		if len(allowed) == 0 {
			return true
		}
		_, ok := allowed[k]
		return ok
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make(map[string]FieldValue, len(raw))
	var dropped []string
	var synonyms []string
	for _, k := range keys {
		if !inSchema(k) {
			synonyms = append(synonyms, k)
			continue
		}
		if v, ok := toFieldValue(raw[k]); ok {
			fields[k] = v
		} else {
			dropped = append(dropped, k)
		}
	}
	for _, k := range synonyms {
		canon := constants.CanonicalFieldKey(k)
		if !inSchema(canon) {
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		if _, taken := fields[canon]; taken {
			dropped = append(dropped, k+"(shadowed)")
			continue
		}
		if v, ok := toFieldValue(raw[k]); ok {
			fields[canon] = v
		} else {
			dropped = append(dropped, k)
		}
	}
	return ExtractedRecord{fields: fields}, dropped
}

func toFieldValue(v any) (FieldValue, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return FieldValue{}, false
		}
		return StringValue(s), true
	case json.Number:
		return NumberValue(t), true
	case float64:
		return NumberValue(json.Number(strconv.FormatFloat(t, 'f', -1, 64))), true
	case int:
		return NumberValue(json.Number(strconv.Itoa(t))), true
	case bool:
		return BoolValue(t), true
	default:
		return FieldValue{}, false
	}
}

func (r ExtractedRecord) Len() int { return len(r.fields) }

func (r ExtractedRecord) IsEmpty() bool { return len(r.fields) == 0 }

func (r ExtractedRecord) Get(key string) (FieldValue, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Keys returns field names in sorted order.
func (r ExtractedRecord) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a fresh generic view of the record.
func (r ExtractedRecord) Map() map[string]any {
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v.Any()
	}
	return out
}

func (r ExtractedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// RecordID is the invoice number, trimmed; empty when absent.
func (r ExtractedRecord) RecordID() string {
	v, ok := r.fields[constants.FieldInvoiceNumber]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// Invoice is the typed view of the invoice fields. Absent or unparsable
// fields stay nil.
type Invoice struct {
	Number        *string
	Date          *time.Time
	VendorGSTIN   *string
	TaxableAmount *json.Number
	TotalTax      *json.Number
	TotalAmount   *json.Number
}

func (r ExtractedRecord) Invoice() Invoice {
	var inv Invoice
	if id := r.RecordID(); id != "" {
		inv.Number = &id
	}
	if v, ok := r.fields[constants.FieldInvoiceDate]; ok {
		if t, err := time.Parse(time.DateOnly, v.String()); err == nil {
			inv.Date = &t
		}
	}
	if v, ok := r.fields[constants.FieldVendorGSTIN]; ok && v.kind == ValueString {
		s := strings.ToUpper(v.str)
		inv.VendorGSTIN = &s
	}
	inv.TaxableAmount = r.number(constants.FieldTaxableAmount)
	inv.TotalTax = r.number(constants.FieldTotalTax)
	inv.TotalAmount = r.number(constants.FieldTotalAmount)
	return inv
}

func (r ExtractedRecord) number(key string) *json.Number {
	v, ok := r.fields[key]
	if !ok {
		return nil
	}
	switch v.kind {
	case ValueNumber:
		n := v.num
		return &n
	case ValueString:
		s := strings.ReplaceAll(v.str, ",", "")
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			n := json.Number(s)
			return &n
		}
	}
	return nil
}
