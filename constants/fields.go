package constants

import "strings"

// FieldKind is the expected shape of an extracted field.
type FieldKind string

const (
	FieldString  FieldKind = "string"
	FieldISODate FieldKind = "iso-date"
	FieldNumber  FieldKind = "number"
)

// Invoice field keys requested from the model.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldVendorGSTIN   = "vendor_gstin"
	FieldTaxableAmount = "taxable_amount"
	FieldTotalTax      = "total_tax"
	FieldTotalAmount   = "total_amount"
)

// GSTINLength is the fixed length of an Indian GST identification number.
const GSTINLength = 15

var fieldSynonyms = map[string]string{
	"invoice_no":     FieldInvoiceNumber,
	"invoice_num":    FieldInvoiceNumber,
	"invoicenumber":  FieldInvoiceNumber,
	"bill_number":    FieldInvoiceNumber,
	"date":           FieldInvoiceDate,
	"invoicedate":    FieldInvoiceDate,
	"bill_date":      FieldInvoiceDate,
	"gstin":          FieldVendorGSTIN,
	"vendorgstin":    FieldVendorGSTIN,
	"supplier_gstin": FieldVendorGSTIN,
	"seller_gstin":   FieldVendorGSTIN,
	"taxableamount":  FieldTaxableAmount,
	"taxable_value":  FieldTaxableAmount,
	"subtotal":       FieldTaxableAmount,
	"tax":            FieldTotalTax,
	"totaltax":       FieldTotalTax,
	"tax_amount":     FieldTotalTax,
	"total":          FieldTotalAmount,
	"totalamount":    FieldTotalAmount,
	"grand_total":    FieldTotalAmount,
	"amount_due":     FieldTotalAmount,
}

// CanonicalFieldKey lowercases a model-supplied key, folds spaces and dashes
// to underscores and maps known synonyms onto the invoice field keys.
func CanonicalFieldKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	if canon, ok := fieldSynonyms[k]; ok {
		return canon
	}
	return k
}
