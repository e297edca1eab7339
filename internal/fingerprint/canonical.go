package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
)

// Canonicalize serializes a flat record: keys sorted by byte order, no
// whitespace, numbers in shortest round-trip form (100, 100.0 and 1e2 all
// render as 100), strings with a fixed escaping table.
func Canonicalize(record map[string]any) ([]byte, error) {
	if record == nil {
		return nil, common.NewKindError(common.KindEncoding, "record is nil", nil)
	}
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return nil, common.NewKindError(common.KindEncoding, fmt.Sprintf("key %q", k), err)
		}
		buf.WriteByte(':')
		if err := writeScalar(buf, record[k]); err != nil {
			return nil, common.NewKindError(common.KindEncoding, fmt.Sprintf("field %q", k), err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeScalar(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		return fmt.Errorf("undefined value")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case string:
		return writeString(buf, v)
	case json.Number:
		if s, ok := integerLiteral(v.String()); ok {
			buf.WriteString(s)
			return nil
		}
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", v.String(), err)
		}
		return writeFloat(buf, f)
	case float64:
		return writeFloat(buf, v)
	case float32:
		return writeFloat(buf, float64(v))
	case int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(v, 10))
	default:
		return fmt.Errorf("unsupported value type %T", value)
	}
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	s, err := formatNumber(f)
	if err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

// integerLiteral returns the exact decimal form of an integer literal below
// 1e21. Integers past 2^53 keep every digit here, where JavaScript would round
// them; fractions and exponents take the float path.
func integerLiteral(s string) (string, bool) {
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	if digits == "" {
		return "", false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", false
		}
	}
	digits = strings.TrimLeft(digits, "0")
	switch {
	case digits == "":
		return "0", true
	case len(digits) > 21:
		return "", false
	case neg:
		return "-" + digits, true
	}
	return digits, true
}

// writeString rejects invalid UTF-8 so distinct byte strings never share an encoding.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8 in string")
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

var hexLower = []byte("0123456789abcdef")

// formatNumber follows the ECMAScript Number-to-String rule so digests match
// what a JavaScript JSON.stringify of the same record would hash.
func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number")
	}
	if f == 0 {
		return "0", nil
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, expStr, _ := strings.Cut(s, "e")
	exp, err := strconv.Atoi(expStr)
	if err != nil {
		return "", fmt.Errorf("invalid float exponent in %q: %w", s, err)
	}
	digits := strings.ReplaceAll(mantissa, ".", "")

	if exp <= -7 || exp >= 21 {
		expPart := "e" + strconv.Itoa(exp)
		if exp > 0 {
			expPart = "e+" + strconv.Itoa(exp)
		}
		if len(digits) == 1 {
			return sign + digits + expPart, nil
		}
		return sign + digits[:1] + "." + digits[1:] + expPart, nil
	}

	point := exp + 1
	switch {
	case point >= len(digits):
		return sign + digits + strings.Repeat("0", point-len(digits)), nil
	case point <= 0:
		return sign + "0." + strings.Repeat("0", -point) + digits, nil
	default:
		return sign + digits[:point] + "." + digits[point:], nil
	}
}
