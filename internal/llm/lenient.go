package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
)

// ExtractJSONObject returns the first balanced {...} in text that parses as
// JSON. Braces inside JSON strings are ignored, so prose and code fences around
// the object do not matter, and a braced aside like "{see below}" is skipped.
// When no candidate parses, the first balanced one is returned so the decoder
// reports why.
func ExtractJSONObject(text string) (string, error) {
	first := ""
	for start := strings.IndexByte(text, '{'); start >= 0; {
		obj, ok := balancedObject(text[start:])
		if ok {
			if json.Valid([]byte(obj)) {
				return obj, nil
			}
			if first == "" {
				first = obj
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	switch {
	case first != "":
		return first, nil
	case strings.IndexByte(text, '{') < 0:
		return "", common.NewKindError(common.KindMalformedResponse, "no JSON object in model response", nil)
	}
	return "", common.NewKindError(common.KindMalformedResponse, "unterminated JSON object in model response", nil)
}

// balancedObject scans text, which starts with '{', to its matching '}'.
func balancedObject(text string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}

// DecodeObject locates and parses the first JSON object in text. Numbers are
// kept as json.Number.
func DecodeObject(text string) (map[string]any, error) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, common.NewKindError(common.KindMalformedResponse, "model response is not valid JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, common.NewKindError(common.KindMalformedResponse, "trailing data after JSON object", err)
	}
	return m, nil
}

// Compact re-encodes a JSON object without whitespace, for logging and validation.
func Compact(obj string) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(obj)); err != nil {
		return []byte(obj)
	}
	return buf.Bytes()
}
