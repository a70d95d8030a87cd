package movie

import (
	"bytes"
	"encoding/json"
	"strings"
)

// EncodeList serializes a text sequence for an array column. Non-ASCII text
// is written as-is and a nil slice encodes as "[]".
func EncodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "[]"
	}
	return strings.TrimRight(buf.String(), "\n")
}

// DecodeList is the read-side counterpart of EncodeList. Anything that is not
// a JSON array of strings decodes to an empty sequence.
func DecodeList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil || items == nil {
		return []string{}
	}
	return items
}
