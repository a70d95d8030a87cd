package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

var expectedKeys = []string{"director", "actors", "year", "country", "genres"}

// Years outside this range are treated as unparseable.
const (
	minYear = 1
	maxYear = 9999
)

// decodeFields turns reply content into Fields. Missing keys are reported in
// the returned slice and left null.
func decodeFields(content string) (*movie.Fields, []string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(content))))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decode reply: %w", err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("decode reply: not an object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("decode reply: trailing data after object")
	}

	var missing []string
	for _, k := range expectedKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}

	return &movie.Fields{
		Director: textValue(raw["director"]),
		Actors:   listValue(raw["actors"]),
		Year:     yearValue(raw["year"]),
		Country:  textValue(raw["country"]),
		Genres:   listValue(raw["genres"]),
	}, missing, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func textValue(v any) *string {
	if items, ok := v.([]any); ok {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if s := scalarString(it); s != "" {
				parts = append(parts, s)
			}
		}
		return movie.StringPtr(strings.Join(parts, " / "))
	}
	return movie.StringPtr(scalarString(v))
}

func listValue(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case nil:
	case []any:
		for _, it := range t {
			if s := scalarString(it); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := scalarString(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func yearValue(v any) *int {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return boundedYear(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < minYear || f > maxYear {
		return nil
	}
	return movie.IntPtr(int(f))
}

func boundedYear(n int) *int {
	if n < minYear || n > maxYear {
		return nil
	}
	return movie.IntPtr(n)
}
