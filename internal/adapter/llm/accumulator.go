package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"scriptoria/internal/domain"
)

// FreeTextBuffer is the live answer of a freeform session. Every append is
// visible to the observer immediately; the buffer is the final result as-is.
type FreeTextBuffer struct {
	b      strings.Builder
	onText func(string)
}

// NewFreeTextBuffer returns an empty buffer. onText, if non-nil, receives
// the whole buffer after each append.
func NewFreeTextBuffer(onText func(string)) *FreeTextBuffer {
	return &FreeTextBuffer{onText: onText}
}

// Append adds answer text.
func (f *FreeTextBuffer) Append(text string) {
	f.b.WriteString(text)
	if f.onText != nil {
		f.onText(f.b.String())
	}
}

// String returns the text accumulated so far.
func (f *FreeTextBuffer) String() string { return f.b.String() }

// StructuredBuffer holds the answer of a structured session. Nothing is
// exposed until Finalize parses the whole buffer as one JSON document.
type StructuredBuffer struct {
	b      strings.Builder
	schema *jsonschema.Schema
}

// NewStructuredBuffer returns an empty buffer validating against schema.
// A nil schema skips validation.
func NewStructuredBuffer(schema *jsonschema.Schema) *StructuredBuffer {
	return &StructuredBuffer{schema: schema}
}

// Append adds answer text.
func (s *StructuredBuffer) Append(text string) { s.b.WriteString(text) }

// Len returns the number of buffered bytes.
func (s *StructuredBuffer) Len() int { return s.b.Len() }

// Finalize parses the buffer. Empty, unparseable, non-object or
// schema-violating content is reported as ErrNoStructuredResult.
func (s *StructuredBuffer) Finalize() (map[string]any, error) {
	raw := stripCodeFences(s.b.String())
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrNoStructuredResult)
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", domain.ErrNoStructuredResult, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: response is %T, not an object", domain.ErrNoStructuredResult, doc)
	}

	if s.schema != nil {
		result := s.schema.Validate(obj)
		if !result.IsValid() {
			return nil, fmt.Errorf("%w: schema mismatch: %s", domain.ErrNoStructuredResult, result.Error())
		}
	}
	return obj, nil
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
