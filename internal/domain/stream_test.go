package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRequestValidate(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)

	tests := []struct {
		name    string
		req     StreamRequest
		wantErr bool
	}{
		{"structured with schema", StreamRequest{Mode: ModeStructured, Prompt: "p", Schema: schema}, false},
		{"structured without schema", StreamRequest{Mode: ModeStructured, Prompt: "p"}, true},
		{"freeform without schema", StreamRequest{Mode: ModeFreeform, Prompt: "p"}, false},
		{"freeform with schema", StreamRequest{Mode: ModeFreeform, Prompt: "p", Schema: schema}, true},
		{"unknown mode", StreamRequest{Mode: "batch", Prompt: "p"}, true},
		{"empty prompt", StreamRequest{Mode: ModeFreeform}, true},
		{"attachment without mime", StreamRequest{
			Mode:        ModeFreeform,
			Prompt:      "p",
			Attachments: []Attachment{{Data: []byte("x")}},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStreamResultDecode(t *testing.T) {
	res := &StreamResult{
		Mode: ModeStructured,
		Structured: map[string]any{
			"system_prompt": "write plainly",
			"style_profile": map[string]any{"tone": "dry"},
		},
	}

	var analysis StyleAnalysis
	require.NoError(t, res.Decode(&analysis))
	assert.Equal(t, "write plainly", analysis.SystemPrompt)
	assert.Equal(t, "dry", analysis.StyleProfile.Tone)
}

func TestStreamResultDecodeFreeform(t *testing.T) {
	res := &StreamResult{Mode: ModeFreeform, Text: "hi"}
	var v map[string]any
	assert.ErrorIs(t, res.Decode(&v), ErrInvalidInput)
}
