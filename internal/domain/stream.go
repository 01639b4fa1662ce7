package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// CallMode selects how a stream session treats answer fragments.
type CallMode string

const (
	// ModeStructured defers answer text and parses it as one JSON document
	// at stream end.
	ModeStructured CallMode = "structured"
	// ModeFreeform appends answer text to a live buffer as it arrives.
	ModeFreeform CallMode = "freeform"
)

// Attachment is an inline file sent alongside the prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// GenerationParams are the sampling and reasoning knobs sent with a request.
type GenerationParams struct {
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
	ThinkingBudget  int
}

// StreamRequest describes one call to the model. It is not modified by the
// streamer.
type StreamRequest struct {
	Mode              CallMode
	Prompt            string
	SystemInstruction string
	Attachments       []Attachment
	Schema            json.RawMessage // structured mode only
	Params            GenerationParams
}

// Validate checks the mode/schema pairing and the prompt.
func (r StreamRequest) Validate() error {
	switch r.Mode {
	case ModeStructured:
		if len(r.Schema) == 0 {
			return fmt.Errorf("%w: structured mode requires a response schema", ErrInvalidInput)
		}
	case ModeFreeform:
		if len(r.Schema) != 0 {
			return fmt.Errorf("%w: freeform mode must not carry a response schema", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown call mode %q", ErrInvalidInput, r.Mode)
	}
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidInput)
	}
	for i, a := range r.Attachments {
		if a.MIMEType == "" {
			return fmt.Errorf("%w: attachment %d has no mime type", ErrInvalidInput, i)
		}
	}
	return nil
}

// ContentFragment is one part extracted from a streamed payload.
type ContentFragment struct {
	Text      string
	IsThought bool
}

// ThoughtLogEntry is one coalesced run of reasoning text.
type ThoughtLogEntry struct {
	Text      string `json:"text"`
	IsThought bool   `json:"isThought"`
}

// StreamResult is either free text or a parsed structured document,
// selected by Mode.
type StreamResult struct {
	Mode       CallMode
	Text       string         // ModeFreeform
	Structured map[string]any // ModeStructured
	Thoughts   []ThoughtLogEntry
	SessionID  string
}

// Decode re-marshals a structured result into v.
func (r *StreamResult) Decode(v any) error {
	if r.Mode != ModeStructured {
		return fmt.Errorf("%w: result is %s, not structured", ErrInvalidInput, r.Mode)
	}
	data, err := json.Marshal(r.Structured)
	if err != nil {
		return fmt.Errorf("marshal structured result: %w", err)
	}
	return json.Unmarshal(data, v)
}

// SessionState is the lifecycle position of one stream session.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateSending   SessionState = "sending"
	StateStreaming SessionState = "streaming"
	StateComplete  SessionState = "complete"
	StateFailed    SessionState = "failed"
)

// StreamObserver receives live updates while a session runs. Both callbacks
// get full snapshots, not deltas. Either may be nil.
type StreamObserver struct {
	OnThought func(entries []ThoughtLogEntry)
	OnText    func(text string)
}

// Streamer runs one streaming call to completion.
type Streamer interface {
	Stream(ctx context.Context, req StreamRequest, obs StreamObserver) (*StreamResult, error)
}

// KeySource supplies the API key for a call.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}
