package llm

import (
	"encoding/json"

	"scriptoria/internal/domain"
)

// decodedPayload is what one data frame contributes to a session.
type decodedPayload struct {
	Fragments    []domain.ContentFragment
	Usage        *geminiUsage
	FinishReason string
	ShapeMiss    bool // no candidates[0].content.parts in an otherwise valid payload
}

// decodePayload parses one frame. Only a JSON syntax error is returned.
// Each level is decoded on its own: a wrongly typed level yields no
// fragments, and a wrongly typed metadata field is dropped without losing
// the frame's parts.
func decodePayload(data []byte) (decodedPayload, error) {
	var resp struct {
		Candidates    json.RawMessage `json:"candidates"`
		UsageMetadata json.RawMessage `json:"usageMetadata"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return decodedPayload{}, err
	}

	var out decodedPayload
	if len(resp.UsageMetadata) > 0 {
		var u geminiUsage
		if json.Unmarshal(resp.UsageMetadata, &u) == nil {
			out.Usage = &u
		}
	}

	var cands []struct {
		Content      json.RawMessage `json:"content"`
		FinishReason json.RawMessage `json:"finishReason"`
	}
	if json.Unmarshal(resp.Candidates, &cands) != nil || len(cands) == 0 {
		out.ShapeMiss = true
		return out, nil
	}

	cand := cands[0]
	_ = json.Unmarshal(cand.FinishReason, &out.FinishReason)

	var content struct {
		Parts []json.RawMessage `json:"parts"`
	}
	if json.Unmarshal(cand.Content, &content) != nil || len(content.Parts) == 0 {
		out.ShapeMiss = true
		return out, nil
	}

	out.Fragments = make([]domain.ContentFragment, 0, len(content.Parts))
	for _, raw := range content.Parts {
		var p geminiPart
		if json.Unmarshal(raw, &p) != nil {
			continue
		}
		out.Fragments = append(out.Fragments, domain.ContentFragment{Text: p.Text, IsThought: p.Thought})
	}
	return out, nil
}

// textSink receives answer text for the active call mode.
type textSink interface {
	Append(text string)
}

// router dispatches fragments in array order: thoughts go to the log,
// non-empty answer text goes to the sink and closes the current thought entry.
type router struct {
	thoughts *ThoughtLog
	content  textSink
}

func (r *router) route(frags []domain.ContentFragment) {
	for _, f := range frags {
		if f.IsThought {
			r.thoughts.Append(f.Text)
			continue
		}
		if f.Text == "" {
			continue
		}
		r.thoughts.Interrupt()
		r.content.Append(f.Text)
	}
}
