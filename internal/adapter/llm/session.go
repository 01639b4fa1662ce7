package llm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kaptinlin/jsonschema"

	"scriptoria/internal/domain"
)

// StreamSession owns the state of one streaming call: the frame decoder,
// the thought log and the answer accumulator for its mode. It is created per
// call, driven from a single goroutine and never reused.
type StreamSession struct {
	id     string
	mode   domain.CallMode
	state  domain.SessionState
	logger *slog.Logger

	decoder    FrameDecoder
	thoughts   *ThoughtLog
	text       *FreeTextBuffer   // ModeFreeform
	structured *StructuredBuffer // ModeStructured
	router     router

	usage        *geminiUsage
	finishReason string
	malformed    int
}

// NewStreamSession prepares an IDLE session. schema is used only in
// structured mode.
func NewStreamSession(id string, mode domain.CallMode, schema *jsonschema.Schema, obs domain.StreamObserver, logger *slog.Logger) *StreamSession {
	s := &StreamSession{
		id:       id,
		mode:     mode,
		state:    domain.StateIdle,
		logger:   logger.With("session", id),
		thoughts: NewThoughtLog(obs.OnThought),
	}

	var sink textSink
	if mode == domain.ModeStructured {
		s.structured = NewStructuredBuffer(schema)
		sink = s.structured
	} else {
		s.text = NewFreeTextBuffer(obs.OnText)
		sink = s.text
	}
	s.router = router{thoughts: s.thoughts, content: sink}
	return s
}

// ID returns the session identifier.
func (s *StreamSession) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *StreamSession) State() domain.SessionState { return s.state }

// Thoughts returns a copy of the thought log.
func (s *StreamSession) Thoughts() []domain.ThoughtLogEntry { return s.thoughts.Entries() }

// Text returns the live freeform buffer. It is empty in structured mode.
func (s *StreamSession) Text() string {
	if s.text == nil {
		return ""
	}
	return s.text.String()
}

// Usage returns the most recent token accounting seen on the stream.
func (s *StreamSession) Usage() *geminiUsage { return s.usage }

// FinishReason returns the last finish reason reported by the model.
func (s *StreamSession) FinishReason() string { return s.finishReason }

// MalformedFrames counts data frames whose JSON could not be parsed.
func (s *StreamSession) MalformedFrames() int { return s.malformed }

func (s *StreamSession) setState(next domain.SessionState) {
	s.logger.Debug("stream session state", "from", s.state, "to", next)
	s.state = next
}

// Fail moves the session to FAILED and returns err unchanged.
func (s *StreamSession) Fail(err error) error {
	if s.state != domain.StateFailed {
		s.logger.Warn("stream session failed", "state", s.state, "error", err)
		s.setState(domain.StateFailed)
	}
	return err
}

// Feed processes one transport chunk to completion: every complete line is
// decoded and every fragment routed before Feed returns.
func (s *StreamSession) Feed(chunk []byte) {
	for _, f := range s.decoder.Feed(chunk) {
		if f.Kind == FrameDone {
			continue
		}
		s.handleFrame(f.Data)
	}
}

func (s *StreamSession) handleFrame(data []byte) {
	p, err := decodePayload(data)
	if err != nil {
		s.malformed++
		s.logger.Warn("skipping malformed stream frame", "error", err, "bytes", len(data))
		return
	}
	if p.ShapeMiss {
		s.logger.Debug("stream frame without content parts")
	}
	if p.Usage != nil {
		s.usage = p.Usage
	}
	if p.FinishReason != "" {
		s.finishReason = p.FinishReason
	}
	s.router.route(p.Fragments)
}

// Consume reads r in chunks of up to bufSize bytes until EOF. A read error,
// including cancellation of the underlying request, fails the session with
// ErrTransport.
func (s *StreamSession) Consume(r io.Reader, bufSize int) error {
	if s.state != domain.StateStreaming {
		s.setState(domain.StateStreaming)
	}
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			s.logger.Debug("stream read interrupted", "pending_bytes", s.decoder.Pending())
			return s.Fail(fmt.Errorf("%w: read stream: %w", domain.ErrTransport, err))
		}
	}
}

// Finish ends the stream and produces the result. A trailing unterminated
// line is dropped.
func (s *StreamSession) Finish() (*domain.StreamResult, error) {
	if dropped := s.decoder.Finish(); dropped > 0 {
		s.logger.Debug("dropping unterminated trailing line", "bytes", dropped)
	}

	result := &domain.StreamResult{
		Mode:      s.mode,
		Thoughts:  s.thoughts.Entries(),
		SessionID: s.id,
	}

	if s.mode == domain.ModeStructured {
		doc, err := s.structured.Finalize()
		if err != nil {
			return nil, s.Fail(err)
		}
		result.Structured = doc
	} else {
		result.Text = s.text.String()
	}

	s.setState(domain.StateComplete)
	return result, nil
}
