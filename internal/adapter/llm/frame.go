package llm

import "bytes"

// FrameKind distinguishes payload frames from the end-of-stream marker.
type FrameKind int

const (
	// FrameData carries one JSON payload with the "data: " prefix removed.
	FrameData FrameKind = iota
	// FrameDone is the literal "data: [DONE]" sentinel.
	FrameDone
)

// RawFrame is one decoded event-stream line.
type RawFrame struct {
	Kind FrameKind
	Data []byte
}

var (
	dataPrefix = []byte("data: ")
	doneMarker = []byte("[DONE]")
)

// FrameDecoder turns arbitrarily split chunks of an SSE body into complete
// data lines. It keeps a single pending buffer holding the trailing partial
// line, so the frames produced never depend on where chunk boundaries fall.
//
// A FrameDecoder never fails: lines that are not data lines are dropped, and
// data lines with malformed payloads are passed through for the router to
// reject.
type FrameDecoder struct {
	pending []byte
}

// Feed appends chunk to the pending buffer and returns a frame for every
// complete data line it now holds.
func (d *FrameDecoder) Feed(chunk []byte) []RawFrame {
	d.pending = append(d.pending, chunk...)

	var frames []RawFrame
	start := 0
	for {
		i := bytes.IndexByte(d.pending[start:], '\n')
		if i < 0 {
			break
		}
		if f, ok := decodeLine(d.pending[start : start+i]); ok {
			frames = append(frames, f)
		}
		start += i + 1
	}

	if start > 0 {
		n := copy(d.pending, d.pending[start:])
		d.pending = d.pending[:n]
	}
	return frames
}

// Pending reports how many bytes of an unterminated line are buffered.
func (d *FrameDecoder) Pending() int { return len(d.pending) }

// Finish ends the stream. Any buffered partial line is discarded and its
// length returned so the caller can report it.
func (d *FrameDecoder) Finish() int {
	n := len(d.pending)
	d.pending = nil
	return n
}

func decodeLine(line []byte) (RawFrame, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, dataPrefix) {
		return RawFrame{}, false
	}
	payload := line[len(dataPrefix):]
	if bytes.Equal(payload, doneMarker) {
		return RawFrame{Kind: FrameDone}, true
	}
	// Copy out of the pending buffer, which is compacted in place.
	return RawFrame{Kind: FrameData, Data: bytes.Clone(payload)}, true
}
