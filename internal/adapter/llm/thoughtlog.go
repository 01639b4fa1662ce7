package llm

import "scriptoria/internal/domain"

// ThoughtLog coalesces reasoning fragments into entries. Consecutive thought
// fragments grow one entry; an answer fragment in between closes it so the
// next thought starts a new one. No two adjacent entries are ever produced
// from one uninterrupted run.
type ThoughtLog struct {
	entries  []domain.ThoughtLogEntry
	open     bool
	onChange func([]domain.ThoughtLogEntry)
}

// NewThoughtLog returns an empty log. onChange, if non-nil, receives a
// snapshot after every change.
func NewThoughtLog(onChange func([]domain.ThoughtLogEntry)) *ThoughtLog {
	return &ThoughtLog{onChange: onChange}
}

// Append adds a thought fragment.
func (l *ThoughtLog) Append(text string) {
	if text == "" {
		return
	}
	n := len(l.entries)
	if n == 0 || !l.open || !l.entries[n-1].IsThought {
		l.entries = append(l.entries, domain.ThoughtLogEntry{Text: text, IsThought: true})
	} else {
		l.entries[n-1].Text += text
	}
	l.open = true
	l.notify()
}

// Interrupt marks a non-thought fragment between thoughts.
func (l *ThoughtLog) Interrupt() { l.open = false }

// Entries returns a copy of the log.
func (l *ThoughtLog) Entries() []domain.ThoughtLogEntry {
	out := make([]domain.ThoughtLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *ThoughtLog) Len() int { return len(l.entries) }

func (l *ThoughtLog) notify() {
	if l.onChange != nil {
		l.onChange(l.Entries())
	}
}
