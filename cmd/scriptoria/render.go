package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"scriptoria/internal/domain"
)

// thoughtPrinter writes the growing thought log to w, printing only text
// not yet shown. A new entry starts on its own line under a header.
type thoughtPrinter struct {
	w       io.Writer
	header  lipgloss.Style
	body    lipgloss.Style
	entries int
	printed int // bytes of the last entry already written
}

func newThoughtPrinter(w io.Writer) *thoughtPrinter {
	r := lipgloss.NewRenderer(w)
	return &thoughtPrinter{
		w:      w,
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		body:   r.NewStyle().Faint(true).Italic(true),
	}
}

func (p *thoughtPrinter) update(entries []domain.ThoughtLogEntry) {
	if len(entries) == 0 {
		return
	}
	if p.entries > 0 && p.entries <= len(entries) {
		last := entries[p.entries-1].Text
		if len(last) > p.printed {
			fmt.Fprint(p.w, renderLines(p.body, last[p.printed:]))
		}
	}
	for i := p.entries; i < len(entries); i++ {
		if i > 0 || p.entries > 0 {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintln(p.w, p.header.Render("thinking"))
		fmt.Fprint(p.w, renderLines(p.body, entries[i].Text))
	}
	p.entries = len(entries)
	p.printed = len(entries[len(entries)-1].Text)
}

// renderLines styles each line of s separately so multi-line fragments are
// not padded into a block.
func renderLines(style lipgloss.Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

// finish ends the thought block, if one was started.
func (p *thoughtPrinter) finish() {
	if p.entries > 0 {
		fmt.Fprint(p.w, "\n\n")
	}
}

// textPrinter writes each new suffix of the live answer to w.
type textPrinter struct {
	w       io.Writer
	printed int
}

func (p *textPrinter) update(full string) {
	if len(full) > p.printed {
		io.WriteString(p.w, full[p.printed:])
		p.printed = len(full)
	}
}

// terminalObserver streams thoughts to stderr and, when live is set, the
// answer to stdout. done closes both streams.
func terminalObserver(live bool) (obs domain.StreamObserver, done func()) {
	thoughts := newThoughtPrinter(os.Stderr)
	text := &textPrinter{w: os.Stdout}

	obs.OnThought = func(entries []domain.ThoughtLogEntry) {
		thoughts.update(entries)
	}
	textStarted := false
	if live {
		obs.OnText = func(full string) {
			if !textStarted {
				thoughts.finish()
				textStarted = true
			}
			text.update(full)
		}
	}
	return obs, func() {
		if !textStarted {
			thoughts.finish()
		}
		if text.printed > 0 {
			fmt.Fprintln(os.Stdout)
		}
	}
}

// renderMarkdown renders content for the terminal, falling back to the raw
// text when rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}
