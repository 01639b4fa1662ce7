package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"scriptoria/internal/domain"
)

func TestParseArgs(t *testing.T) {
	a, err := parseArgs([]string{"--topic", "Rivers", "--math", "--file=a.png", "--file", "b.pdf", "extra"}, "math")
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if got := a.get("topic"); got != "Rivers" {
		t.Errorf("topic = %q", got)
	}
	if !a.enabled("math") {
		t.Error("math flag not set")
	}
	if files := a.all("file"); len(files) != 2 || files[0] != "a.png" || files[1] != "b.pdf" {
		t.Errorf("file = %v", files)
	}
	if a.arg(0) != "extra" || a.arg(1) != "" {
		t.Errorf("positional = %v", a.positional)
	}
}

func TestParseArgsMissingValue(t *testing.T) {
	_, err := parseArgs([]string{"--topic"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestIntValue(t *testing.T) {
	a, _ := parseArgs([]string{"--index", "3", "--bad", "x"})
	if n, err := a.intValue("index", 0); err != nil || n != 3 {
		t.Errorf("index = %d, %v", n, err)
	}
	if n, err := a.intValue("missing", 7); err != nil || n != 7 {
		t.Errorf("missing = %d, %v", n, err)
	}
	if _, err := a.intValue("bad", 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad err = %v", err)
	}
}

func TestTaskFromArgs(t *testing.T) {
	a, _ := parseArgs([]string{"--topic", "Derivatives", "--math", "--subject", "Calculus"}, "math")
	task, err := taskFromArgs(a)
	if err != nil {
		t.Fatalf("taskFromArgs: %v", err)
	}
	if task.Kind != "math" || task.Subject != "Calculus" || task.Topic != "Derivatives" {
		t.Errorf("task = %+v", task)
	}

	a, _ = parseArgs(nil)
	if _, err := taskFromArgs(a); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing topic err = %v", err)
	}
}

func TestBoolFlagExplicitValue(t *testing.T) {
	for in, want := range map[string]bool{
		"--math":       true,
		"--math=true":  true,
		"--math=1":     true,
		"--math=false": false,
		"--math=0":     false,
	} {
		a, err := parseArgs([]string{in, "--topic", "x"}, "math")
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got := a.enabled("math"); got != want {
			t.Errorf("%s: enabled = %v, want %v", in, got, want)
		}
	}

	a, _ := parseArgs([]string{"--topic", "Rivers", "--math=false"}, "math")
	task, err := taskFromArgs(a)
	if err != nil {
		t.Fatalf("taskFromArgs: %v", err)
	}
	if task.Kind == "math" {
		t.Error("--math=false selected math mode")
	}

	if _, err := parseArgs([]string{"--math=maybe"}, "math"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("--math=maybe err = %v, want ErrInvalidInput", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("wrap: %w", domain.ErrInvalidInput), exitUsage},
		{"transport", domain.ErrTransport, exitSession},
		{"no structured result", domain.ErrNoStructuredResult, exitSession},
		{"missing credential", domain.ErrMissingCredential, exitSession},
		{"canceled stream", fmt.Errorf("%w: read stream: %w", domain.ErrTransport, context.Canceled), exitCanceled},
		{"store", domain.ErrStore, exitFailure},
		{"plain", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFailureLine(t *testing.T) {
	err := domain.WrapOp("homework.generate", fmt.Errorf("%w: api key rejected", domain.ErrTransport))
	if got, want := failureLine("homework", err), "homework: [TRANSPORT] homework.generate: transport error: api key rejected"; got != want {
		t.Errorf("failureLine = %q, want %q", got, want)
	}

	canceled := fmt.Errorf("%w: read stream: %w", domain.ErrTransport, context.Canceled)
	if got := failureLine("humanize", canceled); got != "humanize: canceled" {
		t.Errorf("failureLine = %q", got)
	}
}
