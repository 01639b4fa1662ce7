package usecase

import (
	"strings"
	"testing"
)

func TestFillTemplate(t *testing.T) {
	got := fillTemplate("a={{A}} b={{B}} c={{C}}", map[string]string{"A": "1", "B": "{{A}}"})
	if got != "a=1 b={{A}} c={{C}}" {
		t.Errorf("fillTemplate = %q", got)
	}
}

func TestTemplatesHavePlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		tmpl  string
		names []string
	}{
		{"style", styleAnalysisPrompt, []string{"VIBE", "ARGUMENT", "HOWTO", "CANCEL"}},
		{"system", ghostwriterSystemPrompt, []string{"STYLE_PROFILE"}},
		{"text", homeworkTextPrompt, []string{"TASK_TYPE", "TOPIC", "SUBJECT", "DETAILS"}},
		{"math", homeworkMathPrompt, []string{"TOPIC", "SUBJECT", "DETAILS"}},
		{"humanize", humanizePrompt, []string{"STYLE_PROFILE", "CONTENT"}},
	}
	for _, tt := range tests {
		for _, n := range tt.names {
			if !strings.Contains(tt.tmpl, "{{"+n+"}}") {
				t.Errorf("%s template lacks {{%s}}", tt.name, n)
			}
		}
	}
}

func TestOrDefault(t *testing.T) {
	if got := orDefault("  ", "General"); got != "General" {
		t.Errorf("orDefault blank = %q", got)
	}
	if got := orDefault("Physics", "General"); got != "Physics" {
		t.Errorf("orDefault set = %q", got)
	}
}
