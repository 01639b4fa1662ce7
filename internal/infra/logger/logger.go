package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scriptoria/internal/infra/config"
)

const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the log.
var secretKeys = map[string]bool{
	"api_key":    true,
	"key":        true,
	"passphrase": true,
	"store_key":  true,
}

// New builds the scriptoria logger. Attributes named like secrets are
// redacted and any "key=" query parameter inside a string value is masked,
// since the Gemini endpoint carries the API key in its URL.
// The returned closer releases a log file, if one was opened.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("app", "scriptoria"), closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); strings.Contains(s, "key=") {
			return slog.String(a.Key, maskKeyParam(s))
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok && strings.Contains(err.Error(), "key=") {
			return slog.String(a.Key, maskKeyParam(err.Error()))
		}
	}
	return a
}

// maskKeyParam replaces the value of every key= parameter in s.
func maskKeyParam(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "key=")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i+len("key=")])
		b.WriteString(redacted)
		s = s[i+len("key="):]
		end := strings.IndexAny(s, "&\" \n")
		if end < 0 {
			return b.String()
		}
		s = s[end:]
	}
}

// parseLevel accepts slog level names ("debug", "INFO", "warn+2") and the
// alias "warning". Anything else is info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// openOutput resolves the logger.output setting. Log lines go to stderr by
// default so they never mix with generated text on stdout.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stderr", "":
		return os.Stderr, noop, nil
	case "stdout":
		return os.Stdout, noop, nil
	case "discard", "none":
		return io.Discard, noop, nil
	}

	if dir := filepath.Dir(output); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, nil, fmt.Errorf("log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
