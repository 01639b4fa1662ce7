package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateStore(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLLM(cfg *Config, ve *ValidationError) {
	l := cfg.LLM

	u, err := url.Parse(l.BaseURL)
	if l.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("llm.base_url must be an absolute http(s) URL, got %q", l.BaseURL)
	}
	if l.StructuredModel == "" {
		ve.Add("llm.structured_model must not be empty")
	}
	if l.FreeformModel == "" {
		ve.Add("llm.freeform_model must not be empty")
	}
	if l.ConnTimeout < 0 {
		ve.Add("llm.conn_timeout must be >= 0")
	}
	if l.RespTimeout < 0 {
		ve.Add("llm.resp_timeout must be >= 0")
	}
	if l.RequestsPerMinute < 0 {
		ve.Add("llm.requests_per_minute must be >= 0")
	}
	if l.RequestsPerMinute > 0 && l.Burst <= 0 {
		ve.Add("llm.burst must be > 0 when requests_per_minute is set")
	}
	if l.CircuitBreaker.Enabled && l.CircuitBreaker.Timeout < 0 {
		ve.Add("llm.circuit_breaker.timeout must be >= 0")
	}

	validateGeneration("llm.structured", l.Structured, ve)
	validateGeneration("llm.freeform", l.Freeform, ve)
}

func validateGeneration(prefix string, g GenerationConfig, ve *ValidationError) {
	if g.Temperature < 0 || g.Temperature > 2 {
		ve.Add("%s.temperature must be within [0, 2], got %g", prefix, g.Temperature)
	}
	if g.TopP <= 0 || g.TopP > 1 {
		ve.Add("%s.top_p must be within (0, 1], got %g", prefix, g.TopP)
	}
	if g.MaxOutputTokens <= 0 {
		ve.Add("%s.max_output_tokens must be > 0", prefix)
	}
	if g.ThinkingBudget < 0 {
		ve.Add("%s.thinking_budget must be >= 0", prefix)
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if strings.TrimSpace(cfg.Store.Path) == "" {
		ve.Add("store.path must not be empty")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is not supported (noop, stdout)", cfg.Tracer.Exporter)
	}
}
