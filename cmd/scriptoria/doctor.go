package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"scriptoria/internal/adapter/llm"
	"scriptoria/internal/adapter/store"
	"scriptoria/internal/infra/config"
	"scriptoria/internal/usecase"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// doctorEnv is what the checks inspect. cfg is nil when loading failed;
// kv is nil when the store could not be opened.
type doctorEnv struct {
	cfgPath string
	cfg     *config.Config
	cfgErr  error
	kv      *store.SQLiteStore
	kvErr   error
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context, env *doctorEnv) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(ctx context.Context, _ []string) error {
	env := &doctorEnv{cfgPath: configPath()}
	env.cfg, env.cfgErr = config.Load(env.cfgPath)
	if env.cfg != nil {
		env.kv, env.kvErr = store.NewSQLiteStore(env.cfg.Store.Path)
		if env.kv != nil {
			defer env.kv.Close()
		}
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile},
		{Name: "Store", Fn: checkStore},
		{Name: "API key", Fn: checkAPIKey},
		{Name: "Style profile", Fn: checkStyleProfile},
		{Name: "Circuit breaker", Fn: checkBreaker},
		{Name: "Gemini endpoint", Fn: checkEndpoint},
	}

	fmt.Println("scriptoria doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(ctx, env)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile passes when the config loads. A missing file is only a
// warning because defaults apply.
func checkConfigFile(_ context.Context, env *doctorEnv) CheckResult {
	if env.cfgErr != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("config error: %v", env.cfgErr),
			Fix:     fmt.Sprintf("Check the YAML syntax and values in %s", env.cfgPath),
		}
	}
	if _, err := os.Stat(env.cfgPath); os.IsNotExist(err) {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no config file at %s, using defaults", env.cfgPath),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("config loaded from %s", env.cfgPath),
	}
}

func checkStore(ctx context.Context, env *doctorEnv) CheckResult {
	if env.cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if env.kvErr != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: env.kvErr.Error(),
			Fix:     fmt.Sprintf("Make sure %s is writable", env.cfg.Store.Path),
		}
	}
	keys, err := env.kv.Keys(ctx)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s (%d keys)", env.cfg.Store.Path, len(keys)),
	}
}

func checkAPIKey(ctx context.Context, env *doctorEnv) CheckResult {
	if env.cfg == nil || env.kv == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, store not available"}
	}
	creds := usecase.NewCredentialService(env.kv, env.cfg.Store.Passphrase, env.cfg.LLM.APIKey, discardLogger())
	src, err := creds.Source(ctx)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if src == usecase.SourceNone {
		return CheckResult{
			Status:  StatusFail,
			Message: "no API key configured",
			Fix:     "Run 'scriptoria key set API_KEY' or set SCRIPTORIA_GEMINI_API_KEY",
		}
	}
	if _, err := creds.APIKey(ctx); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("stored key unreadable: %v", err),
			Fix:     "Set SCRIPTORIA_STORE_KEY to the passphrase used when the key was saved",
		}
	}
	return CheckResult{Status: StatusPass, Message: "API key from " + src}
}

func checkStyleProfile(ctx context.Context, env *doctorEnv) CheckResult {
	if env.cfg == nil || env.kv == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check, store not available"}
	}
	style := usecase.NewStyleService(nil, env.kv, env.cfg.LLM.Structured.Params(), discardLogger())
	ok, err := style.HasProfile(ctx)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if !ok {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no style profile, output uses a standard academic tone",
			Fix:     "Run 'scriptoria style --answers FILE'",
		}
	}
	return CheckResult{Status: StatusPass, Message: "style profile stored"}
}

// checkBreaker reports the breaker state shared by all runs. An open breaker
// makes every call fail fast until its timeout passes.
func checkBreaker(_ context.Context, env *doctorEnv) CheckResult {
	if env.cfg == nil || env.kv == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check, store not available"}
	}
	cfg := env.cfg.LLM.CircuitBreaker
	if !cfg.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}

	gemini := llm.NewGeminiStreamer(env.cfg.LLM, nil, discardLogger())
	cb, err := llm.NewSharedCircuitBreakerStreamer(gemini, gemini.Name(), cfg, store.NewBreakerStore(env.kv), discardLogger())
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: err.Error()}
	}
	state, err := cb.State()
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: err.Error()}
	}
	failures := cb.Counts().ConsecutiveFailures

	switch state {
	case gobreaker.StateOpen:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("open after %d consecutive transport failures", failures),
			Fix:     fmt.Sprintf("Check network and API status; a trial call is allowed %s after the last failure", cfg.Timeout),
		}
	case gobreaker.StateHalfOpen:
		return CheckResult{Status: StatusWarn, Message: "half-open, the next call decides"}
	default:
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("closed (%d consecutive failures)", failures)}
	}
}

// checkEndpoint dials the API host. No request is sent.
func checkEndpoint(ctx context.Context, env *doctorEnv) CheckResult {
	if env.cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	addr, err := dialAddress(env.cfg.LLM.BaseURL)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s", addr),
			Fix:     "Check your network connection and firewall settings",
		}
	}
	conn.Close()
	return CheckResult{Status: StatusPass, Message: addr + " reachable"}
}

// dialAddress turns a base URL into host:port.
func dialAddress(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
