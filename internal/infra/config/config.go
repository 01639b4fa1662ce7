package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"scriptoria/internal/domain"
	"scriptoria/internal/security"
)

// Config is the top-level application configuration.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Store  StoreConfig  `yaml:"store"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// LLMConfig holds Gemini endpoint and per-mode generation settings.
type LLMConfig struct {
	BaseURL           string               `yaml:"base_url"`
	APIKey            string               `yaml:"api_key"` // overrides the stored key when set
	StructuredModel   string               `yaml:"structured_model"`
	FreeformModel     string               `yaml:"freeform_model"`
	ConnTimeout       time.Duration        `yaml:"conn_timeout"`
	RespTimeout       time.Duration        `yaml:"resp_timeout"`
	Pool              PoolConfig           `yaml:"pool"`
	RequestsPerMinute int                  `yaml:"requests_per_minute"` // 0 disables the limiter
	Burst             int                  `yaml:"burst"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Structured        GenerationConfig     `yaml:"structured"`
	Freeform          GenerationConfig     `yaml:"freeform"`
}

// GenerationConfig holds sampling settings for one call mode.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	ThinkingBudget  int     `yaml:"thinking_budget"`
}

// Params converts to the domain representation.
func (g GenerationConfig) Params() domain.GenerationParams {
	return domain.GenerationParams{
		Temperature:     g.Temperature,
		TopP:            g.TopP,
		MaxOutputTokens: g.MaxOutputTokens,
		ThinkingBudget:  g.ThinkingBudget,
	}
}

// CircuitBreakerConfig holds circuit breaker settings for the Gemini streamer.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// StoreConfig holds key-value store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Passphrase encrypts the stored API key. Usually supplied through
	// SCRIPTORIA_STORE_KEY rather than the file.
	Passphrase string `yaml:"passphrase,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.scriptoria.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".scriptoria")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:         "https://generativelanguage.googleapis.com",
			StructuredModel: "gemini-2.5-pro",
			FreeformModel:   "gemini-flash-latest",
			ConnTimeout:     30 * time.Second,
			RespTimeout:     120 * time.Second,
			Burst:           1,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			Structured: GenerationConfig{
				Temperature:     0.6,
				TopP:            1.0,
				MaxOutputTokens: 60000,
				ThinkingBudget:  32000,
			},
			Freeform: GenerationConfig{
				Temperature:     0.6,
				TopP:            1.0,
				MaxOutputTokens: 60000,
				ThinkingBudget:  24000,
			},
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "scriptoria.db"),
		},
		Logger: LoggerConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfigLoad, err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve config path: %v", domain.ErrConfigLoad, err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %v", domain.ErrConfigLoad, err)
		}
	}

	ApplyEnvOverrides(cfg)

	if security.IsSealed(cfg.LLM.APIKey) {
		passphrase := os.Getenv("SCRIPTORIA_CONFIG_KEY")
		key, err := security.Open(cfg.LLM.APIKey, passphrase)
		if err != nil {
			return nil, fmt.Errorf("llm.api_key: %w", err)
		}
		cfg.LLM.APIKey = key
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps SCRIPTORIA_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCRIPTORIA_GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SCRIPTORIA_GEMINI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SCRIPTORIA_STRUCTURED_MODEL"); v != "" {
		cfg.LLM.StructuredModel = v
	}
	if v := os.Getenv("SCRIPTORIA_FREEFORM_MODEL"); v != "" {
		cfg.LLM.FreeformModel = v
	}
	if v := os.Getenv("SCRIPTORIA_LLM_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("SCRIPTORIA_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.LLM.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("SCRIPTORIA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SCRIPTORIA_STORE_KEY"); v != "" {
		cfg.Store.Passphrase = v
	}
	if v := os.Getenv("SCRIPTORIA_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SCRIPTORIA_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SCRIPTORIA_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("SCRIPTORIA_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SCRIPTORIA_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat config: %v", domain.ErrConfigLoad, err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("%w: config file %s has insecure permissions %o (want 0600 or 0644)",
			domain.ErrConfigLoad, path, mode)
	}
	return nil
}
