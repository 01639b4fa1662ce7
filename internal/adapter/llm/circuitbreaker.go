package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"scriptoria/internal/domain"
	"scriptoria/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerStreamer wraps a Streamer with circuit breaker protection.
// Only transport failures count against the breaker. While it is open, calls
// fail fast with ErrTransport and never reach the network. It does not retry.
type CircuitBreakerStreamer struct {
	inner   domain.Streamer
	name    string
	execute func(func() (*domain.StreamResult, error)) (*domain.StreamResult, error)
	state   func() (gobreaker.State, error)
	counts  func() gobreaker.Counts
	logger  *slog.Logger
}

// BreakerName is the gobreaker name used for a provider's breaker.
func BreakerName(provider string) string { return "stream:" + provider }

// NewCircuitBreakerStreamer wraps inner with a breaker whose counts live in
// this process only. Zero-valued settings fall back to defaults.
func NewCircuitBreakerStreamer(inner domain.Streamer, name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerStreamer {
	cb := gobreaker.NewCircuitBreaker[*domain.StreamResult](breakerSettings(name, cfg, logger))
	return &CircuitBreakerStreamer{
		inner:   inner,
		name:    name,
		execute: cb.Execute,
		state:   func() (gobreaker.State, error) { return cb.State(), nil },
		counts:  cb.Counts,
		logger:  logger,
	}
}

// NewSharedCircuitBreakerStreamer wraps inner with a breaker whose state is
// kept in shared, so separate processes see the same failure counts. It
// fails with domain.ErrLockHeld when another process holds the state lock.
func NewSharedCircuitBreakerStreamer(inner domain.Streamer, name string, cfg config.CircuitBreakerConfig, shared gobreaker.SharedDataStore, logger *slog.Logger) (*CircuitBreakerStreamer, error) {
	dcb, err := gobreaker.NewDistributedCircuitBreaker[*domain.StreamResult](shared, breakerSettings(name, cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("shared circuit breaker %s: %w", name, err)
	}
	return &CircuitBreakerStreamer{
		inner:   inner,
		name:    name,
		execute: dcb.Execute,
		state:   dcb.State,
		counts: func() gobreaker.Counts {
			// State loads the shared counts into the local breaker.
			_, _ = dcb.State()
			return dcb.Counts()
		},
		logger: logger,
	}, nil
}

func breakerSettings(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return gobreaker.Settings{
		Name:        BreakerName(name),
		MaxRequests: 1, // one trial call while half-open
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrTransport)
		},
	}
}

// Stream implements domain.Streamer.
func (c *CircuitBreakerStreamer) Stream(ctx context.Context, req domain.StreamRequest, obs domain.StreamObserver) (*domain.StreamResult, error) {
	res, err := c.execute(func() (*domain.StreamResult, error) {
		return c.inner.Stream(ctx, req, obs)
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s circuit open: %w", domain.ErrTransport, c.name, err)
	case res != nil:
		c.logger.Warn("circuit breaker state not saved", "breaker", c.name, "error", err)
		return res, nil
	case errors.Is(err, domain.ErrLockHeld):
		c.logger.Warn("circuit breaker state busy, calling without breaker", "breaker", c.name)
		return c.inner.Stream(ctx, req, obs)
	default:
		return nil, err
	}
}

// State returns the current circuit breaker state for monitoring.
func (c *CircuitBreakerStreamer) State() (gobreaker.State, error) {
	return c.state()
}

// Counts returns the current circuit breaker failure/success counts.
func (c *CircuitBreakerStreamer) Counts() gobreaker.Counts {
	return c.counts()
}

var _ domain.Streamer = (*CircuitBreakerStreamer)(nil)

// --- Connection Pooling ---

// Default connection pool settings: one host, few long-lived connections.
const (
	defaultMaxIdleConns        = 4
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 8
	defaultIdleConnTimeout     = 120 * time.Second
	defaultConnTimeout         = 30 * time.Second
	defaultRespTimeout         = 120 * time.Second
)

// NewPooledTransport creates an http.Transport for streaming calls.
// respTimeout bounds the wait for response headers only; the body of a
// stream may take much longer.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	maxConnsPerHost := pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient creates an *http.Client for streaming. It sets no overall
// Timeout; a stream lives until EOF or until the caller's context ends.
func NewHTTPClient(cfg config.LLMConfig) *http.Client {
	return &http.Client{
		Transport: NewPooledTransport(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool),
	}
}
