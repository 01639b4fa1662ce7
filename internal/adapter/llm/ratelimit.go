package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"scriptoria/internal/domain"
	"scriptoria/internal/infra/config"
)

// rateStateKey holds the recent call times of the Gemini limiter.
const rateStateKey = "ratelimit:gemini"

// callLimiter spaces out Gemini calls. With a store it remembers the last
// burst call times, so a new process starts with the tokens earlier
// processes already spent.
type callLimiter struct {
	limiter *rate.Limiter
	burst   int
	store   domain.KVStore // nil keeps the state in memory
	logger  *slog.Logger
	now     func() time.Time

	restoreOnce sync.Once
	mu          sync.Mutex
	recent      []time.Time
}

// newCallLimiter returns nil when cfg disables rate limiting.
func newCallLimiter(cfg config.LLMConfig, store domain.KVStore, logger *slog.Logger) *callLimiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := max(cfg.Burst, 1)
	return &callLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst),
		burst:   burst,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Wait blocks until a call may start, then records it.
func (l *callLimiter) Wait(ctx context.Context) error {
	l.restoreOnce.Do(func() { l.restore(ctx) })

	if tokens := l.limiter.TokensAt(l.now()); tokens < 1 {
		wait := time.Duration((1 - tokens) / float64(l.limiter.Limit()) * float64(time.Second))
		l.logger.Info("rate limit reached, waiting", "wait", wait.Round(time.Second))
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	l.record(ctx, l.now())
	return nil
}

// restore replays persisted call times against the fresh limiter.
func (l *callLimiter) restore(ctx context.Context) {
	if l.store == nil {
		return
	}
	raw, err := l.store.Get(ctx, rateStateKey)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		l.logger.Warn("rate limit state unavailable", "error", err)
		return
	}

	var calls []time.Time
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		l.logger.Warn("ignoring unreadable rate limit state", "error", err)
		return
	}
	slices.SortFunc(calls, func(a, b time.Time) int { return a.Compare(b) })

	now := l.now()
	for _, t := range calls {
		if t.After(now) {
			continue
		}
		l.limiter.ReserveN(t, 1)
	}

	l.mu.Lock()
	l.recent = calls
	l.mu.Unlock()
}

func (l *callLimiter) record(ctx context.Context, t time.Time) {
	if l.store == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append(l.recent, t)
	if len(l.recent) > l.burst {
		l.recent = l.recent[len(l.recent)-l.burst:]
	}
	data, err := json.Marshal(l.recent)
	if err != nil {
		return
	}
	if err := l.store.Set(ctx, rateStateKey, string(data)); err != nil {
		l.logger.Warn("rate limit state not saved", "error", err)
	}
}
