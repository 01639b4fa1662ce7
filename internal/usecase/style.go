package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"scriptoria/internal/domain"
)

// styleAnalysisSchema constrains the structured style analysis response.
const styleAnalysisSchema = `{
	"type": "object",
	"properties": {
		"style_profile": {
			"type": "object",
			"description": "A detailed analysis of the writer's style.",
			"properties": {
				"diction": {"type": "string", "description": "Vocabulary, formality and complexity."},
				"syntax": {"type": "string", "description": "Sentence structure, length and pacing."},
				"rhythm": {"type": "string", "description": "Punctuation, cadence and flow."},
				"tone": {"type": "string", "description": "Attitude, stance and persuasion."},
				"humanisms": {"type": "string", "description": "Idiosyncrasies, pet phrases and grammar quirks."}
			},
			"required": ["diction", "syntax", "rhythm", "tone", "humanisms"]
		},
		"system_prompt": {
			"type": "string",
			"description": "A system prompt instructing a model to write in this style, with principles and do's and don'ts."
		}
	},
	"required": ["style_profile", "system_prompt"]
}`

// StyleService builds and serves the user's writing style profile.
type StyleService struct {
	streamer domain.Streamer
	store    domain.KVStore
	params   domain.GenerationParams
	logger   *slog.Logger
}

// NewStyleService creates a StyleService. params are the sampling settings
// of the structured analysis call.
func NewStyleService(streamer domain.Streamer, store domain.KVStore, params domain.GenerationParams, logger *slog.Logger) *StyleService {
	return &StyleService{
		streamer: streamer,
		store:    store,
		params:   params,
		logger:   logger,
	}
}

// Analyze stores the raw answers, runs the structured analysis and, on
// success, stores the resulting profile and system prompt. Nothing but the
// raw answers is written when the call fails.
func (s *StyleService) Analyze(ctx context.Context, answers domain.StyleAnswers, obs domain.StreamObserver) (*domain.StyleAnalysis, error) {
	if err := validateAnswers(answers); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("marshal style answers: %w", err)
	}
	if err := s.store.Set(ctx, domain.KeyRawStyle, string(raw)); err != nil {
		return nil, err
	}

	prompt := fillTemplate(styleAnalysisPrompt, map[string]string{
		"VIBE":     answers.Vibe,
		"ARGUMENT": answers.Argument,
		"HOWTO":    answers.HowTo,
		"CANCEL":   answers.Cancel,
	})

	res, err := s.streamer.Stream(ctx, domain.StreamRequest{
		Mode:   domain.ModeStructured,
		Prompt: prompt,
		Schema: json.RawMessage(styleAnalysisSchema),
		Params: s.params,
	}, obs)
	if err != nil {
		return nil, domain.WrapOp("style.analyze", err)
	}

	var analysis domain.StyleAnalysis
	if err := res.Decode(&analysis); err != nil {
		return nil, domain.WrapOp("style.analyze", err)
	}
	if strings.TrimSpace(analysis.SystemPrompt) == "" {
		return nil, domain.WrapOp("style.analyze",
			fmt.Errorf("%w: empty system prompt", domain.ErrNoStructuredResult))
	}

	profile, err := json.Marshal(analysis.StyleProfile)
	if err != nil {
		return nil, fmt.Errorf("marshal style profile: %w", err)
	}
	if err := s.store.Set(ctx, domain.KeyStyleAnalysis, string(profile)); err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, domain.KeyStyleProfile, analysis.SystemPrompt); err != nil {
		return nil, err
	}

	s.logger.Info("style profile saved", "session", res.SessionID, "thoughts", len(res.Thoughts))
	return &analysis, nil
}

// SystemPrompt returns the stored style system prompt, or the default tone
// when no profile exists.
func (s *StyleService) SystemPrompt(ctx context.Context) (string, error) {
	v, err := s.store.Get(ctx, domain.KeyStyleProfile)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && strings.TrimSpace(v) == "") {
		return defaultStyleProfile, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// HasProfile reports whether a style profile has been stored.
func (s *StyleService) HasProfile(ctx context.Context) (bool, error) {
	_, err := s.store.Get(ctx, domain.KeyStyleProfile)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Profile returns the stored style breakdown.
func (s *StyleService) Profile(ctx context.Context) (*domain.StyleProfile, error) {
	v, err := s.store.Get(ctx, domain.KeyStyleAnalysis)
	if err != nil {
		return nil, err
	}
	var p domain.StyleProfile
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return nil, fmt.Errorf("%w: stored style analysis: %v", domain.ErrStore, err)
	}
	return &p, nil
}

func validateAnswers(a domain.StyleAnswers) error {
	fields := []struct{ name, value string }{
		{"vibe", a.Vibe},
		{"argument", a.Argument},
		{"howto", a.HowTo},
		{"cancel", a.Cancel},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return domain.NewDomainError("style.analyze", domain.ErrInvalidInput, fmt.Sprintf("answer %q is empty", f.name))
		}
	}
	return nil
}
