package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"scriptoria/internal/domain"
	"scriptoria/internal/infra/config"
	"scriptoria/internal/infra/tracer"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	readBufferSize = 4096
	jsonMIMEType   = "application/json"
	providerGemini = "gemini"
	userRole       = "user"
)

// GeminiStreamer implements domain.Streamer against the Gemini
// streamGenerateContent endpoint. Every call runs in its own StreamSession;
// the streamer itself holds no per-call state and performs no retries.
type GeminiStreamer struct {
	baseURL         string
	structuredModel string
	freeformModel   string
	keys            domain.KeySource
	client          *http.Client
	limiter         *callLimiter // nil when unlimited
	rateStore       domain.KVStore
	logger          *slog.Logger
}

// GeminiOption configures a GeminiStreamer.
type GeminiOption func(*GeminiStreamer)

// WithRateStore keeps the limiter's recent call times in kv, so the rate
// limit also holds across processes sharing the store.
func WithRateStore(kv domain.KVStore) GeminiOption {
	return func(g *GeminiStreamer) { g.rateStore = kv }
}

// NewGeminiStreamer creates a streamer. keys is consulted once per call.
func NewGeminiStreamer(cfg config.LLMConfig, keys domain.KeySource, logger *slog.Logger, opts ...GeminiOption) *GeminiStreamer {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	g := &GeminiStreamer{
		baseURL:         baseURL,
		structuredModel: cfg.StructuredModel,
		freeformModel:   cfg.FreeformModel,
		keys:            keys,
		client:          NewHTTPClient(cfg),
		logger:          logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.limiter = newCallLimiter(cfg, g.rateStore, logger)
	return g
}

// Name identifies the provider in logs and breaker names.
func (g *GeminiStreamer) Name() string { return providerGemini }

// Stream implements domain.Streamer.
//
// Request validation and credential lookup happen before any network
// activity. A non-2xx response fails the call before a single frame is
// decoded. In freeform mode obs.OnText has already seen any partial answer
// when a later transport error is returned.
func (g *GeminiStreamer) Stream(ctx context.Context, req domain.StreamRequest, obs domain.StreamObserver) (*domain.StreamResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var schema *jsonschema.Schema
	if req.Mode == domain.ModeStructured {
		compiled, err := jsonschema.NewCompiler().Compile(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid response schema: %v", domain.ErrInvalidInput, err)
		}
		schema = compiled
	}

	apiKey, err := g.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	model := g.modelFor(req.Mode)
	sess := NewStreamSession(newSessionID(time.Now()), req.Mode, schema, obs, g.logger)

	ctx, span := tracer.StartSpan(ctx, "llm.stream",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", providerGemini),
			tracer.StringAttr("llm.model", model),
			tracer.StringAttr("llm.mode", string(req.Mode)),
			tracer.StringAttr("llm.session", sess.ID()),
			tracer.IntAttr("llm.attachments", len(req.Attachments)),
			tracer.BoolAttr("llm.system_instruction", req.SystemInstruction != ""),
		),
	)
	defer span.End()

	result, err := g.run(ctx, sess, model, apiKey, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	setSessionAttrs(span, sess)
	tracer.SetOK(span)
	g.logger.Info("stream session complete",
		"session", sess.ID(),
		"mode", req.Mode,
		"model", model,
		"thoughts", len(result.Thoughts),
		"finish_reason", sess.FinishReason(),
	)
	return result, nil
}

func (g *GeminiStreamer) run(ctx context.Context, sess *StreamSession, model, apiKey string, req domain.StreamRequest) (*domain.StreamResult, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, sess.Fail(fmt.Errorf("%w: rate limiter: %w", domain.ErrTransport, err))
		}
	}

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, sess.Fail(fmt.Errorf("marshal request: %w", err))
	}

	sess.setState(domain.StateSending)
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s",
		g.baseURL, url.PathEscape(model), url.QueryEscape(apiKey))

	httpResp, err := doStreamRequest(ctx, g.client, endpoint, body, nil)
	if err != nil {
		return nil, sess.Fail(err)
	}
	defer httpResp.Body.Close()

	sess.setState(domain.StateStreaming)
	if err := sess.Consume(httpResp.Body, readBufferSize); err != nil {
		return nil, err
	}
	return sess.Finish()
}

func (g *GeminiStreamer) apiKey(ctx context.Context) (string, error) {
	if g.keys == nil {
		return "", domain.ErrMissingCredential
	}
	key, err := g.keys.APIKey(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrMissingCredential) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrMissingCredential, err)
	}
	if key == "" {
		return "", domain.ErrMissingCredential
	}
	return key, nil
}

func (g *GeminiStreamer) modelFor(mode domain.CallMode) string {
	if mode == domain.ModeStructured {
		return g.structuredModel
	}
	return g.freeformModel
}

func setSessionAttrs(span trace.Span, sess *StreamSession) {
	span.SetAttributes(
		tracer.IntAttr("llm.thought_entries", len(sess.Thoughts())),
		tracer.IntAttr("llm.malformed_frames", sess.MalformedFrames()),
		tracer.StringAttr("llm.finish_reason", sess.FinishReason()),
	)
	if u := sess.Usage(); u != nil {
		span.SetAttributes(
			tracer.IntAttr("llm.prompt_tokens", u.PromptTokenCount),
			tracer.IntAttr("llm.completion_tokens", u.CandidatesTokenCount),
			tracer.IntAttr("llm.thoughts_tokens", u.ThoughtsTokenCount),
		)
	}
}

// newSessionID returns a ULID for the session starting at t.
func newSessionID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Compile-time interface check.
var _ domain.Streamer = (*GeminiStreamer)(nil)

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	Thought    bool              `json:"thought,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiGenerationConfig struct {
	ResponseMimeType   string               `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage      `json:"responseJsonSchema,omitempty"`
	Temperature        float64              `json:"temperature"`
	TopP               float64              `json:"topP"`
	MaxOutputTokens    int                  `json:"maxOutputTokens"`
	ThinkingConfig     geminiThinkingConfig `json:"thinkingConfig"`
}

type geminiThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget"`
}

// --- Gemini streaming wire types ---
// Responses are decoded level by level in decodePayload.

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func toGeminiRequest(req domain.StreamRequest) geminiRequest {
	parts := []geminiPart{{Text: req.Prompt}}
	for _, a := range req.Attachments {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: a.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(a.Data),
			},
		})
	}

	gemReq := geminiRequest{
		Contents: []geminiContent{{Role: userRole, Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Params.Temperature,
			TopP:            req.Params.TopP,
			MaxOutputTokens: req.Params.MaxOutputTokens,
			ThinkingConfig: geminiThinkingConfig{
				IncludeThoughts: true,
				ThinkingBudget:  req.Params.ThinkingBudget,
			},
		},
	}

	if req.SystemInstruction != "" {
		gemReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemInstruction}},
		}
	}

	if req.Mode == domain.ModeStructured {
		gemReq.GenerationConfig.ResponseMimeType = jsonMIMEType
		gemReq.GenerationConfig.ResponseJSONSchema = req.Schema
	}

	return gemReq
}
