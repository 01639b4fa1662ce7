package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"scriptoria/internal/domain"
	"scriptoria/internal/infra/config"
)

const analysisSchema = `{
	"type": "object",
	"properties": {"system_prompt": {"type": "string"}},
	"required": ["system_prompt"]
}`

type keyFunc func(ctx context.Context) (string, error)

func (f keyFunc) APIKey(ctx context.Context) (string, error) { return f(ctx) }

func staticKey(key string) domain.KeySource {
	return keyFunc(func(context.Context) (string, error) { return key, nil })
}

func testLLMConfig(baseURL string) config.LLMConfig {
	cfg := config.Defaults().LLM
	cfg.BaseURL = baseURL
	return cfg
}

func freeformRequest(prompt string) domain.StreamRequest {
	return domain.StreamRequest{
		Mode:              domain.ModeFreeform,
		Prompt:            prompt,
		SystemInstruction: "You are a professional editor.",
		Params:            config.Defaults().LLM.Freeform.Params(),
	}
}

func writeSSE(t *testing.T, w http.ResponseWriter, lines ...string) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, l := range lines {
		fmt.Fprintln(w, l)
		fmt.Fprintln(w)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func TestGeminiStreamFreeform(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-flash-latest:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key-123", r.URL.Query().Get("key"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		writeSSE(t, w,
			`data: {"candidates":[{"content":{"parts":[{"text":"Outline first.","thought":true}]}}]}`,
			`data: {"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`,
			`data: {"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`,
			`data: [DONE]`,
		)
	}))
	defer server.Close()

	s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("test-key-123"), newTestLogger())

	var live []string
	res, err := s.Stream(context.Background(), freeformRequest("Write it"), domain.StreamObserver{
		OnText: func(text string) { live = append(live, text) },
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, []string{"Hel", "Hello"}, live)
	require.Len(t, res.Thoughts, 1)
	assert.Equal(t, "Outline first.", res.Thoughts[0].Text)
	assert.NotEmpty(t, res.SessionID)

	// Request body shape.
	contents := gotBody["contents"].([]any)
	first := contents[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "Write it", first["parts"].([]any)[0].(map[string]any)["text"])
	sys := gotBody["system_instruction"].(map[string]any)
	assert.Equal(t, "You are a professional editor.", sys["parts"].([]any)[0].(map[string]any)["text"])
	gen := gotBody["generationConfig"].(map[string]any)
	assert.Equal(t, 0.6, gen["temperature"])
	assert.Equal(t, 1.0, gen["topP"])
	assert.Equal(t, float64(60000), gen["maxOutputTokens"])
	assert.NotContains(t, gen, "responseMimeType")
	assert.NotContains(t, gen, "responseJsonSchema")
	thinking := gen["thinkingConfig"].(map[string]any)
	assert.Equal(t, true, thinking["includeThoughts"])
	assert.Equal(t, float64(24000), thinking["thinkingBudget"])
}

func TestGeminiStreamStructured(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/models/gemini-2.5-pro:")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeSSE(t, w,
			`data: {"candidates":[{"content":{"parts":[{"text":"Looking at diction","thought":true}]}}]}`,
			`data: {"candidates":[{"content":{"parts":[{"text":"{\"system_pro"}]}}]}`,
			`data: {"candidates":[{"content":{"parts":[{"text":"mpt\":\"Write short.\"}"}]}}]}`,
		)
	}))
	defer server.Close()

	s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("k-1234567890"), newTestLogger())
	res, err := s.Stream(context.Background(), domain.StreamRequest{
		Mode:   domain.ModeStructured,
		Prompt: "analyse",
		Schema: json.RawMessage(analysisSchema),
		Params: config.Defaults().LLM.Structured.Params(),
	}, domain.StreamObserver{})
	require.NoError(t, err)

	assert.Equal(t, domain.ModeStructured, res.Mode)
	assert.Equal(t, "Write short.", res.Structured["system_prompt"])

	gen := gotBody["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.Equal(t, "object", gen["responseJsonSchema"].(map[string]any)["type"])
	assert.Equal(t, float64(32000), gen["thinkingConfig"].(map[string]any)["thinkingBudget"])
	assert.NotContains(t, gotBody, "system_instruction")
}

func TestGeminiStreamStructuredEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, `data: {"candidates":[{"content":{"parts":[{"text":"hm","thought":true}]}}]}`)
	}))
	defer server.Close()

	s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("k-1234567890"), newTestLogger())
	_, err := s.Stream(context.Background(), domain.StreamRequest{
		Mode:   domain.ModeStructured,
		Prompt: "analyse",
		Schema: json.RawMessage(analysisSchema),
	}, domain.StreamObserver{})
	assert.ErrorIs(t, err, domain.ErrNoStructuredResult)
}

func TestGeminiStreamAttachments(t *testing.T) {
	var gotBody geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeSSE(t, w, `data: {"candidates":[{"content":{"parts":[{"text":"seen"}]}}]}`)
	}))
	defer server.Close()

	req := freeformRequest("describe")
	req.Attachments = []domain.Attachment{{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}}

	s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("k-1234567890"), newTestLogger())
	_, err := s.Stream(context.Background(), req, domain.StreamObserver{})
	require.NoError(t, err)

	parts := gotBody.Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}), parts[1].InlineData.Data)
}

func TestGeminiStreamNon2xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				// A body that would produce output if it were decoded.
				fmt.Fprintln(w, `data: {"candidates":[{"content":{"parts":[{"text":"x","thought":true},{"text":"y"}]}}]}`)
			}))
			defer server.Close()

			called := false
			s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("k-1234567890"), newTestLogger())
			res, err := s.Stream(context.Background(), freeformRequest("p"), domain.StreamObserver{
				OnText:    func(string) { called = true },
				OnThought: func([]domain.ThoughtLogEntry) { called = true },
			})

			assert.Nil(t, res)
			assert.ErrorIs(t, err, domain.ErrTransport)
			assert.Contains(t, err.Error(), fmt.Sprintf("%d", status))
			assert.False(t, called, "no frame may be processed on a non-2xx response")
		})
	}
}

func TestGeminiStreamMissingCredential(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	sources := map[string]domain.KeySource{
		"nil source": nil,
		"empty key":  staticKey(""),
		"lookup error": keyFunc(func(context.Context) (string, error) {
			return "", domain.ErrNotFound
		}),
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			s := NewGeminiStreamer(testLLMConfig(server.URL), src, newTestLogger())
			_, err := s.Stream(context.Background(), freeformRequest("p"), domain.StreamObserver{})
			assert.ErrorIs(t, err, domain.ErrMissingCredential)
		})
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestGeminiStreamInvalidRequestNoNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("k-1234567890"), newTestLogger())

	_, err := s.Stream(context.Background(), domain.StreamRequest{Mode: domain.ModeStructured, Prompt: "p"}, domain.StreamObserver{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.Stream(context.Background(), domain.StreamRequest{
		Mode:   domain.ModeStructured,
		Prompt: "p",
		Schema: json.RawMessage(`{"type":`),
	}, domain.StreamObserver{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, int32(0), hits.Load())
}

func TestGeminiStreamMalformedLineSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w,
			`data: {"candidates":[{"content":{"parts":[{"text":"before "}]}}]}`,
			`data: {not json`,
			`data: {"candidates":[{"content":{"parts":[{"text":"after"}]}}]}`,
		)
	}))
	defer server.Close()

	s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("k-1234567890"), newTestLogger())
	res, err := s.Stream(context.Background(), freeformRequest("p"), domain.StreamObserver{})
	require.NoError(t, err)
	assert.Equal(t, "before after", res.Text)
}

func TestGeminiStreamCancelledMidStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, `data: {"candidates":[{"content":{"parts":[{"text":"partial"}]}}]}`)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last string
	s := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("k-1234567890"), newTestLogger())
	_, err := s.Stream(ctx, freeformRequest("p"), domain.StreamObserver{
		OnText: func(text string) {
			last = text
			cancel()
		},
	})

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "partial", last)
}

func TestGeminiStreamConnectionRefusedRedactsKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	s := NewGeminiStreamer(testLLMConfig(url), staticKey("super-secret-key"), newTestLogger())
	_, err := s.Stream(context.Background(), freeformRequest("p"), domain.StreamObserver{})
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.NotContains(t, err.Error(), "super-secret-key")
}

func TestGeminiStreamRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, `data: {"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.RequestsPerMinute = 1
	cfg.Burst = 1
	s := NewGeminiStreamer(cfg, staticKey("k-1234567890"), newTestLogger())

	_, err := s.Stream(context.Background(), freeformRequest("p"), domain.StreamObserver{})
	require.NoError(t, err)

	// The second call would wait ~60s for a token; a short deadline fails it.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Stream(ctx, freeformRequest("p"), domain.StreamObserver{})
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestGeminiStreamRecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "bad") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeSSE(t, w, `data: {"candidates":[{"content":{"parts":[{"text":"ok"}]}}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1,"totalTokenCount":3}}`)
	}))
	defer server.Close()

	ok := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("good-key-123"), newTestLogger())
	_, err := ok.Stream(context.Background(), freeformRequest("p"), domain.StreamObserver{})
	require.NoError(t, err)

	bad := NewGeminiStreamer(testLLMConfig(server.URL), staticKey("bad-key-123"), newTestLogger())
	_, err = bad.Stream(context.Background(), freeformRequest("p"), domain.StreamObserver{})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "llm.stream", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("llm.system_instruction", true))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestToGeminiRequestOmitsEmptySystemInstruction(t *testing.T) {
	req := freeformRequest("p")
	req.SystemInstruction = ""
	data, err := json.Marshal(toGeminiRequest(req))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "system_instruction")
}

func TestNewSessionIDUnique(t *testing.T) {
	now := time.Now()
	a := newSessionID(now)
	b := newSessionID(now.Add(time.Millisecond))
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusTooManyRequests, "rate limited"},
		{http.StatusUnauthorized, "api key rejected"},
		{http.StatusForbidden, "api key rejected"},
		{http.StatusBadRequest, "bad request"},
		{http.StatusBadGateway, "server error"},
		{http.StatusNotFound, "API error 404"},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
		assert.True(t, errors.Is(err, domain.ErrTransport))
		assert.Contains(t, err.Error(), tt.want)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	// Never splits a multi-byte rune.
	got := truncate("ééé", 3)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "é...", got)
}

func TestDoStreamRequestSetsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Extra"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{}`, string(body))
	}))
	defer server.Close()

	resp, err := doStreamRequest(context.Background(), server.Client(), server.URL, []byte(`{}`), map[string]string{"X-Extra": "v"})
	require.NoError(t, err)
	resp.Body.Close()
}
