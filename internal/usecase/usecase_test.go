package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"scriptoria/internal/domain"
)

// --- Mocks ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu     sync.Mutex
	data   map[string]string
	setErr error
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// mockStreamer records requests and replays a scripted result.
type mockStreamer struct {
	mu       sync.Mutex
	requests []domain.StreamRequest
	text     []string // fragments emitted to OnText in order
	result   *domain.StreamResult
	err      error
}

func (m *mockStreamer) Stream(_ context.Context, req domain.StreamRequest, obs domain.StreamObserver) (*domain.StreamResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	var acc string
	for _, t := range m.text {
		acc += t
		if obs.OnText != nil {
			obs.OnText(acc)
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &domain.StreamResult{Mode: req.Mode, Text: acc, SessionID: "test-session"}, nil
}

func (m *mockStreamer) lastRequest() domain.StreamRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}
