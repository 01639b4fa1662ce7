package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scriptoria/internal/domain"
)

// MaxHistoryEntries is the capacity of the history list.
const MaxHistoryEntries = 10

// humanizedSuffix marks history entries produced by a humanization pass.
const humanizedSuffix = " (Humanized)"

// HistoryService keeps the most recent generated artifacts, newest first,
// as a JSON array under domain.KeyHistory.
type HistoryService struct {
	store  domain.KVStore
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewHistoryService creates a HistoryService backed by store.
func NewHistoryService(store domain.KVStore, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Add prepends entry and evicts the oldest entries beyond MaxHistoryEntries.
// An empty Timestamp is set to the current date.
func (h *HistoryService) Add(ctx context.Context, entry domain.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load(ctx)
	if err != nil {
		return err
	}
	if entry.Timestamp == "" {
		entry.Timestamp = h.now().Format(time.DateOnly)
	}

	entries = append([]domain.HistoryEntry{entry}, entries...)
	if len(entries) > MaxHistoryEntries {
		entries = entries[:MaxHistoryEntries]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := h.store.Set(ctx, domain.KeyHistory, string(data)); err != nil {
		return err
	}
	h.logger.Debug("history entry added", "topic", entry.Topic, "size", len(entries))
	return nil
}

// List returns all entries, newest first.
func (h *HistoryService) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

// Get returns the entry at index (0 is newest).
func (h *HistoryService) Get(ctx context.Context, index int) (domain.HistoryEntry, error) {
	entries, err := h.List(ctx)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	if index < 0 || index >= len(entries) {
		return domain.HistoryEntry{}, fmt.Errorf("%w: history entry %d", domain.ErrNotFound, index)
	}
	return entries[index], nil
}

// Clear removes every entry.
func (h *HistoryService) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Delete(ctx, domain.KeyHistory)
}

// load reads the stored list. A missing key is an empty list; an unreadable
// value is logged and treated as empty so the next Add replaces it.
func (h *HistoryService) load(ctx context.Context) ([]domain.HistoryEntry, error) {
	raw, err := h.store.Get(ctx, domain.KeyHistory)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []domain.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		h.logger.Warn("discarding unreadable history", "error", err)
		return nil, nil
	}
	return entries, nil
}

// TaskFromHistory rebuilds the homework task an entry was generated from,
// dropping the humanized marker from its topic.
func TaskFromHistory(e domain.HistoryEntry) HomeworkTask {
	return HomeworkTask{
		Topic:    strings.TrimSuffix(e.Topic, humanizedSuffix),
		Subject:  e.Subject,
		TaskType: e.TaskType,
		Details:  e.Details,
	}
}
