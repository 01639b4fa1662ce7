package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"scriptoria/internal/domain"
)

// TaskKind selects the homework prompt.
type TaskKind string

const (
	TaskText TaskKind = "text"
	TaskMath TaskKind = "math"
)

// HomeworkTask describes one generation request.
type HomeworkTask struct {
	Kind        TaskKind
	Topic       string
	Subject     string
	TaskType    string
	Details     string
	Attachments []domain.Attachment
}

// HomeworkService generates and humanizes text in the user's style and
// records successful results in history.
type HomeworkService struct {
	streamer domain.Streamer
	style    *StyleService
	history  *HistoryService
	params   domain.GenerationParams
	logger   *slog.Logger
}

// NewHomeworkService creates a HomeworkService. params are the sampling
// settings of its free-form calls.
func NewHomeworkService(streamer domain.Streamer, style *StyleService, history *HistoryService, params domain.GenerationParams, logger *slog.Logger) *HomeworkService {
	return &HomeworkService{
		streamer: streamer,
		style:    style,
		history:  history,
		params:   params,
		logger:   logger,
	}
}

// Generate streams a new answer for task. obs.OnText receives the growing
// text live. History is only updated when the call succeeds.
func (h *HomeworkService) Generate(ctx context.Context, task HomeworkTask, obs domain.StreamObserver) (string, error) {
	if strings.TrimSpace(task.Topic) == "" {
		return "", domain.NewDomainError("homework.generate", domain.ErrInvalidInput, "topic is empty")
	}

	profile, err := h.style.SystemPrompt(ctx)
	if err != nil {
		return "", err
	}

	tmpl := homeworkTextPrompt
	switch task.Kind {
	case TaskMath:
		tmpl = homeworkMathPrompt
	case TaskText, "":
	default:
		return "", domain.NewDomainError("homework.generate", domain.ErrInvalidInput, fmt.Sprintf("unknown task kind %q", task.Kind))
	}

	prompt := fillTemplate(tmpl, map[string]string{
		"TASK_TYPE": orDefault(task.TaskType, defaultTaskType),
		"TOPIC":     task.Topic,
		"SUBJECT":   orDefault(task.Subject, defaultSubject),
		"DETAILS":   orDefault(task.Details, defaultDetails),
	})

	res, err := h.streamer.Stream(ctx, domain.StreamRequest{
		Mode:              domain.ModeFreeform,
		Prompt:            prompt,
		SystemInstruction: fillTemplate(ghostwriterSystemPrompt, map[string]string{"STYLE_PROFILE": profile}),
		Attachments:       task.Attachments,
		Params:            h.params,
	}, obs)
	if err != nil {
		return "", domain.WrapOp("homework.generate", err)
	}

	if err := h.history.Add(ctx, historyEntry(task, task.Topic, res.Text)); err != nil {
		return res.Text, err
	}
	h.logger.Info("homework generated", "session", res.SessionID, "kind", task.Kind, "chars", len(res.Text))
	return res.Text, nil
}

// Humanize rewrites content in the user's style. On failure the caller
// still holds content unchanged and history is not touched.
func (h *HomeworkService) Humanize(ctx context.Context, content string, task HomeworkTask, obs domain.StreamObserver) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", domain.NewDomainError("homework.humanize", domain.ErrInvalidInput, "nothing to humanize")
	}

	profile, err := h.style.SystemPrompt(ctx)
	if err != nil {
		return "", err
	}

	res, err := h.streamer.Stream(ctx, domain.StreamRequest{
		Mode: domain.ModeFreeform,
		Prompt: fillTemplate(humanizePrompt, map[string]string{
			"STYLE_PROFILE": profile,
			"CONTENT":       content,
		}),
		SystemInstruction: humanizeInstruction,
		Params:            h.params,
	}, obs)
	if err != nil {
		return "", domain.WrapOp("homework.humanize", err)
	}

	if err := h.history.Add(ctx, historyEntry(task, task.Topic+humanizedSuffix, res.Text)); err != nil {
		return res.Text, err
	}
	h.logger.Info("content humanized", "session", res.SessionID, "chars", len(res.Text))
	return res.Text, nil
}

func historyEntry(task HomeworkTask, topic, content string) domain.HistoryEntry {
	return domain.HistoryEntry{
		Topic:    topic,
		Subject:  task.Subject,
		TaskType: task.TaskType,
		Details:  task.Details,
		Content:  content,
	}
}
