package domain

import "context"

// Fixed keys of the persistent key-value store.
const (
	KeyAPIKey        = "scriptoria_api_key"
	KeyStyleProfile  = "scriptoria_style_profile"  // system prompt text, used verbatim
	KeyStyleAnalysis = "scriptoria_style_analysis" // style_profile JSON, display only
	KeyRawStyle      = "scriptoria_raw_style"      // interview answers JSON
	KeyHistory       = "scriptoria_history"        // JSON array of HistoryEntry
)

// KVStore persists string values under fixed keys.
// Get returns ErrNotFound when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// HistoryEntry is one generated artifact kept in the history list.
type HistoryEntry struct {
	Topic     string `json:"topic"`
	Subject   string `json:"subject"`
	TaskType  string `json:"taskType"`
	Details   string `json:"details"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// StyleAnswers are the four interview samples the style profile is built from.
type StyleAnswers struct {
	Vibe     string `json:"vibe" yaml:"vibe"`
	Argument string `json:"argument" yaml:"argument"`
	HowTo    string `json:"howto" yaml:"howto"`
	Cancel   string `json:"cancel" yaml:"cancel"`
}

// StyleProfile is the analysed breakdown of a writer's style.
type StyleProfile struct {
	Diction   string `json:"diction"`
	Syntax    string `json:"syntax"`
	Rhythm    string `json:"rhythm"`
	Tone      string `json:"tone"`
	Humanisms string `json:"humanisms"`
}

// StyleAnalysis is the structured result of a style analysis call.
type StyleAnalysis struct {
	StyleProfile StyleProfile `json:"style_profile"`
	SystemPrompt string       `json:"system_prompt"`
}
