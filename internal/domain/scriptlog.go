package domain

import "time"

// Log types persisted to script_logs.
const (
	LogTypeInfo  = "info"
	LogTypeError = "error"
)

// ScriptLog is an operational log entry consumed by external monitoring
// tooling. Details is a free-form payload serialized as JSON.
type ScriptLog struct {
	ID        int64
	Type      string
	Message   string
	Details   map[string]any
	CreatedAt time.Time
}
