package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// ScriptLogStore implements storage.ScriptLogStore using ClickHouse.
// Entries are append-only; the MergeTree table never updates rows.
type ScriptLogStore struct {
	conn *Conn
}

// NewScriptLogStore creates a new ScriptLogStore.
func NewScriptLogStore(conn *Conn) *ScriptLogStore {
	return &ScriptLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScriptLogStore = (*ScriptLogStore)(nil)

// Insert adds one log entry.
func (s *ScriptLogStore) Insert(ctx context.Context, e *domain.ScriptLog) error {
	if e == nil || e.Type == "" {
		return storage.ErrInvalidInput
	}

	details := "{}"
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal log details: %w", err)
		}
		details = string(raw)
	}

	query := `
		INSERT INTO script_logs (log_type, message, details, created_at)
		VALUES (?, ?, ?, ?)
	`

	if err := s.conn.Exec(ctx, query, e.Type, e.Message, details, e.CreatedAt); err != nil {
		return fmt.Errorf("insert script log: %w", err)
	}
	return nil
}
