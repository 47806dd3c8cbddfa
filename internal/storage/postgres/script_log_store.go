package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// ScriptLogStore implements storage.ScriptLogStore using PostgreSQL.
type ScriptLogStore struct {
	pool *Pool
}

// NewScriptLogStore creates a new ScriptLogStore.
func NewScriptLogStore(pool *Pool) *ScriptLogStore {
	return &ScriptLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScriptLogStore = (*ScriptLogStore)(nil)

// Insert adds one log entry.
func (s *ScriptLogStore) Insert(ctx context.Context, e *domain.ScriptLog) error {
	if e == nil || e.Type == "" {
		return storage.ErrInvalidInput
	}

	var details []byte
	if len(e.Details) > 0 {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal log details: %w", err)
		}
	}

	query := `
		INSERT INTO script_logs (log_type, message, details, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.pool.Exec(ctx, query, e.Type, e.Message, details, e.CreatedAt); err != nil {
		return fmt.Errorf("insert script log: %w", err)
	}
	return nil
}
