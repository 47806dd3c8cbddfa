package memory

import (
	"context"
	"sync"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

// ScriptLogStore is an in-memory implementation of storage.ScriptLogStore.
type ScriptLogStore struct {
	mu     sync.RWMutex
	nextID int64
	data   []*domain.ScriptLog
}

// NewScriptLogStore creates a new in-memory script log store.
func NewScriptLogStore() *ScriptLogStore {
	return &ScriptLogStore{nextID: 1}
}

var _ storage.ScriptLogStore = (*ScriptLogStore)(nil)

// Insert appends an operational log entry.
func (s *ScriptLogStore) Insert(_ context.Context, e *domain.ScriptLog) error {
	if e == nil || e.Message == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := *e
	row.ID = s.nextID
	s.nextID++
	if e.Details != nil {
		row.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			row.Details[k] = v
		}
	}
	s.data = append(s.data, &row)
	return nil
}

// All returns a copy of every entry, oldest first. Test helper.
func (s *ScriptLogStore) All() []*domain.ScriptLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ScriptLog, 0, len(s.data))
	for _, e := range s.data {
		row := *e
		result = append(result, &row)
	}
	return result
}
