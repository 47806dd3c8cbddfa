// Package scriptlog persists operational log entries through a logrus
// hook, so external monitoring can query the monitor's activity from the
// database instead of scraping stdout.
package scriptlog

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage"
)

const insertTimeout = 5 * time.Second

// Hook mirrors Info-and-above log entries into a ScriptLogStore.
// Insert failures are swallowed: a degraded log sink must never take the
// monitor down or recurse into more logging.
type Hook struct {
	store storage.ScriptLogStore
}

// NewHook creates a Hook writing to store.
func NewHook(store storage.ScriptLogStore) *Hook {
	return &Hook{store: store}
}

var _ logrus.Hook = (*Hook)(nil)

// Levels returns Info and above.
func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

// Fire persists one log entry.
func (h *Hook) Fire(entry *logrus.Entry) error {
	logType := domain.LogTypeInfo
	if entry.Level <= logrus.ErrorLevel {
		logType = domain.LogTypeError
	}

	var details map[string]any
	if len(entry.Data) > 0 {
		details = make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			// Errors don't JSON-serialize usefully; flatten to the message.
			if err, ok := v.(error); ok {
				details[k] = err.Error()
				continue
			}
			details[k] = v
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	_ = h.store.Insert(ctx, &domain.ScriptLog{
		Type:      logType,
		Message:   entry.Message,
		Details:   details,
		CreatedAt: entry.Time.UTC(),
	})
	return nil
}
