package scriptlog

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/domain"
	"contagion-monitor/internal/storage/memory"
)

func newHookedLogger(store *memory.ScriptLogStore) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(NewHook(store))
	return log
}

func TestHook_PersistsInfoAndError(t *testing.T) {
	store := memory.NewScriptLogStore()
	log := newHookedLogger(store)

	log.WithField("block", 42).Info("transfer batch ingested")
	log.WithError(errors.New("rpc down")).Error("tick failed")
	log.Debug("noise") // below the hook's levels

	entries := store.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 persisted entries, got %d", len(entries))
	}

	info := entries[0]
	if info.Type != domain.LogTypeInfo {
		t.Errorf("Expected info type, got %s", info.Type)
	}
	if info.Message != "transfer batch ingested" {
		t.Errorf("Message mismatch: %q", info.Message)
	}
	if info.Details["block"] != 42 {
		t.Errorf("Details should carry fields, got %v", info.Details)
	}

	errEntry := entries[1]
	if errEntry.Type != domain.LogTypeError {
		t.Errorf("Expected error type, got %s", errEntry.Type)
	}
	if errEntry.Details[logrus.ErrorKey] != "rpc down" {
		t.Errorf("Error field should flatten to its message, got %v", errEntry.Details)
	}
}

func TestHook_WarnMapsToInfo(t *testing.T) {
	store := memory.NewScriptLogStore()
	log := newHookedLogger(store)

	log.Warn("slow rpc")

	entries := store.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Type != domain.LogTypeInfo {
		t.Errorf("Warn should persist as info, got %s", entries[0].Type)
	}
}
