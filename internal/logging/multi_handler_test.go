package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

// recordingHandler captures records and can simulate a failing sink.
type recordingHandler struct {
	level    slog.Level
	err      error
	messages []string
}

func (h *recordingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.messages = append(h.messages, r.Message)
	return h.err
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func newRecord(level slog.Level, msg string) slog.Record {
	return slog.NewRecord(time.Now(), level, msg, 0)
}

func TestMultiHandlerFansOutByLevel(t *testing.T) {
	debug := &recordingHandler{level: slog.LevelDebug}
	warn := &recordingHandler{level: slog.LevelWarn}
	m := NewMultiHandler(debug, warn)

	if !m.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("fan-out should be enabled when any sink accepts the level")
	}

	if err := m.Handle(context.Background(), newRecord(slog.LevelInfo, "negotiated")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if err := m.Handle(context.Background(), newRecord(slog.LevelError, "pool exhausted")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(debug.messages) != 2 {
		t.Errorf("debug sink got %d records, want 2", len(debug.messages))
	}
	if len(warn.messages) != 1 || warn.messages[0] != "pool exhausted" {
		t.Errorf("warn sink got %v, want only the error record", warn.messages)
	}
}

func TestMultiHandlerFailingSinkDoesNotStopDelivery(t *testing.T) {
	sinkErr := errors.New("journal unavailable")
	failing := &recordingHandler{level: slog.LevelInfo, err: sinkErr}
	healthy := &recordingHandler{level: slog.LevelInfo}
	m := NewMultiHandler(failing, healthy)

	err := m.Handle(context.Background(), newRecord(slog.LevelInfo, "stream created"))
	if !errors.Is(err, sinkErr) {
		t.Errorf("Handle error = %v, want wrapped %v", err, sinkErr)
	}
	if len(healthy.messages) != 1 {
		t.Errorf("healthy sink got %d records, want 1", len(healthy.messages))
	}
}

func TestMultiHandlerDropsNilHandlers(t *testing.T) {
	healthy := &recordingHandler{level: slog.LevelInfo}
	m := NewMultiHandler(nil, healthy, nil)

	if err := m.Handle(context.Background(), newRecord(slog.LevelInfo, "buffer added")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(healthy.messages) != 1 {
		t.Errorf("healthy sink got %d records, want 1", len(healthy.messages))
	}
}
