package screencast

import (
	"testing"
	"time"

	"github.com/castnode/castnode/internal/events"
)

// waitFor polls until check passes or the deadline expires. Event delivery
// through the bus is asynchronous.
func waitFor(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestRegistryTracksSessionLifecycle(t *testing.T) {
	bus := events.New()
	registry := NewRegistry(bus)
	defer registry.Close()

	registry.Track("s1", 57)

	status, ok := registry.Get("s1")
	if !ok {
		t.Fatal("tracked session missing")
	}
	if status.NodeID != 57 {
		t.Errorf("unexpected node id %d", status.NodeID)
	}
	if status.State != "unconnected" {
		t.Errorf("unexpected initial state %q", status.State)
	}

	bus.Publish(events.SessionStateChangedEvent{SessionID: "s1", Old: "paused", New: "streaming"})
	waitFor(t, func() bool {
		s, _ := registry.Get("s1")
		return s.Streaming
	})

	bus.Publish(events.FrameExportedEvent{SessionID: "s1", Seq: 0})
	bus.Publish(events.FrameExportedEvent{SessionID: "s1", Seq: 1, Corrupted: true})
	waitFor(t, func() bool {
		s, _ := registry.Get("s1")
		return s.FramesExported == 2 && s.FramesCorrupt == 1
	})

	bus.Publish(events.BufferPoolEvent{SessionID: "s1", Action: "added", PoolSize: 4})
	waitFor(t, func() bool {
		s, _ := registry.Get("s1")
		return s.PoolSize == 4
	})

	bus.Publish(events.SessionErrorEvent{SessionID: "s1", Error: "unsupported buffer storage kind"})
	waitFor(t, func() bool {
		s, _ := registry.Get("s1")
		return s.LastError != "" && !s.Streaming
	})

	registry.Remove("s1")
	if _, ok := registry.Get("s1"); ok {
		t.Error("removed session still present")
	}
}

func TestRegistryListIsOrdered(t *testing.T) {
	bus := events.New()
	registry := NewRegistry(bus)
	defer registry.Close()

	registry.Track("b", 2)
	registry.Track("a", 1)
	registry.Track("c", 3)

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	if list[0].ID != "a" || list[1].ID != "b" || list[2].ID != "c" {
		t.Errorf("unexpected order %v", []string{list[0].ID, list[1].ID, list[2].ID})
	}
}

func TestRegistryIgnoresEmptySessionID(t *testing.T) {
	bus := events.New()
	registry := NewRegistry(bus)
	defer registry.Close()

	bus.Publish(events.FrameExportedEvent{SessionID: ""})
	time.Sleep(20 * time.Millisecond)
	if got := len(registry.List()); got != 0 {
		t.Errorf("expected no sessions, got %d", got)
	}
}
