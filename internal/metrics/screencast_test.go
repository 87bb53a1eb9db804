package metrics

import "testing"

func TestSessionCacheTracksCounters(t *testing.T) {
	const id = "metrics-test-1"
	defer DeleteSessionMetrics(id)

	IncFramesExported(id, false)
	IncFramesExported(id, true)
	IncDequeueMisses(id)
	SetBufferPoolSize(id, 4)
	SetSessionStreaming(id, true)

	m, ok := GetSessionMetrics(id)
	if !ok {
		t.Fatal("expected cached metrics for session")
	}
	if m.FramesExported != 2 {
		t.Errorf("expected 2 exported frames, got %d", m.FramesExported)
	}
	if m.FramesCorrupted != 1 {
		t.Errorf("expected 1 corrupted frame, got %d", m.FramesCorrupted)
	}
	if m.DequeueMisses != 1 {
		t.Errorf("expected 1 dequeue miss, got %d", m.DequeueMisses)
	}
	if m.BufferPoolSize != 4 {
		t.Errorf("expected pool size 4, got %d", m.BufferPoolSize)
	}
	if !m.Streaming {
		t.Error("expected streaming to be recorded")
	}
}

func TestDeleteSessionMetrics(t *testing.T) {
	const id = "metrics-test-2"

	SetSessionStreaming(id, true)
	DeleteSessionMetrics(id)

	if _, ok := GetSessionMetrics(id); ok {
		t.Fatal("expected cache entry to be removed")
	}
}
