// Package metrics provides Prometheus metrics for capture sessions.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionStreaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "castnode",
		Subsystem: "screencast",
		Name:      "streaming",
		Help:      "Whether the session is actively streaming (1) or not (0)",
	}, []string{"session_id"})

	framesExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "castnode",
		Subsystem: "screencast",
		Name:      "frames_exported_total",
		Help:      "Total frames handed to the bus",
	}, []string{"session_id"})

	framesCorrupted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "castnode",
		Subsystem: "screencast",
		Name:      "frames_corrupted_total",
		Help:      "Total frames marked corrupt at enqueue",
	}, []string{"session_id"})

	dequeueMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "castnode",
		Subsystem: "screencast",
		Name:      "dequeue_misses_total",
		Help:      "Dequeue attempts that found no free slot (backpressure)",
	}, []string{"session_id"})

	bufferPoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "castnode",
		Subsystem: "screencast",
		Name:      "buffer_pool_size",
		Help:      "Allocated buffers in the session pool",
	}, []string{"session_id"})

	// Local cache for the status API.
	sessionCache   = make(map[string]*SessionMetrics)
	sessionCacheMu sync.RWMutex
)

// SessionMetrics holds current metric values for a session.
type SessionMetrics struct {
	Streaming       bool
	FramesExported  uint64
	FramesCorrupted uint64
	DequeueMisses   uint64
	BufferPoolSize  int
}

// SetSessionStreaming records whether the session is streaming.
func SetSessionStreaming(sessionID string, streaming bool) {
	v := 0.0
	if streaming {
		v = 1.0
	}
	sessionStreaming.WithLabelValues(sessionID).Set(v)
	updateCache(sessionID, func(m *SessionMetrics) { m.Streaming = streaming })
}

// IncFramesExported counts a frame handed to the bus.
func IncFramesExported(sessionID string, corrupted bool) {
	framesExported.WithLabelValues(sessionID).Inc()
	if corrupted {
		framesCorrupted.WithLabelValues(sessionID).Inc()
	}
	updateCache(sessionID, func(m *SessionMetrics) {
		m.FramesExported++
		if corrupted {
			m.FramesCorrupted++
		}
	})
}

// IncDequeueMisses counts a failed buffer claim.
func IncDequeueMisses(sessionID string) {
	dequeueMisses.WithLabelValues(sessionID).Inc()
	updateCache(sessionID, func(m *SessionMetrics) { m.DequeueMisses++ })
}

// SetBufferPoolSize records the session's pool size.
func SetBufferPoolSize(sessionID string, size int) {
	bufferPoolSize.WithLabelValues(sessionID).Set(float64(size))
	updateCache(sessionID, func(m *SessionMetrics) { m.BufferPoolSize = size })
}

// DeleteSessionMetrics removes all metrics for a session.
func DeleteSessionMetrics(sessionID string) {
	sessionStreaming.DeleteLabelValues(sessionID)
	framesExported.DeleteLabelValues(sessionID)
	framesCorrupted.DeleteLabelValues(sessionID)
	dequeueMisses.DeleteLabelValues(sessionID)
	bufferPoolSize.DeleteLabelValues(sessionID)

	sessionCacheMu.Lock()
	delete(sessionCache, sessionID)
	sessionCacheMu.Unlock()
}

// GetSessionMetrics returns the cached values for a session.
func GetSessionMetrics(sessionID string) (SessionMetrics, bool) {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	m, ok := sessionCache[sessionID]
	if !ok {
		return SessionMetrics{}, false
	}
	return *m, true
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func updateCache(sessionID string, update func(*SessionMetrics)) {
	sessionCacheMu.Lock()
	defer sessionCacheMu.Unlock()

	m, ok := sessionCache[sessionID]
	if !ok {
		m = &SessionMetrics{}
		sessionCache[sessionID] = m
	}
	update(m)
}
