package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeFrameExported
	TypeSessionError
	TypeBufferPool
	TypePortalSession
	TypeConfigReloaded
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent reports a bus stream state transition for a
// capture session.
type SessionStateChangedEvent struct {
	SessionID string `json:"session_id" example:"session-001" doc:"Capture session identifier"`
	Old       string `json:"old" example:"paused" doc:"Previous stream state"`
	New       string `json:"new" example:"streaming" doc:"New stream state"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// FrameExportedEvent reports a frame handed to the bus for consumption.
type FrameExportedEvent struct {
	SessionID string `json:"session_id" example:"session-001" doc:"Capture session identifier"`
	Seq       uint64 `json:"seq" example:"42" doc:"Frame sequence number"`
	Corrupted bool   `json:"corrupted" example:"false" doc:"Whether the frame was marked corrupt"`
}

// Type returns the event type identifier for FrameExportedEvent.
func (e FrameExportedEvent) Type() uint32 { return TypeFrameExported }

// SessionErrorEvent reports a session-fatal condition. The session owner
// is expected to abort the session when it sees one.
type SessionErrorEvent struct {
	SessionID string `json:"session_id" example:"session-001" doc:"Capture session identifier"`
	Error     string `json:"error" example:"unsupported buffer storage kind" doc:"Error description"`
}

// Type returns the event type identifier for SessionErrorEvent.
func (e SessionErrorEvent) Type() uint32 { return TypeSessionError }

// BufferPoolEvent reports a buffer entering or leaving a session's pool.
type BufferPoolEvent struct {
	SessionID string `json:"session_id" example:"session-001" doc:"Capture session identifier"`
	Action    string `json:"action" example:"added" doc:"Action type: added, removed"`
	PoolSize  int    `json:"pool_size" example:"4" doc:"Pool size after the change"`
}

// Type returns the event type identifier for BufferPoolEvent.
func (e BufferPoolEvent) Type() uint32 { return TypeBufferPool }

// PortalSessionEvent reports desktop-portal session lifecycle changes.
type PortalSessionEvent struct {
	SessionID string `json:"session_id" example:"session-001" doc:"Capture session identifier"`
	Action    string `json:"action" example:"started" doc:"Action type: created, started, closed"`
	NodeID    uint32 `json:"node_id" example:"57" doc:"Bus node selected by the portal"`
}

// Type returns the event type identifier for PortalSessionEvent.
func (e PortalSessionEvent) Type() uint32 { return TypePortalSession }

// ConfigReloadedEvent reports a configuration file reload.
type ConfigReloadedEvent struct {
	Path string `json:"path" example:"config.toml" doc:"Path of the reloaded file"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"screencast" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
