package screencast

import (
	"sort"
	"sync"
	"time"

	"github.com/castnode/castnode/internal/events"
)

// SessionStatus is a point-in-time snapshot of one session, maintained from
// published events so it can be read from any goroutine while the session
// itself stays confined to its event loop.
type SessionStatus struct {
	ID             string    `json:"id" example:"session-001" doc:"Capture session identifier"`
	State          string    `json:"state" example:"streaming" doc:"Last reported stream state"`
	Streaming      bool      `json:"streaming" example:"true" doc:"Whether the bus is consuming frames"`
	NodeID         uint32    `json:"node_id" example:"57" doc:"Bus node the stream is bound to"`
	PoolSize       int       `json:"pool_size" example:"4" doc:"Buffers currently in the pool"`
	FramesExported uint64    `json:"frames_exported" example:"1200" doc:"Frames handed to the bus"`
	FramesCorrupt  uint64    `json:"frames_corrupt" example:"1" doc:"Frames marked corrupt"`
	LastError      string    `json:"last_error,omitempty" doc:"Most recent session-fatal error"`
	StartedAt      time.Time `json:"started_at" doc:"When the session was registered"`
}

// Registry tracks session status snapshots from the event bus. It only
// observes sessions that publish on the same bus, so a session host must run
// in-process with the registry and share its bus. The export command hosts
// its session standalone on a private bus and does not appear in a daemon's
// registry.
type Registry struct {
	mu       sync.RWMutex
	statuses map[string]*SessionStatus
	unsubs   []func()
}

// NewRegistry creates a registry subscribed to session events on bus.
func NewRegistry(bus *events.Bus) *Registry {
	r := &Registry{statuses: make(map[string]*SessionStatus)}

	r.unsubs = append(r.unsubs,
		bus.Subscribe(func(e events.SessionStateChangedEvent) {
			r.update(e.SessionID, func(s *SessionStatus) {
				s.State = e.New
				s.Streaming = e.New == StateStreaming.String()
			})
		}),
		bus.Subscribe(func(e events.FrameExportedEvent) {
			r.update(e.SessionID, func(s *SessionStatus) {
				s.FramesExported++
				if e.Corrupted {
					s.FramesCorrupt++
				}
			})
		}),
		bus.Subscribe(func(e events.SessionErrorEvent) {
			r.update(e.SessionID, func(s *SessionStatus) {
				s.LastError = e.Error
				s.Streaming = false
			})
		}),
		bus.Subscribe(func(e events.BufferPoolEvent) {
			r.update(e.SessionID, func(s *SessionStatus) {
				s.PoolSize = e.PoolSize
			})
		}),
		bus.Subscribe(func(e events.PortalSessionEvent) {
			r.update(e.SessionID, func(s *SessionStatus) {
				if e.NodeID != 0 {
					s.NodeID = e.NodeID
				}
			})
		}),
	)
	return r
}

// Track registers a session before any of its events are published.
func (r *Registry) Track(id string, nodeID uint32) {
	r.update(id, func(s *SessionStatus) {
		s.NodeID = nodeID
	})
}

// Remove drops a session's snapshot.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.statuses, id)
}

// Get returns a session's snapshot.
func (r *Registry) Get(id string) (SessionStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[id]
	if !ok {
		return SessionStatus{}, false
	}
	return *s, true
}

// List returns all snapshots ordered by session ID.
func (r *Registry) List() []SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]SessionStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Close unsubscribes the registry from the bus.
func (r *Registry) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

func (r *Registry) update(id string, fn func(*SessionStatus)) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.statuses[id]
	if !ok {
		s = &SessionStatus{
			ID:        id,
			State:     StateUnconnected.String(),
			StartedAt: time.Now(),
		}
		r.statuses[id] = s
	}
	fn(s)
}
