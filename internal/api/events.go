package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/castnode/castnode/internal/events"
)

// registerEventRoutes registers the session event SSE endpoint.
func (s *Server) registerEventRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Session Events",
		Description: "Real-time capture session events via Server-Sent Events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"state-changed":  events.SessionStateChangedEvent{},
		"frame-exported": events.FrameExportedEvent{},
		"session-error":  events.SessionErrorEvent{},
		"buffer-pool":    events.BufferPoolEvent{},
		"portal-session": events.PortalSessionEvent{},
	}, func(ctx context.Context, input *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)

		unsubs := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameExportedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.BufferPoolEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PortalSessionEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubs {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
