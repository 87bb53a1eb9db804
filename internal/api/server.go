// Package api serves the status and introspection HTTP API with Huma v2.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/castnode/castnode/internal/api/models"
	"github.com/castnode/castnode/internal/events"
	"github.com/castnode/castnode/internal/logging"
	"github.com/castnode/castnode/internal/screencast"
	"github.com/castnode/castnode/internal/version"
)

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	// Registry provides session status snapshots. Required.
	Registry *screencast.Registry

	// EventBus feeds the SSE endpoints. Required.
	EventBus *events.Bus

	// PrometheusHandler, when set, is mounted at /metrics without auth.
	PrometheusHandler http.Handler
}

// Server is the status API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	registry   *screencast.Registry
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer builds the API server and registers all routes.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("Castnode API", version.String())
	config.Info.Description = "Screen capture session status and introspection API"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		registry: opts.Registry,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(loggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the underlying mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API on addr until Stop or listen failure.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "API is healthy"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "List all known capture sessions with their current status",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.SessionListResponse, error) {
		sessions := s.registry.List()
		return &models.SessionListResponse{
			Body: models.SessionListData{Sessions: sessions, Count: len(sessions)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}",
		Summary:     "Get Session",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" example:"session-001" doc:"Capture session identifier"`
	}) (*models.SessionResponse, error) {
		status, ok := s.registry.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("session " + input.ID + " not found")
		}
		return &models.SessionResponse{Body: status}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Read recent log entries from the in-memory ring buffer",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum entries to return"`
	}) (*models.LogsResponse, error) {
		entries := logging.GetBuffer().ReadLast(input.Limit)
		lines := make([]models.LogLine, 0, len(entries))
		for _, entry := range entries {
			lines = append(lines, logLineFromEntry(entry))
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: lines, Count: len(lines)},
		}, nil
	})

	s.registerEventRoutes()
	s.registerLogStreamRoute()
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. SSE clients that cannot set headers may pass the
// same credentials base64 encoded in the auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	unauthorized := func(ctx huma.Context, message string) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="Castnode API"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, message)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var encoded string
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				unauthorized(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		} else {
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			unauthorized(ctx, "Invalid credentials format")
			return
		}
		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

func logLineFromEntry(entry logging.LogEntry) models.LogLine {
	return models.LogLine{
		Timestamp:  entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
