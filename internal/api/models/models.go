// Package models holds the request and response bodies of the status API.
package models

import (
	"github.com/castnode/castnode/internal/screencast"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-09T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go version used for the build"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type SessionListData struct {
	Sessions []screencast.SessionStatus `json:"sessions" doc:"Known capture sessions"`
	Count    int                        `json:"count" example:"1" doc:"Number of sessions"`
}

type SessionListResponse struct {
	Body SessionListData
}

type SessionResponse struct {
	Body screencast.SessionStatus
}

// Log models
type LogLine struct {
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"screencast" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogsData struct {
	Entries []LogLine `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int       `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
