// Package logging provides structured logging with per-module log level
// configuration.
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to an in-memory ring buffer served by the status API
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"screencast": "debug",  // Per-module overrides
//			"portal":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("screencast")
//	logger.Info("Stream created", "session_id", id)
//
// Module-specific levels override the global level for that module only.
// When running under systemd:
//
//	journalctl -t castnode -f
//	journalctl -t castnode MODULE=screencast
package logging
