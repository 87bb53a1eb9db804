// Package systemd integrates with the service manager's readiness protocol.
package systemd

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady signals the service manager that startup is complete. Outside
// a Type=notify unit the call is a no-op.
func NotifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("Failed to notify service manager", "error", err)
		return
	}
	if sent {
		logger.Debug("Readiness reported to service manager")
	}
}

// NotifyStopping signals the service manager that shutdown has begun.
func NotifyStopping(logger *slog.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logger.Warn("Failed to notify service manager", "error", err)
	}
}
