package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/castnode/castnode/cmd"
	"github.com/castnode/castnode/internal/api"
	"github.com/castnode/castnode/internal/config"
	"github.com/castnode/castnode/internal/events"
	"github.com/castnode/castnode/internal/logging"
	"github.com/castnode/castnode/internal/metrics"
	"github.com/castnode/castnode/internal/screencast"
	"github.com/castnode/castnode/internal/systemd"
	"github.com/castnode/castnode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingScreencast string `help:"Screencast engine logging level" default:"info" toml:"logging.screencast" env:"LOGGING_SCREENCAST"`
	LoggingPortal     string `help:"Portal logging level" default:"info" toml:"logging.portal" env:"LOGGING_PORTAL"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			logging.GetLogger("config").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"screencast": opts.LoggingScreencast,
				"portal":     opts.LoggingPortal,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
			},
		})
		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Bridge log entries onto the event bus for SSE streaming.
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		// The registry reflects sessions hosted on this bus. Until an
		// in-process session host lands, the daemon serves an empty list;
		// `castnode export` hosts its session standalone.
		registry := screencast.NewRegistry(eventBus)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Registry:     registry,
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = metrics.Handler()
		}
		server := api.NewServer(apiOpts)

		// Live-reload log levels when the config file changes.
		watcher := config.NewConfigWatcher(
			opts.Config,
			func(path string) (logging.Config, error) {
				return config.LoadLoggingConfig(path), nil
			},
			logging.GetLogger("config"),
		)
		watcher.OnReload(func(cfg logging.Config) {
			for module, level := range cfg.Modules {
				logging.SetModuleLevel(module, level)
			}
			eventBus.Publish(events.ConfigReloadedEvent{Path: opts.Config})
		})

		hooks.OnStart(func() {
			if _, statErr := os.Stat(opts.Config); statErr == nil {
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Failed to start config watcher", "error", watchErr)
				}
			}

			systemd.NotifyReady(logger)

			logger.Info("Starting castnode", "version", version.String(), "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			systemd.NotifyStopping(logger)

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			registry.Close()
		})
	})

	root := cli.Root()
	root.Use = "castnode"
	root.Version = version.String()
	root.AddCommand(cmd.CreateExportCmd())
	root.AddCommand(cmd.CreateFormatsCmd())

	cli.Run()
}
