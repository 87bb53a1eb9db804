package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/castnode/castnode/internal/events"
	"github.com/castnode/castnode/internal/logging"
	"github.com/castnode/castnode/internal/portal"
	"github.com/castnode/castnode/internal/screencast"
)

// exportProducer drives the frame loop of a headless export run. The engine
// starts it on the first streaming transition; the run loop produces one
// frame per tick afterwards.
type exportProducer struct {
	state screencast.FrameState
}

func (p *exportProducer) FrameState() screencast.FrameState { return p.state }
func (p *exportProducer) Start()                            { p.state = screencast.FrameSuccess }

// CreateExportCmd creates the export command: a single capture session run
// over the in-process loopback consumer, optionally bootstrapped through
// the desktop portal.
func CreateExportCmd() *cobra.Command {
	var (
		width     uint32
		height    uint32
		framerate uint32
		frames    int
		usePortal bool
		logJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run a headless capture session",
		Long: `Runs one capture session against the in-process loopback consumer and reports ` +
			`the negotiated format, pool shape and frame throughput. With --portal, capture ` +
			`consent is negotiated through the desktop portal first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if framerate == 0 {
				return errors.New("framerate must be greater than zero")
			}
			if width == 0 || height == 0 {
				return errors.New("width and height must be greater than zero")
			}

			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("export")

			bus := events.New()
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if usePortal {
				if err := bootstrapPortal(runCtx, bus); err != nil {
					return err
				}
			}

			loopback := screencast.NewLoopbackBus(0)
			ctx := screencast.NewContext(func() (screencast.Bus, error) { return loopback, nil }, nil)
			if err := ctx.Connect(); err != nil {
				return err
			}
			defer ctx.Disconnect()

			producer := &exportProducer{}
			session, err := screencast.NewSession(ctx, screencast.SessionConfig{
				ID:       "export",
				Producer: producer,
				Events:   bus,
				FrameInfo: map[screencast.StorageKind]screencast.FrameInfo{
					screencast.StorageMemFd: {
						DRMFormat: screencast.DRMFormatXRGB8888,
						Width:     width,
						Height:    height,
						Stride:    width * 4,
						Size:      width * 4 * height,
					},
				},
				Framerate: framerate,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.CreateStream(); err != nil {
				return err
			}

			interval := time.Second / time.Duration(framerate)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			stream := loopback.Stream()
			exported := 0
			for exported < frames {
				select {
				case <-runCtx.Done():
					logger.Info("Export interrupted", "frames", exported)
					return nil
				case ev := <-stream.Events():
					if err := session.HandleEvent(ev); err != nil {
						return err
					}
					if session.FatalError() {
						logger.Error("Session failed, aborting export")
						return nil
					}
				case <-ticker.C:
					if !session.Streaming() || producer.state == screencast.FrameNone {
						continue
					}
					if frame := session.Swap(); frame != nil {
						exported++
					}
				}
			}

			logger.Info("Export finished",
				"frames", exported,
				"buffer_type", session.ActiveKind().String(),
				"node_id", session.NodeID(),
			)
			return nil
		},
	}

	cmd.Flags().Uint32Var(&width, "width", 1920, "Frame width in pixels")
	cmd.Flags().Uint32Var(&height, "height", 1080, "Frame height in pixels")
	cmd.Flags().Uint32Var(&framerate, "framerate", 60, "Maximum frame rate")
	cmd.Flags().IntVar(&frames, "frames", 300, "Number of frames to export")
	cmd.Flags().BoolVar(&usePortal, "portal", false, "Negotiate capture consent through the desktop portal")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")
	return cmd
}

// bootstrapPortal runs the consent flow and publishes the granted node.
// The remote descriptor is closed immediately: frame exchange in this
// command runs over the loopback consumer.
func bootstrapPortal(ctx context.Context, bus *events.Bus) error {
	logger := logging.GetLogger("portal")

	client, err := portal.Connect()
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.CreateSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	err = session.SelectSources(ctx, portal.SourceOptions{
		Types:      portal.SourceMonitor,
		CursorMode: portal.CursorEmbedded,
	})
	if err != nil {
		return err
	}

	streams, err := session.Start(ctx, "")
	if err != nil {
		return err
	}

	fd, err := session.OpenRemote()
	if err != nil {
		return err
	}
	syscall.Close(fd)

	for _, stream := range streams {
		logger.Info("Capture granted",
			"node_id", stream.NodeID,
			"size", stream.Size,
			"source_type", uint32(stream.SourceType),
		)
		bus.Publish(events.PortalSessionEvent{
			SessionID: "export",
			Action:    "started",
			NodeID:    stream.NodeID,
		})
	}
	return nil
}
