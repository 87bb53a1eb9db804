package screencast

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/castnode/castnode/internal/events"
	"github.com/castnode/castnode/internal/logging"
	"github.com/castnode/castnode/internal/metrics"
)

const streamNamePrefix = "castnode-stream-"

// FrameState is the capture producer's per-frame production state. It is
// owned by the producer and only read by this package.
type FrameState int

const (
	FrameNone FrameState = iota
	FrameInProgress
	FrameSuccess
	FrameFailed
)

// Producer is the compositor-side capture collaborator.
type Producer interface {
	// FrameState reports the production state of the frame currently being
	// filled into the claimed buffer.
	FrameState() FrameState

	// Start begins the frame-production loop. Called exactly once per
	// session, on the first transition to streaming.
	Start()
}

// Frame pairs the currently claimed bus slot with its backing buffer.
// YInvert is set by the producer when the captured frame is reported
// upside down.
type Frame struct {
	Slot    *Slot
	Buffer  *Buffer
	YInvert bool
}

// Context is the process-wide bus connection state shared by all sessions.
type Context struct {
	open   func() (Bus, error)
	bus    Bus
	core   Core
	gpu    GPUAllocator
	logger *slog.Logger
}

// NewContext creates a context that connects lazily through open. A nil
// gpu allocator disables the DMA-BUF candidate for every session.
func NewContext(open func() (Bus, error), gpu GPUAllocator) *Context {
	return &Context{
		open:   open,
		gpu:    gpu,
		logger: logging.GetLogger("screencast"),
	}
}

// Connect establishes the bus connection. Calling it again while connected
// is a no-op.
func (c *Context) Connect() error {
	if c.bus == nil {
		c.logger.Debug("Establishing bus context")
		bus, err := c.open()
		if err != nil {
			return fmt.Errorf("create bus context: %w", err)
		}
		c.bus = bus
	}

	if c.core == nil {
		core, err := c.bus.Connect()
		if err != nil {
			return fmt.Errorf("connect bus context: %w", err)
		}
		c.core = core
	}
	return nil
}

// Disconnect tears the connection down. Calling it without a connection is
// a no-op.
func (c *Context) Disconnect() {
	if c.core != nil {
		c.logger.Debug("Disconnecting from bus")
		c.core.Disconnect()
		c.core = nil
	}
	if c.bus != nil {
		c.bus.Destroy()
		c.bus = nil
	}
}

// Connected reports whether the process-wide connection is established.
func (c *Context) Connected() bool { return c.core != nil }

// GPUAvailable reports whether DMA-BUF buffers can be allocated.
func (c *Context) GPUAvailable() bool { return c.gpu != nil }

// SessionConfig carries everything a session needs before its stream is
// created.
type SessionConfig struct {
	ID       string
	Producer Producer

	// Codec defaults to the built-in mapping table.
	Codec FormatCodec

	// FrameInfo holds the producer's first reported candidate geometry per
	// storage kind. The memfd entry is required; the DMA-BUF entry is used
	// only when the context has a GPU allocator.
	FrameInfo map[StorageKind]FrameInfo

	// Framerate is the producer's reported maximum rate.
	Framerate uint32

	Logger *slog.Logger
	Events *events.Bus
}

// Session is one active capture-to-stream pipeline. All methods must be
// called from the single event loop that also delivers bus events.
type Session struct {
	id       string
	ctx      *Context
	producer Producer
	codec    FormatCodec
	logger   *slog.Logger
	events   *events.Bus

	frameInfo map[StorageKind]FrameInfo
	framerate uint32

	stream       StreamHandle
	streamActive bool
	needBuffer   bool
	fatalErr     bool

	negotiated RawFormat
	bufferType StorageKind

	seq     uint64
	pool    []*Buffer
	bySlot  map[uint32]*Buffer
	current *Frame
}

// NewSession creates a session bound to the shared context. The stream
// object itself is created later, once via CreateStream.
func NewSession(ctx *Context, cfg SessionConfig) (*Session, error) {
	if cfg.Producer == nil {
		return nil, fmt.Errorf("session %q: no producer", cfg.ID)
	}
	if _, ok := cfg.FrameInfo[StorageMemFd]; !ok {
		return nil, fmt.Errorf("session %q: %w", cfg.ID, ErrNoFrameInfo)
	}

	codec := cfg.Codec
	if codec == nil {
		codec = DefaultCodec()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger("screencast").With("session_id", cfg.ID)
	}

	info := make(map[StorageKind]FrameInfo, len(cfg.FrameInfo))
	for kind, fi := range cfg.FrameInfo {
		info[kind] = fi
	}

	return &Session{
		id:        cfg.ID,
		ctx:       ctx,
		producer:  cfg.Producer,
		codec:     codec,
		logger:    logger,
		events:    cfg.Events,
		frameInfo: info,
		framerate: cfg.Framerate,
		bySlot:    make(map[uint32]*Buffer),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Frame returns the currently claimed frame, or nil.
func (s *Session) Frame() *Frame { return s.current }

// NeedBuffer reports backpressure: the pipeline wants to produce a frame
// but no slot is currently claimable.
func (s *Session) NeedBuffer() bool { return s.needBuffer }

// FatalError reports the session-fatal flag. The producer must abort the
// session once set.
func (s *Session) FatalError() bool { return s.fatalErr }

// Streaming reports whether the bus is consuming frames.
func (s *Session) Streaming() bool { return s.streamActive }

// ActiveKind returns the storage kind fixated for this session.
func (s *Session) ActiveKind() StorageKind { return s.bufferType }

// Seq returns the next frame sequence number.
func (s *Session) Seq() uint64 { return s.seq }

// NodeID returns the bus node the stream is bound to, or zero without a
// stream.
func (s *Session) NodeID() uint32 {
	if s.stream == nil {
		return 0
	}
	return s.stream.NodeID()
}

// CreateStream allocates the bus stream object and connects it as a video
// producer, advertising the candidate formats built from the producer's
// reported geometry. Allocation failure is terminal; there is no retry.
func (s *Session) CreateStream() error {
	if !s.ctx.Connected() {
		return ErrNotConnected
	}

	name := streamNamePrefix + strings.Split(uuid.NewString(), "-")[0]
	stream, err := s.ctx.core.CreateStream(name, map[string]string{
		"media.class": "Video/Source",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamCreate, err)
	}
	s.streamActive = false

	params := s.buildCandidates()
	if err := stream.Connect(DirectionOutput, AnyTarget, FlagDriver|FlagAllocBuffers, params); err != nil {
		stream.Destroy()
		return fmt.Errorf("connect stream %q: %w", name, err)
	}

	s.stream = stream
	s.logger.Info("Stream created", "name", name, "candidates", len(params))
	return nil
}

// UpdateStreamParams re-advertises the candidate formats, used when the
// producer reports new geometry.
func (s *Session) UpdateStreamParams() error {
	if s.stream == nil {
		return ErrStreamCreate
	}
	s.logger.Debug("Updating stream candidate parameters")
	return s.stream.UpdateParams(s.buildCandidates())
}

// DestroyStream flushes pending slots without draining, disconnects and
// releases the stream object. Safe to call when no stream exists.
func (s *Session) DestroyStream() {
	if s.stream == nil {
		return
	}
	s.logger.Debug("Destroying stream")
	s.stream.Flush(false)
	s.stream.Disconnect()
	s.stream.Destroy()
	s.stream = nil
	s.streamActive = false
}

// Close ends the session: the stream is destroyed and any buffers still in
// the pool are released. The bus normally removes every slot before the
// stream goes away; this covers teardown paths where it does not.
func (s *Session) Close() {
	s.DestroyStream()

	for _, buf := range s.pool {
		buf.Destroy()
	}
	s.pool = nil
	s.bySlot = make(map[uint32]*Buffer)
	s.current = nil
	metrics.SetBufferPoolSize(s.id, 0)
	metrics.DeleteSessionMetrics(s.id)
}

// fail records a session-fatal condition.
func (s *Session) fail(err error) {
	s.fatalErr = true
	s.logger.Error("Session failure", "error", err)
	if s.events != nil {
		s.events.Publish(events.SessionErrorEvent{
			SessionID: s.id,
			Error:     err.Error(),
		})
	}
}
