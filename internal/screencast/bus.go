package screencast

// The consumer bus (PipeWire in production) is consumed through the
// interfaces below. The engine never talks to the wire directly; the loop
// integration delivers bus callbacks as Event values into Session.HandleEvent
// and issues slot operations through StreamHandle.

// StreamState mirrors the bus-reported stream lifecycle.
type StreamState int

const (
	StateError StreamState = iota - 1
	StateUnconnected
	StateConnecting
	StatePaused
	StateStreaming
)

// String returns the bus wire name for the state.
func (s StreamState) String() string {
	switch s {
	case StateError:
		return "error"
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StatePaused:
		return "paused"
	case StateStreaming:
		return "streaming"
	}
	return "unknown"
}

// Direction is the role a stream connects with.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

// StreamFlags request bus-side behavior at connect time.
type StreamFlags uint32

const (
	// FlagDriver asks the bus to let this stream drive frame timing.
	FlagDriver StreamFlags = 1 << iota
	// FlagAllocBuffers asks the bus to allocate slot storage on its side.
	FlagAllocBuffers
)

// AnyTarget connects to whatever bus target is available.
const AnyTarget uint32 = 0xffffffff

// DataType identifies how a slot's storage is shared.
type DataType uint32

const (
	DataMemPtr DataType = 1
	DataMemFd  DataType = 2
	DataDmaBuf DataType = 3
)

// Mask returns the bitmask bit for the data type. Slot descriptors carry
// bitmasks during negotiation and a single concrete type afterwards.
func (t DataType) Mask() uint32 { return 1 << t }

// Chunk flag values for slot descriptors.
const (
	ChunkFlagNone      uint32 = 0
	ChunkFlagCorrupted uint32 = 1 << 0
)

// Header flag values for slot metadata headers.
const (
	HeaderFlagNone      uint32 = 0
	HeaderFlagCorrupted uint32 = 1 << 0
)

// Chunk describes the valid region of a slot's storage.
type Chunk struct {
	Offset uint32
	Size   uint32
	Stride int32
	Flags  uint32
}

// SlotData is the single-plane storage descriptor of a slot. TypeMask holds
// the storage kinds the bus allows for the slot; Type is filled in by the
// pool manager once a concrete kind is selected.
type SlotData struct {
	TypeMask  uint32
	Type      DataType
	MaxSize   uint32
	MapOffset uint32
	Chunk     Chunk
	Flags     uint32
	FD        int
}

// MetaHeader is the per-frame metadata stamped at enqueue, when the bus
// negotiated a header for the slot.
type MetaHeader struct {
	PTS       int64
	Flags     uint32
	Seq       uint64
	DTSOffset int64
}

// Slot is one exchangeable buffer slot owned by the bus.
type Slot struct {
	ID     uint32
	Data   SlotData
	Header *MetaHeader
}

// Event is a bus lifecycle event delivered to Session.HandleEvent.
type Event interface {
	streamEvent()
}

// StateChangedEvent reports a stream state transition.
type StateChangedEvent struct {
	Old   StreamState
	New   StreamState
	Error string
}

// ParamChangedEvent reports renegotiation of the stream format. A nil
// Format means the bus cleared the parameter and is ignored.
type ParamChangedEvent struct {
	Format *RawFormat
}

// AddBufferEvent reports a newly allocated bus slot needing backing storage.
type AddBufferEvent struct {
	Slot *Slot
}

// RemoveBufferEvent reports a slot being released by the bus.
type RemoveBufferEvent struct {
	Slot *Slot
}

// ProcessEvent reports that the bus wants data and the loop is idle.
type ProcessEvent struct{}

func (StateChangedEvent) streamEvent() {}
func (ParamChangedEvent) streamEvent() {}
func (AddBufferEvent) streamEvent()    {}
func (RemoveBufferEvent) streamEvent() {}
func (ProcessEvent) streamEvent()      {}

// RawFormat is the concrete video format the bus fixated during
// renegotiation. Modifier is nil when no modifier property was present,
// which selects the memfd path.
type RawFormat struct {
	Format       VideoFormat
	Modifier     *uint64
	Size         Rectangle
	Framerate    Fraction
	MaxFramerate Fraction
}

// StreamHandle is one bus stream object.
type StreamHandle interface {
	// Connect attaches the stream to the bus with the advertised candidate
	// parameters. Order of params expresses preference.
	Connect(dir Direction, target uint32, flags StreamFlags, params []Param) error

	// UpdateParams publishes follow-up parameters after renegotiation.
	UpdateParams(params []Param) error

	// Dequeue claims a free slot, or nil when the pool is exhausted.
	Dequeue() *Slot

	// Queue hands a claimed slot back to the bus for consumption.
	Queue(*Slot)

	// Flush discards pending slots. The engine never drains.
	Flush(drain bool)

	// NodeID returns the bus node the stream is bound to.
	NodeID() uint32

	Disconnect()
	Destroy()
}

// Core is an established process-wide bus connection.
type Core interface {
	CreateStream(name string, props map[string]string) (StreamHandle, error)
	Disconnect()
}

// Bus is the bus context from which connections are made.
type Bus interface {
	Connect() (Core, error)
	Destroy()
}
