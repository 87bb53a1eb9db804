package screencast

import (
	"errors"
	"testing"
)

// fakeStream is an in-memory bus stream for tests.
type fakeStream struct {
	connected    bool
	direction    Direction
	target       uint32
	flags        StreamFlags
	candidates   []Param
	updates      [][]Param
	free         []*Slot
	queued       []*Slot
	flushed      bool
	disconnected bool
	destroyed    bool
	nodeID       uint32
	connectErr   error
}

func (f *fakeStream) Connect(dir Direction, target uint32, flags StreamFlags, params []Param) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.direction = dir
	f.target = target
	f.flags = flags
	f.candidates = params
	return nil
}

func (f *fakeStream) UpdateParams(params []Param) error {
	f.updates = append(f.updates, params)
	return nil
}

func (f *fakeStream) Dequeue() *Slot {
	if len(f.free) == 0 {
		return nil
	}
	slot := f.free[0]
	f.free = f.free[1:]
	return slot
}

func (f *fakeStream) Queue(slot *Slot) {
	f.queued = append(f.queued, slot)
}

func (f *fakeStream) Flush(bool)     { f.flushed = true }
func (f *fakeStream) NodeID() uint32 { return f.nodeID }
func (f *fakeStream) Disconnect()    { f.disconnected = true }
func (f *fakeStream) Destroy()       { f.destroyed = true }

type fakeCore struct {
	stream       *fakeStream
	createErr    error
	created      int
	disconnected bool
}

func (f *fakeCore) CreateStream(string, map[string]string) (StreamHandle, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return f.stream, nil
}

func (f *fakeCore) Disconnect() { f.disconnected = true }

type fakeBus struct {
	core      *fakeCore
	connects  int
	destroyed bool
}

func (f *fakeBus) Connect() (Core, error) {
	f.connects++
	return f.core, nil
}

func (f *fakeBus) Destroy() { f.destroyed = true }

// fakeProducer is the capture-side collaborator for tests.
type fakeProducer struct {
	state   FrameState
	started int
}

func (p *fakeProducer) FrameState() FrameState { return p.state }
func (p *fakeProducer) Start()                 { p.started++ }

// fakeGPU hands out descriptor-less DMA-BUF buffers.
type fakeGPU struct {
	fail bool
}

var errGPUAlloc = errors.New("gpu allocation refused")

func (g *fakeGPU) Allocate(info FrameInfo) (*Buffer, error) {
	if g.fail {
		return nil, errGPUAlloc
	}
	return &Buffer{
		Kind:   StorageDMABuf,
		Size:   info.Size,
		Stride: info.Stride,
		FD:     -1,
		Width:  info.Width,
		Height: info.Height,
	}, nil
}

type testEnv struct {
	bus      *fakeBus
	core     *fakeCore
	stream   *fakeStream
	producer *fakeProducer
	ctx      *Context
	session  *Session
}

// newTestEnv builds a connected context and a session with a created
// stream. gpu controls whether the DMA-BUF candidate is offered.
func newTestEnv(t *testing.T, gpu GPUAllocator) *testEnv {
	t.Helper()

	stream := &fakeStream{nodeID: 57}
	core := &fakeCore{stream: stream}
	bus := &fakeBus{core: core}

	ctx := NewContext(func() (Bus, error) { return bus, nil }, gpu)
	if err := ctx.Connect(); err != nil {
		t.Fatalf("context connect: %v", err)
	}

	producer := &fakeProducer{state: FrameSuccess}
	session, err := NewSession(ctx, SessionConfig{
		ID:       "test-session",
		Producer: producer,
		FrameInfo: map[StorageKind]FrameInfo{
			StorageMemFd: {
				DRMFormat: DRMFormatXRGB8888,
				Width:     1920,
				Height:    1080,
				Stride:    1920 * 4,
				Size:      1920 * 4 * 1080,
			},
			StorageDMABuf: {
				DRMFormat: DRMFormatARGB8888,
				Width:     1920,
				Height:    1080,
			},
		},
		Framerate: 60,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := session.CreateStream(); err != nil {
		t.Fatalf("create stream: %v", err)
	}

	return &testEnv{
		bus:      bus,
		core:     core,
		stream:   stream,
		producer: producer,
		ctx:      ctx,
		session:  session,
	}
}

// newSlot builds a bus slot with a metadata header, claimable once added
// to the stream's free list.
func newSlot(id uint32, mask uint32) *Slot {
	return &Slot{
		ID:     id,
		Data:   SlotData{TypeMask: mask},
		Header: &MetaHeader{},
	}
}

// addSlot runs the add-buffer path for a slot and makes it claimable.
func (e *testEnv) addSlot(t *testing.T, slot *Slot) {
	t.Helper()
	if err := e.session.HandleEvent(AddBufferEvent{Slot: slot}); err != nil {
		t.Fatalf("add buffer: %v", err)
	}
	if e.session.FatalError() {
		t.Fatal("add buffer marked the session fatal")
	}
	e.stream.free = append(e.stream.free, slot)
}
