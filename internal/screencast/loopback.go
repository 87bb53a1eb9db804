package screencast

// LoopbackBus is an in-process Bus that emulates a conforming consumer:
// it fixates the preferred candidate format, offers a slot pool, and
// recycles queued slots back to the free list. It backs headless runs and
// integration tests when no compositor-side bus binding is attached.
//
// All methods must be called from the goroutine that drains Events.
type LoopbackBus struct {
	stream *LoopbackStream
}

// NewLoopbackBus creates a loopback bus whose streams carry slots buffer
// slots each.
func NewLoopbackBus(slots int) *LoopbackBus {
	if slots <= 0 {
		slots = defaultBuffers
	}
	return &LoopbackBus{stream: &LoopbackStream{
		slots:  slots,
		nodeID: 1,
		events: make(chan Event, 128),
	}}
}

// Stream returns the single stream of the bus, valid after CreateStream.
func (b *LoopbackBus) Stream() *LoopbackStream { return b.stream }

// Connect implements Bus.
func (b *LoopbackBus) Connect() (Core, error) {
	return loopbackCore{bus: b}, nil
}

// Destroy implements Bus.
func (b *LoopbackBus) Destroy() {}

type loopbackCore struct {
	bus *LoopbackBus
}

func (c loopbackCore) CreateStream(name string, props map[string]string) (StreamHandle, error) {
	c.bus.stream.name = name
	return c.bus.stream, nil
}

func (c loopbackCore) Disconnect() {}

// LoopbackStream is the stream side of a LoopbackBus.
type LoopbackStream struct {
	name   string
	slots  int
	nodeID uint32
	nextID uint32

	events chan Event
	free   []*Slot
}

// Events returns the channel the loopback consumer emits lifecycle events
// on. The owner must deliver them into Session.HandleEvent.
func (s *LoopbackStream) Events() <-chan Event { return s.events }

func (s *LoopbackStream) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// Connect fixates a candidate format. Candidates without a modifier are
// preferred; a modifier-carrying candidate is fixated on its default value.
func (s *LoopbackStream) Connect(dir Direction, target uint32, flags StreamFlags, params []Param) error {
	s.emit(StateChangedEvent{Old: StateUnconnected, New: StateConnecting})

	var chosen *FormatParam
	for i := range params {
		if f, ok := params[i].(FormatParam); ok {
			if f.Modifier == nil {
				chosen = &f
				break
			}
			if chosen == nil {
				chosen = &f
			}
		}
	}
	if chosen == nil {
		return ErrUnsupportedNegotiation
	}

	raw := RawFormat{
		Format:       chosen.Format,
		Size:         chosen.Size,
		Framerate:    chosen.Framerate,
		MaxFramerate: chosen.MaxFramerate.Default,
	}
	if chosen.Modifier != nil {
		mod := chosen.Modifier.Values[0]
		raw.Modifier = &mod
	}
	s.emit(ParamChangedEvent{Format: &raw})
	return nil
}

// UpdateParams reacts to the published buffer shape by adding the slot pool
// and starting the stream.
func (s *LoopbackStream) UpdateParams(params []Param) error {
	for _, p := range params {
		buffers, ok := p.(BufferParam)
		if !ok {
			continue
		}
		if len(s.free) > 0 {
			// Renegotiation while running keeps the existing pool.
			continue
		}

		count := buffers.Buffers.Default
		if count > s.slots {
			count = s.slots
		}
		for i := 0; i < count; i++ {
			s.nextID++
			slot := &Slot{
				ID:     s.nextID,
				Data:   SlotData{TypeMask: buffers.DataTypeMask, FD: -1},
				Header: &MetaHeader{},
			}
			s.emit(AddBufferEvent{Slot: slot})
			s.free = append(s.free, slot)
		}

		s.emit(StateChangedEvent{Old: StateConnecting, New: StatePaused})
		s.emit(StateChangedEvent{Old: StatePaused, New: StateStreaming})
	}
	return nil
}

// Dequeue implements StreamHandle.
func (s *LoopbackStream) Dequeue() *Slot {
	if len(s.free) == 0 {
		return nil
	}
	slot := s.free[0]
	s.free = s.free[1:]
	return slot
}

// Queue consumes the slot immediately and recycles it.
func (s *LoopbackStream) Queue(slot *Slot) {
	s.free = append(s.free, slot)
	s.emit(ProcessEvent{})
}

// Flush implements StreamHandle.
func (s *LoopbackStream) Flush(drain bool) {}

// NodeID implements StreamHandle.
func (s *LoopbackStream) NodeID() uint32 { return s.nodeID }

// Disconnect releases the slot pool.
func (s *LoopbackStream) Disconnect() {
	for _, slot := range s.free {
		s.emit(RemoveBufferEvent{Slot: slot})
	}
	s.free = nil
	s.emit(StateChangedEvent{Old: StatePaused, New: StateUnconnected})
}

// Destroy implements StreamHandle.
func (s *LoopbackStream) Destroy() {}
