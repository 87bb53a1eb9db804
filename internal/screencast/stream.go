package screencast

import (
	"fmt"

	"github.com/castnode/castnode/internal/events"
	"github.com/castnode/castnode/internal/metrics"
)

// HandleEvent is the single entry point for bus lifecycle events. The loop
// integration delivers every stream callback here, on the same goroutine
// that runs the exchange operations.
func (s *Session) HandleEvent(ev Event) error {
	switch e := ev.(type) {
	case StateChangedEvent:
		s.handleStateChanged(e)
	case ParamChangedEvent:
		return s.handleParamChanged(e)
	case AddBufferEvent:
		s.handleAddBuffer(e.Slot)
	case RemoveBufferEvent:
		s.handleRemoveBuffer(e.Slot)
	case ProcessEvent:
		s.handleProcess()
	}
	return nil
}

func (s *Session) handleStateChanged(e StateChangedEvent) {
	s.logger.Info("Stream state changed", "state", e.New.String(), "node_id", s.NodeID())
	if e.Error != "" {
		s.logger.Warn("Stream error reported", "error", e.Error)
	}

	switch e.New {
	case StateStreaming:
		s.streamActive = true
		if s.producer.FrameState() == FrameNone {
			s.producer.Start()
		}
	case StatePaused:
		if e.Old == StateStreaming {
			// Release whatever is claimed, regardless of fill state, so
			// the bus can reclaim the slot while paused.
			s.Enqueue()
		}
		s.streamActive = false
	default:
		s.streamActive = false
	}

	metrics.SetSessionStreaming(s.id, s.streamActive)
	if s.events != nil {
		s.events.Publish(events.SessionStateChangedEvent{
			SessionID: s.id,
			Old:       e.Old.String(),
			New:       e.New.String(),
		})
	}
}

// handleParamChanged reacts to the bus fixating a concrete format. The
// storage kind is derived from modifier presence, then the buffer shape and
// metadata header parameters are published back.
func (s *Session) handleParamChanged(e ParamChangedEvent) error {
	if e.Format == nil {
		return nil
	}

	s.negotiated = *e.Format
	if f := e.Format.MaxFramerate; f.Denom != 0 {
		s.framerate = f.Num / f.Denom
	}

	if e.Format.Modifier != nil {
		// Only the implicit-modifier subset is negotiated; the bus
		// answering with anything else cannot happen on a conforming bus.
		if *e.Format.Modifier != ModifierInvalid {
			s.fail(ErrUnsupportedNegotiation)
			return fmt.Errorf("%w: modifier %#x", ErrUnsupportedNegotiation, *e.Format.Modifier)
		}
		s.bufferType = StorageDMABuf
	} else {
		s.bufferType = StorageMemFd
	}

	info := s.frameInfo[s.bufferType]

	s.logger.Debug("Format negotiated",
		"buffer_type", s.bufferType.String(),
		"format", uint32(s.negotiated.Format),
		"size", fmt.Sprintf("%dx%d", s.negotiated.Size.Width, s.negotiated.Size.Height),
		"max_framerate", fmt.Sprintf("%d/%d", s.negotiated.MaxFramerate.Num, s.negotiated.MaxFramerate.Denom),
	)

	params := []Param{
		buildBuffers(1, info.Size, info.Stride, s.bufferType.DataType()),
		MetaHeaderParam{Size: metaHeaderSize},
	}
	return s.stream.UpdateParams(params)
}

// handleAddBuffer allocates backing storage for a bus slot. The slot's
// declared storage kinds must include the negotiated one; anything else is
// fatal to the session but not to the process.
func (s *Session) handleAddBuffer(slot *Slot) {
	s.logger.Debug("Add buffer", "slot_id", slot.ID)

	switch {
	case slot.Data.TypeMask&DataMemFd.Mask() != 0 && s.bufferType == StorageMemFd:
		slot.Data.Type = DataMemFd
	case slot.Data.TypeMask&DataDmaBuf.Mask() != 0 && s.bufferType == StorageDMABuf:
		slot.Data.Type = DataDmaBuf
	default:
		s.fail(fmt.Errorf("%w: mask %#x, negotiated %s",
			ErrUnsupportedBufferType, slot.Data.TypeMask, s.bufferType))
		return
	}

	buf, err := s.allocBuffer(s.bufferType, s.frameInfo[s.bufferType])
	if err != nil {
		s.fail(fmt.Errorf("allocate %s buffer: %w", s.bufferType, err))
		return
	}

	s.pool = append(s.pool, buf)
	s.bySlot[slot.ID] = buf

	slot.Data.MaxSize = buf.Size
	slot.Data.MapOffset = 0
	slot.Data.Chunk.Size = buf.Size
	slot.Data.Chunk.Stride = int32(buf.Stride)
	slot.Data.Chunk.Offset = buf.Offset
	slot.Data.Flags = 0
	slot.Data.FD = buf.FD

	if buf.Kind == StorageDMABuf && slot.Data.Chunk.Size == 0 {
		slot.Data.Chunk.Size = dmabufChunkPlaceholder
	}

	metrics.SetBufferPoolSize(s.id, len(s.pool))
	if s.events != nil {
		s.events.Publish(events.BufferPoolEvent{
			SessionID: s.id,
			Action:    "added",
			PoolSize:  len(s.pool),
		})
	}
}

// handleRemoveBuffer destroys the slot's backing buffer. When the removed
// slot is the claimed frame, the frame handle is cleared so teardown never
// touches a stale slot.
func (s *Session) handleRemoveBuffer(slot *Slot) {
	s.logger.Debug("Remove buffer", "slot_id", slot.ID)

	if buf, ok := s.bySlot[slot.ID]; ok {
		delete(s.bySlot, slot.ID)
		for i, b := range s.pool {
			if b == buf {
				s.pool = append(s.pool[:i], s.pool[i+1:]...)
				break
			}
		}
		buf.Destroy()
	}
	if s.current != nil && s.current.Slot == slot {
		s.current = nil
	}
	slot.Data.FD = -1

	metrics.SetBufferPoolSize(s.id, len(s.pool))
	if s.events != nil {
		s.events.Publish(events.BufferPoolEvent{
			SessionID: s.id,
			Action:    "removed",
			PoolSize:  len(s.pool),
		})
	}
}

// handleProcess retries a pending claim when the producer is starved.
func (s *Session) handleProcess() {
	if !s.needBuffer {
		return
	}
	if s.Dequeue() != nil {
		s.needBuffer = false
	}
}
