package screencast

import (
	"github.com/castnode/castnode/internal/events"
	"github.com/castnode/castnode/internal/metrics"
)

// Dequeue claims a free slot from the bus and makes it the current frame.
// A nil return is backpressure: the pool is exhausted and the caller retries
// on the next process event. Calling Dequeue while a frame is already
// claimed is a programming error and panics.
func (s *Session) Dequeue() *Frame {
	if s.current != nil {
		panic("screencast: dequeue with a frame already claimed")
	}
	if s.stream == nil {
		s.logger.Warn("Dequeue without a stream")
		return nil
	}

	slot := s.stream.Dequeue()
	if slot == nil {
		s.logger.Warn("Out of buffers")
		metrics.IncDequeueMisses(s.id)
		return nil
	}

	s.current = &Frame{Slot: slot, Buffer: s.bySlot[slot.ID]}
	return s.current
}

// Enqueue hands the current frame back to the bus for consumption. The
// frame is marked corrupt when production did not succeed or when the
// producer reported a vertically inverted frame; inversion is additionally
// session-fatal because flip correction is not implemented and consumers
// cannot be given mis-oriented data silently. The current frame is cleared
// unconditionally, including on the no-frame path.
func (s *Session) Enqueue() {
	frame := s.current
	if frame == nil {
		s.logger.Warn("No buffer to queue")
		return
	}
	s.current = nil

	corrupt := s.producer.FrameState() != FrameSuccess
	if frame.YInvert {
		corrupt = true
		s.fail(ErrInvertedFrame)
	}

	seq := s.seq
	s.seq++

	if h := frame.Slot.Header; h != nil {
		h.PTS = -1
		if corrupt {
			h.Flags = HeaderFlagCorrupted
		} else {
			h.Flags = HeaderFlagNone
		}
		h.Seq = seq
		h.DTSOffset = 0
	}

	if corrupt {
		frame.Slot.Data.Chunk.Flags = ChunkFlagCorrupted
	} else {
		frame.Slot.Data.Chunk.Flags = ChunkFlagNone
	}

	s.logger.Debug("Enqueue buffer",
		"slot_id", frame.Slot.ID,
		"seq", seq,
		"corrupt", corrupt,
		"size", frame.Slot.Data.Chunk.Size,
		"stride", frame.Slot.Data.Chunk.Stride,
	)

	s.stream.Queue(frame.Slot)

	metrics.IncFramesExported(s.id, corrupt)
	if s.events != nil {
		s.events.Publish(events.FrameExportedEvent{
			SessionID: s.id,
			Seq:       seq,
			Corrupted: corrupt,
		})
	}
}

// Swap releases the current frame, when one is claimed, and immediately
// claims the next. NeedBuffer reflects whether the claim succeeded.
func (s *Session) Swap() *Frame {
	if s.current != nil {
		s.Enqueue()
	}

	s.needBuffer = false
	frame := s.Dequeue()
	if frame == nil {
		s.needBuffer = true
	}
	return frame
}
