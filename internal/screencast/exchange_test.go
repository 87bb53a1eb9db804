package screencast

import "testing"

func TestDequeueTwicePanics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))
	env.addSlot(t, newSlot(2, DataMemFd.Mask()))

	if env.session.Dequeue() == nil {
		t.Fatal("expected first dequeue to claim a slot")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected second dequeue to panic")
		}
	}()
	env.session.Dequeue()
}

func TestDequeueExhaustedIsBackpressure(t *testing.T) {
	env := newTestEnv(t, nil)

	if frame := env.session.Dequeue(); frame != nil {
		t.Fatalf("expected nil frame from empty pool, got %+v", frame)
	}
	if env.session.FatalError() {
		t.Fatal("pool exhaustion must not be fatal")
	}
}

func TestEnqueueWithoutFrameIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)

	env.session.Enqueue()

	if len(env.stream.queued) != 0 {
		t.Fatalf("expected nothing queued, got %d", len(env.stream.queued))
	}
	if env.session.Frame() != nil {
		t.Fatal("current frame must stay empty")
	}
}

func TestEnqueueStampsHeaderAndIncrementsSeq(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))

	for want := uint64(0); want < 3; want++ {
		frame := env.session.Dequeue()
		if frame == nil {
			t.Fatal("expected a claimed frame")
		}
		env.session.Enqueue()

		slot := env.stream.queued[len(env.stream.queued)-1]
		if slot.Header.Seq != want {
			t.Errorf("expected seq %d, got %d", want, slot.Header.Seq)
		}
		if slot.Header.PTS != -1 {
			t.Errorf("expected pts sentinel -1, got %d", slot.Header.PTS)
		}
		if slot.Header.Flags != HeaderFlagNone {
			t.Errorf("expected clean header, got flags %#x", slot.Header.Flags)
		}
		if slot.Data.Chunk.Flags != ChunkFlagNone {
			t.Errorf("expected clean chunk, got flags %#x", slot.Data.Chunk.Flags)
		}
		if slot.Header.DTSOffset != 0 {
			t.Errorf("expected zero dts offset, got %d", slot.Header.DTSOffset)
		}

		// Hand the slot back for the next round.
		env.stream.free = append(env.stream.free, slot)
	}
}

func TestEnqueueFailedFrameMarksCorrupt(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))

	env.producer.state = FrameFailed
	if env.session.Dequeue() == nil {
		t.Fatal("expected a claimed frame")
	}
	env.session.Enqueue()

	slot := env.stream.queued[0]
	if slot.Header.Flags != HeaderFlagCorrupted {
		t.Errorf("expected corrupted header flag, got %#x", slot.Header.Flags)
	}
	if slot.Data.Chunk.Flags != ChunkFlagCorrupted {
		t.Errorf("expected corrupted chunk flag, got %#x", slot.Data.Chunk.Flags)
	}
	if env.session.FatalError() {
		t.Fatal("a failed frame is not session-fatal")
	}
}

func TestEnqueueInvertedFrameIsSessionFatal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))

	frame := env.session.Dequeue()
	if frame == nil {
		t.Fatal("expected a claimed frame")
	}
	frame.YInvert = true
	env.session.Enqueue()

	slot := env.stream.queued[0]
	if slot.Header.Flags != HeaderFlagCorrupted {
		t.Errorf("expected corrupted header flag, got %#x", slot.Header.Flags)
	}
	if !env.session.FatalError() {
		t.Fatal("an inverted frame must set the fatal flag")
	}
	if env.session.Frame() != nil {
		t.Fatal("current frame must be cleared")
	}
}

func TestEnqueueAlwaysClearsFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))

	if env.session.Dequeue() == nil {
		t.Fatal("expected a claimed frame")
	}
	env.session.Enqueue()
	if env.session.Frame() != nil {
		t.Fatal("current frame must be empty after enqueue")
	}

	// No-op path too.
	env.session.Enqueue()
	if env.session.Frame() != nil {
		t.Fatal("current frame must stay empty after no-op enqueue")
	}
}

func TestSwapWithoutClaimIsPlainDequeue(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))

	frame := env.session.Swap()
	if frame == nil {
		t.Fatal("expected swap to claim a slot")
	}
	if len(env.stream.queued) != 0 {
		t.Fatalf("nothing should have been enqueued, got %d", len(env.stream.queued))
	}
	if env.session.NeedBuffer() {
		t.Fatal("need-buffer must be false after a successful claim")
	}
}

func TestSwapReleasesThenClaims(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))
	env.addSlot(t, newSlot(2, DataMemFd.Mask()))

	first := env.session.Swap()
	second := env.session.Swap()

	if first == nil || second == nil {
		t.Fatal("expected both swaps to claim")
	}
	if first.Slot == second.Slot {
		t.Fatal("expected a different slot on the second swap")
	}
	if len(env.stream.queued) != 1 || env.stream.queued[0] != first.Slot {
		t.Fatal("expected the first slot to be handed back before the second claim")
	}
}

func TestSwapSetsNeedBufferOnExhaustion(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSlot(t, newSlot(1, DataMemFd.Mask()))

	if env.session.Swap() == nil {
		t.Fatal("expected first swap to claim")
	}
	// Pool is now empty: the claimed slot is not returned to the free list.
	if env.session.Swap() != nil {
		t.Fatal("expected second swap to hit backpressure")
	}
	if !env.session.NeedBuffer() {
		t.Fatal("need-buffer must be set after a failed claim")
	}

	// The process event retries the claim once a slot frees up.
	env.stream.free = append(env.stream.free, env.stream.queued[0])
	if err := env.session.HandleEvent(ProcessEvent{}); err != nil {
		t.Fatalf("process event: %v", err)
	}
	if env.session.NeedBuffer() {
		t.Fatal("need-buffer must clear once a slot was claimed")
	}
	if env.session.Frame() == nil {
		t.Fatal("expected the retried claim to succeed")
	}
}
