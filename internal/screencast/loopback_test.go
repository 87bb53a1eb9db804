package screencast

import "testing"

// drain delivers every pending loopback event into the session.
func drain(t *testing.T, session *Session, stream *LoopbackStream) {
	t.Helper()
	for {
		select {
		case ev := <-stream.Events():
			if err := session.HandleEvent(ev); err != nil {
				t.Fatalf("handle event %T: %v", ev, err)
			}
		default:
			return
		}
	}
}

func TestLoopbackEndToEnd(t *testing.T) {
	bus := NewLoopbackBus(4)
	ctx := NewContext(func() (Bus, error) { return bus, nil }, nil)
	if err := ctx.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	producer := &fakeProducer{}
	session, err := NewSession(ctx, SessionConfig{
		ID:       "loopback",
		Producer: producer,
		FrameInfo: map[StorageKind]FrameInfo{
			StorageMemFd: {
				DRMFormat: DRMFormatXRGB8888,
				Width:     640,
				Height:    480,
				Stride:    640 * 4,
				Size:      640 * 4 * 480,
			},
		},
		Framerate: 30,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer session.Close()

	if err := session.CreateStream(); err != nil {
		t.Fatalf("create stream: %v", err)
	}

	// Negotiation, pool setup and the streaming transition all happen
	// through emitted events.
	stream := bus.Stream()
	drain(t, session, stream)
	drain(t, session, stream)

	if !session.Streaming() {
		t.Fatal("loopback consumer must reach streaming")
	}
	if producer.started != 1 {
		t.Fatalf("expected producer started once, got %d", producer.started)
	}
	if session.ActiveKind() != StorageMemFd {
		t.Fatalf("expected memfd fixation, got %s", session.ActiveKind())
	}

	producer.state = FrameSuccess
	for i := 0; i < 10; i++ {
		frame := session.Swap()
		if frame == nil {
			t.Fatalf("swap %d: pool exhausted", i)
		}
		if frame.Buffer == nil || frame.Buffer.FD < 0 {
			t.Fatalf("swap %d: frame without backing storage", i)
		}
		drain(t, session, stream)
	}

	if session.Seq() != 9 {
		t.Errorf("expected 9 exported frames, got %d", session.Seq())
	}
	if session.FatalError() {
		t.Error("loopback run must not be fatal")
	}
}
