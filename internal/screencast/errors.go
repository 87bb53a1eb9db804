package screencast

import "errors"

var (
	// ErrNotConnected is returned when a stream is created before the
	// process-wide bus connection is established.
	ErrNotConnected = errors.New("bus connection not established")

	// ErrStreamCreate is returned when the bus refuses to allocate a
	// stream object. There is no retry path; the session is unusable.
	ErrStreamCreate = errors.New("failed to create stream object")

	// ErrUnsupportedNegotiation is reported when the bus fixates a concrete
	// DMA-BUF modifier other than the implicit sentinel. Only implicit
	// modifier negotiation is supported, so this is a protocol violation.
	ErrUnsupportedNegotiation = errors.New("bus negotiated an explicit buffer modifier")

	// ErrUnsupportedBufferType is recorded when the bus offers a slot whose
	// storage kinds do not include the negotiated one. The session's fatal
	// flag is set and the producer must abort the session.
	ErrUnsupportedBufferType = errors.New("unsupported buffer storage kind")

	// ErrNoFrameInfo is returned when a stream is created before the
	// producer has reported candidate geometry for the memfd path.
	ErrNoFrameInfo = errors.New("no candidate frame geometry reported")

	// ErrInvertedFrame is recorded when the producer reports a vertically
	// inverted frame. Flip correction is not implemented, so the frame is
	// marked corrupt and the session cannot continue delivering valid data.
	ErrInvertedFrame = errors.New("frame is vertically inverted")
)
