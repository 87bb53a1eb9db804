// Package screencast implements the stream negotiation and buffer-exchange
// engine between a compositor-side frame producer and a local media bus.
//
// The package owns three pieces of state:
//
// Context holds the process-wide bus connection shared by all sessions.
// Connect and Disconnect are idempotent checked transitions, so portal
// request handling can call them opportunistically.
//
// Session is one capture-to-stream pipeline. It negotiates pixel format,
// buffer storage kind (DMA-BUF vs memfd) and geometry with the bus, reacts
// to bus lifecycle events through HandleEvent, and manages the pool of
// backing buffers attached to bus slots.
//
// The frame exchange protocol (Dequeue, Enqueue, Swap) hands slots between
// the bus and the capture producer. At most one slot is claimed at a time;
// a failed dequeue is backpressure, not an error, and is surfaced through
// NeedBuffer so the producer retries on the next process event.
//
// All event handling and exchange operations run on a single event loop.
// Nothing in this package blocks that loop and no Session state is guarded
// by locks.
package screencast
