package screencast

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// StorageKind is how a buffer's storage is shared with the bus.
type StorageKind int

const (
	// StorageMemFd is CPU-shared memory backed by a sealed memfd.
	StorageMemFd StorageKind = iota
	// StorageDMABuf is a GPU-shared zero-copy handle.
	StorageDMABuf
)

// String returns a short name for logs.
func (k StorageKind) String() string {
	switch k {
	case StorageMemFd:
		return "memfd"
	case StorageDMABuf:
		return "dmabuf"
	}
	return "unknown"
}

// DataType returns the wire data type for the storage kind.
func (k StorageKind) DataType() DataType {
	if k == StorageDMABuf {
		return DataDmaBuf
	}
	return DataMemFd
}

// FrameInfo is the candidate geometry the capture producer reports for one
// storage kind before stream creation. Stride and Size are zero when the
// producer cannot know them up front (the DMA-BUF path).
type FrameInfo struct {
	DRMFormat uint32
	Width     uint32
	Height    uint32
	Stride    uint32
	Size      uint32
}

// Buffer is one allocated backing store for a bus slot. It owns its file
// descriptor until Destroy.
type Buffer struct {
	Kind   StorageKind
	Size   uint32
	Stride uint32
	Offset uint32
	FD     int
	Width  uint32
	Height uint32
}

// Destroy releases the buffer's file descriptor. Safe to call once.
func (b *Buffer) Destroy() {
	if b.FD >= 0 {
		_ = unix.Close(b.FD)
		b.FD = -1
	}
}

// GPUAllocator allocates DMA-BUF backed buffers. It is provided by the
// platform integration; its absence removes the DMA-BUF candidate from
// negotiation entirely.
type GPUAllocator interface {
	Allocate(info FrameInfo) (*Buffer, error)
}

// newMemfdBuffer allocates a sealed memfd sized for one frame.
func newMemfdBuffer(info FrameInfo) (*Buffer, error) {
	size := info.Size
	if size == 0 {
		size = info.Stride * info.Height
	}

	fd, err := unix.MemfdCreate("castnode-buffer", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	// Consumers map the fd read-only; sealing shrink keeps their mappings
	// valid for the buffer's lifetime.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("seal memfd: %w", err)
	}

	return &Buffer{
		Kind:   StorageMemFd,
		Size:   size,
		Stride: info.Stride,
		FD:     fd,
		Width:  info.Width,
		Height: info.Height,
	}, nil
}

// allocBuffer allocates backing storage matching the session's negotiated
// storage kind.
func (s *Session) allocBuffer(kind StorageKind, info FrameInfo) (*Buffer, error) {
	if kind == StorageDMABuf {
		gpu := s.ctx.gpu
		if gpu == nil {
			return nil, fmt.Errorf("dmabuf buffer requested without GPU allocator")
		}
		return gpu.Allocate(info)
	}
	return newMemfdBuffer(info)
}
