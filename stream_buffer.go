package streamtex

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// StreamBuffer is a persistently mapped ring buffer used to stage texture
// uploads. Writers reserve a span, fill it through the host mapping,
// commit it, and record a copy out of the committed span. Fence points
// mark how far the GPU has consumed the ring so retired spans can be
// reused without waiting.
type StreamBuffer struct {
	mu sync.Mutex

	buffer Buffer
	host   []byte
	size   uint32

	currentOffset uint32
	gpuPosition   uint32

	tracked []fencePoint
}

// fencePoint records the ring offset reached when a fence value was
// submitted. Once the fence completes, everything up to the offset is
// reusable.
type fencePoint struct {
	fence  uint64
	offset uint32
}

// NewStreamBuffer allocates a host-visible ring of the given size.
func NewStreamBuffer(device Device, size uint32, label string) (*StreamBuffer, error) {
	buf, err := device.CreateBuffer(&BufferDescriptor{
		Label:            label,
		Size:             uint64(size),
		Usage:            gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
		MappedAtCreation: true,
	})
	if err != nil {
		return nil, fmt.Errorf("streamtex: create stream buffer: %w", err)
	}
	host := buf.HostMemory()
	if uint32(len(host)) < size {
		buf.Release()
		return nil, fmt.Errorf("streamtex: stream buffer mapping is %d bytes, want %d", len(host), size)
	}
	return &StreamBuffer{
		buffer: buf,
		host:   host[:size],
		size:   size,
	}, nil
}

// ReserveMemory tries to claim size bytes at the given alignment.
// It reports false when the span is not available without retiring more
// GPU work; the caller decides whether to flush and retry.
func (s *StreamBuffer) ReserveMemory(size, alignment uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if size > s.size {
		return false
	}

	alignedOffset := alignUp(s.currentOffset, alignment)

	if s.currentOffset >= s.gpuPosition {
		// Writer is ahead of the GPU. Either the tail of the ring fits,
		// or we wrap to the start and must stay strictly behind the GPU.
		if alignedOffset+size <= s.size {
			s.currentOffset = alignedOffset
			return true
		}
		if size < s.gpuPosition {
			s.currentOffset = 0
			return true
		}
		return false
	}

	// Writer is behind the GPU; it may only grow up to just before it.
	if alignedOffset+size < s.gpuPosition {
		s.currentOffset = alignedOffset
		return true
	}
	return false
}

// CommitMemory advances the write cursor past size bytes previously
// reserved.
func (s *StreamBuffer) CommitMemory(size uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentOffset += size
}

// CurrentHostPointer returns the host mapping starting at the current
// write cursor. Valid until the next Reserve or Commit.
func (s *StreamBuffer) CurrentHostPointer() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host[s.currentOffset:]
}

// CurrentOffset returns the current write cursor.
func (s *StreamBuffer) CurrentOffset() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentOffset
}

// Size returns the total ring capacity in bytes.
func (s *StreamBuffer) Size() uint32 { return s.size }

// Backing returns the GPU buffer the ring writes into, for use as a copy
// source.
func (s *StreamBuffer) Backing() Buffer { return s.buffer }

// PushFencePoint records that all spans committed so far belong to the
// given fence value.
func (s *StreamBuffer) PushFencePoint(fence uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.tracked); n > 0 && s.tracked[n-1].offset == s.currentOffset {
		s.tracked[n-1].fence = fence
		return
	}
	s.tracked = append(s.tracked, fencePoint{fence: fence, offset: s.currentOffset})
}

// UpdateCompletedFence retires every fence point at or below fence,
// releasing their spans back to the ring.
func (s *StreamBuffer) UpdateCompletedFence(fence uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	retired := 0
	for _, fp := range s.tracked {
		if fp.fence > fence {
			break
		}
		s.gpuPosition = fp.offset
		retired++
	}
	if retired > 0 {
		s.tracked = s.tracked[retired:]
	}

	if len(s.tracked) == 0 && s.gpuPosition == s.currentOffset {
		// Ring is fully drained; reset to the origin so large
		// contiguous reservations succeed again.
		s.currentOffset = 0
		s.gpuPosition = 0
	}
}

// Destroy releases the backing buffer. The ring must not be used
// afterwards.
func (s *StreamBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
		s.host = nil
	}
}
