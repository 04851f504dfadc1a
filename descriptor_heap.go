package streamtex

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Descriptor heap errors.
var (
	// ErrHeapFull is returned when a descriptor heap has no free slots.
	ErrHeapFull = errors.New("streamtex: descriptor heap is full")
)

// DescriptorHandle is a lightweight handle pair addressing one descriptor
// slot: a CPU-visible address for writing view data and a GPU-visible
// address for binding. The zero value is the empty handle; freeing an
// empty handle is a no-op.
type DescriptorHandle struct {
	// Index is the slot index within the owning heap.
	Index uint32

	// CPU is the CPU-visible address of the slot.
	CPU uintptr

	// GPU is the GPU-visible address of the slot.
	GPU uint64
}

// IsEmpty returns true for the zero handle.
func (h DescriptorHandle) IsEmpty() bool {
	return h == DescriptorHandle{}
}

// heapBaseCounter hands out distinct address bases so handles from
// different heaps never collide.
var heapBaseCounter atomic.Uint64

// descriptorStride is the synthetic per-slot address increment.
const descriptorStride = 32

// DescriptorHeap is a fixed-capacity slot allocator for view descriptors.
// One heap exists per view kind (sampled, render-target, depth-stencil)
// and is shared across many texture instances, so it synchronizes
// internally.
type DescriptorHeap struct {
	mu sync.Mutex

	cpuBase  uintptr
	gpuBase  uint64
	capacity uint32
	used     uint32

	// free is a bitmap of allocated slots, one bit per slot.
	free []uint64

	// onFree is invoked after a slot is released, while the allocation
	// is already returned to the pool. Backends use it to drop the view
	// object stored for the slot. May be nil.
	onFree func(DescriptorHandle)
}

// NewDescriptorHeap creates a heap with the given slot capacity.
// onFree, if non-nil, is called for every successfully freed handle.
func NewDescriptorHeap(capacity uint32, onFree func(DescriptorHandle)) *DescriptorHeap {
	base := heapBaseCounter.Add(1) << 24
	return &DescriptorHeap{
		cpuBase:  uintptr(base) + descriptorStride,
		gpuBase:  base + descriptorStride,
		capacity: capacity,
		free:     make([]uint64, (capacity+63)/64),
		onFree:   onFree,
	}
}

// Allocate reserves a free slot and writes its handle to out.
// Returns ErrHeapFull when every slot is taken; out is left untouched.
func (h *DescriptorHeap) Allocate(out *DescriptorHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := uint32(0); i < h.capacity; i++ {
		word, bit := i/64, uint64(1)<<(i%64)
		if h.free[word]&bit != 0 {
			continue
		}
		h.free[word] |= bit
		h.used++
		*out = h.handleFor(i)
		return nil
	}
	return ErrHeapFull
}

// Free releases a handle back to the heap and resets it to the empty
// handle. Freeing an empty handle, or a handle from another heap, is a
// no-op.
func (h *DescriptorHeap) Free(handle *DescriptorHandle) {
	if handle == nil || handle.IsEmpty() {
		return
	}

	h.mu.Lock()
	released := false
	index := handle.Index
	owned := index < h.capacity && h.handleFor(index) == *handle
	if owned {
		word, bit := index/64, uint64(1)<<(index%64)
		if h.free[word]&bit != 0 {
			h.free[word] &^= bit
			h.used--
			released = true
		}
	}
	onFree := h.onFree
	h.mu.Unlock()

	if !owned {
		return
	}
	if released && onFree != nil {
		onFree(*handle)
	}
	*handle = DescriptorHandle{}
}

// Capacity returns the total slot count.
func (h *DescriptorHeap) Capacity() uint32 { return h.capacity }

// Used returns the number of allocated slots.
func (h *DescriptorHeap) Used() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// handleFor computes the handle addressing slot index. Caller must hold mu
// or otherwise guarantee the heap outlives the call.
func (h *DescriptorHeap) handleFor(index uint32) DescriptorHandle {
	return DescriptorHandle{
		Index: index,
		CPU:   h.cpuBase + uintptr(index)*descriptorStride,
		GPU:   h.gpuBase + uint64(index)*descriptorStride,
	}
}
