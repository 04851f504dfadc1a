package streamtex

import (
	"github.com/gogpu/gputypes"
)

// Copy alignment constraints shared by every backend. Row pitches and
// buffer placement offsets handed to CommandList.CopyBufferToTexture must
// honor these.
const (
	// CopyPitchAlignment is the required alignment of a row pitch in a
	// buffer-to-texture copy, in bytes.
	CopyPitchAlignment = 256

	// CopyPlacementAlignment is the required alignment of a copy source
	// offset within a buffer, in bytes.
	CopyPlacementAlignment = 512
)

// alignUp rounds v up to the next multiple of alignment.
// alignment must be a power of two.
func alignUp(v, alignment uint32) uint32 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// ResourceFlags select the optional capabilities of a texture resource.
type ResourceFlags uint32

const (
	// FlagAllowRenderTarget permits color render-target views.
	FlagAllowRenderTarget ResourceFlags = 1 << iota

	// FlagAllowDepthStencil permits depth-stencil views.
	FlagAllowDepthStencil
)

// ResourceDescriptor describes a texture resource as the device sees it.
type ResourceDescriptor struct {
	Label   string
	Width   uint32
	Height  uint32
	Layers  uint32
	Levels  uint32
	Samples uint32
	Format  gputypes.TextureFormat
	Flags   ResourceFlags
}

// ClearValue is the optimized clear value attached to render-target and
// depth-stencil resources at creation time.
type ClearValue struct {
	Format  gputypes.TextureFormat
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// BufferDescriptor describes a GPU buffer allocation.
type BufferDescriptor struct {
	Label            string
	Size             uint64
	Usage            gputypes.BufferUsage
	MappedAtCreation bool
}

// ViewDescriptor narrows how a view interprets its resource.
type ViewDescriptor struct {
	Format       gputypes.TextureFormat
	Multisampled bool
	MipLevels    uint32
}

// Releasable is anything whose backing allocation can be released.
// Both Resource and Buffer satisfy it, which lets the deferred
// destruction path treat them uniformly.
type Releasable interface {
	// Release frees the backing allocation. Safe to call once.
	Release()
}

// Resource is a device texture allocation.
type Resource interface {
	Releasable

	// Descriptor reports the creation-time description of the resource.
	Descriptor() ResourceDescriptor
}

// Buffer is a device buffer allocation.
type Buffer interface {
	Releasable

	// Size reports the allocation size in bytes.
	Size() uint64

	// HostMemory returns the persistently mapped host view of the
	// buffer, or nil when the buffer is not host-visible.
	HostMemory() []byte
}

// ImageCopyBuffer is the buffer side of a buffer-to-texture copy.
type ImageCopyBuffer struct {
	Buffer Buffer
	Layout gputypes.TextureDataLayout
}

// ImageCopyTexture is the texture side of a buffer-to-texture copy.
type ImageCopyTexture struct {
	Resource Resource
	MipLevel uint32
	Origin   gputypes.Origin3D
}

// Device creates resources, buffers, and views. Implementations live in
// the backend packages; tests substitute in-memory fakes.
type Device interface {
	// CreateResource allocates a texture resource. clear may be nil for
	// resources that are never cleared as attachments. initialState is
	// the access state the resource starts its life in.
	CreateResource(desc *ResourceDescriptor, clear *ClearValue, initialState ResourceState) (Resource, error)

	// CreateBuffer allocates a buffer.
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)

	// CreateSampledView writes a shader-sampled view of resource into
	// the descriptor slot addressed by handle.
	CreateSampledView(resource Resource, desc *ViewDescriptor, handle DescriptorHandle)

	// CreateRenderTargetView writes a color attachment view of resource
	// into the descriptor slot addressed by handle.
	CreateRenderTargetView(resource Resource, desc *ViewDescriptor, handle DescriptorHandle)

	// CreateDepthStencilView writes a depth-stencil attachment view of
	// resource into the descriptor slot addressed by handle.
	CreateDepthStencilView(resource Resource, desc *ViewDescriptor, handle DescriptorHandle)
}

// CommandList records GPU work on behalf of the texture layer.
type CommandList interface {
	// ResourceBarrier transitions resource from one access state to
	// another. Callers never issue barriers with equal states.
	ResourceBarrier(resource Resource, before, after ResourceState)

	// CopyBufferToTexture copies a packed pixel region from src into
	// dst. src.Layout.BytesPerRow and src.Layout.Offset honor
	// CopyPitchAlignment and CopyPlacementAlignment respectively.
	CopyBufferToTexture(src *ImageCopyBuffer, dst *ImageCopyTexture, size gputypes.Extent3D)
}

// Context ties together the device, the active command list, the shared
// descriptor heaps, the upload stream buffer, and deferred destruction.
// It is the single collaborator a Texture needs.
type Context interface {
	// Device returns the resource factory.
	Device() Device

	// CommandList returns the command list currently recording.
	CommandList() CommandList

	// ExecuteCommandList submits the recording command list and starts
	// a fresh one. When wait is true the call blocks until the GPU has
	// finished the submitted work.
	ExecuteCommandList(wait bool)

	// DescriptorHeap returns the heap for shader-sampled views.
	DescriptorHeap() *DescriptorHeap

	// RTVHeap returns the heap for render-target views.
	RTVHeap() *DescriptorHeap

	// DSVHeap returns the heap for depth-stencil views.
	DSVHeap() *DescriptorHeap

	// TextureStreamBuffer returns the shared upload ring buffer.
	TextureStreamBuffer() *StreamBuffer

	// DeferDescriptorDestruction frees handle once the GPU has retired
	// all work submitted so far. handle is invalidated immediately.
	DeferDescriptorDestruction(heap *DescriptorHeap, handle *DescriptorHandle)

	// DeferResourceDestruction releases r once the GPU has retired all
	// work submitted so far.
	DeferResourceDestruction(r Releasable)
}
