package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/streamtex"
)

// halDevice implements streamtex.Device over hal.Device. Views written
// into descriptor slots are tracked by handle so they can be destroyed
// when the slot is freed.
type halDevice struct {
	device hal.Device
	queue  hal.Queue

	mu sync.Mutex

	// views maps a descriptor handle's GPU address to the HAL view
	// stored in that slot. Heap base addresses never collide, so one
	// map serves all heaps.
	views map[uint64]hal.TextureView
}

func newHALDevice(device hal.Device, queue hal.Queue) *halDevice {
	return &halDevice{
		device: device,
		queue:  queue,
		views:  make(map[uint64]hal.TextureView),
	}
}

// CreateResource allocates a 2D texture. The optimized clear value has
// no HAL equivalent; attachments are cleared by render pass load ops
// instead, so clear is accepted and dropped.
func (d *halDevice) CreateResource(desc *streamtex.ResourceDescriptor, _ *streamtex.ClearValue, _ streamtex.ResourceState) (streamtex.Resource, error) {
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Layers,
		},
		MipLevelCount: desc.Levels,
		SampleCount:   desc.Samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         textureUsageFor(desc.Flags),
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture: %w", err)
	}
	return &resource{device: d.device, texture: tex, desc: *desc}, nil
}

// CreateBuffer allocates a buffer. Host-visible buffers carry a host
// shadow slice the copy path reads from; the HAL queue uploads it when
// the copy is recorded.
func (d *halDevice) CreateBuffer(desc *streamtex.BufferDescriptor) (streamtex.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create buffer: %w", err)
	}

	b := &buffer{device: d.device, buf: buf, size: desc.Size}
	hostVisible := desc.MappedAtCreation ||
		desc.Usage&(gputypes.BufferUsageMapRead|gputypes.BufferUsageMapWrite) != 0
	if hostVisible {
		b.host = make([]byte, desc.Size)
	}
	return b, nil
}

func (d *halDevice) CreateSampledView(res streamtex.Resource, desc *streamtex.ViewDescriptor, handle streamtex.DescriptorHandle) {
	d.createView(res, desc, handle, gputypes.TextureAspectAll, "sampled")
}

func (d *halDevice) CreateRenderTargetView(res streamtex.Resource, desc *streamtex.ViewDescriptor, handle streamtex.DescriptorHandle) {
	d.createView(res, desc, handle, gputypes.TextureAspectAll, "render target")
}

func (d *halDevice) CreateDepthStencilView(res streamtex.Resource, desc *streamtex.ViewDescriptor, handle streamtex.DescriptorHandle) {
	d.createView(res, desc, handle, gputypes.TextureAspectAll, "depth stencil")
}

func (d *halDevice) createView(res streamtex.Resource, desc *streamtex.ViewDescriptor, handle streamtex.DescriptorHandle, aspect gputypes.TextureAspect, kind string) {
	r, ok := res.(*resource)
	if !ok || handle.IsEmpty() {
		return
	}

	view, err := d.device.CreateTextureView(r.texture, &hal.TextureViewDescriptor{
		Label:         fmt.Sprintf("%s (%s view)", r.desc.Label, kind),
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        aspect,
		MipLevelCount: desc.MipLevels,
	})
	if err != nil {
		streamtex.Logger().Error("create texture view",
			slog.String("kind", kind),
			slog.String("label", r.desc.Label),
			slog.String("error", err.Error()))
		return
	}

	d.mu.Lock()
	if old, ok := d.views[handle.GPU]; ok {
		d.device.DestroyTextureView(old)
	}
	d.views[handle.GPU] = view
	d.mu.Unlock()
}

// destroyView is the heap free callback; it drops the HAL view stored in
// the freed slot.
func (d *halDevice) destroyView(handle streamtex.DescriptorHandle) {
	d.mu.Lock()
	view, ok := d.views[handle.GPU]
	if ok {
		delete(d.views, handle.GPU)
	}
	d.mu.Unlock()
	if ok {
		d.device.DestroyTextureView(view)
	}
}

// viewFor returns the HAL view stored for the slot, if any.
func (d *halDevice) viewFor(handle streamtex.DescriptorHandle) (hal.TextureView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	view, ok := d.views[handle.GPU]
	return view, ok
}

// close destroys every view still stored in a slot.
func (d *halDevice) close() {
	d.mu.Lock()
	views := d.views
	d.views = make(map[uint64]hal.TextureView)
	d.mu.Unlock()
	for _, view := range views {
		d.device.DestroyTextureView(view)
	}
}

// resource wraps a hal.Texture as a streamtex.Resource.
type resource struct {
	device   hal.Device
	texture  hal.Texture
	desc     streamtex.ResourceDescriptor
	released atomic.Bool
}

func (r *resource) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.device.DestroyTexture(r.texture)
	}
}

func (r *resource) Descriptor() streamtex.ResourceDescriptor { return r.desc }

// buffer wraps a hal.Buffer as a streamtex.Buffer.
type buffer struct {
	device   hal.Device
	buf      hal.Buffer
	size     uint64
	host     []byte
	released atomic.Bool
}

func (b *buffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.device.DestroyBuffer(b.buf)
		b.host = nil
	}
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) HostMemory() []byte { return b.host }
