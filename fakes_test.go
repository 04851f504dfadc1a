package streamtex

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// fakeResource is an in-memory texture resource. Pixels are stored
// packed at width*pixelSize per row so copy results can be asserted.
type fakeResource struct {
	desc     ResourceDescriptor
	data     []byte
	released bool
}

func newFakeResource(desc ResourceDescriptor) *fakeResource {
	pixelSize := LookupFormat(desc.Format).PixelSize()
	return &fakeResource{
		desc: desc,
		data: make([]byte, desc.Width*desc.Height*pixelSize),
	}
}

func (r *fakeResource) Release()                       { r.released = true }
func (r *fakeResource) Descriptor() ResourceDescriptor { return r.desc }

// fakeBuffer is a host-backed buffer.
type fakeBuffer struct {
	host     []byte
	released bool
}

func (b *fakeBuffer) Release()           { b.released = true }
func (b *fakeBuffer) Size() uint64       { return uint64(len(b.host)) }
func (b *fakeBuffer) HostMemory() []byte { return b.host }

// fakeDevice creates fake resources and buffers, with injectable
// failures and creation counters.
type fakeDevice struct {
	createResourceErr error
	createBufferErr   error

	resources []*fakeResource
	buffers   []*fakeBuffer

	sampledViews      int
	renderTargetViews int
	depthStencilViews int
}

func (d *fakeDevice) CreateResource(desc *ResourceDescriptor, _ *ClearValue, _ ResourceState) (Resource, error) {
	if d.createResourceErr != nil {
		return nil, d.createResourceErr
	}
	r := newFakeResource(*desc)
	d.resources = append(d.resources, r)
	return r, nil
}

func (d *fakeDevice) CreateBuffer(desc *BufferDescriptor) (Buffer, error) {
	if d.createBufferErr != nil {
		return nil, d.createBufferErr
	}
	b := &fakeBuffer{host: make([]byte, desc.Size)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *fakeDevice) CreateSampledView(Resource, *ViewDescriptor, DescriptorHandle) {
	d.sampledViews++
}

func (d *fakeDevice) CreateRenderTargetView(Resource, *ViewDescriptor, DescriptorHandle) {
	d.renderTargetViews++
}

func (d *fakeDevice) CreateDepthStencilView(Resource, *ViewDescriptor, DescriptorHandle) {
	d.depthStencilViews++
}

// barrierRecord captures one ResourceBarrier call.
type barrierRecord struct {
	resource Resource
	before   ResourceState
	after    ResourceState
}

// fakeCommandList records barriers and applies buffer-to-texture copies
// into the destination fakeResource immediately.
type fakeCommandList struct {
	barriers []barrierRecord
	copies   int
}

func (c *fakeCommandList) ResourceBarrier(resource Resource, before, after ResourceState) {
	c.barriers = append(c.barriers, barrierRecord{resource: resource, before: before, after: after})
}

func (c *fakeCommandList) CopyBufferToTexture(src *ImageCopyBuffer, dst *ImageCopyTexture, size gputypes.Extent3D) {
	c.copies++

	r, ok := dst.Resource.(*fakeResource)
	if !ok {
		return
	}
	host := src.Buffer.HostMemory()
	pixelSize := LookupFormat(r.desc.Format).PixelSize()
	dstPitch := r.desc.Width * pixelSize
	rowLen := size.Width * pixelSize

	for row := uint32(0); row < size.Height; row++ {
		srcOff := src.Layout.Offset + uint64(row)*uint64(src.Layout.BytesPerRow)
		dstOff := (dst.Origin.Y+row)*dstPitch + dst.Origin.X*pixelSize
		copy(r.data[dstOff:dstOff+rowLen], host[srcOff:srcOff+uint64(rowLen)])
	}
}

// fakeContext wires a fakeDevice, a fakeCommandList, real descriptor
// heaps, a real stream buffer, and a real destruction queue into a
// Context. ExecuteCommandList advances a synthetic fence; by default
// the fake GPU retires each submission immediately.
type fakeContext struct {
	device      *fakeDevice
	cmd         *fakeCommandList
	srvHeap     *DescriptorHeap
	rtvHeap     *DescriptorHeap
	dsvHeap     *DescriptorHeap
	stream      *StreamBuffer
	destruction DestructionQueue

	fence        uint64
	executeCalls int

	// retireOnExecute controls whether the fake GPU catches up on each
	// submission. Tests disable it to starve the stream buffer.
	retireOnExecute bool
}

func newFakeContext(streamSize, heapCapacity uint32) (*fakeContext, error) {
	ctx := &fakeContext{
		device:          &fakeDevice{},
		cmd:             &fakeCommandList{},
		srvHeap:         NewDescriptorHeap(heapCapacity, nil),
		rtvHeap:         NewDescriptorHeap(heapCapacity, nil),
		dsvHeap:         NewDescriptorHeap(heapCapacity, nil),
		retireOnExecute: true,
	}
	ctx.destruction.SetCurrentFence(1)

	stream, err := NewStreamBuffer(ctx.device, streamSize, "test stream buffer")
	if err != nil {
		return nil, fmt.Errorf("new stream buffer: %w", err)
	}
	ctx.stream = stream
	return ctx, nil
}

func (c *fakeContext) Device() Device                     { return c.device }
func (c *fakeContext) CommandList() CommandList           { return c.cmd }
func (c *fakeContext) DescriptorHeap() *DescriptorHeap    { return c.srvHeap }
func (c *fakeContext) RTVHeap() *DescriptorHeap           { return c.rtvHeap }
func (c *fakeContext) DSVHeap() *DescriptorHeap           { return c.dsvHeap }
func (c *fakeContext) TextureStreamBuffer() *StreamBuffer { return c.stream }

func (c *fakeContext) ExecuteCommandList(wait bool) {
	c.executeCalls++
	c.fence++
	c.stream.PushFencePoint(c.fence)
	c.destruction.SetCurrentFence(c.fence + 1)
	if wait || c.retireOnExecute {
		c.stream.UpdateCompletedFence(c.fence)
		c.destruction.CollectGarbage(c.fence)
	}
}

func (c *fakeContext) DeferDescriptorDestruction(heap *DescriptorHeap, handle *DescriptorHandle) {
	c.destruction.DeferDescriptorDestruction(heap, handle)
}

func (c *fakeContext) DeferResourceDestruction(r Releasable) {
	c.destruction.DeferResourceDestruction(r)
}

var errDeviceOOM = errors.New("device out of memory")
