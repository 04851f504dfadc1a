// Package native implements the streamtex context over gogpu/wgpu/hal,
// running entirely in Go against whichever HAL backend the device was
// opened on.
package native

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/streamtex"
)

// Backend errors.
var (
	// ErrNilDevice is returned when New is called without a HAL device.
	ErrNilDevice = errors.New("native: HAL device is nil")

	// ErrNilQueue is returned when New is called without a HAL queue.
	ErrNilQueue = errors.New("native: HAL queue is nil")

	// ErrClosed is returned when operating on a closed backend.
	ErrClosed = errors.New("native: backend is closed")
)

// Default pool sizes used when Config leaves them zero.
const (
	defaultStreamBufferSize = 16 * 1024 * 1024
	defaultSampledHeapSize  = 1024
	defaultTargetHeapSize   = 128
	defaultDepthHeapSize    = 32
)

// submitTimeout bounds blocking waits on submitted work.
const submitTimeout = 5 * time.Second

// Config sizes the backend's shared pools.
type Config struct {
	// StreamBufferSize is the texture upload ring capacity in bytes.
	StreamBufferSize uint32

	// SampledHeapSize is the shader-sampled view heap capacity.
	SampledHeapSize uint32

	// RenderTargetHeapSize is the render-target view heap capacity.
	RenderTargetHeapSize uint32

	// DepthStencilHeapSize is the depth-stencil view heap capacity.
	DepthStencilHeapSize uint32
}

func (c *Config) applyDefaults() {
	if c.StreamBufferSize == 0 {
		c.StreamBufferSize = defaultStreamBufferSize
	}
	if c.SampledHeapSize == 0 {
		c.SampledHeapSize = defaultSampledHeapSize
	}
	if c.RenderTargetHeapSize == 0 {
		c.RenderTargetHeapSize = defaultTargetHeapSize
	}
	if c.DepthStencilHeapSize == 0 {
		c.DepthStencilHeapSize = defaultDepthHeapSize
	}
}

// Backend implements streamtex.Context over a hal.Device and hal.Queue.
//
// Backend is safe for concurrent use; the command recorder and fence
// bookkeeping are protected by a mutex.
type Backend struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	dev      *halDevice
	recorder *commandRecorder

	srvHeap      *streamtex.DescriptorHeap
	rtvHeap      *streamtex.DescriptorHeap
	dsvHeap      *streamtex.DescriptorHeap
	streamBuffer *streamtex.StreamBuffer
	destruction  streamtex.DestructionQueue

	// fenceCounter is the value the next submission signals;
	// completedFence is the highest value known retired.
	fenceCounter   uint64
	completedFence uint64

	closed bool
}

// New creates a backend over device and queue.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Backend, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	cfg.applyDefaults()

	b := &Backend{
		device: device,
		queue:  queue,
	}
	b.dev = newHALDevice(device, queue)
	b.recorder = newCommandRecorder(b.dev)
	b.srvHeap = streamtex.NewDescriptorHeap(cfg.SampledHeapSize, b.dev.destroyView)
	b.rtvHeap = streamtex.NewDescriptorHeap(cfg.RenderTargetHeapSize, b.dev.destroyView)
	b.dsvHeap = streamtex.NewDescriptorHeap(cfg.DepthStencilHeapSize, b.dev.destroyView)
	b.destruction.SetCurrentFence(1)
	b.fenceCounter = 0

	sb, err := streamtex.NewStreamBuffer(b.dev, cfg.StreamBufferSize, "texture stream buffer")
	if err != nil {
		return nil, err
	}
	b.streamBuffer = sb
	return b, nil
}

// Device returns the resource factory.
func (b *Backend) Device() streamtex.Device { return b.dev }

// CommandList returns the command list currently recording, starting one
// when none is open.
func (b *Backend) CommandList() streamtex.CommandList { return b.recorder }

// DescriptorHeap returns the shader-sampled view heap.
func (b *Backend) DescriptorHeap() *streamtex.DescriptorHeap { return b.srvHeap }

// RTVHeap returns the render-target view heap.
func (b *Backend) RTVHeap() *streamtex.DescriptorHeap { return b.rtvHeap }

// DSVHeap returns the depth-stencil view heap.
func (b *Backend) DSVHeap() *streamtex.DescriptorHeap { return b.dsvHeap }

// TextureStreamBuffer returns the shared upload ring.
func (b *Backend) TextureStreamBuffer() *streamtex.StreamBuffer { return b.streamBuffer }

// DeferDescriptorDestruction frees handle once in-flight GPU work
// retires.
func (b *Backend) DeferDescriptorDestruction(heap *streamtex.DescriptorHeap, handle *streamtex.DescriptorHandle) {
	b.destruction.DeferDescriptorDestruction(heap, handle)
}

// DeferResourceDestruction releases r once in-flight GPU work retires.
func (b *Backend) DeferResourceDestruction(r streamtex.Releasable) {
	b.destruction.DeferResourceDestruction(r)
}

// ExecuteCommandList submits the recorded commands behind a fence and
// starts a fresh recording. With wait set it blocks until the GPU
// retires the submission; otherwise it polls for already-retired fences
// so deferred destruction and the stream buffer make progress without
// stalling.
func (b *Backend) ExecuteCommandList(wait bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	cmdBuf, err := b.recorder.finish()
	if err != nil {
		streamtex.Logger().Error("finish command list", slog.String("error", err.Error()))
		return
	}

	b.fenceCounter++
	fenceValue := b.fenceCounter

	fence, err := b.device.CreateFence()
	if err != nil {
		streamtex.Logger().Error("create fence", slog.String("error", err.Error()))
		if cmdBuf != nil {
			b.device.FreeCommandBuffer(cmdBuf)
		}
		return
	}
	defer b.device.DestroyFence(fence)

	var cmdBufs []hal.CommandBuffer
	if cmdBuf != nil {
		cmdBufs = append(cmdBufs, cmdBuf)
		defer b.device.FreeCommandBuffer(cmdBuf)
	}
	if err := b.queue.Submit(cmdBufs, fence, fenceValue); err != nil {
		streamtex.Logger().Error("submit command list", slog.String("error", err.Error()))
		return
	}
	b.streamBuffer.PushFencePoint(fenceValue)
	b.destruction.SetCurrentFence(fenceValue + 1)

	timeout := time.Duration(0)
	if wait {
		timeout = submitTimeout
	}
	done, err := b.device.Wait(fence, fenceValue, timeout)
	if err != nil {
		streamtex.Logger().Error("wait for fence", slog.String("error", err.Error()))
		return
	}
	if done {
		b.retire(fenceValue)
	}
}

// WaitIdle blocks until every submitted command list has retired, then
// releases all deferred resources.
func (b *Backend) WaitIdle() {
	b.ExecuteCommandList(true)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.retire(b.fenceCounter)
	b.destruction.Flush()
}

// retire advances the completed fence and lets dependents recycle.
// Caller holds mu.
func (b *Backend) retire(fenceValue uint64) {
	if fenceValue <= b.completedFence {
		return
	}
	b.completedFence = fenceValue
	b.streamBuffer.UpdateCompletedFence(fenceValue)
	b.destruction.CollectGarbage(fenceValue)
}

// Close flushes outstanding work and releases the backend's pools.
// The backend must not be used afterwards.
func (b *Backend) Close() error {
	b.WaitIdle()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	b.streamBuffer.Destroy()
	b.recorder.discard()
	b.dev.close()
	return nil
}

// textureUsageFor maps a resource description to the HAL usage set it
// needs: always sampled and copyable, attachment-capable on demand.
func textureUsageFor(flags streamtex.ResourceFlags) gputypes.TextureUsage {
	usage := gputypes.TextureUsageTextureBinding |
		gputypes.TextureUsageCopyDst |
		gputypes.TextureUsageCopySrc
	if flags&(streamtex.FlagAllowRenderTarget|streamtex.FlagAllowDepthStencil) != 0 {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	return usage
}
