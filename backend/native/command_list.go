package native

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/streamtex"
)

// commandRecorder implements streamtex.CommandList. The HAL encoder is
// opened lazily on first use and handed off to the backend at submit
// time.
type commandRecorder struct {
	mu  sync.Mutex
	dev *halDevice

	encoder hal.CommandEncoder
	open    bool
}

func newCommandRecorder(dev *halDevice) *commandRecorder {
	return &commandRecorder{dev: dev}
}

// ensureEncoderLocked opens the HAL encoder when none is recording.
func (c *commandRecorder) ensureEncoderLocked() (hal.CommandEncoder, error) {
	if c.open {
		return c.encoder, nil
	}
	encoder, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "streamtex",
	})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("texture-stream"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	c.encoder = encoder
	c.open = true
	return encoder, nil
}

// ResourceBarrier records a usage transition for the resource. Barriers
// that resolve to the same HAL usage on both sides are dropped.
func (c *commandRecorder) ResourceBarrier(res streamtex.Resource, before, after streamtex.ResourceState) {
	r, ok := res.(*resource)
	if !ok {
		return
	}
	oldUsage, newUsage := before.Usage(), after.Usage()
	if oldUsage == newUsage {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	encoder, err := c.ensureEncoderLocked()
	if err != nil {
		streamtex.Logger().Error("resource barrier", slog.String("error", err.Error()))
		return
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: r.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: oldUsage,
			NewUsage: newUsage,
		},
	}})
}

// CopyBufferToTexture uploads a region from a host-visible buffer into a
// texture. HAL exposes no encoder-side buffer-to-texture copy, so the
// pixels go through the queue's upload path reading the buffer's host
// shadow.
func (c *commandRecorder) CopyBufferToTexture(src *streamtex.ImageCopyBuffer, dst *streamtex.ImageCopyTexture, size gputypes.Extent3D) {
	r, ok := dst.Resource.(*resource)
	if !ok {
		return
	}
	host := src.Buffer.HostMemory()
	if host == nil {
		streamtex.Logger().Error("copy from buffer without host mapping",
			slog.String("label", r.desc.Label))
		return
	}

	pitch := src.Layout.BytesPerRow
	begin := src.Layout.Offset
	end := begin + uint64(pitch)*uint64(size.Height)
	if end > uint64(len(host)) {
		streamtex.Logger().Error("copy source out of range",
			slog.String("label", r.desc.Label),
			slog.Uint64("end", end),
			slog.Uint64("size", uint64(len(host))))
		return
	}

	c.dev.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  r.texture,
			MipLevel: dst.MipLevel,
			Origin:   hal.Origin3D{X: dst.Origin.X, Y: dst.Origin.Y, Z: dst.Origin.Z},
			Aspect:   gputypes.TextureAspectAll,
		},
		host[begin:end],
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  pitch,
			RowsPerImage: size.Height,
		},
		&hal.Extent3D{
			Width:              size.Width,
			Height:             size.Height,
			DepthOrArrayLayers: size.DepthOrArrayLayers,
		},
	)
}

// finish closes the recording and returns the command buffer, or nil
// when nothing was recorded.
func (c *commandRecorder) finish() (hal.CommandBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, nil
	}
	c.open = false
	cmdBuf, err := c.encoder.EndEncoding()
	c.encoder = nil
	if err != nil {
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	return cmdBuf, nil
}

// discard drops any open recording without submitting it.
func (c *commandRecorder) discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.encoder.DiscardEncoding()
		c.encoder = nil
		c.open = false
	}
}
