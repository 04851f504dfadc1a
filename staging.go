package streamtex

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// StagingTexture is a host-visible buffer shaped like a texture region,
// used for uploads too large for the stream buffer and for readbacks.
// Rows are stored at a pitch aligned to CopyPitchAlignment.
type StagingTexture struct {
	ctx    Context
	buffer Buffer

	width  uint32
	height uint32
	format Format
	pitch  uint32
}

// Create allocates the staging buffer. upload selects write access for
// uploads; otherwise the buffer is created for readback.
func (s *StagingTexture) Create(ctx Context, width, height uint32, format Format, upload bool) error {
	pixelSize := format.PixelSize()
	if width == 0 || height == 0 || pixelSize == 0 {
		return fmt.Errorf("%w: staging %dx%d %s", ErrInvalidDimensions, width, height, format)
	}

	pitch := alignUp(width*pixelSize, CopyPitchAlignment)
	usage := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	if upload {
		usage = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	}

	buffer, err := ctx.Device().CreateBuffer(&BufferDescriptor{
		Label:            "staging texture",
		Size:             uint64(pitch) * uint64(height),
		Usage:            usage,
		MappedAtCreation: true,
	})
	if err != nil {
		return fmt.Errorf("streamtex: create staging buffer: %w", err)
	}

	s.Destroy(true)
	s.ctx = ctx
	s.buffer = buffer
	s.width = width
	s.height = height
	s.format = format
	s.pitch = pitch
	return nil
}

// IsValid reports whether the staging texture owns a buffer.
func (s *StagingTexture) IsValid() bool { return s.buffer != nil }

// Width returns the staging region width in pixels.
func (s *StagingTexture) Width() uint32 { return s.width }

// Height returns the staging region height in pixels.
func (s *StagingTexture) Height() uint32 { return s.height }

// Pitch returns the row pitch of the staging layout in bytes.
func (s *StagingTexture) Pitch() uint32 { return s.pitch }

// WritePixels copies a width x height block of pixels into the staging
// layout at (x, y). data is read at srcPitch bytes per row.
func (s *StagingTexture) WritePixels(x, y, width, height uint32, data []byte, srcPitch uint32) error {
	if s.buffer == nil {
		return ErrNoResource
	}
	if x+width > s.width || y+height > s.height {
		return fmt.Errorf("%w: write %dx%d at (%d,%d) into %dx%d staging",
			ErrInvalidDimensions, width, height, x, y, s.width, s.height)
	}
	host := s.buffer.HostMemory()
	if host == nil {
		return fmt.Errorf("streamtex: staging buffer is not mapped")
	}

	pixelSize := s.format.PixelSize()
	rowLen := min(width*pixelSize, srcPitch)
	for row := uint32(0); row < height; row++ {
		dstOff := (y+row)*s.pitch + x*pixelSize
		srcOff := row * srcPitch
		copy(host[dstOff:dstOff+rowLen], data[srcOff:srcOff+rowLen])
	}
	return nil
}

// CopyToTexture records a copy of a width x height region of the staging
// layout at (srcX, srcY) into dst at (dstX, dstY).
func (s *StagingTexture) CopyToTexture(srcX, srcY uint32, dst *Texture, dstX, dstY, width, height uint32) {
	offset := srcY*s.pitch + srcX*s.format.PixelSize()
	dst.CopyFromBuffer(dstX, dstY, width, height, s.pitch, s.buffer, offset)
}

// Destroy releases the staging buffer, deferring until the GPU retires
// in-flight work when deferred is set. Destroying an invalid staging
// texture is a no-op.
func (s *StagingTexture) Destroy(deferred bool) {
	if s.buffer != nil {
		if deferred {
			s.ctx.DeferResourceDestruction(s.buffer)
		} else {
			s.buffer.Release()
		}
	}
	s.buffer = nil
	s.width = 0
	s.height = 0
	s.format = FormatUnknown
	s.pitch = 0
}
