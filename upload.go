package streamtex

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"
)

// Upload errors.
var (
	// ErrStreamBufferFull is returned when an upload span cannot be
	// reserved even after flushing in-flight GPU work.
	ErrStreamBufferFull = errors.New("streamtex: stream buffer full")

	// ErrFormatMismatch is returned when image data does not match the
	// texture format.
	ErrFormatMismatch = errors.New("streamtex: format mismatch")
)

// BeginStreamUpdate reserves a span of the shared stream buffer large
// enough for a width x height region and returns the host mapping to
// fill along with the row pitch the mapping uses. A matching
// EndStreamUpdate must follow before any other stream buffer use.
//
// When the ring has no room the in-flight command list is submitted
// without waiting and the reservation retried once.
func (t *Texture) BeginStreamUpdate(width, height uint32) ([]byte, uint32, error) {
	if t.resource == nil {
		return nil, 0, ErrNoResource
	}
	pitch := alignUp(width*t.PixelSize(), CopyPitchAlignment)
	size := pitch * height

	sb := t.ctx.TextureStreamBuffer()
	if !sb.ReserveMemory(size, CopyPlacementAlignment) {
		logger().Debug("stream buffer full, executing command list",
			slog.Uint64("size", uint64(size)))
		t.ctx.ExecuteCommandList(false)
		if !sb.ReserveMemory(size, CopyPlacementAlignment) {
			return nil, 0, fmt.Errorf("%w: %d bytes of %d",
				ErrStreamBufferFull, size, sb.Size())
		}
	}
	return sb.CurrentHostPointer()[:size], pitch, nil
}

// EndStreamUpdate commits the span reserved by BeginStreamUpdate and
// records the copy of the filled region into the texture.
func (t *Texture) EndStreamUpdate(x, y, width, height uint32) {
	pitch := alignUp(width*t.PixelSize(), CopyPitchAlignment)
	size := pitch * height

	sb := t.ctx.TextureStreamBuffer()
	offset := sb.CurrentOffset()
	sb.CommitMemory(size)
	t.CopyFromBuffer(x, y, width, height, pitch, sb.Backing(), offset)
}

// CopyFromBuffer records a copy of a width x height region from buffer
// at offset into the texture at (x, y). pitch is the source row pitch
// and must honor CopyPitchAlignment; offset must honor
// CopyPlacementAlignment. The texture's access state is restored after
// the copy.
func (t *Texture) CopyFromBuffer(x, y, width, height, pitch uint32, buffer Buffer, offset uint32) {
	src := ImageCopyBuffer{
		Buffer: buffer,
		Layout: gputypes.TextureDataLayout{
			Offset:       uint64(offset),
			BytesPerRow:  pitch,
			RowsPerImage: height,
		},
	}
	dst := ImageCopyTexture{
		Resource: t.resource,
		Origin:   gputypes.Origin3D{X: x, Y: y},
	}

	prevState := t.state
	t.TransitionToState(StateCopyDest)
	t.ctx.CommandList().CopyBufferToTexture(&src, &dst, gputypes.Extent3D{
		Width:              width,
		Height:             height,
		DepthOrArrayLayers: 1,
	})
	t.TransitionToState(prevState)
}

// LoadData uploads a width x height block of pixels to (x, y). data is
// read at srcPitch bytes per row. Uploads too large for the stream
// buffer go through a temporary staging texture instead.
func (t *Texture) LoadData(x, y, width, height uint32, data []byte, srcPitch uint32) error {
	if t.resource == nil {
		return ErrNoResource
	}

	uploadPitch := alignUp(width*t.PixelSize(), CopyPitchAlignment)
	uploadSize := uploadPitch * height

	if uploadSize >= t.ctx.TextureStreamBuffer().Size() {
		staging := &StagingTexture{}
		if err := staging.Create(t.ctx, width, height, t.format, true); err != nil {
			return err
		}
		if err := staging.WritePixels(0, 0, width, height, data, srcPitch); err != nil {
			staging.Destroy(false)
			return err
		}
		staging.CopyToTexture(0, 0, t, x, y, width, height)
		staging.Destroy(true)
		return nil
	}

	dst, dstPitch, err := t.BeginStreamUpdate(width, height)
	if err != nil {
		return err
	}
	copyRows(dst, dstPitch, data, srcPitch, height)
	t.EndStreamUpdate(x, y, width, height)
	return nil
}

// LoadImage uploads img to the texture at (x, y), converting to RGBA
// on the host. The texture must use FormatRGBA8.
func (t *Texture) LoadImage(img image.Image, x, y uint32) error {
	if t.format != FormatRGBA8 {
		return fmt.Errorf("%w: LoadImage requires %s, texture is %s",
			ErrFormatMismatch, FormatRGBA8, t.format)
	}

	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, xdraw.Src)
	}
	return t.LoadData(x, y, uint32(bounds.Dx()), uint32(bounds.Dy()), rgba.Pix, uint32(rgba.Stride))
}

// copyRows copies height rows from src to dst. When the pitches match
// the rows are copied in one pass; otherwise each row copies the smaller
// of the two pitches and leaves dst's padding untouched.
func copyRows(dst []byte, dstPitch uint32, src []byte, srcPitch uint32, height uint32) {
	if dstPitch == srcPitch {
		copy(dst, src[:min(len(src), int(srcPitch*height))])
		return
	}
	rowLen := min(dstPitch, srcPitch)
	for row := uint32(0); row < height; row++ {
		copy(dst[row*dstPitch:row*dstPitch+rowLen], src[row*srcPitch:row*srcPitch+rowLen])
	}
}
