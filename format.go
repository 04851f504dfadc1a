package streamtex

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Format is the abstract pixel format of a texture. It is the portable
// counterpart of the native gputypes.TextureFormat recorded on a resource;
// the two are kept in sync through a fixed bidirectional table.
type Format uint8

const (
	// FormatUnknown is the sentinel for formats outside the table.
	FormatUnknown Format = iota

	// FormatRGBA8 is the standard RGBA format with 8 bits per channel.
	FormatRGBA8

	// FormatBGRA8 is BGRA format, often used for surface presentation.
	FormatBGRA8

	// FormatR8 is single-channel 8-bit format, used for masks.
	FormatR8

	// FormatDepth24Stencil8 is the packed depth/stencil format.
	FormatDepth24Stencil8

	formatCount
)

// nativeFormats maps each Format to its native identifier, indexed by the
// Format value. Reverse lookup is a linear scan over this table; the format
// count is tiny, so no map is kept.
var nativeFormats = [formatCount]gputypes.TextureFormat{
	gputypes.TextureFormatUndefined,
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatR8Unorm,
	gputypes.TextureFormatDepth24PlusStencil8,
}

// Native returns the native texture format for f.
func (f Format) Native() gputypes.TextureFormat {
	if f >= formatCount {
		return gputypes.TextureFormatUndefined
	}
	return nativeFormats[f]
}

// LookupFormat returns the abstract format for a native texture format.
// Native formats absent from the table degrade to FormatUnknown; this is
// how adopted resources with exotic formats are represented, not an error.
func LookupFormat(native gputypes.TextureFormat) Format {
	for i := Format(0); i < formatCount; i++ {
		if nativeFormats[i] == native {
			return i
		}
	}
	return FormatUnknown
}

// PixelSize returns the number of bytes per pixel for the format.
// FormatUnknown reports zero.
func (f Format) PixelSize() uint32 {
	switch f {
	case FormatRGBA8, FormatBGRA8, FormatDepth24Stencil8:
		return 4
	case FormatR8:
		return 1
	default:
		return 0
	}
}

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "Unknown"
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	case FormatR8:
		return "R8"
	case FormatDepth24Stencil8:
		return "Depth24Stencil8"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}
