package streamtex

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResourceState is the GPU-pipeline-visible intent a resource is currently
// prepared for. A resource must be transitioned to a compatible state
// before each access; see Texture.TransitionToState.
//
// The recorded state is cooperative bookkeeping on the command stream, not
// hardware-verified: it reflects the most recent transition issued, and it
// is the caller's responsibility to transition immediately before the
// dependent GPU operation.
type ResourceState uint8

const (
	// StateCommon is the neutral state resources start in when no view
	// dictates otherwise.
	StateCommon ResourceState = iota

	// StateShaderRead prepares the resource for sampling in shaders.
	StateShaderRead

	// StateRenderTarget prepares the resource for color output.
	StateRenderTarget

	// StateDepthWrite prepares the resource for depth/stencil output.
	StateDepthWrite

	// StateCopyDest prepares the resource as a copy destination.
	StateCopyDest

	// StateCopySource prepares the resource as a copy source.
	StateCopySource
)

// Usage returns the native usage a barrier transitions the resource to
// when entering s. StateCommon carries no usage.
func (s ResourceState) Usage() gputypes.TextureUsage {
	switch s {
	case StateShaderRead:
		return gputypes.TextureUsageTextureBinding
	case StateRenderTarget, StateDepthWrite:
		return gputypes.TextureUsageRenderAttachment
	case StateCopyDest:
		return gputypes.TextureUsageCopyDst
	case StateCopySource:
		return gputypes.TextureUsageCopySrc
	default:
		return 0
	}
}

// String returns the string representation of the state.
func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "Common"
	case StateShaderRead:
		return "ShaderRead"
	case StateRenderTarget:
		return "RenderTarget"
	case StateDepthWrite:
		return "DepthWrite"
	case StateCopyDest:
		return "CopyDest"
	case StateCopySource:
		return "CopySource"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}
