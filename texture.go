package streamtex

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
)

// Texture creation and view errors.
var (
	// ErrInvalidDimensions is returned when a creation request exceeds
	// the dimension maxima or asks for a zero-sized texture.
	ErrInvalidDimensions = errors.New("streamtex: invalid texture dimensions")

	// ErrConflictingViews is returned when a creation request asks for
	// both a render-target and a depth-stencil view on one texture.
	ErrConflictingViews = errors.New("streamtex: render target and depth stencil views conflict")

	// ErrNoResource is returned by operations that need a live resource
	// on a texture that has none.
	ErrNoResource = errors.New("streamtex: texture has no resource")
)

// Dimension maxima accepted by Create.
const (
	MaxTextureWidth   = 65535
	MaxTextureHeight  = 65535
	MaxTextureLayers  = 255
	MaxTextureLevels  = 255
	MaxTextureSamples = 255
)

// TextureCreateInfo carries everything Create needs. Each view format
// left as the zero value skips that view entirely; a texture with no
// views at all is legal (a pure copy target, for instance).
type TextureCreateInfo struct {
	Width   uint32
	Height  uint32
	Layers  uint32
	Levels  uint32
	Samples uint32

	// Format is the storage format of the resource.
	Format gputypes.TextureFormat

	// SampledFormat, when not Undefined, requests a shader-sampled view
	// in that format.
	SampledFormat gputypes.TextureFormat

	// RenderTargetFormat, when not Undefined, requests a render-target
	// view in that format. Requires FlagAllowRenderTarget semantics on
	// the resource.
	RenderTargetFormat gputypes.TextureFormat

	// DepthStencilFormat, when not Undefined, requests a depth-stencil
	// view in that format.
	DepthStencilFormat gputypes.TextureFormat

	Label string
}

// Texture owns one GPU texture resource together with its descriptor
// views and tracks the resource's current access state. The zero value
// is an invalid texture; call Create or Adopt to give it a resource.
//
// A Texture is not safe for concurrent use.
type Texture struct {
	ctx      Context
	resource Resource

	srvDescriptor      DescriptorHandle
	rtvOrDSVDescriptor DescriptorHandle
	isDepthView        bool

	width   uint32
	height  uint32
	layers  uint32
	levels  uint32
	samples uint32
	format  Format
	state   ResourceState
}

// NewTexture returns an invalid texture bound to ctx.
func NewTexture(ctx Context) *Texture {
	return &Texture{ctx: ctx}
}

// Create allocates a resource and its views per info, replacing whatever
// the texture previously held. On success the old resource, if any, is
// destroyed with deferral; on failure the texture keeps its previous
// contents untouched.
func (t *Texture) Create(info *TextureCreateInfo) error {
	if info.Width == 0 || info.Height == 0 ||
		info.Width > MaxTextureWidth || info.Height > MaxTextureHeight ||
		info.Layers == 0 || info.Layers > MaxTextureLayers ||
		info.Levels == 0 || info.Levels > MaxTextureLevels ||
		info.Samples == 0 || info.Samples > MaxTextureSamples {
		return fmt.Errorf("%w: %dx%d layers=%d levels=%d samples=%d",
			ErrInvalidDimensions, info.Width, info.Height, info.Layers, info.Levels, info.Samples)
	}

	hasRTV := info.RenderTargetFormat != gputypes.TextureFormatUndefined
	hasDSV := info.DepthStencilFormat != gputypes.TextureFormatUndefined
	if hasRTV && hasDSV {
		return ErrConflictingViews
	}

	var flags ResourceFlags
	state := StateShaderRead
	var clear *ClearValue
	switch {
	case hasRTV:
		flags |= FlagAllowRenderTarget
		state = StateRenderTarget
		clear = &ClearValue{Format: info.RenderTargetFormat}
	case hasDSV:
		flags |= FlagAllowDepthStencil
		state = StateDepthWrite
		clear = &ClearValue{Format: info.DepthStencilFormat, Depth: 1.0}
	}

	desc := ResourceDescriptor{
		Label:   info.Label,
		Width:   info.Width,
		Height:  info.Height,
		Layers:  info.Layers,
		Levels:  info.Levels,
		Samples: info.Samples,
		Format:  info.Format,
		Flags:   flags,
	}
	resource, err := t.ctx.Device().CreateResource(&desc, clear, state)
	if err != nil {
		return fmt.Errorf("streamtex: create resource %q: %w", info.Label, err)
	}

	srv, rtvOrDSV, err := t.createViews(resource, info)
	if err != nil {
		resource.Release()
		return err
	}

	t.Destroy(true)

	t.resource = resource
	t.srvDescriptor = srv
	t.rtvOrDSVDescriptor = rtvOrDSV
	t.isDepthView = hasDSV
	t.width = info.Width
	t.height = info.Height
	t.layers = info.Layers
	t.levels = info.Levels
	t.samples = info.Samples
	t.format = LookupFormat(info.Format)
	t.state = state

	logger().Debug("texture created",
		slog.String("label", info.Label),
		slog.Uint64("width", uint64(info.Width)),
		slog.Uint64("height", uint64(info.Height)),
		slog.String("format", t.format.String()))
	return nil
}

// createViews allocates the descriptor set for resource. Each view is
// allocated only when its format is set; an adopted swap-chain buffer
// typically has no sampled view at all. On any failure every descriptor
// allocated so far is freed before returning.
func (t *Texture) createViews(resource Resource, info *TextureCreateInfo) (srv, rtvOrDSV DescriptorHandle, err error) {
	multisampled := info.Samples > 1

	if info.SampledFormat != gputypes.TextureFormatUndefined {
		if err = t.ctx.DescriptorHeap().Allocate(&srv); err != nil {
			return DescriptorHandle{}, DescriptorHandle{}, fmt.Errorf("streamtex: allocate sampled view: %w", err)
		}
		// Sampled views address a single mip; multisampled views carry
		// no mip chain at all.
		mipLevels := uint32(1)
		if multisampled {
			mipLevels = 0
		}
		t.ctx.Device().CreateSampledView(resource, &ViewDescriptor{
			Format:       info.SampledFormat,
			Multisampled: multisampled,
			MipLevels:    mipLevels,
		}, srv)
	}

	switch {
	case info.RenderTargetFormat != gputypes.TextureFormatUndefined:
		if err = t.ctx.RTVHeap().Allocate(&rtvOrDSV); err != nil {
			t.ctx.DescriptorHeap().Free(&srv)
			return DescriptorHandle{}, DescriptorHandle{}, fmt.Errorf("streamtex: allocate render target view: %w", err)
		}
		t.ctx.Device().CreateRenderTargetView(resource, &ViewDescriptor{
			Format:       info.RenderTargetFormat,
			Multisampled: multisampled,
		}, rtvOrDSV)

	case info.DepthStencilFormat != gputypes.TextureFormatUndefined:
		if err = t.ctx.DSVHeap().Allocate(&rtvOrDSV); err != nil {
			t.ctx.DescriptorHeap().Free(&srv)
			return DescriptorHandle{}, DescriptorHandle{}, fmt.Errorf("streamtex: allocate depth stencil view: %w", err)
		}
		t.ctx.Device().CreateDepthStencilView(resource, &ViewDescriptor{
			Format:       info.DepthStencilFormat,
			Multisampled: multisampled,
		}, rtvOrDSV)
	}

	return srv, rtvOrDSV, nil
}

// Adopt wraps an externally created resource, replacing whatever the
// texture previously held. Metadata is derived from the resource
// descriptor. View formats left Undefined skip that view; an adopted
// swap-chain buffer usually carries only a render-target view.
func (t *Texture) Adopt(resource Resource, sampledFormat, rtvFormat, dsvFormat gputypes.TextureFormat, initialState ResourceState) error {
	if rtvFormat != gputypes.TextureFormatUndefined && dsvFormat != gputypes.TextureFormatUndefined {
		return ErrConflictingViews
	}
	desc := resource.Descriptor()
	info := TextureCreateInfo{
		Width:              desc.Width,
		Height:             desc.Height,
		Layers:             desc.Layers,
		Levels:             desc.Levels,
		Samples:            desc.Samples,
		Format:             desc.Format,
		SampledFormat:      sampledFormat,
		RenderTargetFormat: rtvFormat,
		DepthStencilFormat: dsvFormat,
		Label:              desc.Label,
	}
	srv, rtvOrDSV, err := t.createViews(resource, &info)
	if err != nil {
		return err
	}

	t.Destroy(true)

	t.resource = resource
	t.srvDescriptor = srv
	t.rtvOrDSVDescriptor = rtvOrDSV
	t.isDepthView = dsvFormat != gputypes.TextureFormatUndefined
	t.width = desc.Width
	t.height = desc.Height
	t.layers = desc.Layers
	t.levels = desc.Levels
	t.samples = desc.Samples
	t.format = LookupFormat(desc.Format)
	t.state = initialState
	return nil
}

// Destroy releases the resource and its descriptors and resets the
// texture to the invalid state. With deferred set, destruction waits
// until the GPU has retired all work submitted so far; otherwise it is
// immediate. Destroying an invalid texture is a no-op.
func (t *Texture) Destroy(deferred bool) {
	if t.resource == nil && t.srvDescriptor.IsEmpty() && t.rtvOrDSVDescriptor.IsEmpty() {
		return
	}
	if deferred {
		if !t.srvDescriptor.IsEmpty() {
			t.ctx.DeferDescriptorDestruction(t.ctx.DescriptorHeap(), &t.srvDescriptor)
		}
		if !t.rtvOrDSVDescriptor.IsEmpty() {
			heap := t.ctx.RTVHeap()
			if t.isDepthView {
				heap = t.ctx.DSVHeap()
			}
			t.ctx.DeferDescriptorDestruction(heap, &t.rtvOrDSVDescriptor)
		}
		if t.resource != nil {
			t.ctx.DeferResourceDestruction(t.resource)
		}
	} else {
		t.ctx.DescriptorHeap().Free(&t.srvDescriptor)
		if t.isDepthView {
			t.ctx.DSVHeap().Free(&t.rtvOrDSVDescriptor)
		} else {
			t.ctx.RTVHeap().Free(&t.rtvOrDSVDescriptor)
		}
		if t.resource != nil {
			t.resource.Release()
		}
	}

	t.resource = nil
	t.isDepthView = false
	t.width = 0
	t.height = 0
	t.layers = 0
	t.levels = 0
	t.samples = 0
	t.format = FormatUnknown
	t.state = StateCommon
}

// MoveFrom takes ownership of src's resource and views, destroying the
// receiver's previous contents with deferral. src is left invalid.
func (t *Texture) MoveFrom(src *Texture) {
	if src == t {
		return
	}
	t.Destroy(true)

	t.ctx = src.ctx
	t.resource = src.resource
	t.srvDescriptor = src.srvDescriptor
	t.rtvOrDSVDescriptor = src.rtvOrDSVDescriptor
	t.isDepthView = src.isDepthView
	t.width = src.width
	t.height = src.height
	t.layers = src.layers
	t.levels = src.levels
	t.samples = src.samples
	t.format = src.format
	t.state = src.state

	src.resource = nil
	src.srvDescriptor = DescriptorHandle{}
	src.rtvOrDSVDescriptor = DescriptorHandle{}
	src.isDepthView = false
	src.width = 0
	src.height = 0
	src.layers = 0
	src.levels = 0
	src.samples = 0
	src.format = FormatUnknown
	src.state = StateCommon
}

// TransitionToState records a barrier moving the resource to state.
// Transitions to the current state are elided.
func (t *Texture) TransitionToState(state ResourceState) {
	if t.state == state || t.resource == nil {
		return
	}
	t.ctx.CommandList().ResourceBarrier(t.resource, t.state, state)
	t.state = state
}

// IsValid reports whether the texture currently owns a resource.
func (t *Texture) IsValid() bool { return t.resource != nil }

// Width returns the texture width in pixels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() uint32 { return t.height }

// Layers returns the array layer count.
func (t *Texture) Layers() uint32 { return t.layers }

// Levels returns the mip level count.
func (t *Texture) Levels() uint32 { return t.levels }

// Samples returns the sample count.
func (t *Texture) Samples() uint32 { return t.samples }

// Format returns the texture's format.
func (t *Texture) Format() Format { return t.format }

// NativeFormat returns the texture's format in native terms.
func (t *Texture) NativeFormat() gputypes.TextureFormat { return t.format.Native() }

// PixelSize returns the bytes-per-pixel of the texture format.
func (t *Texture) PixelSize() uint32 { return t.format.PixelSize() }

// State returns the resource's current access state.
func (t *Texture) State() ResourceState { return t.state }

// Resource returns the underlying resource, or nil for an invalid
// texture.
func (t *Texture) Resource() Resource { return t.resource }

// SampledDescriptor returns the shader-sampled view handle.
func (t *Texture) SampledDescriptor() DescriptorHandle { return t.srvDescriptor }

// RenderTargetDescriptor returns the render-target view handle, empty
// when the texture was created without one.
func (t *Texture) RenderTargetDescriptor() DescriptorHandle {
	if t.isDepthView {
		return DescriptorHandle{}
	}
	return t.rtvOrDSVDescriptor
}

// DepthStencilDescriptor returns the depth-stencil view handle, empty
// when the texture was created without one.
func (t *Texture) DepthStencilDescriptor() DescriptorHandle {
	if !t.isDepthView {
		return DescriptorHandle{}
	}
	return t.rtvOrDSVDescriptor
}
