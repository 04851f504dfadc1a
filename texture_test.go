package streamtex

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func mustFakeContext(t *testing.T, streamSize, heapCapacity uint32) *fakeContext {
	t.Helper()
	ctx, err := newFakeContext(streamSize, heapCapacity)
	if err != nil {
		t.Fatalf("newFakeContext: %v", err)
	}
	return ctx
}

func mustCreateTexture(t *testing.T, ctx *fakeContext, info *TextureCreateInfo) *Texture {
	t.Helper()
	tex := NewTexture(ctx)
	if err := tex.Create(info); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tex
}

func basicCreateInfo() *TextureCreateInfo {
	return &TextureCreateInfo{
		Width:         64,
		Height:        32,
		Layers:        1,
		Levels:        1,
		Samples:       1,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		SampledFormat: gputypes.TextureFormatRGBA8Unorm,
		Label:         "test texture",
	}
}

func TestTextureCreate(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)
	tex := mustCreateTexture(t, ctx, basicCreateInfo())

	if !tex.IsValid() {
		t.Fatal("texture is not valid after Create")
	}
	if tex.Width() != 64 || tex.Height() != 32 {
		t.Errorf("size = %dx%d, want 64x32", tex.Width(), tex.Height())
	}
	if tex.Format() != FormatRGBA8 {
		t.Errorf("format = %s, want %s", tex.Format(), FormatRGBA8)
	}
	if tex.PixelSize() != 4 {
		t.Errorf("pixel size = %d, want 4", tex.PixelSize())
	}
	if tex.State() != StateShaderRead {
		t.Errorf("initial state = %s, want %s", tex.State(), StateShaderRead)
	}
	if tex.SampledDescriptor().IsEmpty() {
		t.Error("sampled descriptor is empty")
	}
	if !tex.RenderTargetDescriptor().IsEmpty() || !tex.DepthStencilDescriptor().IsEmpty() {
		t.Error("attachment descriptors allocated without attachment formats")
	}
	if ctx.device.sampledViews != 1 {
		t.Errorf("sampled views created = %d, want 1", ctx.device.sampledViews)
	}
}

func TestTextureCreateBounds(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)

	tests := []struct {
		name   string
		mutate func(*TextureCreateInfo)
	}{
		{"zero width", func(i *TextureCreateInfo) { i.Width = 0 }},
		{"zero height", func(i *TextureCreateInfo) { i.Height = 0 }},
		{"width too large", func(i *TextureCreateInfo) { i.Width = MaxTextureWidth + 1 }},
		{"height too large", func(i *TextureCreateInfo) { i.Height = MaxTextureHeight + 1 }},
		{"zero layers", func(i *TextureCreateInfo) { i.Layers = 0 }},
		{"layers too large", func(i *TextureCreateInfo) { i.Layers = MaxTextureLayers + 1 }},
		{"zero levels", func(i *TextureCreateInfo) { i.Levels = 0 }},
		{"levels too large", func(i *TextureCreateInfo) { i.Levels = MaxTextureLevels + 1 }},
		{"zero samples", func(i *TextureCreateInfo) { i.Samples = 0 }},
		{"samples too large", func(i *TextureCreateInfo) { i.Samples = MaxTextureSamples + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := basicCreateInfo()
			tt.mutate(info)

			tex := NewTexture(ctx)
			err := tex.Create(info)
			if !errors.Is(err, ErrInvalidDimensions) {
				t.Fatalf("Create: err = %v, want ErrInvalidDimensions", err)
			}
			if tex.IsValid() {
				t.Fatal("texture valid after failed Create")
			}
			if len(ctx.device.resources) != 0 {
				t.Fatal("resource created despite invalid dimensions")
			}
		})
	}
}

func TestTextureCreateSkipsSampledView(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)

	info := basicCreateInfo()
	info.SampledFormat = gputypes.TextureFormatUndefined
	info.RenderTargetFormat = gputypes.TextureFormatRGBA8Unorm
	tex := mustCreateTexture(t, ctx, info)

	if !tex.SampledDescriptor().IsEmpty() {
		t.Error("sampled descriptor allocated despite Undefined sampled format")
	}
	if got := ctx.srvHeap.Used(); got != 0 {
		t.Errorf("srv heap used = %d, want 0", got)
	}
	if ctx.device.sampledViews != 0 {
		t.Errorf("sampled views created = %d, want 0", ctx.device.sampledViews)
	}
	if tex.RenderTargetDescriptor().IsEmpty() {
		t.Error("render target descriptor is empty")
	}
}

func TestTextureAdoptSkipsSampledView(t *testing.T) {
	// Adopting a presentation buffer is the common no-sampled-view
	// case: only the render-target view may be allocated.
	ctx := mustFakeContext(t, 1<<20, 8)

	backbuffer := newFakeResource(ResourceDescriptor{
		Label:   "backbuffer",
		Width:   640,
		Height:  480,
		Layers:  1,
		Levels:  1,
		Samples: 1,
		Format:  gputypes.TextureFormatBGRA8Unorm,
		Flags:   FlagAllowRenderTarget,
	})
	tex := NewTexture(ctx)
	err := tex.Adopt(backbuffer, gputypes.TextureFormatUndefined,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatUndefined, StateRenderTarget)
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}

	if !tex.SampledDescriptor().IsEmpty() {
		t.Error("sampled descriptor allocated despite Undefined sampled format")
	}
	if got := ctx.srvHeap.Used(); got != 0 {
		t.Errorf("srv heap used = %d, want 0", got)
	}
	if ctx.device.sampledViews != 0 {
		t.Errorf("sampled views created = %d, want 0", ctx.device.sampledViews)
	}
	if tex.RenderTargetDescriptor().IsEmpty() {
		t.Error("adopted render target descriptor is empty")
	}
}

func TestTextureCreateDeviceFailure(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)
	ctx.device.createResourceErr = errDeviceOOM

	tex := NewTexture(ctx)
	if err := tex.Create(basicCreateInfo()); !errors.Is(err, errDeviceOOM) {
		t.Fatalf("Create: err = %v, want errDeviceOOM", err)
	}
	if tex.IsValid() {
		t.Fatal("texture valid after device failure")
	}
	if got := ctx.srvHeap.Used(); got != 0 {
		t.Errorf("srv heap used = %d after device failure, want 0", got)
	}
}

func TestTextureCreateInitialState(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)

	rt := basicCreateInfo()
	rt.RenderTargetFormat = gputypes.TextureFormatRGBA8Unorm
	tex := mustCreateTexture(t, ctx, rt)
	if tex.State() != StateRenderTarget {
		t.Errorf("render target state = %s, want %s", tex.State(), StateRenderTarget)
	}
	if tex.RenderTargetDescriptor().IsEmpty() {
		t.Error("render target descriptor is empty")
	}
	if !tex.DepthStencilDescriptor().IsEmpty() {
		t.Error("depth stencil descriptor allocated for render target")
	}

	ds := basicCreateInfo()
	ds.Format = gputypes.TextureFormatDepth24PlusStencil8
	ds.SampledFormat = gputypes.TextureFormatDepth24PlusStencil8
	ds.DepthStencilFormat = gputypes.TextureFormatDepth24PlusStencil8
	depth := mustCreateTexture(t, ctx, ds)
	if depth.State() != StateDepthWrite {
		t.Errorf("depth state = %s, want %s", depth.State(), StateDepthWrite)
	}
	if depth.DepthStencilDescriptor().IsEmpty() {
		t.Error("depth stencil descriptor is empty")
	}
}

func TestTextureCreateConflictingViews(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)

	info := basicCreateInfo()
	info.RenderTargetFormat = gputypes.TextureFormatRGBA8Unorm
	info.DepthStencilFormat = gputypes.TextureFormatDepth24PlusStencil8

	tex := NewTexture(ctx)
	if err := tex.Create(info); !errors.Is(err, ErrConflictingViews) {
		t.Fatalf("Create: err = %v, want ErrConflictingViews", err)
	}
}

func TestTextureCreateViewRollback(t *testing.T) {
	// One SRV slot available and none for the RTV: the SRV allocated
	// during the failed Create must return to the heap and the resource
	// must be released.
	ctx := mustFakeContext(t, 1<<20, 1)
	var occupied DescriptorHandle
	if err := ctx.rtvHeap.Allocate(&occupied); err != nil {
		t.Fatalf("occupy rtv heap: %v", err)
	}

	info := basicCreateInfo()
	info.RenderTargetFormat = gputypes.TextureFormatRGBA8Unorm

	tex := NewTexture(ctx)
	err := tex.Create(info)
	if !errors.Is(err, ErrHeapFull) {
		t.Fatalf("Create: err = %v, want ErrHeapFull", err)
	}
	if got := ctx.srvHeap.Used(); got != 0 {
		t.Errorf("srv heap used = %d after rollback, want 0", got)
	}
	if len(ctx.device.resources) != 1 || !ctx.device.resources[0].released {
		t.Error("resource not released after view rollback")
	}
	if tex.IsValid() {
		t.Error("texture valid after failed Create")
	}
}

func TestTextureCreateReplacesDeferred(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)
	tex := mustCreateTexture(t, ctx, basicCreateInfo())
	first := ctx.device.resources[0]

	info := basicCreateInfo()
	info.Width = 128
	if err := tex.Create(info); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if tex.Width() != 128 {
		t.Errorf("width = %d after recreate, want 128", tex.Width())
	}

	// The old resource waits on the fence, then goes away.
	if first.released {
		t.Fatal("old resource released before GPU retirement")
	}
	if got := ctx.destruction.PendingCount(); got == 0 {
		t.Fatal("old resource not queued for deferred destruction")
	}
	ctx.ExecuteCommandList(true)
	if !first.released {
		t.Fatal("old resource still alive after retirement")
	}
}

func TestTextureDestroyImmediate(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)
	tex := mustCreateTexture(t, ctx, basicCreateInfo())
	resource := ctx.device.resources[0]

	tex.Destroy(false)
	if tex.IsValid() {
		t.Fatal("texture valid after Destroy")
	}
	if !resource.released {
		t.Fatal("resource not released by immediate Destroy")
	}
	if got := ctx.srvHeap.Used(); got != 0 {
		t.Errorf("srv heap used = %d after Destroy, want 0", got)
	}
	if tex.Width() != 0 || tex.Format() != FormatUnknown || tex.State() != StateCommon {
		t.Error("metadata not reset by Destroy")
	}

	// Idempotent.
	tex.Destroy(false)
	tex.Destroy(true)
}

func TestTextureDestroyDeferred(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)
	tex := mustCreateTexture(t, ctx, basicCreateInfo())
	resource := ctx.device.resources[0]

	tex.Destroy(true)
	if tex.IsValid() || !tex.SampledDescriptor().IsEmpty() {
		t.Fatal("texture still references destroyed state")
	}
	if resource.released {
		t.Fatal("deferred Destroy released the resource immediately")
	}
	// The descriptor slot stays allocated until retirement.
	if got := ctx.srvHeap.Used(); got != 1 {
		t.Fatalf("srv heap used = %d before retirement, want 1", got)
	}

	ctx.ExecuteCommandList(true)
	if !resource.released {
		t.Fatal("resource not released after retirement")
	}
	if got := ctx.srvHeap.Used(); got != 0 {
		t.Fatalf("srv heap used = %d after retirement, want 0", got)
	}
}

func TestTextureTransitionToState(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)
	tex := mustCreateTexture(t, ctx, basicCreateInfo())

	tex.TransitionToState(StateShaderRead)
	if len(ctx.cmd.barriers) != 0 {
		t.Fatalf("barrier recorded for transition to current state")
	}

	tex.TransitionToState(StateCopyDest)
	if len(ctx.cmd.barriers) != 1 {
		t.Fatalf("barriers = %d, want 1", len(ctx.cmd.barriers))
	}
	b := ctx.cmd.barriers[0]
	if b.before != StateShaderRead || b.after != StateCopyDest {
		t.Errorf("barrier %s -> %s, want %s -> %s", b.before, b.after, StateShaderRead, StateCopyDest)
	}
	if tex.State() != StateCopyDest {
		t.Errorf("state = %s, want %s", tex.State(), StateCopyDest)
	}

	tex.TransitionToState(StateCopyDest)
	if len(ctx.cmd.barriers) != 1 {
		t.Fatal("duplicate barrier recorded")
	}
}

func TestTextureMoveFrom(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)
	src := mustCreateTexture(t, ctx, basicCreateInfo())
	srcResource := ctx.device.resources[0]
	srcHandle := src.SampledDescriptor()

	dst := mustCreateTexture(t, ctx, basicCreateInfo())
	dstResource := ctx.device.resources[1]

	dst.MoveFrom(src)

	if src.IsValid() || !src.SampledDescriptor().IsEmpty() {
		t.Fatal("source still owns state after MoveFrom")
	}
	if dst.Resource() != Resource(srcResource) {
		t.Fatal("destination did not take the source resource")
	}
	if dst.SampledDescriptor() != srcHandle {
		t.Fatal("destination did not take the source descriptor")
	}

	// The destination's old resource goes through deferred destruction.
	ctx.ExecuteCommandList(true)
	if !dstResource.released {
		t.Fatal("old destination resource not released")
	}
	if srcResource.released {
		t.Fatal("moved resource was released")
	}
}

func TestTextureAdopt(t *testing.T) {
	ctx := mustFakeContext(t, 1<<20, 8)

	resource := newFakeResource(ResourceDescriptor{
		Label:   "swapchain image",
		Width:   256,
		Height:  128,
		Layers:  1,
		Levels:  1,
		Samples: 1,
		Format:  gputypes.TextureFormatBGRA8Unorm,
		Flags:   FlagAllowRenderTarget,
	})

	tex := NewTexture(ctx)
	err := tex.Adopt(resource, gputypes.TextureFormatUndefined,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatUndefined, StateRenderTarget)
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}

	if tex.Width() != 256 || tex.Height() != 128 {
		t.Errorf("size = %dx%d, want 256x128", tex.Width(), tex.Height())
	}
	if tex.Format() != FormatBGRA8 {
		t.Errorf("format = %s, want %s", tex.Format(), FormatBGRA8)
	}
	if tex.State() != StateRenderTarget {
		t.Errorf("state = %s, want %s", tex.State(), StateRenderTarget)
	}
	if tex.RenderTargetDescriptor().IsEmpty() {
		t.Error("render target descriptor is empty")
	}
}
