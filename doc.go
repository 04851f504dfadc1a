// Package streamtex manages the lifetime, views, and content of GPU
// texture resources inside a real-time rendering backend.
//
// # Overview
//
// streamtex owns the hard parts of texture management that every explicit
// graphics API forces on a backend:
//
//   - Resource lifetime outlives the logical owner: in-flight command
//     streams may still reference a texture after it is destroyed, so
//     release is routed through a fence-tagged deferred destruction queue.
//   - Pixel uploads pick between a ring-buffer fast path and a
//     staging-copy fallback based on size, invisibly to the caller.
//   - Every resource carries an explicit GPU access state that must be
//     transitioned before each use (sampled, render target, copy dest).
//
// # Quick Start
//
//	tex := streamtex.NewTexture(ctx)
//	err := tex.Create(&streamtex.TextureCreateInfo{
//	    Width:         512,
//	    Height:        512,
//	    Layers:        1,
//	    Levels:        1,
//	    Samples:       1,
//	    Format:        gputypes.TextureFormatRGBA8Unorm,
//	    SampledFormat: gputypes.TextureFormatRGBA8Unorm,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tex.Destroy(true)
//
//	err = tex.LoadData(0, 0, 512, 512, pixels, 512*4)
//
// # Architecture
//
// The library is organized into:
//   - Core: Texture, Format, ResourceState, DescriptorHeap
//   - Upload: StreamBuffer (ring allocator), StagingTexture (large copies)
//   - Lifetime: DestructionQueue (fence-tagged deferred release)
//   - Backends: backend/native (gogpu/wgpu HAL)
//
// The core records commands against abstract Device, CommandList, and
// Context interfaces; it performs no device calls of its own. Any backend
// implementing those interfaces can host it, including the hal/noop
// device for tests.
//
// # Concurrency
//
// Texture operations assume a single command-recording goroutine and take
// no locks. DescriptorHeap, StreamBuffer, and DestructionQueue are shared
// across textures and synchronize internally.
package streamtex

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
