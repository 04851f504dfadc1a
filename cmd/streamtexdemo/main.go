// Command streamtexdemo uploads an image through the texture streaming
// pipeline and reports what happened. It runs on the noop HAL backend,
// so it works without a GPU.
package main

import (
	"flag"
	"image"
	"image/color"
	_ "image/png"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/streamtex"
	"github.com/gogpu/streamtex/backend/native"
)

func main() {
	var (
		input    = flag.String("input", "", "image file to upload (PNG); generated when empty")
		size     = flag.Int("size", 512, "generated image size")
		ringSize = flag.Uint("ring", 1<<20, "stream buffer size in bytes")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		streamtex.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	img, err := loadOrGenerate(*input, *size)
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}
	bounds := img.Bounds()

	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer cleanup()

	backend, err := native.New(device, queue, native.Config{
		StreamBufferSize: uint32(*ringSize),
	})
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}
	defer backend.Close()

	tex := streamtex.NewTexture(backend)
	err = tex.Create(&streamtex.TextureCreateInfo{
		Width:         uint32(bounds.Dx()),
		Height:        uint32(bounds.Dy()),
		Layers:        1,
		Levels:        1,
		Samples:       1,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		SampledFormat: gputypes.TextureFormatRGBA8Unorm,
		Label:         "demo image",
	})
	if err != nil {
		log.Fatalf("Failed to create texture: %v", err)
	}
	defer tex.Destroy(false)

	if err := tex.LoadImage(img, 0, 0); err != nil {
		log.Fatalf("Failed to upload image: %v", err)
	}
	backend.WaitIdle()

	log.Printf("Uploaded %dx%d %s texture through a %d byte ring\n",
		tex.Width(), tex.Height(), tex.Format(), *ringSize)
}

func openNoopDevice() (device hal.Device, queue hal.Queue, cleanup func(), err error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, err
	}
	cleanup = func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup, nil
}

func loadOrGenerate(path string, size int) (image.Image, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		return img, err
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: byte(x * 255 / size),
				G: byte(y * 255 / size),
				B: byte((x + y) * 255 / (2 * size)),
				A: 255,
			})
		}
	}
	return img, nil
}
