// Command trisnap renders the gpuboot triangle offscreen and saves it as PNG.
//
// Usage:
//
//	trisnap -width 256 -height 256 -scale 2 -output triangle.png
//	trisnap -backend software -power low
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gpuboot"
	"github.com/gogpu/gpuboot/surface"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	width, height int
	scale         float64
	backend       string
	power         string
	output        string
	verbose       bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("trisnap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&o.width, "width", 256, "render width in pixels")
	fs.IntVar(&o.height, "height", 256, "render height in pixels")
	fs.Float64Var(&o.scale, "scale", 1, "scale factor applied to the saved image")
	fs.StringVar(&o.backend, "backend", "", "HAL backend name (empty selects automatically)")
	fs.StringVar(&o.power, "power", "high", "adapter power preference: high, low or none")
	fs.StringVar(&o.output, "output", "triangle.png", "output PNG file")
	fs.BoolVar(&o.verbose, "v", false, "log debug output")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.width <= 0 || o.height <= 0 {
		return o, fmt.Errorf("invalid size %dx%d", o.width, o.height)
	}
	if o.scale <= 0 {
		return o, fmt.Errorf("invalid scale %g", o.scale)
	}
	return o, nil
}

func powerPreference(s string) (gputypes.PowerPreference, error) {
	switch s {
	case "high":
		return gputypes.PowerPreferenceHighPerformance, nil
	case "low":
		return gputypes.PowerPreferenceLowPower, nil
	case "none":
		return gputypes.PowerPreferenceNone, nil
	}
	return 0, fmt.Errorf("unknown power preference %q", s)
}

func run(args []string, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	power, err := powerPreference(o.power)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	gpuboot.SetLogger(logger)
	defer gpuboot.SetLogger(nil)

	setupOpts := []gpuboot.Option{gpuboot.WithPowerPreference(power), gpuboot.WithLabel("trisnap")}
	if o.backend != "" {
		setupOpts = append(setupOpts, gpuboot.WithBackendName(o.backend))
	}
	dev, err := gpuboot.Setup(setupOpts...)
	if err != nil {
		return err
	}
	defer dev.Destroy()
	logger.Info("device ready", "backend", dev.BackendName(), "adapter", dev.Info().Name)

	img, err := render(dev, o.width, o.height)
	if err != nil {
		return err
	}
	out := scaleImage(img, o.scale)

	if err := writePNG(o.output, out); err != nil {
		return err
	}
	logger.Info("saved", "file", o.output, "width", out.Bounds().Dx(), "height", out.Bounds().Dy())
	return nil
}

// render draws one frame into an offscreen target and reads it back.
func render(dev *gpuboot.Device, width, height int) (*image.RGBA, error) {
	s, err := surface.NewByName(surface.TargetOffscreen, surface.Options{Device: dev, Width: width, Height: height})
	if err != nil {
		return nil, err
	}
	target, ok := s.(*gpuboot.OffscreenSurface)
	if !ok {
		return nil, fmt.Errorf("offscreen target returned %T", s)
	}
	defer target.Destroy()

	pipeline, err := gpuboot.NewTrianglePipeline(dev, target.PreferredFormat(dev))
	if err != nil {
		return nil, err
	}
	defer pipeline.Destroy()

	r, err := gpuboot.NewFrameRenderer(dev, pipeline, target)
	if err != nil {
		return nil, err
	}
	defer r.Destroy() //nolint:errcheck

	if err := r.Configure(); err != nil {
		return nil, err
	}
	if err := r.Render(); err != nil {
		return nil, err
	}
	return target.ReadPixels()
}

// scaleImage resamples img by factor with Catmull-Rom filtering.
func scaleImage(img *image.RGBA, factor float64) *image.RGBA {
	if factor == 1 {
		return img
	}
	b := img.Bounds()
	w := max(int(float64(b.Dx())*factor+0.5), 1)
	h := max(int(float64(b.Dy())*factor+0.5), 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
