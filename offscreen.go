package gpuboot

import (
	"fmt"
	"image"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the required BytesPerRow alignment for
// texture-to-buffer copies on GPU backends.
const copyPitchAlignment = 256

// OffscreenSurface is a texture-backed SurfaceProvider. It renders without a
// window and can read the last frame back with ReadPixels.
//
// OffscreenSurface is safe for concurrent use, but a frame acquired from it
// must be finished before the next one is acquired.
type OffscreenSurface struct {
	mu sync.Mutex

	width, height int

	dev     *Device
	format  gputypes.TextureFormat
	usage   gputypes.TextureUsage
	texture hal.Texture
	view    hal.TextureView

	configured bool
	lost       string
	generation uint64
	current    *TextureView
	destroyed  bool
}

var (
	_ SurfaceProvider = (*OffscreenSurface)(nil)
	_ Resizer         = (*OffscreenSurface)(nil)
)

// NewOffscreenSurface returns an unconfigured offscreen surface of the given
// size in pixels.
func NewOffscreenSurface(width, height int) *OffscreenSurface {
	return &OffscreenSurface{width: width, height: height, lost: "not configured"}
}

// Size returns the surface size in pixels.
func (o *OffscreenSurface) Size() (width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.width, o.height
}

// Resize changes the surface size. The current configuration becomes stale
// and AcquireCurrentView fails until Configure is called again.
func (o *OffscreenSurface) Resize(width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if width == o.width && height == o.height {
		return
	}
	o.width, o.height = width, height
	o.invalidateLocked("resized")
}

// PreferredFormat returns RGBA8Unorm, which readback converts without
// swizzling.
func (o *OffscreenSurface) PreferredFormat(_ *Device) gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Configure (re)creates the backing texture on dev. CopySrc is always added
// to usage so the frame can be read back.
func (o *OffscreenSurface) Configure(dev *Device, format gputypes.TextureFormat, usage gputypes.TextureUsage) error {
	if err := dev.alive(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.destroyed {
		return &SurfaceLostError{Reason: "destroyed"}
	}
	if o.width <= 0 || o.height <= 0 {
		return fmt.Errorf("gpuboot: configure offscreen surface %dx%d: %w", o.width, o.height, hal.ErrZeroArea)
	}
	if format == gputypes.TextureFormatUndefined || format.IsDepthStencil() {
		return &UnsupportedFormatError{Format: format, Reason: "not a color format"}
	}
	if dev.formatCapabilities(format)&hal.TextureFormatCapabilityRenderAttachment == 0 {
		return &UnsupportedFormatError{Format: format, Reason: "not renderable on this adapter"}
	}

	o.invalidateLocked("reconfigured")
	o.releaseLocked()

	usage |= gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc
	tex, err := dev.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen-target",
		Size:          hal.Extent3D{Width: uint32(o.width), Height: uint32(o.height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return fmt.Errorf("gpuboot: create offscreen texture: %w", err)
	}
	view, err := dev.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "offscreen-target-view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		dev.device.DestroyTexture(tex)
		return fmt.Errorf("gpuboot: create offscreen view: %w", err)
	}

	if o.dev != nil && o.dev != dev {
		o.dev.untrack(o)
	}
	if err := dev.track(o); err != nil {
		dev.device.DestroyTextureView(view)
		dev.device.DestroyTexture(tex)
		return err
	}

	o.dev = dev
	o.format = format
	o.usage = usage
	o.texture = tex
	o.view = view
	o.configured = true
	o.lost = ""
	o.generation++

	slogger().Debug("gpuboot: offscreen surface configured",
		"width", o.width, "height", o.height, "format", format, "generation", o.generation)
	return nil
}

// AcquireCurrentView returns the view of the backing texture.
func (o *OffscreenSurface) AcquireCurrentView() (*TextureView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.destroyed {
		return nil, &SurfaceLostError{Reason: "destroyed"}
	}
	if o.dev != nil && o.dev.Destroyed() {
		return nil, &SurfaceLostError{Reason: "device destroyed", Cause: ErrDeviceDestroyed}
	}
	if !o.configured {
		return nil, &SurfaceLostError{Reason: o.lost}
	}

	gen := o.generation
	v := NewTextureView(o.view, uint32(o.width), uint32(o.height), o.format, gen, func(bool) error {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.current != nil && o.current.generation == gen {
			o.current = nil
		}
		return nil
	})
	o.current = v
	return v, nil
}

// ReadPixels copies the backing texture into a new RGBA image. It waits for
// all submitted work on the device to finish first.
func (o *OffscreenSurface) ReadPixels() (*image.RGBA, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.destroyed || !o.configured {
		return nil, &SurfaceLostError{Reason: "no configured texture to read"}
	}
	dev := o.dev
	if err := dev.alive(); err != nil {
		return nil, err
	}

	w, h := uint32(o.width), uint32(o.height)
	bytesPerRow := w * 4
	pitch := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	if dev.Info().Backend == gputypes.BackendEmpty {
		// CPU backends copy rows tightly and ignore BytesPerRow.
		pitch = bytesPerRow
	}
	size := uint64(pitch) * uint64(h)

	staging, err := dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "offscreen-readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpuboot: create readback buffer: %w", err)
	}
	defer dev.device.DestroyBuffer(staging)

	encoder, err := dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "offscreen-readback"})
	if err != nil {
		return nil, fmt.Errorf("gpuboot: create readback encoder: %w", err)
	}
	defer encoder.Destroy()
	if err := encoder.BeginEncoding("offscreen-readback"); err != nil {
		return nil, fmt.Errorf("gpuboot: begin readback encoding: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: o.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(o.texture, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: o.texture, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: o.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpuboot: end readback encoding: %w", err)
	}
	defer dev.device.FreeCommandBuffer(cmd)

	if _, err := dev.submit(cmd); err != nil {
		return nil, fmt.Errorf("gpuboot: submit readback: %w", err)
	}
	if err := dev.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("gpuboot: wait for readback: %w", err)
	}

	mapping, err := dev.device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("gpuboot: map readback buffer: %w", err)
	}
	raw := unsafe.Slice((*byte)(mapping.Ptr), size)

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := range int(h) {
		copy(img.Pix[y*img.Stride:y*img.Stride+int(bytesPerRow)], raw[y*int(pitch):y*int(pitch)+int(bytesPerRow)])
	}
	if err := dev.device.UnmapBuffer(staging); err != nil {
		slogger().Warn("gpuboot: unmap readback buffer", "err", err)
	}

	if isBGRA(o.format) {
		for i := 0; i+3 < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img, nil
}

func isBGRA(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatBGRA8Unorm || f == gputypes.TextureFormatBGRA8UnormSrgb
}

// Destroy releases the backing texture. The surface cannot be configured
// again afterwards.
func (o *OffscreenSurface) Destroy() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return
	}
	o.destroyed = true
	o.invalidateLocked("destroyed")
	if o.dev != nil {
		o.dev.untrack(o)
	}
	o.releaseLocked()
}

// invalidateLocked marks the configuration stale and invalidates the view
// handed out for the current frame.
func (o *OffscreenSurface) invalidateLocked(reason string) {
	o.configured = false
	o.lost = reason
	if o.current != nil {
		o.current.Invalidate()
		o.current = nil
	}
}

// releaseLocked destroys the backing texture and view, if any.
func (o *OffscreenSurface) releaseLocked() {
	if o.dev == nil || o.texture == nil {
		return
	}
	o.dev.device.DestroyTextureView(o.view)
	o.dev.device.DestroyTexture(o.texture)
	o.texture = nil
	o.view = nil
}

func (o *OffscreenSurface) kind() resourceKind { return kindSurfaceTarget }

// release is called by Device.Destroy.
func (o *OffscreenSurface) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidateLocked("device destroyed")
	o.releaseLocked()
}
