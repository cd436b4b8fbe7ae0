package gpuboot

import (
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SurfaceProvider is a render target that hands out one texture view per
// frame. OffscreenSurface and surface.Window implement it.
//
// AcquireCurrentView returns *SurfaceLostError when the provider has not
// been configured, was resized since the last Configure, or was destroyed.
// Configure must be called again before the next acquire succeeds.
type SurfaceProvider interface {
	// PreferredFormat returns the format the surface renders best in on dev.
	PreferredFormat(dev *Device) gputypes.TextureFormat

	// Configure (re)creates the surface's backing storage for dev.
	Configure(dev *Device, format gputypes.TextureFormat, usage gputypes.TextureUsage) error

	// AcquireCurrentView returns the view to render the next frame into.
	AcquireCurrentView() (*TextureView, error)
}

// Resizer is implemented by surfaces whose size can change.
// Resize invalidates the current configuration.
type Resizer interface {
	Resize(width, height int)
	Size() (width, height int)
}

// TextureView is the render target of one frame. It stays valid until the
// frame is submitted or the surface is reconfigured, resized or destroyed.
type TextureView struct {
	mu         sync.Mutex
	raw        hal.TextureView
	width      uint32
	height     uint32
	format     gputypes.TextureFormat
	generation uint64
	valid      bool
	finish     func(present bool) error
}

// NewTextureView wraps a HAL view acquired from a surface. finish is called
// exactly once: with present=true after the frame was submitted, or false
// when the frame is abandoned. It may be nil.
func NewTextureView(raw hal.TextureView, width, height uint32, format gputypes.TextureFormat, generation uint64, finish func(present bool) error) *TextureView {
	return &TextureView{
		raw:        raw,
		width:      width,
		height:     height,
		format:     format,
		generation: generation,
		valid:      true,
		finish:     finish,
	}
}

// Raw returns the HAL texture view, or nil once the view was released or
// invalidated.
func (v *TextureView) Raw() hal.TextureView {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.valid {
		return nil
	}
	return v.raw
}

// Size returns the view dimensions in pixels.
func (v *TextureView) Size() (width, height uint32) { return v.width, v.height }

// Format returns the view format.
func (v *TextureView) Format() gputypes.TextureFormat { return v.format }

// Generation identifies the surface configuration the view belongs to.
func (v *TextureView) Generation() uint64 { return v.generation }

// Valid reports whether the view can still be rendered to.
func (v *TextureView) Valid() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.valid
}

// Invalidate marks the view unusable. Surfaces call it when the
// configuration it was acquired under goes away.
func (v *TextureView) Invalidate() {
	v.mu.Lock()
	v.valid = false
	v.mu.Unlock()
}

// release ends the view's frame. It is a no-op after the first call.
func (v *TextureView) release(present bool) error {
	v.mu.Lock()
	finish := v.finish
	v.finish = nil
	v.valid = false
	v.mu.Unlock()

	if finish == nil {
		return nil
	}
	return finish(present)
}
