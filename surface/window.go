// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpuboot"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrForeignDevice is returned when a Window is configured with a device
// other than the one it was created on.
var ErrForeignDevice = errors.New("surface: window belongs to another device")

// Window is a SurfaceProvider that presents to a native window.
//
// The native surface is created from platform handles through the HAL
// instance of the device passed to NewWindow, and can only be configured
// for that device. Each acquired view is presented through the device's
// queue after its frame was submitted, or discarded when the frame fails.
//
// Window is safe for concurrent use. The host calls Resize from its event
// loop; the next AcquireCurrentView then fails with *gpuboot.SurfaceLostError
// until Configure is called again.
type Window struct {
	mu sync.Mutex

	dev     *gpuboot.Device
	raw     hal.Surface
	untrack func() bool

	width, height int
	presentMode   hal.PresentMode
	alphaMode     hal.CompositeAlphaMode

	format     gputypes.TextureFormat
	configured bool
	lost       string
	generation uint64
	current    *gpuboot.TextureView
	released   bool
	destroyed  bool
}

var (
	_ gpuboot.SurfaceProvider = (*Window)(nil)
	_ gpuboot.Resizer         = (*Window)(nil)
)

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithPresentMode sets the presentation mode. Modes the adapter does not
// offer fall back to FIFO, which every backend supports.
func WithPresentMode(m hal.PresentMode) WindowOption {
	return func(w *Window) { w.presentMode = m }
}

// WithAlphaMode sets how the window compositor treats alpha.
func WithAlphaMode(m hal.CompositeAlphaMode) WindowOption {
	return func(w *Window) { w.alphaMode = m }
}

// NewWindow creates the native surface for the given display and window
// handles (HWND on Windows, X11 Display* and Window on Linux, CAMetalLayer
// on macOS). width and height are the framebuffer size in pixels.
func NewWindow(dev *gpuboot.Device, display, window uintptr, width, height int, opts ...WindowOption) (*Window, error) {
	if dev == nil {
		return nil, gpuboot.ErrNilDevice
	}
	if dev.Destroyed() {
		return nil, gpuboot.ErrDeviceDestroyed
	}

	raw, err := dev.HalInstance().CreateSurface(display, window)
	if err != nil {
		return nil, fmt.Errorf("surface: create window surface: %w", err)
	}

	w := &Window{
		dev:         dev,
		raw:         raw,
		width:       width,
		height:      height,
		presentMode: hal.PresentModeFifo,
		alphaMode:   hal.CompositeAlphaModeOpaque,
		lost:        "not configured",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	w.untrack, err = dev.TrackSurface(w.deviceDestroyed)
	if err != nil {
		raw.Destroy()
		return nil, err
	}

	gpuboot.Logger().Debug("surface: window created",
		"device", dev.Label(), "width", width, "height", height)
	return w, nil
}

// Raw returns the HAL surface, or nil once the window was destroyed.
func (w *Window) Raw() hal.Surface {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.raw
}

// Size returns the framebuffer size in pixels.
func (w *Window) Size() (width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// Resize records a new framebuffer size. The current configuration
// becomes stale.
func (w *Window) Resize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if width == w.width && height == w.height {
		return
	}
	w.width, w.height = width, height
	w.invalidateLocked("resized")
}

// Format returns the configured format, or TextureFormatUndefined.
func (w *Window) Format() gputypes.TextureFormat {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.format
}

// Generation counts successful Configure calls.
func (w *Window) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// capabilities returns the adapter's capabilities for the window surface.
// It may return nil.
func (w *Window) capabilities() *hal.SurfaceCapabilities {
	if w.raw == nil {
		return nil
	}
	return w.dev.HalAdapter().SurfaceCapabilities(w.raw)
}

// PreferredFormat returns BGRA8Unorm when the adapter offers it for this
// window, otherwise the adapter's first surface format.
func (w *Window) PreferredFormat(_ *gpuboot.Device) gputypes.TextureFormat {
	w.mu.Lock()
	defer w.mu.Unlock()

	caps := w.capabilities()
	if caps == nil || len(caps.Formats) == 0 || slices.Contains(caps.Formats, gputypes.TextureFormatBGRA8Unorm) {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return caps.Formats[0]
}

// Configure (re)configures the native surface for the current size.
func (w *Window) Configure(dev *gpuboot.Device, format gputypes.TextureFormat, usage gputypes.TextureUsage) error {
	if dev == nil {
		return gpuboot.ErrNilDevice
	}
	if dev.Destroyed() {
		return gpuboot.ErrDeviceDestroyed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.destroyed:
		return &gpuboot.SurfaceLostError{Reason: "destroyed"}
	case w.released:
		return &gpuboot.SurfaceLostError{Reason: "device destroyed", Cause: gpuboot.ErrDeviceDestroyed}
	case dev != w.dev:
		return ErrForeignDevice
	}
	if w.width <= 0 || w.height <= 0 {
		return fmt.Errorf("surface: configure window %dx%d: %w", w.width, w.height, hal.ErrZeroArea)
	}
	if format == gputypes.TextureFormatUndefined || format.IsDepthStencil() {
		return &gpuboot.UnsupportedFormatError{Format: format, Reason: "not a color format"}
	}

	present, alpha := w.presentMode, w.alphaMode
	if caps := w.capabilities(); caps != nil {
		if len(caps.Formats) > 0 && !slices.Contains(caps.Formats, format) {
			return &gpuboot.UnsupportedFormatError{Format: format, Reason: "not offered for this window"}
		}
		if len(caps.PresentModes) > 0 && !slices.Contains(caps.PresentModes, present) {
			gpuboot.Logger().Debug("surface: present mode unavailable, using fifo", "mode", present)
			present = hal.PresentModeFifo
		}
		if len(caps.AlphaModes) > 0 && !slices.Contains(caps.AlphaModes, alpha) {
			alpha = caps.AlphaModes[0]
		}
	}

	w.invalidateLocked("reconfigured")
	err := w.raw.Configure(dev.HalDevice(), &hal.SurfaceConfiguration{
		Width:       uint32(w.width),
		Height:      uint32(w.height),
		Format:      format,
		Usage:       usage | gputypes.TextureUsageRenderAttachment,
		PresentMode: present,
		AlphaMode:   alpha,
	})
	if err != nil {
		if lostErr := lostError(err); lostErr != nil {
			return lostErr
		}
		return fmt.Errorf("surface: configure window: %w", err)
	}

	w.format = format
	w.configured = true
	w.lost = ""
	w.generation++

	gpuboot.Logger().Debug("surface: window configured",
		"width", w.width, "height", w.height, "format", format,
		"present", present, "generation", w.generation)
	return nil
}

// lostError maps the HAL's surface errors to *gpuboot.SurfaceLostError.
// It returns nil for other errors.
func lostError(err error) error {
	switch {
	case errors.Is(err, hal.ErrSurfaceLost):
		return &gpuboot.SurfaceLostError{Reason: "lost", Cause: err}
	case errors.Is(err, hal.ErrSurfaceOutdated):
		return &gpuboot.SurfaceLostError{Reason: "outdated", Cause: err}
	}
	return nil
}

// AcquireCurrentView acquires the next swapchain texture. A suboptimal
// texture is still rendered, but the window asks for a Configure after
// the frame.
func (w *Window) AcquireCurrentView() (*gpuboot.TextureView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.destroyed:
		return nil, &gpuboot.SurfaceLostError{Reason: "destroyed"}
	case w.released || w.dev.Destroyed():
		return nil, &gpuboot.SurfaceLostError{Reason: "device destroyed", Cause: gpuboot.ErrDeviceDestroyed}
	case !w.configured:
		return nil, &gpuboot.SurfaceLostError{Reason: w.lost}
	}

	acquired, err := w.raw.AcquireTexture(nil)
	if err != nil {
		if lostErr := lostError(err); lostErr != nil {
			w.invalidateLocked(lostErr.(*gpuboot.SurfaceLostError).Reason)
			return nil, lostErr
		}
		return nil, fmt.Errorf("surface: acquire window texture: %w", err)
	}

	hdev := w.dev.HalDevice()
	tex := acquired.Texture
	view, err := hdev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "window-frame-view",
		Format:        w.format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		w.raw.DiscardTexture(tex)
		return nil, fmt.Errorf("surface: create window view: %w", err)
	}

	gen := w.generation
	suboptimal := acquired.Suboptimal
	v := gpuboot.NewTextureView(view, uint32(w.width), uint32(w.height), w.format, gen, func(present bool) error {
		return w.finishFrame(gen, tex, view, present, suboptimal)
	})
	w.current = v
	return v, nil
}

// finishFrame presents or discards the texture of one frame.
func (w *Window) finishFrame(gen uint64, tex hal.SurfaceTexture, view hal.TextureView, present, suboptimal bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil && w.current.Generation() == gen {
		w.current = nil
	}
	if w.raw == nil {
		return nil
	}
	w.dev.HalDevice().DestroyTextureView(view)

	if !present {
		w.raw.DiscardTexture(tex)
		return nil
	}

	err := w.dev.HalQueue().Present(w.raw, tex, nil)
	if suboptimal && w.generation == gen {
		w.invalidateLocked("suboptimal")
	}
	if err != nil {
		if lostErr := lostError(err); lostErr != nil {
			w.invalidateLocked(lostErr.(*gpuboot.SurfaceLostError).Reason)
			return lostErr
		}
		return fmt.Errorf("surface: present: %w", err)
	}
	return nil
}

// Destroy unconfigures and releases the native surface. Destroy the window
// before the window handle it was created from goes away.
func (w *Window) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return
	}
	w.destroyed = true
	w.invalidateLocked("destroyed")
	if w.untrack != nil && !w.untrack() {
		// Device.Destroy already released the surface.
		return
	}
	w.releaseLocked()
}

// deviceDestroyed runs from Device.Destroy while the HAL device is still
// usable.
func (w *Window) deviceDestroyed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.invalidateLocked("device destroyed")
	w.releaseLocked()
	w.released = true
}

func (w *Window) releaseLocked() {
	if w.raw == nil {
		return
	}
	if w.generation > 0 {
		w.raw.Unconfigure(w.dev.HalDevice())
	}
	w.raw.Destroy()
	w.raw = nil
}

func (w *Window) invalidateLocked(reason string) {
	w.configured = false
	w.lost = reason
	if w.current != nil {
		w.current.Invalidate()
		w.current = nil
	}
}
