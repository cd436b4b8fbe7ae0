// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package hostcanvas

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gpuboot"
	"github.com/gogpu/gpucontext"
)

// Common errors returned by Canvas operations.
var (
	// ErrCanvasClosed is returned when operations are attempted on a closed canvas.
	ErrCanvasClosed = errors.New("hostcanvas: canvas is closed")

	// ErrNilWindow is returned when a nil WindowProvider is passed.
	ErrNilWindow = errors.New("hostcanvas: nil WindowProvider")
)

// destroyer is implemented by surfaces that own native resources.
type destroyer interface {
	Destroy()
}

// Canvas binds a FrameRenderer to a host window.
//
// On every Render the canvas compares the window's size in pixels (logical
// size times scale factor) with the size the surface was configured for,
// resizes and reconfigures the surface when they differ, and retries a
// frame once when the surface reports it was lost. A window with zero
// area (minimized) renders nothing.
//
// Canvas is NOT safe for concurrent use. Render it from the host's draw
// callback.
type Canvas struct {
	dev      *gpuboot.Device
	window   gpucontext.WindowProvider
	surf     gpuboot.SurfaceProvider
	pipeline *gpuboot.RenderPipeline
	renderer *gpuboot.FrameRenderer

	ownsPipeline bool
	configured   bool
	width        int
	height       int
	closed       bool
}

// New creates a Canvas that renders pipeline into surf, sized after window.
// A nil pipeline selects the built-in triangle pipeline for the surface's
// preferred format; the canvas then owns and destroys it on Close.
func New(dev *gpuboot.Device, window gpucontext.WindowProvider, surf gpuboot.SurfaceProvider, pipeline *gpuboot.RenderPipeline, opts ...gpuboot.FrameOption) (*Canvas, error) {
	if window == nil {
		return nil, ErrNilWindow
	}
	if dev == nil {
		return nil, gpuboot.ErrNilDevice
	}
	if surf == nil {
		return nil, gpuboot.ErrNilSurface
	}

	owns := false
	if pipeline == nil {
		p, err := gpuboot.NewTrianglePipeline(dev, surf.PreferredFormat(dev))
		if err != nil {
			return nil, fmt.Errorf("hostcanvas: %w", err)
		}
		pipeline, owns = p, true
	}

	r, err := gpuboot.NewFrameRenderer(dev, pipeline, surf, opts...)
	if err != nil {
		if owns {
			pipeline.Destroy()
		}
		return nil, err
	}

	return &Canvas{
		dev:          dev,
		window:       window,
		surf:         surf,
		pipeline:     pipeline,
		renderer:     r,
		ownsPipeline: owns,
	}, nil
}

// MustNew is like New but panics on error.
// Use only when errors are programming mistakes.
func MustNew(dev *gpuboot.Device, window gpucontext.WindowProvider, surf gpuboot.SurfaceProvider, pipeline *gpuboot.RenderPipeline, opts ...gpuboot.FrameOption) *Canvas {
	c, err := New(dev, window, surf, pipeline, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// PixelSize returns the window size in physical pixels.
func (c *Canvas) PixelSize() (width, height int) {
	w, h := c.window.Size()
	scale := c.window.ScaleFactor()
	if scale <= 0 {
		scale = 1
	}
	return int(math.Round(float64(w) * scale)), int(math.Round(float64(h) * scale))
}

// Size returns the size in pixels the surface was last configured for.
func (c *Canvas) Size() (width, height int) {
	return c.width, c.height
}

// Renderer returns the canvas's frame renderer.
func (c *Canvas) Renderer() *gpuboot.FrameRenderer { return c.renderer }

// Surface returns the surface the canvas renders into.
func (c *Canvas) Surface() gpuboot.SurfaceProvider { return c.surf }

// Frames returns the number of frames submitted.
func (c *Canvas) Frames() uint64 { return c.renderer.Frames() }

// Invalidate asks the host for a redraw.
func (c *Canvas) Invalidate() {
	if !c.closed {
		c.window.RequestRedraw()
	}
}

// Sync applies the window's current size to the surface and configures
// it if needed. It reports false when the window has zero area.
func (c *Canvas) Sync() (bool, error) {
	if c.closed {
		return false, ErrCanvasClosed
	}

	w, h := c.PixelSize()
	if w <= 0 || h <= 0 {
		return false, nil
	}
	if w != c.width || h != c.height {
		if rs, ok := c.surf.(gpuboot.Resizer); ok {
			rs.Resize(w, h)
		}
		c.width, c.height = w, h
		c.configured = false
	}
	if !c.configured {
		if err := c.renderer.Configure(); err != nil {
			return false, err
		}
		c.configured = true
		gpuboot.Logger().Debug("hostcanvas: surface configured", "width", w, "height", h)
	}
	return true, nil
}

// Render draws one frame. If the surface reports it was lost, the canvas
// reconfigures it and retries once.
func (c *Canvas) Render() error {
	ok, err := c.Sync()
	if err != nil || !ok {
		return err
	}

	err = c.renderer.Render()
	if !gpuboot.IsSurfaceLost(err) {
		return err
	}

	gpuboot.Logger().Debug("hostcanvas: surface lost, reconfiguring", "err", err)
	c.configured = false
	if ok, err := c.Sync(); err != nil || !ok {
		return err
	}
	return c.renderer.Render()
}

// Close releases the renderer, the pipeline if the canvas created it, and
// the surface if it owns native resources. Close is idempotent.
func (c *Canvas) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.renderer.Destroy()
	if errors.Is(err, gpuboot.ErrRendererDestroyed) {
		err = nil
	}
	if c.ownsPipeline {
		c.pipeline.Destroy()
	}
	if d, ok := c.surf.(destroyer); ok {
		d.Destroy()
	}
	return err
}
