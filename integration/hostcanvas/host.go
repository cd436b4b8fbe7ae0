// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package hostcanvas

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpuboot"
	"github.com/gogpu/gpucontext"
)

// Layout arranges the canvases of a Host.
type Layout uint8

const (
	// LayoutRow places canvases left to right.
	LayoutRow Layout = iota
	// LayoutColumn places canvases top to bottom.
	LayoutColumn
)

func (l Layout) String() string {
	switch l {
	case LayoutRow:
		return "row"
	case LayoutColumn:
		return "column"
	default:
		return fmt.Sprintf("Layout(%d)", l)
	}
}

// Host splits one window into equal slots, one per canvas, with all
// canvases rendering on a shared Device.
//
// Host is NOT safe for concurrent use.
type Host struct {
	dev      *gpuboot.Device
	window   gpucontext.WindowProvider
	layout   Layout
	gap      int
	canvases []*Canvas
	closed   bool
}

// NewHost returns an empty host for window. gap is the logical spacing
// between slots.
func NewHost(dev *gpuboot.Device, window gpucontext.WindowProvider, layout Layout, gap int) (*Host, error) {
	if window == nil {
		return nil, ErrNilWindow
	}
	if dev == nil {
		return nil, gpuboot.ErrNilDevice
	}
	if gap < 0 {
		gap = 0
	}
	return &Host{dev: dev, window: window, layout: layout, gap: gap}, nil
}

// Device returns the shared device.
func (h *Host) Device() *gpuboot.Device { return h.dev }

// Len returns the number of canvases.
func (h *Host) Len() int { return len(h.canvases) }

// Canvas returns the i-th canvas.
func (h *Host) Canvas(i int) *Canvas { return h.canvases[i] }

// Add creates a canvas in the next slot. See New for pipeline and opts.
func (h *Host) Add(surf gpuboot.SurfaceProvider, pipeline *gpuboot.RenderPipeline, opts ...gpuboot.FrameOption) (*Canvas, error) {
	if h.closed {
		return nil, ErrCanvasClosed
	}
	c, err := New(h.dev, &slotWindow{host: h, index: len(h.canvases)}, surf, pipeline, opts...)
	if err != nil {
		return nil, err
	}
	h.canvases = append(h.canvases, c)
	return c, nil
}

// Slots returns the logical rectangle of every canvas inside the window.
func (h *Host) Slots() []image.Rectangle {
	n := len(h.canvases)
	if n == 0 {
		return nil
	}
	w, ht := h.window.Size()

	total := w
	if h.layout == LayoutColumn {
		total = ht
	}
	avail := max(total-h.gap*(n-1), 0)
	size, extra := avail/n, avail%n

	rects := make([]image.Rectangle, n)
	pos := 0
	for i := range n {
		s := size
		if i < extra {
			s++
		}
		if h.layout == LayoutColumn {
			rects[i] = image.Rect(0, pos, w, pos+s)
		} else {
			rects[i] = image.Rect(pos, 0, pos+s, ht)
		}
		pos += s + h.gap
	}
	return rects
}

// Render renders every canvas. A failing canvas does not stop the others;
// the errors are joined.
func (h *Host) Render() error {
	if h.closed {
		return ErrCanvasClosed
	}
	var errs []error
	for i, c := range h.canvases {
		if err := c.Render(); err != nil {
			errs = append(errs, fmt.Errorf("hostcanvas: canvas %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every canvas. The device is not destroyed.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	var errs []error
	for _, c := range h.canvases {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// slotWindow is the part of the host window given to one canvas.
type slotWindow struct {
	host  *Host
	index int
}

func (s *slotWindow) Size() (width, height int) {
	slots := s.host.Slots()
	if s.index >= len(slots) {
		return 0, 0
	}
	r := slots[s.index]
	return r.Dx(), r.Dy()
}

func (s *slotWindow) ScaleFactor() float64 { return s.host.window.ScaleFactor() }

func (s *slotWindow) RequestRedraw() { s.host.window.RequestRedraw() }
