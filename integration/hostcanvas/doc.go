// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package hostcanvas embeds gpuboot frame renderers in host windows.
//
// A host (a windowing toolkit, a game loop, a GUI framework) provides a
// gpucontext.WindowProvider and a gpuboot.SurfaceProvider for its window,
// and calls Canvas.Render from its redraw callback. The canvas keeps the
// surface sized to the window and recovers from lost surfaces:
//
//	w, _ := surface.NewWindow(dev, display, hwnd, fbWidth, fbHeight)
//	c, err := hostcanvas.New(dev, windowProvider, w, nil)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	onRedraw(func() {
//	    if err := c.Render(); err != nil {
//	        log.Println(err)
//	    }
//	})
//
// # Several canvases
//
// Host lays out several canvases in one window, in a row or a column,
// all rendering with one shared Device:
//
//	h, _ := hostcanvas.NewHost(dev, windowProvider, hostcanvas.LayoutRow, 8)
//	h.Add(gpuboot.NewOffscreenSurface(1, 1), nil)
//	h.Add(gpuboot.NewOffscreenSurface(1, 1), nil)
//	_ = h.Render()
package hostcanvas
