// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides window-backed render targets for gpuboot and a
// registry that picks a target for the handles a host has.
//
// # Window
//
// Window wraps a native HAL surface. It implements gpuboot.SurfaceProvider,
// so a FrameRenderer drives it like any other target:
//
//	w, err := surface.NewWindow(dev, display, hwnd, 800, 600)
//	if err != nil {
//	    return err
//	}
//	defer w.Destroy()
//
//	r, _ := gpuboot.NewFrameRenderer(dev, pipeline, w)
//	_ = r.Configure()
//
//	// on resize:
//	w.Resize(newW, newH)
//	_ = r.Configure()
//
// Swapchain errors from the HAL (surface lost or outdated) are reported as
// *gpuboot.SurfaceLostError; the caller reconfigures and retries once.
//
// # Registry
//
// Targets register under a name and a priority. Two are built in:
//
//   - "window" (priority 100): a Window, available when Options carries a
//     window handle and a device
//   - "offscreen" (priority 10): a gpuboot.OffscreenSurface
//
// New picks the highest priority target available for the options:
//
//	s, err := surface.New(surface.Options{Device: dev, Width: 640, Height: 480})
package surface
