// Package gpuboot bootstraps a GPU render pipeline for Go.
//
// # Overview
//
// gpuboot takes a program from nothing to a submitted frame: it selects a
// backend and adapter, opens a device, compiles WGSL shaders, builds a render
// pipeline from a plain descriptor and drives a per-frame render loop against
// a surface the host owns. It is built on the GoGPU stack (gogpu/wgpu HAL,
// gogpu/naga, gogpu/gputypes) and never owns an event loop.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpuboot"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	dev, err := gpuboot.Setup()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Destroy()
//
//	surf := gpuboot.NewOffscreenSurface(256, 256)
//	pipeline, err := gpuboot.NewTrianglePipeline(dev, surf.PreferredFormat(dev))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r, _ := gpuboot.NewFrameRenderer(dev, pipeline, surf)
//	if err := r.Configure(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := r.Render(); err != nil {
//	    log.Fatal(err)
//	}
//	img, _ := surf.ReadPixels()
//
// # Setup
//
// Setup, SetupContext and SetupAsync share one state machine with two
// negotiation steps: the adapter request and the device request.
// SetupContext can be abandoned at either step through its context. No path
// ever falls back silently: a request that cannot be satisfied returns
// *AdapterNotFoundError.
//
// # Frames
//
// FrameRenderer runs Uninitialized -> Configured -> Rendering -> Configured,
// and Configured -> Destroyed. Each Render acquires a view, clears it to
// opaque black, binds the pipeline, draws three vertices without vertex
// buffers and submits one command buffer. A failed frame returns
// *FrameRenderError naming the stage and submits nothing.
//
// # Surfaces
//
// Anything implementing SurfaceProvider can be rendered to. OffscreenSurface
// renders into a texture; package surface renders into a native window.
// After a resize, AcquireCurrentView fails with *SurfaceLostError until the
// surface is configured again.
//
// # Logging
//
// gpuboot is silent by default. Use SetLogger to route diagnostics, including
// those of the wgpu HAL, to a slog.Logger.
package gpuboot

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
