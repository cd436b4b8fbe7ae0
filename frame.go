package gpuboot

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// FrameState is the lifecycle state of a FrameRenderer.
type FrameState uint8

// Frame renderer states.
const (
	FrameUninitialized FrameState = iota
	FrameConfigured
	FrameRendering
	FrameDestroyed
)

// String returns the state name.
func (s FrameState) String() string {
	switch s {
	case FrameUninitialized:
		return "uninitialized"
	case FrameConfigured:
		return "configured"
	case FrameRendering:
		return "rendering"
	case FrameDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("FrameState(%d)", uint8(s))
	}
}

// FrameOption configures a FrameRenderer.
type FrameOption func(*frameConfig)

type frameConfig struct {
	clear     gputypes.Color
	vertices  uint32
	instances uint32
	usage     gputypes.TextureUsage
}

func defaultFrameConfig() frameConfig {
	return frameConfig{
		clear:     gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		vertices:  3,
		instances: 1,
		usage:     gputypes.TextureUsageRenderAttachment,
	}
}

// WithClearColor sets the color the render pass clears to.
// The default is opaque black.
func WithClearColor(c gputypes.Color) FrameOption {
	return func(f *frameConfig) { f.clear = c }
}

// WithVertexCount sets the number of vertices drawn per frame (default 3).
func WithVertexCount(n uint32) FrameOption {
	return func(f *frameConfig) { f.vertices = n }
}

// WithInstanceCount sets the number of instances drawn per frame (default 1).
func WithInstanceCount(n uint32) FrameOption {
	return func(f *frameConfig) { f.instances = n }
}

// WithSurfaceUsage adds usage flags requested when configuring the surface.
// RenderAttachment is always included.
func WithSurfaceUsage(u gputypes.TextureUsage) FrameOption {
	return func(f *frameConfig) { f.usage |= u }
}

// FrameRenderer draws one pipeline into a surface, one frame per Render
// call: acquire, clear, draw without vertex buffers, submit, present.
//
// FrameRenderer is NOT safe for concurrent use. The host serializes calls,
// typically from its redraw callback.
type FrameRenderer struct {
	dev      *Device
	pipeline *RenderPipeline
	surf     SurfaceProvider
	cfg      frameConfig

	state          FrameState
	frames         uint64
	lastSubmission uint64
}

// NewFrameRenderer returns an unconfigured renderer. Call Configure before
// the first Render.
func NewFrameRenderer(dev *Device, pipeline *RenderPipeline, surf SurfaceProvider, opts ...FrameOption) (*FrameRenderer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if pipeline == nil {
		return nil, ErrNilPipeline
	}
	if surf == nil {
		return nil, ErrNilSurface
	}
	if err := dev.alive(); err != nil {
		return nil, err
	}
	if pipeline.dev != dev {
		return nil, fmt.Errorf("%w: pipeline %q belongs to another device", ErrInvalidState, pipeline.Label())
	}

	cfg := defaultFrameConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &FrameRenderer{dev: dev, pipeline: pipeline, surf: surf, cfg: cfg}, nil
}

// State returns the current lifecycle state.
func (r *FrameRenderer) State() FrameState { return r.state }

// Frames returns the number of frames submitted successfully.
func (r *FrameRenderer) Frames() uint64 { return r.frames }

// LastSubmission returns the queue submission index of the last frame, or
// zero before the first frame.
func (r *FrameRenderer) LastSubmission() uint64 { return r.lastSubmission }

// Surface returns the surface the renderer draws into.
func (r *FrameRenderer) Surface() SurfaceProvider { return r.surf }

// Format returns the color format the surface is configured with, which is
// the format of the pipeline's first color target.
func (r *FrameRenderer) Format() gputypes.TextureFormat {
	return r.pipeline.desc.Fragment.Targets[0].Format
}

// Configure configures the surface for the pipeline's target format. Call it
// again after the surface is resized or reports SurfaceLostError.
func (r *FrameRenderer) Configure() error {
	switch r.state {
	case FrameDestroyed:
		return ErrRendererDestroyed
	case FrameRendering:
		return fmt.Errorf("%w: configure during a frame", ErrInvalidState)
	}
	if err := r.dev.alive(); err != nil {
		return err
	}

	format := r.Format()
	if err := r.surf.Configure(r.dev, format, r.cfg.usage); err != nil {
		return err
	}
	r.dev.setSurfaceFormat(format)
	r.state = FrameConfigured
	slogger().Debug("gpuboot: frame renderer configured", "format", format)
	return nil
}

// Render draws and submits one frame. Failures are returned as
// *FrameRenderError; nothing is submitted for a frame that fails before
// the submit stage. The renderer is back in FrameConfigured afterwards
// either way.
func (r *FrameRenderer) Render() error {
	switch r.state {
	case FrameDestroyed:
		return ErrRendererDestroyed
	case FrameUninitialized:
		return fmt.Errorf("%w: render before configure", ErrInvalidState)
	case FrameRendering:
		return fmt.Errorf("%w: render re-entered", ErrInvalidState)
	}

	r.state = FrameRendering
	defer func() { r.state = FrameConfigured }()

	idx, err := r.renderFrame()
	if idx != 0 {
		r.frames++
		r.lastSubmission = idx
	}
	if err != nil {
		slogger().Debug("gpuboot: frame failed", "err", err)
		return err
	}
	slogger().Debug("gpuboot: frame submitted", "frame", r.frames, "submission", idx)
	return nil
}

func frameErr(stage FrameStage, err error) error {
	return &FrameRenderError{Stage: stage, Cause: err}
}

// check fails the frame if the device, pipeline or view went away.
func (r *FrameRenderer) check(stage FrameStage, view *TextureView) error {
	if err := r.dev.alive(); err != nil {
		return frameErr(stage, err)
	}
	if r.pipeline.Destroyed() {
		return frameErr(stage, fmt.Errorf("%w: pipeline %q destroyed", ErrInvalidState, r.pipeline.Label()))
	}
	if view != nil && !view.Valid() {
		return frameErr(stage, &SurfaceLostError{Reason: "view invalidated during frame"})
	}
	return nil
}

func (r *FrameRenderer) renderFrame() (uint64, error) {
	if err := r.check(StageAcquire, nil); err != nil {
		return 0, err
	}
	view, err := r.surf.AcquireCurrentView()
	if err != nil {
		return 0, frameErr(StageAcquire, err)
	}
	if view == nil {
		return 0, frameErr(StageAcquire, &SurfaceLostError{Reason: "no view"})
	}

	presented := false
	defer func() {
		if !presented {
			if err := view.release(false); err != nil {
				slogger().Warn("gpuboot: discard frame view", "err", err)
			}
		}
	}()

	if err := r.check(StageEncode, view); err != nil {
		return 0, err
	}
	hdev := r.dev.device
	encoder, err := hdev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return 0, frameErr(StageEncode, err)
	}
	defer func() {
		// A destroyed device already released its encoders.
		if r.dev.alive() == nil {
			encoder.Destroy()
		}
	}()
	if err := encoder.BeginEncoding("frame"); err != nil {
		return 0, frameErr(StageEncode, err)
	}

	encoding := true
	defer func() {
		if encoding {
			encoder.DiscardEncoding()
		}
	}()

	if err := r.check(StageBeginPass, view); err != nil {
		return 0, err
	}
	target := view.Raw()
	if target == nil {
		return 0, frameErr(StageBeginPass, &SurfaceLostError{Reason: "view invalidated during frame"})
	}
	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "frame",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: r.cfg.clear,
		}},
	})
	if pass == nil {
		return 0, frameErr(StageBeginPass, errors.New("backend returned no render pass"))
	}

	if err := r.check(StageSetPipeline, view); err != nil {
		pass.End()
		return 0, err
	}
	pass.SetPipeline(r.pipeline.raw)

	if err := r.check(StageDraw, view); err != nil {
		pass.End()
		return 0, err
	}
	pass.Draw(r.cfg.vertices, r.cfg.instances, 0, 0)
	pass.End()

	cmd, err := encoder.EndEncoding()
	encoding = false
	if err != nil {
		return 0, frameErr(StageFinish, err)
	}
	defer func() {
		if r.dev.alive() == nil {
			hdev.FreeCommandBuffer(cmd)
		}
	}()

	if err := r.check(StageSubmit, view); err != nil {
		return 0, err
	}
	idx, err := r.dev.submit(cmd)
	if err != nil {
		return 0, frameErr(StageSubmit, err)
	}
	if idx <= r.lastSubmission {
		return idx, frameErr(StageSubmit, fmt.Errorf("submission index %d not after %d", idx, r.lastSubmission))
	}

	// The device may have been destroyed while the queue took the work.
	if err := r.dev.alive(); err != nil {
		return idx, frameErr(StagePresent, err)
	}
	// The command buffer is freed on return and the view is presented next.
	if err := hdev.WaitIdle(); err != nil {
		return idx, frameErr(StagePresent, fmt.Errorf("wait for GPU: %w", err))
	}
	presented = true
	if err := view.release(true); err != nil {
		return idx, frameErr(StagePresent, err)
	}
	return idx, nil
}

// Destroy releases the renderer. The device, pipeline and surface are not
// destroyed; they belong to the caller. Later calls return
// ErrRendererDestroyed.
func (r *FrameRenderer) Destroy() error {
	switch r.state {
	case FrameDestroyed:
		return ErrRendererDestroyed
	case FrameRendering:
		return fmt.Errorf("%w: destroy during a frame", ErrInvalidState)
	}
	r.state = FrameDestroyed
	return nil
}
