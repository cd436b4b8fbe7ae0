package gpuboot

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Common errors returned by gpuboot operations.
var (
	// ErrDeviceDestroyed is returned when a destroyed Device, or an object
	// created by it, is used.
	ErrDeviceDestroyed = errors.New("gpuboot: device destroyed")

	// ErrRendererDestroyed is returned by FrameRenderer methods after Destroy.
	ErrRendererDestroyed = errors.New("gpuboot: frame renderer destroyed")

	// ErrInvalidDescriptor is returned for structurally invalid pipeline
	// descriptors (missing targets, bad sample count, unknown enums).
	ErrInvalidDescriptor = errors.New("gpuboot: invalid pipeline descriptor")

	// ErrInvalidState is returned when a FrameRenderer operation is not
	// allowed in the current state.
	ErrInvalidState = errors.New("gpuboot: invalid renderer state")

	// ErrNilDevice is returned when a nil Device is passed.
	ErrNilDevice = errors.New("gpuboot: nil device")

	// ErrNilSurface is returned when a nil SurfaceProvider is passed.
	ErrNilSurface = errors.New("gpuboot: nil surface")

	// ErrNilPipeline is returned when a nil RenderPipeline is passed.
	ErrNilPipeline = errors.New("gpuboot: nil render pipeline")
)

// AdapterNotFoundError reports that no adapter satisfies the requested
// backend, power preference and fallback constraints.
type AdapterNotFoundError struct {
	Backend         string
	PowerPreference gputypes.PowerPreference
	ForceFallback   bool
	Cause           error
}

func (e *AdapterNotFoundError) Error() string {
	backend := e.Backend
	if backend == "" {
		backend = "any"
	}
	msg := fmt.Sprintf("gpuboot: no compatible adapter (backend=%s, power=%s, fallback=%t)",
		backend, e.PowerPreference, e.ForceFallback)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AdapterNotFoundError) Unwrap() error { return e.Cause }

// CompilationError reports a shader that failed to parse, lower or validate,
// or a pipeline whose stages could not be linked.
type CompilationError struct {
	// Label identifies the shader or pipeline.
	Label string
	// EntryPoint is set when the failure concerns a specific entry point.
	EntryPoint string
	Cause      error
}

func (e *CompilationError) Error() string {
	switch {
	case e.EntryPoint != "" && e.Cause != nil:
		return fmt.Sprintf("gpuboot: compile %q: entry point %q: %v", e.Label, e.EntryPoint, e.Cause)
	case e.EntryPoint != "":
		return fmt.Sprintf("gpuboot: compile %q: entry point %q", e.Label, e.EntryPoint)
	case e.Cause != nil:
		return fmt.Sprintf("gpuboot: compile %q: %v", e.Label, e.Cause)
	default:
		return fmt.Sprintf("gpuboot: compile %q failed", e.Label)
	}
}

func (e *CompilationError) Unwrap() error { return e.Cause }

// UnsupportedFormatError reports a color target format (or a blend or
// multisample use of it) that the adapter does not support.
type UnsupportedFormatError struct {
	Format gputypes.TextureFormat
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("gpuboot: unsupported format %s: %s", e.Format, e.Reason)
}

// SurfaceLostError reports a surface that was destroyed, resized or never
// configured. The caller should reconfigure the surface and retry once.
type SurfaceLostError struct {
	Reason string
	Cause  error
}

func (e *SurfaceLostError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gpuboot: surface lost (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("gpuboot: surface lost (%s)", e.Reason)
}

func (e *SurfaceLostError) Unwrap() error { return e.Cause }

// FrameStage identifies a step of the per-frame sequence.
type FrameStage int

// Frame stages in execution order.
const (
	StageAcquire FrameStage = iota
	StageEncode
	StageBeginPass
	StageSetPipeline
	StageDraw
	StageFinish
	StageSubmit
	StagePresent
)

// String returns the stage name.
func (s FrameStage) String() string {
	switch s {
	case StageAcquire:
		return "acquire"
	case StageEncode:
		return "encode"
	case StageBeginPass:
		return "begin-pass"
	case StageSetPipeline:
		return "set-pipeline"
	case StageDraw:
		return "draw"
	case StageFinish:
		return "finish"
	case StageSubmit:
		return "submit"
	case StagePresent:
		return "present"
	default:
		return fmt.Sprintf("FrameStage(%d)", int(s))
	}
}

// FrameRenderError wraps any failure of FrameRenderer.Render with the stage
// at which it happened.
type FrameRenderError struct {
	Stage FrameStage
	Cause error
}

func (e *FrameRenderError) Error() string {
	return fmt.Sprintf("gpuboot: frame failed at %s: %v", e.Stage, e.Cause)
}

func (e *FrameRenderError) Unwrap() error { return e.Cause }

// IsSurfaceLost reports whether err is or wraps a SurfaceLostError.
func IsSurfaceLost(err error) bool {
	var lost *SurfaceLostError
	return errors.As(err, &lost)
}
