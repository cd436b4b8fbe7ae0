package gpuboot

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gogpu/gpuboot/internal/lru"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"
)

// ShaderStage is the pipeline stage an entry point runs in.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("ShaderStage(%d)", uint8(s))
	}
}

func stageFromIR(s ir.ShaderStage) (ShaderStage, bool) {
	switch s {
	case ir.StageVertex:
		return StageVertex, true
	case ir.StageFragment:
		return StageFragment, true
	case ir.StageCompute:
		return StageCompute, true
	default:
		return 0, false
	}
}

// EntryPoint is a named shader function and its stage.
type EntryPoint struct {
	Name  string
	Stage ShaderStage
}

// ShaderSource is WGSL text with a debug label.
type ShaderSource struct {
	Label string
	Code  string
}

// NewShaderSource returns a ShaderSource for code.
func NewShaderSource(label, code string) ShaderSource {
	return ShaderSource{Label: label, Code: code}
}

// EntryPoints parses and validates the source and lists its entry points in
// declaration order. Any parse, lowering or validation failure is returned
// as *CompilationError.
//
// Results are cached by source text, so compiling the same WGSL again only
// pays for the backend compile.
func (s ShaderSource) EntryPoints() ([]EntryPoint, error) {
	if s.Code == "" {
		return nil, &CompilationError{Label: s.Label, Cause: errors.New("empty shader source")}
	}

	r := reflections.GetOrCreate(s.Code, func() reflection { return validateWGSL(s.Code) })
	if r.cause != nil {
		return nil, &CompilationError{Label: s.Label, Cause: r.cause}
	}
	return slices.Clone(r.entryPoints), nil
}

// reflection is the outcome of front-end validation for one source text.
type reflection struct {
	entryPoints []EntryPoint
	cause       error
}

var reflections = lru.New[string, reflection](64)

func validateWGSL(code string) reflection {
	ast, err := naga.Parse(code)
	if err != nil {
		return reflection{cause: err}
	}
	mod, err := naga.LowerWithSource(ast, code)
	if err != nil {
		return reflection{cause: err}
	}
	verrs, err := naga.Validate(mod)
	if err != nil {
		return reflection{cause: err}
	}
	if len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return reflection{cause: errors.Join(errs...)}
	}

	eps := make([]EntryPoint, 0, len(mod.EntryPoints))
	for _, ep := range mod.EntryPoints {
		stage, ok := stageFromIR(ep.Stage)
		if !ok {
			continue
		}
		eps = append(eps, EntryPoint{Name: ep.Name, Stage: stage})
	}
	return reflection{entryPoints: eps}
}

// ShaderModule is a validated shader compiled on a Device.
type ShaderModule struct {
	dev         *Device
	label       string
	source      ShaderSource
	entryPoints []EntryPoint
	raw         hal.ShaderModule
	destroyed   atomic.Bool
}

// CreateShaderModule validates src and compiles it on the device.
// It returns *CompilationError for invalid WGSL or a backend rejection.
func (d *Device) CreateShaderModule(src ShaderSource) (*ShaderModule, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}

	eps, err := src.EntryPoints()
	if err != nil {
		return nil, err
	}

	raw, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  src.Label,
		Source: hal.ShaderSource{WGSL: src.Code},
	})
	if err != nil {
		return nil, &CompilationError{Label: src.Label, Cause: err}
	}

	m := &ShaderModule{dev: d, label: src.Label, source: src, entryPoints: eps, raw: raw}
	if err := d.track(m); err != nil {
		d.device.DestroyShaderModule(raw)
		return nil, err
	}

	slogger().Debug("gpuboot: shader module created", "label", src.Label, "entry_points", len(eps))
	return m, nil
}

// Label returns the debug label of the module.
func (m *ShaderModule) Label() string { return m.label }

// Source returns the source the module was compiled from.
func (m *ShaderModule) Source() ShaderSource { return m.source }

// EntryPoints returns a copy of the module's entry points.
func (m *ShaderModule) EntryPoints() []EntryPoint { return slices.Clone(m.entryPoints) }

// HasEntryPoint reports whether the module declares name for stage.
func (m *ShaderModule) HasEntryPoint(name string, stage ShaderStage) bool {
	return slices.Contains(m.entryPoints, EntryPoint{Name: name, Stage: stage})
}

// Raw returns the HAL shader module.
func (m *ShaderModule) Raw() hal.ShaderModule { return m.raw }

// Destroy releases the module. Pipelines already created from it stay valid.
func (m *ShaderModule) Destroy() {
	if m.dev.untrack(m) {
		m.release()
	}
}

func (m *ShaderModule) kind() resourceKind { return kindShaderModule }

func (m *ShaderModule) release() {
	if m.destroyed.CompareAndSwap(false, true) {
		m.dev.device.DestroyShaderModule(m.raw)
	}
}
