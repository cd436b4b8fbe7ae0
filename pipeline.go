package gpuboot

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// VertexStage selects the vertex entry point of a pipeline.
type VertexStage struct {
	Module     *ShaderModule
	EntryPoint string
}

// ColorTarget describes one color attachment of a pipeline. Blend is nil
// for no blending; color and alpha are configured independently through
// Blend.Color and Blend.Alpha. A zero WriteMask means ColorWriteMaskAll.
type ColorTarget struct {
	Format    gputypes.TextureFormat
	Blend     *gputypes.BlendState
	WriteMask gputypes.ColorWriteMask
}

// FragmentStage selects the fragment entry point and its color targets.
type FragmentStage struct {
	Module     *ShaderModule
	EntryPoint string
	Targets    []ColorTarget
}

// PrimitiveState controls primitive assembly and culling.
// The zero value is a counter-clockwise triangle list without culling.
type PrimitiveState struct {
	Topology  gputypes.PrimitiveTopology
	FrontFace gputypes.FrontFace
	CullMode  gputypes.CullMode
}

// MultisampleState controls multisampling. Count must be a power of two
// from 1 to 32. A zero Mask means all samples.
type MultisampleState struct {
	Count           uint32
	Mask            uint64
	AlphaToCoverage bool
}

// PipelineDescriptor describes a render pipeline.
//
// BindGroupLayouts lists the entries of each bind group layout, one slice per
// group. An empty list produces a pipeline layout with no bind groups; no
// placeholder layout or bind group is ever created for it.
type PipelineDescriptor struct {
	Label            string
	BindGroupLayouts [][]gputypes.BindGroupLayoutEntry
	Vertex           VertexStage
	Fragment         FragmentStage
	Primitive        PrimitiveState
	Multisample      MultisampleState
}

// clone returns a deep copy of the descriptor with defaults applied.
func (d *PipelineDescriptor) clone() PipelineDescriptor {
	out := *d
	if d.BindGroupLayouts != nil {
		out.BindGroupLayouts = make([][]gputypes.BindGroupLayoutEntry, len(d.BindGroupLayouts))
		for i, entries := range d.BindGroupLayouts {
			out.BindGroupLayouts[i] = slices.Clone(entries)
		}
	}
	out.Fragment.Targets = make([]ColorTarget, len(d.Fragment.Targets))
	for i, t := range d.Fragment.Targets {
		if t.Blend != nil {
			b := *t.Blend
			t.Blend = &b
		}
		if t.WriteMask == 0 {
			t.WriteMask = gputypes.ColorWriteMaskAll
		}
		out.Fragment.Targets[i] = t
	}
	if out.Multisample.Mask == 0 {
		out.Multisample.Mask = 0xFFFFFFFF
	}
	return out
}

// DefaultPipelineDescriptor returns a descriptor for a single-target
// pipeline using the "vs_main" and "fs_main" entry points of module:
// triangle list, counter-clockwise front face, no culling, no multisampling,
// replace blending and no bind groups.
func DefaultPipelineDescriptor(module *ShaderModule, format gputypes.TextureFormat) PipelineDescriptor {
	blend := gputypes.BlendStateReplace()
	label := "pipeline"
	if module != nil && module.label != "" {
		label = module.label + "-pipeline"
	}
	return PipelineDescriptor{
		Label:  label,
		Vertex: VertexStage{Module: module, EntryPoint: "vs_main"},
		Fragment: FragmentStage{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []ColorTarget{{
				Format:    format,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: MultisampleState{Count: 1},
	}
}

// RenderPipeline is a compiled render pipeline. It owns its pipeline layout
// and bind group layouts.
type RenderPipeline struct {
	dev    *Device
	desc   PipelineDescriptor
	bgls   []hal.BindGroupLayout
	layout hal.PipelineLayout
	raw    hal.RenderPipeline

	destroyed atomic.Bool
}

// CreateRenderPipeline validates desc against the device and compiles it.
//
// It returns an error wrapping ErrInvalidDescriptor for structural problems,
// *CompilationError when a stage's entry point is missing or the backend
// rejects the pipeline, and *UnsupportedFormatError when a color target
// cannot be rendered, blended or multisampled on this adapter.
//
// Each call creates an independent pipeline, even for equal descriptors.
func (d *Device) CreateRenderPipeline(desc *PipelineDescriptor) (*RenderPipeline, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}

	nd := desc.clone()
	if err := validateStructure(&nd); err != nil {
		return nil, err
	}
	if err := d.validateStages(&nd); err != nil {
		return nil, err
	}
	if err := d.validateTargets(&nd); err != nil {
		return nil, err
	}

	p := &RenderPipeline{dev: d, desc: nd}
	if err := p.build(); err != nil {
		p.release()
		return nil, err
	}
	if err := d.track(p); err != nil {
		p.release()
		return nil, err
	}

	slogger().Debug("gpuboot: render pipeline created",
		"label", nd.Label,
		"topology", nd.Primitive.Topology,
		"cull", nd.Primitive.CullMode,
		"samples", nd.Multisample.Count,
		"targets", len(nd.Fragment.Targets),
		"bind_group_layouts", len(p.bgls),
	)
	return p, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDescriptor, fmt.Sprintf(format, args...))
}

func validateStructure(d *PipelineDescriptor) error {
	switch d.Primitive.Topology {
	case gputypes.PrimitiveTopologyTriangleList,
		gputypes.PrimitiveTopologyTriangleStrip,
		gputypes.PrimitiveTopologyLineList,
		gputypes.PrimitiveTopologyLineStrip,
		gputypes.PrimitiveTopologyPointList:
	default:
		return invalid("unknown topology %d", d.Primitive.Topology)
	}
	switch d.Primitive.FrontFace {
	case gputypes.FrontFaceCCW, gputypes.FrontFaceCW:
	default:
		return invalid("unknown front face %d", d.Primitive.FrontFace)
	}
	switch d.Primitive.CullMode {
	case gputypes.CullModeNone, gputypes.CullModeFront, gputypes.CullModeBack:
	default:
		return invalid("unknown cull mode %d", d.Primitive.CullMode)
	}

	c := d.Multisample.Count
	if c == 0 {
		return invalid("sample count must be positive")
	}
	if c > 32 || c&(c-1) != 0 {
		return invalid("sample count %d is not a power of two", c)
	}

	if len(d.Fragment.Targets) == 0 {
		return invalid("fragment stage has no color targets")
	}
	for i, t := range d.Fragment.Targets {
		if t.Blend == nil {
			continue
		}
		if err := validateBlend(t.Blend.Color); err != nil {
			return invalid("target %d color blend: %v", i, err)
		}
		if err := validateBlend(t.Blend.Alpha); err != nil {
			return invalid("target %d alpha blend: %v", i, err)
		}
	}
	return nil
}

func validateBlend(c gputypes.BlendComponent) error {
	if c.SrcFactor == gputypes.BlendFactorUndefined || c.SrcFactor > gputypes.BlendFactorOneMinusConstant {
		return fmt.Errorf("invalid source factor %d", c.SrcFactor)
	}
	if c.DstFactor == gputypes.BlendFactorUndefined || c.DstFactor > gputypes.BlendFactorOneMinusConstant {
		return fmt.Errorf("invalid destination factor %d", c.DstFactor)
	}
	if c.Operation == gputypes.BlendOperationUndefined || c.Operation > gputypes.BlendOperationMax {
		return fmt.Errorf("invalid operation %d", c.Operation)
	}
	return nil
}

func (d *Device) validateStages(desc *PipelineDescriptor) error {
	check := func(m *ShaderModule, entry string, stage ShaderStage) error {
		if m == nil {
			return invalid("%s stage has no shader module", stage)
		}
		if m.dev != d {
			return invalid("%s shader module %q belongs to another device", stage, m.label)
		}
		if m.destroyed.Load() {
			return invalid("%s shader module %q was destroyed", stage, m.label)
		}
		if entry == "" || !m.HasEntryPoint(entry, stage) {
			return &CompilationError{
				Label:      m.label,
				EntryPoint: entry,
				Cause:      fmt.Errorf("no %s entry point with this name", stage),
			}
		}
		return nil
	}
	if err := check(desc.Vertex.Module, desc.Vertex.EntryPoint, StageVertex); err != nil {
		return err
	}
	return check(desc.Fragment.Module, desc.Fragment.EntryPoint, StageFragment)
}

func (d *Device) validateTargets(desc *PipelineDescriptor) error {
	for _, t := range desc.Fragment.Targets {
		if t.Format == gputypes.TextureFormatUndefined {
			return &UnsupportedFormatError{Format: t.Format, Reason: "format is undefined"}
		}
		if t.Format.IsDepthStencil() {
			return &UnsupportedFormatError{Format: t.Format, Reason: "depth/stencil format used as color target"}
		}
		flags := d.formatCapabilities(t.Format)
		if flags&hal.TextureFormatCapabilityRenderAttachment == 0 {
			return &UnsupportedFormatError{Format: t.Format, Reason: "not renderable on this adapter"}
		}
		if t.Blend != nil && flags&hal.TextureFormatCapabilityBlendable == 0 {
			return &UnsupportedFormatError{Format: t.Format, Reason: "not blendable on this adapter"}
		}
		if desc.Multisample.Count > 1 && flags&hal.TextureFormatCapabilityMultisample == 0 {
			return &UnsupportedFormatError{
				Format: t.Format,
				Reason: fmt.Sprintf("%dx multisampling not supported on this adapter", desc.Multisample.Count),
			}
		}
	}
	return nil
}

// build creates the HAL objects for p.desc. On error the objects created so
// far stay in p for release.
func (p *RenderPipeline) build() error {
	dev := p.dev.device
	desc := &p.desc

	for i, entries := range desc.BindGroupLayouts {
		bgl, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s-bgl%d", desc.Label, i),
			Entries: entries,
		})
		if err != nil {
			return &CompilationError{Label: desc.Label, Cause: fmt.Errorf("bind group layout %d: %w", i, err)}
		}
		p.bgls = append(p.bgls, bgl)
	}

	layout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "-layout",
		BindGroupLayouts: p.bgls,
	})
	if err != nil {
		return &CompilationError{Label: desc.Label, Cause: fmt.Errorf("pipeline layout: %w", err)}
	}
	p.layout = layout

	targets := make([]gputypes.ColorTargetState, len(desc.Fragment.Targets))
	for i, t := range desc.Fragment.Targets {
		targets[i] = gputypes.ColorTargetState{Format: t.Format, Blend: t.Blend, WriteMask: t.WriteMask}
	}

	raw, err := dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     desc.Vertex.Module.raw,
			EntryPoint: desc.Vertex.EntryPoint,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  desc.Primitive.Topology,
			FrontFace: desc.Primitive.FrontFace,
			CullMode:  desc.Primitive.CullMode,
		},
		Multisample: gputypes.MultisampleState{
			Count:                  desc.Multisample.Count,
			Mask:                   desc.Multisample.Mask,
			AlphaToCoverageEnabled: desc.Multisample.AlphaToCoverage,
		},
		Fragment: &hal.FragmentState{
			Module:     desc.Fragment.Module.raw,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    targets,
		},
	})
	if err != nil {
		return &CompilationError{Label: desc.Label, Cause: err}
	}
	p.raw = raw
	return nil
}

// Label returns the pipeline's debug label.
func (p *RenderPipeline) Label() string { return p.desc.Label }

// Descriptor returns a copy of the descriptor the pipeline was compiled
// from, with defaults applied.
func (p *RenderPipeline) Descriptor() PipelineDescriptor { return p.desc.clone() }

// BindGroupLayoutCount returns the number of bind group layouts in the
// pipeline layout.
func (p *RenderPipeline) BindGroupLayoutCount() int { return len(p.bgls) }

// Raw returns the HAL render pipeline.
func (p *RenderPipeline) Raw() hal.RenderPipeline { return p.raw }

// Destroyed reports whether the pipeline or its device has been destroyed.
func (p *RenderPipeline) Destroyed() bool { return p.destroyed.Load() }

// Destroy releases the pipeline, its layout and its bind group layouts.
func (p *RenderPipeline) Destroy() {
	if p.dev.untrack(p) {
		p.release()
	}
}

func (p *RenderPipeline) kind() resourceKind { return kindRenderPipeline }

func (p *RenderPipeline) release() {
	if !p.destroyed.CompareAndSwap(false, true) {
		return
	}
	dev := p.dev.device
	if p.raw != nil {
		dev.DestroyRenderPipeline(p.raw)
	}
	if p.layout != nil {
		dev.DestroyPipelineLayout(p.layout)
	}
	for _, bgl := range p.bgls {
		dev.DestroyBindGroupLayout(bgl)
	}
}
