package gpuboot

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func TestCreateRenderPipelineNoBindGroups(t *testing.T) {
	dev, c := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
	p, err := dev.CreateRenderPipeline(&desc)
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}

	if p.BindGroupLayoutCount() != 0 {
		t.Errorf("BindGroupLayoutCount() = %d, want 0", p.BindGroupLayoutCount())
	}
	s := c.snapshot()
	if s.bindGroupLayouts != 0 {
		t.Errorf("bind group layouts created = %d, want 0", s.bindGroupLayouts)
	}
	if s.bindGroups != 0 {
		t.Errorf("bind groups created = %d, want 0", s.bindGroups)
	}
	if s.pipelineLayouts != 1 || s.renderPipelines != 1 {
		t.Errorf("pipeline layouts/pipelines = %d/%d, want 1/1", s.pipelineLayouts, s.renderPipelines)
	}

	// Rendering frames never creates bind groups either.
	r, err := NewFrameRenderer(dev, p, NewOffscreenSurface(2, 2))
	if err != nil {
		t.Fatalf("NewFrameRenderer: %v", err)
	}
	if err := r.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	for range 3 {
		if err := r.Render(); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
	if got := c.snapshot().bindGroups; got != 0 {
		t.Errorf("bind groups created while rendering = %d, want 0", got)
	}
}

func TestCreateRenderPipelineWithBindGroupLayouts(t *testing.T) {
	dev, c := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
	desc.BindGroupLayouts = [][]gputypes.BindGroupLayoutEntry{
		{{Binding: 0, Visibility: gputypes.ShaderStageFragment, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}}},
		{},
	}
	p, err := dev.CreateRenderPipeline(&desc)
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}

	if p.BindGroupLayoutCount() != 2 {
		t.Errorf("BindGroupLayoutCount() = %d, want 2", p.BindGroupLayoutCount())
	}
	s := c.snapshot()
	if s.bindGroupLayouts != 2 || s.bindGroups != 0 {
		t.Errorf("bind group layouts/groups = %d/%d, want 2/0", s.bindGroupLayouts, s.bindGroups)
	}
	if st := dev.Stats(); st.BindGroupLayouts != 2 || st.PipelineLayouts != 1 {
		t.Errorf("Stats() layouts = %d/%d, want 2 bind group layouts, 1 pipeline layout",
			st.BindGroupLayouts, st.PipelineLayouts)
	}
}

func TestCreateRenderPipelineTwiceIsIndependent(t *testing.T) {
	dev, c := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
	a, err := dev.CreateRenderPipeline(&desc)
	if err != nil {
		t.Fatalf("first CreateRenderPipeline: %v", err)
	}
	b, err := dev.CreateRenderPipeline(&desc)
	if err != nil {
		t.Fatalf("second CreateRenderPipeline: %v", err)
	}

	if a == b {
		t.Fatal("compiling twice returned the same pipeline")
	}
	if c.snapshot().renderPipelines != 2 {
		t.Errorf("HAL pipelines created = %d, want 2", c.snapshot().renderPipelines)
	}
	if got := dev.Stats().RenderPipelines; got != 2 {
		t.Errorf("Stats().RenderPipelines = %d, want 2", got)
	}

	a.Destroy()
	if !a.Destroyed() {
		t.Error("a should be destroyed")
	}
	if b.Destroyed() {
		t.Error("destroying a must not affect b")
	}
	if got := dev.Stats().RenderPipelines; got != 1 {
		t.Errorf("Stats().RenderPipelines after destroy = %d, want 1", got)
	}

	a.Destroy()
	if got := c.snapshot().destroyedPipes; got != 1 {
		t.Errorf("HAL pipelines destroyed = %d, want 1 (Destroy must be idempotent)", got)
	}
}

func TestCreateRenderPipelineDescriptorIsCopied(t *testing.T) {
	dev, _ := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
	p, err := dev.CreateRenderPipeline(&desc)
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}

	desc.Fragment.Targets[0].Format = gputypes.TextureFormatBGRA8Unorm
	desc.Fragment.Targets[0].Blend.Color.Operation = gputypes.BlendOperationMax
	got := p.Descriptor()
	if got.Fragment.Targets[0].Format != gputypes.TextureFormatRGBA8Unorm {
		t.Error("mutating the caller's descriptor changed the pipeline's format")
	}
	if got.Fragment.Targets[0].Blend.Color.Operation != gputypes.BlendOperationAdd {
		t.Error("mutating the caller's blend state changed the pipeline's blend")
	}
}

func TestCreateRenderPipelineDefaults(t *testing.T) {
	dev, _ := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	desc := PipelineDescriptor{
		Label:       "defaults",
		Vertex:      VertexStage{Module: module, EntryPoint: "vs_main"},
		Fragment:    FragmentStage{Module: module, EntryPoint: "fs_main", Targets: []ColorTarget{{Format: gputypes.TextureFormatRGBA8Unorm}}},
		Multisample: MultisampleState{Count: 1},
	}
	p, err := dev.CreateRenderPipeline(&desc)
	if err != nil {
		t.Fatalf("CreateRenderPipeline: %v", err)
	}

	got := p.Descriptor()
	if got.Multisample.Count != 1 {
		t.Errorf("Multisample.Count = %d, want 1", got.Multisample.Count)
	}
	if got.Multisample.Mask != 0xFFFFFFFF {
		t.Errorf("Multisample.Mask = %#x, want 0xFFFFFFFF", got.Multisample.Mask)
	}
	if got.Fragment.Targets[0].WriteMask != gputypes.ColorWriteMaskAll {
		t.Errorf("WriteMask = %v, want all", got.Fragment.Targets[0].WriteMask)
	}
	if got.Primitive.Topology != gputypes.PrimitiveTopologyTriangleList || got.Primitive.CullMode != gputypes.CullModeNone {
		t.Errorf("Primitive = %+v, want triangle list without culling", got.Primitive)
	}
}

func TestCreateRenderPipelinePrimitiveVariants(t *testing.T) {
	dev, _ := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	tests := []struct {
		name string
		prim PrimitiveState
		ms   MultisampleState
	}{
		{"strip cw cull back", PrimitiveState{gputypes.PrimitiveTopologyTriangleStrip, gputypes.FrontFaceCW, gputypes.CullModeBack}, MultisampleState{Count: 1}},
		{"lines", PrimitiveState{Topology: gputypes.PrimitiveTopologyLineList}, MultisampleState{Count: 1}},
		{"points cull front", PrimitiveState{Topology: gputypes.PrimitiveTopologyPointList, CullMode: gputypes.CullModeFront}, MultisampleState{Count: 1}},
		{"4x msaa", PrimitiveState{}, MultisampleState{Count: 4}},
		{"alpha to coverage", PrimitiveState{}, MultisampleState{Count: 4, Mask: 0x3, AlphaToCoverage: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
			desc.Primitive = tt.prim
			desc.Multisample = tt.ms
			p, err := dev.CreateRenderPipeline(&desc)
			if err != nil {
				t.Fatalf("CreateRenderPipeline: %v", err)
			}
			if got := p.Descriptor().Primitive; got != tt.prim {
				t.Errorf("Primitive = %+v, want %+v", got, tt.prim)
			}
		})
	}
}

func TestCreateRenderPipelineInvalidDescriptor(t *testing.T) {
	dev, c := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	badBlend := gputypes.BlendStateReplace()
	badBlend.Alpha.Operation = gputypes.BlendOperation(42)

	tests := []struct {
		name   string
		mutate func(*PipelineDescriptor)
	}{
		{"unknown topology", func(d *PipelineDescriptor) { d.Primitive.Topology = 99 }},
		{"unknown front face", func(d *PipelineDescriptor) { d.Primitive.FrontFace = 7 }},
		{"unknown cull mode", func(d *PipelineDescriptor) { d.Primitive.CullMode = 9 }},
		{"sample count 0", func(d *PipelineDescriptor) { d.Multisample.Count = 0 }},
		{"sample count 3", func(d *PipelineDescriptor) { d.Multisample.Count = 3 }},
		{"sample count 64", func(d *PipelineDescriptor) { d.Multisample.Count = 64 }},
		{"no targets", func(d *PipelineDescriptor) { d.Fragment.Targets = nil }},
		{"bad alpha blend", func(d *PipelineDescriptor) { d.Fragment.Targets[0].Blend = &badBlend }},
		{"nil vertex module", func(d *PipelineDescriptor) { d.Vertex.Module = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
			tt.mutate(&desc)
			_, err := dev.CreateRenderPipeline(&desc)
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("error = %v, want ErrInvalidDescriptor", err)
			}
		})
	}

	if _, err := dev.CreateRenderPipeline(nil); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("nil descriptor: error = %v, want ErrInvalidDescriptor", err)
	}
	if got := c.snapshot().renderPipelines; got != 0 {
		t.Errorf("HAL pipelines created for invalid descriptors = %d, want 0", got)
	}
}

func TestCreateRenderPipelineMissingEntryPoint(t *testing.T) {
	dev, _ := newNoopDevice(t)
	module := newTriangleModule(t, dev)

	tests := []struct {
		name   string
		mutate func(*PipelineDescriptor)
		entry  string
	}{
		{"unknown vertex entry", func(d *PipelineDescriptor) { d.Vertex.EntryPoint = "main" }, "main"},
		{"fragment entry used as vertex", func(d *PipelineDescriptor) { d.Vertex.EntryPoint = "fs_main" }, "fs_main"},
		{"empty fragment entry", func(d *PipelineDescriptor) { d.Fragment.EntryPoint = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
			tt.mutate(&desc)
			_, err := dev.CreateRenderPipeline(&desc)

			var ce *CompilationError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *CompilationError", err)
			}
			if ce.EntryPoint != tt.entry {
				t.Errorf("EntryPoint = %q, want %q", ce.EntryPoint, tt.entry)
			}
		})
	}
}

func TestCreateRenderPipelineUnsupportedFormat(t *testing.T) {
	tests := []struct {
		name     string
		withheld hal.TextureFormatCapabilityFlags
		format   gputypes.TextureFormat
		blend    bool
		samples  uint32
	}{
		{"undefined", 0, gputypes.TextureFormatUndefined, false, 1},
		{"depth", 0, gputypes.TextureFormatDepth24Plus, false, 1},
		{"not renderable", hal.TextureFormatCapabilityRenderAttachment, gputypes.TextureFormatRGBA8Unorm, false, 1},
		{"not blendable", hal.TextureFormatCapabilityBlendable, gputypes.TextureFormatRGBA8Unorm, true, 1},
		{"no msaa", hal.TextureFormatCapabilityMultisample, gputypes.TextureFormatRGBA8Unorm, false, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, c := newNoopDevice(t)
			c.withheld = map[gputypes.TextureFormat]hal.TextureFormatCapabilityFlags{tt.format: tt.withheld}
			module := newTriangleModule(t, dev)

			desc := DefaultPipelineDescriptor(module, tt.format)
			if !tt.blend {
				desc.Fragment.Targets[0].Blend = nil
			}
			desc.Multisample.Count = tt.samples

			_, err := dev.CreateRenderPipeline(&desc)
			var ufe *UnsupportedFormatError
			if !errors.As(err, &ufe) {
				t.Fatalf("error = %v, want *UnsupportedFormatError", err)
			}
			if ufe.Format != tt.format {
				t.Errorf("Format = %v, want %v", ufe.Format, tt.format)
			}
		})
	}
}

func TestCreateRenderPipelineForeignModule(t *testing.T) {
	devA, _ := newNoopDevice(t)
	devB, _ := newNoopDevice(t)
	module := newTriangleModule(t, devA)

	desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
	if _, err := devB.CreateRenderPipeline(&desc); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestCreateRenderPipelineDestroyedModule(t *testing.T) {
	dev, _ := newNoopDevice(t)
	module := newTriangleModule(t, dev)
	module.Destroy()

	desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
	if _, err := dev.CreateRenderPipeline(&desc); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestCreateRenderPipelineDestroyedDevice(t *testing.T) {
	dev, _ := newNoopDevice(t)
	module := newTriangleModule(t, dev)
	desc := DefaultPipelineDescriptor(module, gputypes.TextureFormatRGBA8Unorm)
	dev.Destroy()

	if _, err := dev.CreateRenderPipeline(&desc); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("error = %v, want ErrDeviceDestroyed", err)
	}
}

func TestPipelineOutlivesShaderModule(t *testing.T) {
	dev, _ := newSoftwareDevice(t)
	r, surf := newTriangleRenderer(t, dev, 4, 4)

	// NewTrianglePipeline destroys its module once the pipeline is built.
	if got := dev.Stats().ShaderModules; got != 0 {
		t.Errorf("Stats().ShaderModules = %d, want 0", got)
	}
	if err := r.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := surf.ReadPixels(); err != nil {
		t.Fatalf("ReadPixels: %v", err)
	}
}

func TestDefaultPipelineDescriptor(t *testing.T) {
	d := DefaultPipelineDescriptor(nil, gputypes.TextureFormatBGRA8Unorm)
	if d.Label != "pipeline" {
		t.Errorf("Label = %q, want pipeline", d.Label)
	}
	if d.Vertex.EntryPoint != "vs_main" || d.Fragment.EntryPoint != "fs_main" {
		t.Errorf("entry points = %q/%q, want vs_main/fs_main", d.Vertex.EntryPoint, d.Fragment.EntryPoint)
	}
	if len(d.BindGroupLayouts) != 0 {
		t.Errorf("BindGroupLayouts = %d, want none", len(d.BindGroupLayouts))
	}
	if len(d.Fragment.Targets) != 1 || d.Fragment.Targets[0].Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Targets = %+v, want one BGRA8Unorm target", d.Fragment.Targets)
	}
}
