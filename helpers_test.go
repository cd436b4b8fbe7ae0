package gpuboot

import (
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"
)

// halCounters records what gpuboot asks of the HAL. The counting wrappers
// below embed the real HAL objects and only intercept the calls of interest.
type halCounters struct {
	mu sync.Mutex

	instances        int
	enumerations     int
	opens            int
	bindGroups       int
	bindGroupLayouts int
	pipelineLayouts  int
	renderPipelines  int
	destroyedPipes   int
	encoders         int
	submits          []uint64

	// withheld maps formats to capability flags the adapter hides.
	withheld map[gputypes.TextureFormat]hal.TextureFormatCapabilityFlags

	// deviceType overrides the reported adapter type when non-nil.
	deviceType *gputypes.DeviceType

	// onEnumerate and onOpen run before the wrapped call.
	onEnumerate func()
	onOpen      func()

	// onEncoder runs when a command encoder is created.
	onEncoder func()

	// onSubmit runs after a successful queue submission.
	onSubmit func()
}

func (c *halCounters) snapshot() halCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return halCounters{
		instances:        c.instances,
		enumerations:     c.enumerations,
		opens:            c.opens,
		bindGroups:       c.bindGroups,
		bindGroupLayouts: c.bindGroupLayouts,
		pipelineLayouts:  c.pipelineLayouts,
		renderPipelines:  c.renderPipelines,
		destroyedPipes:   c.destroyedPipes,
		encoders:         c.encoders,
		submits:          append([]uint64(nil), c.submits...),
	}
}

func (c *halCounters) inc(field *int) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

type countingBackend struct {
	hal.Backend
	c *halCounters
}

func (b countingBackend) CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error) {
	inst, err := b.Backend.CreateInstance(desc)
	if err != nil {
		return nil, err
	}
	b.c.inc(&b.c.instances)
	return &countingInstance{Instance: inst, c: b.c}, nil
}

type countingInstance struct {
	hal.Instance
	c *halCounters
}

func (i *countingInstance) EnumerateAdapters(hint hal.Surface) []hal.ExposedAdapter {
	i.c.inc(&i.c.enumerations)
	if i.c.onEnumerate != nil {
		i.c.onEnumerate()
	}
	adapters := i.Instance.EnumerateAdapters(hint)
	for k := range adapters {
		adapters[k].Adapter = &countingAdapter{Adapter: adapters[k].Adapter, c: i.c}
		if i.c.deviceType != nil {
			adapters[k].Info.DeviceType = *i.c.deviceType
		}
	}
	return adapters
}

type countingAdapter struct {
	hal.Adapter
	c *halCounters
}

func (a *countingAdapter) Open(features gputypes.Features, limits gputypes.Limits) (hal.OpenDevice, error) {
	a.c.inc(&a.c.opens)
	if a.c.onOpen != nil {
		a.c.onOpen()
	}
	open, err := a.Adapter.Open(features, limits)
	if err != nil {
		return open, err
	}
	return hal.OpenDevice{
		Device: &countingDevice{Device: open.Device, c: a.c},
		Queue:  &countingQueue{Queue: open.Queue, c: a.c},
	}, nil
}

func (a *countingAdapter) TextureFormatCapabilities(f gputypes.TextureFormat) hal.TextureFormatCapabilities {
	caps := a.Adapter.TextureFormatCapabilities(f)
	a.c.mu.Lock()
	caps.Flags &^= a.c.withheld[f]
	a.c.mu.Unlock()
	return caps
}

type countingDevice struct {
	hal.Device
	c *halCounters
}

func (d *countingDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.c.inc(&d.c.bindGroups)
	return d.Device.CreateBindGroup(desc)
}

func (d *countingDevice) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	d.c.inc(&d.c.bindGroupLayouts)
	return d.Device.CreateBindGroupLayout(desc)
}

func (d *countingDevice) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	d.c.inc(&d.c.pipelineLayouts)
	return d.Device.CreatePipelineLayout(desc)
}

func (d *countingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.c.inc(&d.c.renderPipelines)
	return d.Device.CreateRenderPipeline(desc)
}

func (d *countingDevice) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.c.inc(&d.c.destroyedPipes)
	d.Device.DestroyRenderPipeline(p)
}

func (d *countingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	d.c.inc(&d.c.encoders)
	if d.c.onEncoder != nil {
		d.c.onEncoder()
	}
	return d.Device.CreateCommandEncoder(desc)
}

type countingQueue struct {
	hal.Queue
	c *halCounters
}

func (q *countingQueue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	idx, err := q.Queue.Submit(cmds)
	if err == nil {
		q.c.mu.Lock()
		q.c.submits = append(q.c.submits, idx)
		q.c.mu.Unlock()
		if q.c.onSubmit != nil {
			q.c.onSubmit()
		}
	}
	return idx, err
}

// newTestDevice sets up a device on backend behind the counting wrappers.
func newTestDevice(t *testing.T, backend hal.Backend, opts ...Option) (*Device, *halCounters) {
	t.Helper()
	c := &halCounters{}
	opts = append([]Option{WithBackend(countingBackend{Backend: backend, c: c})}, opts...)
	dev, err := Setup(opts...)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(dev.Destroy)
	return dev, c
}

func newNoopDevice(t *testing.T, opts ...Option) (*Device, *halCounters) {
	t.Helper()
	return newTestDevice(t, noop.API{}, opts...)
}

func newSoftwareDevice(t *testing.T, opts ...Option) (*Device, *halCounters) {
	t.Helper()
	return newTestDevice(t, software.API{}, opts...)
}

// newTriangleModule compiles the built-in triangle shader on dev.
func newTriangleModule(t *testing.T, dev *Device) *ShaderModule {
	t.Helper()
	m, err := dev.CreateShaderModule(TriangleShader())
	if err != nil {
		t.Fatalf("CreateShaderModule: %v", err)
	}
	return m
}

// newTriangleRenderer builds the triangle pipeline and a configured renderer
// drawing into a new offscreen surface of the given size.
func newTriangleRenderer(t *testing.T, dev *Device, w, h int, opts ...FrameOption) (*FrameRenderer, *OffscreenSurface) {
	t.Helper()
	surf := NewOffscreenSurface(w, h)
	pipeline, err := NewTrianglePipeline(dev, surf.PreferredFormat(dev))
	if err != nil {
		t.Fatalf("NewTrianglePipeline: %v", err)
	}
	r, err := NewFrameRenderer(dev, pipeline, surf, opts...)
	if err != nil {
		t.Fatalf("NewFrameRenderer: %v", err)
	}
	if err := r.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return r, surf
}
