package gpuboot

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// resourceKind orders resource release on Device.Destroy. Dependent objects
// (pipelines, surface targets) go before the objects they were built from.
type resourceKind uint8

const (
	kindSurfaceTarget resourceKind = iota
	kindRenderPipeline
	kindShaderModule
	kindCount
)

// resource is a GPU object owned by a Device.
type resource interface {
	kind() resourceKind
	release()
}

// Stats is a snapshot of the live GPU objects owned by a Device.
// Pipeline layouts and bind group layouts are counted through the render
// pipelines that own them.
type Stats struct {
	ShaderModules    int
	RenderPipelines  int
	PipelineLayouts  int
	BindGroupLayouts int
	SurfaceTargets   int
	Submissions      uint64
}

// Device is an opened logical GPU device together with its queue, the
// adapter it was opened on and the instance that enumerated the adapter.
//
// Device implements gpucontext.DeviceProvider so it can be handed to any
// gogpu library that accepts one.
//
// Creating objects on a Device is safe for concurrent use. Destroy releases
// every object still alive; any later use returns ErrDeviceDestroyed.
type Device struct {
	label       string
	backendName string

	instance hal.Instance
	adapter  hal.ExposedAdapter
	device   hal.Device
	queue    hal.Queue

	mu            sync.Mutex
	live          map[resource]struct{}
	submissions   uint64
	lastIndex     uint64
	surfaceFormat gputypes.TextureFormat

	destroyed atomic.Bool
}

var _ gpucontext.DeviceProvider = (*Device)(nil)

func newDevice(label, backendName string, instance hal.Instance, adapter hal.ExposedAdapter, open hal.OpenDevice) *Device {
	return &Device{
		label:       label,
		backendName: backendName,
		instance:    instance,
		adapter:     adapter,
		device:      open.Device,
		queue:       open.Queue,
		live:        make(map[resource]struct{}),
	}
}

// Device returns the HAL device as a gpucontext.Device.
func (d *Device) Device() gpucontext.Device { return d.device }

// Queue returns the HAL queue as a gpucontext.Queue.
func (d *Device) Queue() gpucontext.Queue { return d.queue }

// Adapter returns the HAL adapter as a gpucontext.Adapter.
func (d *Device) Adapter() gpucontext.Adapter { return d.adapter.Adapter }

// SurfaceFormat returns the format of the most recently configured surface,
// or TextureFormatUndefined if no surface was configured yet.
func (d *Device) SurfaceFormat() gputypes.TextureFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceFormat
}

// AdapterInfo returns the adapter name and type in gpucontext form.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{
		Name: d.adapter.Info.Name,
		Type: adapterType(d.adapter.Info.DeviceType),
	}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// Info returns the full adapter information reported by the backend.
func (d *Device) Info() gputypes.AdapterInfo { return d.adapter.Info }

// BackendName returns the registry name of the backend the device runs on.
func (d *Device) BackendName() string { return d.backendName }

// Label returns the debug label given at setup.
func (d *Device) Label() string { return d.label }

// HalInstance returns the underlying HAL instance.
func (d *Device) HalInstance() hal.Instance { return d.instance }

// HalAdapter returns the underlying HAL adapter.
func (d *Device) HalAdapter() hal.Adapter { return d.adapter.Adapter }

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.device }

// HalQueue returns the underlying HAL queue.
func (d *Device) HalQueue() hal.Queue { return d.queue }

// Destroyed reports whether Destroy has been called.
func (d *Device) Destroyed() bool { return d.destroyed.Load() }

// Stats returns a snapshot of the live objects owned by the device.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{Submissions: d.submissions}
	for r := range d.live {
		switch r := r.(type) {
		case *ShaderModule:
			s.ShaderModules++
		case *RenderPipeline:
			s.RenderPipelines++
			s.PipelineLayouts++
			s.BindGroupLayouts += len(r.bgls)
		default:
			if r.kind() == kindSurfaceTarget {
				s.SurfaceTargets++
			}
		}
	}
	return s
}

// Destroy waits for the queue to drain, releases every object created on
// the device, then the device, adapter and instance. It is idempotent.
func (d *Device) Destroy() {
	if !d.destroyed.CompareAndSwap(false, true) {
		return
	}

	if err := d.device.WaitIdle(); err != nil {
		slogger().Warn("gpuboot: wait idle before destroy", "device", d.label, "err", err)
	}

	d.mu.Lock()
	byKind := make([][]resource, kindCount)
	for r := range d.live {
		byKind[r.kind()] = append(byKind[r.kind()], r)
	}
	d.live = make(map[resource]struct{})
	d.mu.Unlock()

	released := 0
	for _, group := range byKind {
		for _, r := range group {
			r.release()
			released++
		}
	}

	d.device.Destroy()
	if d.adapter.Adapter != nil {
		d.adapter.Adapter.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
	}

	slogger().Info("gpuboot: device destroyed", "device", d.label, "released", released)
}

// alive returns ErrDeviceDestroyed once Destroy has been called.
func (d *Device) alive() error {
	if d == nil {
		return ErrNilDevice
	}
	if d.destroyed.Load() {
		return ErrDeviceDestroyed
	}
	return nil
}

// track registers r as owned by the device. It fails if the device was
// destroyed concurrently, in which case the caller must release r itself.
func (d *Device) track(r resource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed.Load() {
		return ErrDeviceDestroyed
	}
	d.live[r] = struct{}{}
	return nil
}

// untrack removes r from the live set. It reports false if r was not
// tracked, which happens when Device.Destroy already released it.
func (d *Device) untrack(r resource) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[r]; !ok {
		return false
	}
	delete(d.live, r)
	return true
}

// setSurfaceFormat records the format of the last configured surface.
func (d *Device) setSurfaceFormat(f gputypes.TextureFormat) {
	d.mu.Lock()
	d.surfaceFormat = f
	d.mu.Unlock()
}

// submit hands one command buffer to the queue and returns its submission
// index. Indices observed by gpuboot are strictly increasing.
func (d *Device) submit(cmd hal.CommandBuffer) (uint64, error) {
	if err := d.alive(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// Destroy sets the flag before it takes d.mu to tear the device down.
	if d.destroyed.Load() {
		return 0, ErrDeviceDestroyed
	}

	idx, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return 0, err
	}
	if idx <= d.lastIndex {
		// Some backends report a constant index; keep ours monotonic.
		idx = d.lastIndex + 1
	}
	d.lastIndex = idx
	d.submissions++
	return idx, nil
}

// formatCapabilities queries the adapter for format support.
func (d *Device) formatCapabilities(f gputypes.TextureFormat) hal.TextureFormatCapabilityFlags {
	return d.adapter.Adapter.TextureFormatCapabilities(f).Flags
}

// surfaceHook is a surface target owned outside this package.
type surfaceHook struct{ fn func() }

func (h *surfaceHook) kind() resourceKind { return kindSurfaceTarget }
func (h *surfaceHook) release()           { h.fn() }

// TrackSurface registers release to run when the device is destroyed,
// before the HAL device and instance go away. Surface providers outside
// this package use it for their native surfaces. The returned untrack
// function removes the registration and reports whether release is still
// pending; after it returns false release has run or is running.
func (d *Device) TrackSurface(release func()) (untrack func() bool, err error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	h := &surfaceHook{fn: release}
	if err := d.track(h); err != nil {
		return nil, err
	}
	return func() bool { return d.untrack(h) }, nil
}
