package gpuboot

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// setupState is a state of the setup machine.
type setupState uint8

const (
	stateRequestAdapter setupState = iota
	stateRequestDevice
	stateDone
	stateFailed
)

func (s setupState) String() string {
	switch s {
	case stateRequestAdapter:
		return "request-adapter"
	case stateRequestDevice:
		return "request-device"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("setupState(%d)", uint8(s))
	}
}

// setupMachine drives instance, adapter and device creation. Setup runs it
// to completion on the calling goroutine; SetupContext and SetupAsync run
// the same steps but give up between and during them when ctx is done.
// The two suspension points are the adapter request and the device request.
type setupMachine struct {
	cfg   config
	state setupState

	backendName string
	instance    hal.Instance
	adapter     hal.ExposedAdapter
	device      *Device
	err         error
}

func newSetupMachine(opts []Option) *setupMachine {
	return &setupMachine{cfg: newConfig(opts), state: stateRequestAdapter}
}

// done reports whether the machine reached a terminal state.
func (m *setupMachine) done() bool {
	return m.state == stateDone || m.state == stateFailed
}

// step runs the step for the current state and advances.
func (m *setupMachine) step() {
	switch m.state {
	case stateRequestAdapter:
		if err := m.requestAdapter(); err != nil {
			m.fail(err)
			return
		}
		m.state = stateRequestDevice
	case stateRequestDevice:
		if err := m.requestDevice(); err != nil {
			m.fail(err)
			return
		}
		m.state = stateDone
	}
}

// stepContext runs one step on a separate goroutine so that a done ctx can
// abandon it. An abandoned step still finishes in the background; whatever
// it created is released once it returns.
func (m *setupMachine) stepContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		m.fail(err)
		return err
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		m.step()
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		go func() {
			<-finished
			m.release()
		}()
		return ctx.Err()
	}
}

// run drives the machine to a terminal state without suspending.
func (m *setupMachine) run() (*Device, error) {
	for !m.done() {
		m.step()
	}
	return m.device, m.err
}

// runContext drives the machine, checking ctx at each suspension point.
func (m *setupMachine) runContext(ctx context.Context) (*Device, error) {
	for !m.done() {
		if err := m.stepContext(ctx); err != nil {
			return nil, err
		}
	}
	return m.device, m.err
}

func (m *setupMachine) fail(err error) {
	m.release()
	m.err = err
	m.state = stateFailed
}

// release destroys whatever the machine created so far.
func (m *setupMachine) release() {
	if m.device != nil {
		m.device.Destroy()
		m.device = nil
		m.adapter = hal.ExposedAdapter{}
		m.instance = nil
		return
	}
	if m.adapter.Adapter != nil {
		m.adapter.Adapter.Destroy()
		m.adapter = hal.ExposedAdapter{}
	}
	if m.instance != nil {
		m.instance.Destroy()
		m.instance = nil
	}
}

func (m *setupMachine) notFound(backend string, cause error) error {
	return &AdapterNotFoundError{
		Backend:         backend,
		PowerPreference: m.cfg.power,
		ForceFallback:   m.cfg.forceFallback,
		Cause:           cause,
	}
}

// requestAdapter walks the candidate backends and keeps the first one that
// exposes an adapter satisfying the configuration.
func (m *setupMachine) requestAdapter() error {
	candidates, err := candidateBackends(&m.cfg)
	if err != nil {
		return err
	}

	var lastErr error
	for _, c := range candidates {
		instance, adapter, err := m.adapterFrom(c)
		if err != nil {
			slogger().Debug("gpuboot: backend rejected", "backend", c.name, "err", err)
			lastErr = err
			continue
		}
		m.backendName = c.name
		m.instance = instance
		m.adapter = adapter
		slogger().Info("gpuboot: adapter selected",
			"backend", c.name,
			"adapter", adapter.Info.Name,
			"type", adapter.Info.DeviceType,
			"power", m.cfg.power,
		)
		return nil
	}

	name := ""
	if len(candidates) == 1 {
		name = candidates[0].name
	}
	return m.notFound(name, lastErr)
}

var errNoMatchingAdapter = errors.New("no adapter matches the requested constraints")

func (m *setupMachine) adapterFrom(c backendCandidate) (hal.Instance, hal.ExposedAdapter, error) {
	instance, err := c.backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
		Flags:    m.cfg.instanceFlags,
	})
	if err != nil {
		return nil, hal.ExposedAdapter{}, fmt.Errorf("create instance: %w", err)
	}

	var hint hal.Surface
	if m.cfg.surfaceHint {
		hint, err = instance.CreateSurface(m.cfg.display, m.cfg.window)
		if err != nil {
			instance.Destroy()
			return nil, hal.ExposedAdapter{}, fmt.Errorf("create surface: %w", err)
		}
	}

	adapters := instance.EnumerateAdapters(hint)
	chosen := selectAdapter(adapters, hint, m.cfg.power, m.cfg.forceFallback)

	for i := range adapters {
		if i != chosen && adapters[i].Adapter != nil {
			adapters[i].Adapter.Destroy()
		}
	}
	if hint != nil {
		hint.Destroy()
	}

	if chosen < 0 {
		instance.Destroy()
		return nil, hal.ExposedAdapter{}, errNoMatchingAdapter
	}
	return instance, adapters[chosen], nil
}

// selectAdapter returns the index of the best adapter, or -1. Adapters are
// filtered by the fallback and surface constraints, then ranked by power
// preference. Ties keep enumeration order.
func selectAdapter(adapters []hal.ExposedAdapter, hint hal.Surface, power gputypes.PowerPreference, forceFallback bool) int {
	idx := make([]int, 0, len(adapters))
	for i, a := range adapters {
		if a.Adapter == nil {
			continue
		}
		if forceFallback && a.Info.DeviceType != gputypes.DeviceTypeCPU {
			continue
		}
		if hint != nil {
			caps := a.Adapter.SurfaceCapabilities(hint)
			if caps == nil || len(caps.Formats) == 0 {
				continue
			}
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return -1
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return adapterRank(adapters[a].Info.DeviceType, power) - adapterRank(adapters[b].Info.DeviceType, power)
	})
	return idx[0]
}

// adapterRank orders device types for a power preference. Lower is better.
func adapterRank(t gputypes.DeviceType, power gputypes.PowerPreference) int {
	switch power {
	case gputypes.PowerPreferenceHighPerformance:
		switch t {
		case gputypes.DeviceTypeDiscreteGPU:
			return 0
		case gputypes.DeviceTypeIntegratedGPU:
			return 1
		}
	case gputypes.PowerPreferenceLowPower:
		switch t {
		case gputypes.DeviceTypeIntegratedGPU:
			return 0
		case gputypes.DeviceTypeDiscreteGPU:
			return 1
		}
	default:
		return 0
	}
	switch t {
	case gputypes.DeviceTypeVirtualGPU:
		return 2
	case gputypes.DeviceTypeCPU:
		return 4
	default:
		return 3
	}
}

// requestDevice opens a logical device on the selected adapter.
func (m *setupMachine) requestDevice() error {
	if missing := m.cfg.features &^ m.adapter.Features; missing != 0 {
		return fmt.Errorf("gpuboot: request device: adapter %q lacks features %#x",
			m.adapter.Info.Name, uint64(missing))
	}

	open, err := m.adapter.Adapter.Open(m.cfg.features, m.cfg.limits)
	if err != nil {
		return fmt.Errorf("gpuboot: request device on %q: %w", m.adapter.Info.Name, err)
	}

	m.device = newDevice(m.cfg.label, m.backendName, m.instance, m.adapter, open)
	slogger().Info("gpuboot: device ready", "device", m.cfg.label, "backend", m.backendName)
	return nil
}

// Setup creates an instance, selects an adapter and opens a device, blocking
// until all three are done.
//
// Setup never falls back silently: if no adapter satisfies the options it
// returns *AdapterNotFoundError and creates nothing.
//
// Example:
//
//	dev, err := gpuboot.Setup(gpuboot.WithPowerPreference(gputypes.PowerPreferenceHighPerformance))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Destroy()
func Setup(opts ...Option) (*Device, error) {
	return newSetupMachine(opts).run()
}

// SetupContext is Setup with cancellation. It suspends at the adapter
// request and at the device request; if ctx is done at either point it
// returns ctx.Err() and releases anything created so far.
func SetupContext(ctx context.Context, opts ...Option) (*Device, error) {
	return newSetupMachine(opts).runContext(ctx)
}

// SetupResult is delivered by SetupAsync.
type SetupResult struct {
	Device *Device
	Err    error
}

// SetupAsync runs SetupContext on a new goroutine. The returned channel
// receives exactly one result and is then closed.
func SetupAsync(ctx context.Context, opts ...Option) <-chan SetupResult {
	ch := make(chan SetupResult, 1)
	go func() {
		defer close(ch)
		dev, err := SetupContext(ctx, opts...)
		ch <- SetupResult{Device: dev, Err: err}
	}()
	return ch
}
