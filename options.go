package gpuboot

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Option configures device setup.
// Use functional options to customize adapter and device selection.
//
// Example:
//
//	// Best registered backend, high-performance adapter
//	dev, err := gpuboot.Setup()
//
//	// Explicit backend (dependency injection)
//	dev, err := gpuboot.Setup(gpuboot.WithBackend(software.API{}))
type Option func(*config)

// config holds the setup configuration shared by the blocking and
// suspending setup paths.
type config struct {
	backend       hal.Backend
	backendName   string
	power         gputypes.PowerPreference
	forceFallback bool
	surfaceHint   bool
	display       uintptr
	window        uintptr
	features      gputypes.Features
	limits        gputypes.Limits
	label         string
	instanceFlags gputypes.InstanceFlags
}

// defaultConfig returns the default setup configuration.
func defaultConfig() config {
	return config{
		power:  gputypes.PowerPreferenceHighPerformance,
		limits: gputypes.DefaultLimits(),
		label:  "gpuboot-device",
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithBackend uses the given HAL backend instead of consulting the backend
// registry. This is how tests inject noop.API or software.API.
func WithBackend(b hal.Backend) Option {
	return func(c *config) {
		c.backend = b
	}
}

// WithBackendName selects a backend registered under name (see
// RegisterBackend). Setup fails with AdapterNotFoundError if the name is
// not registered; it never falls back to another backend.
func WithBackendName(name string) Option {
	return func(c *config) {
		c.backendName = name
	}
}

// WithPowerPreference orders candidate adapters. HighPerformance prefers
// discrete GPUs, LowPower prefers integrated GPUs, None keeps the
// enumeration order. The default is HighPerformance.
func WithPowerPreference(p gputypes.PowerPreference) Option {
	return func(c *config) {
		c.power = p
	}
}

// WithForceFallbackAdapter restricts selection to CPU (software) adapters.
func WithForceFallbackAdapter(force bool) Option {
	return func(c *config) {
		c.forceFallback = force
	}
}

// WithCompatibleSurface restricts selection to adapters that can present
// to the native window identified by display and window. The same handles
// are later used by surface.NewWindow.
func WithCompatibleSurface(display, window uintptr) Option {
	return func(c *config) {
		c.surfaceHint = true
		c.display = display
		c.window = window
	}
}

// WithFeatures sets the optional features requested at device creation.
func WithFeatures(f gputypes.Features) Option {
	return func(c *config) {
		c.features = f
	}
}

// WithLimits sets the limits requested at device creation.
func WithLimits(l gputypes.Limits) Option {
	return func(c *config) {
		c.limits = l
	}
}

// WithLabel sets the debug label of the device.
func WithLabel(label string) Option {
	return func(c *config) {
		c.label = label
	}
}

// WithInstanceFlags sets the HAL instance flags (debug, validation).
func WithInstanceFlags(f gputypes.InstanceFlags) Option {
	return func(c *config) {
		c.instanceFlags = f
	}
}
