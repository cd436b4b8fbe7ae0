package gpuboot

import (
	"errors"
	"slices"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Standard backend names used by the backend registry.
const (
	BackendVulkan   = "vulkan"
	BackendMetal    = "metal"
	BackendDX12     = "dx12"
	BackendGL       = "gl"
	BackendSoftware = "software"
)

// backendPriority is the order in which automatic selection tries
// registered backends. Names not listed come last, sorted by name.
var backendPriority = []string{BackendVulkan, BackendMetal, BackendDX12, BackendGL, BackendSoftware}

// backends holds every backend known to gpuboot. It starts empty; HAL
// backends imported for side effects (hal/allbackends, hal/software) are
// mirrored into it on first use.
var backends = gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(backendPriority...))

var errNoBackends = errors.New("no HAL backend registered (import github.com/gogpu/wgpu/hal/allbackends)")

// RegisterBackend makes b selectable under name. Registering a name that
// already exists replaces the previous entry.
//
// Example:
//
//	func init() {
//	    gpuboot.RegisterBackend("software", software.API{})
//	}
func RegisterBackend(name string, b hal.Backend) {
	backends.Register(name, func() hal.Backend { return b })
}

// UnregisterBackend removes the backend registered under name.
func UnregisterBackend(name string) {
	backends.Unregister(name)
}

// Backends returns the names of all registered backends in selection order.
func Backends() []string {
	syncHALBackends()
	return orderedBackends()
}

func orderedBackends() []string {
	names := backends.Available()
	slices.SortFunc(names, func(a, b string) int {
		ra, rb := backendRank(a), backendRank(b)
		if ra != rb {
			return ra - rb
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
	return names
}

func backendRank(name string) int {
	if i := slices.Index(backendPriority, name); i >= 0 {
		return i
	}
	return len(backendPriority)
}

// halBackendName maps a HAL backend variant to its registry name.
// The software and noop backends both report BackendEmpty; they are
// registered as "software" since only one of them can be linked in at a time.
func halBackendName(v gputypes.Backend) string {
	switch v {
	case gputypes.BackendVulkan:
		return BackendVulkan
	case gputypes.BackendMetal:
		return BackendMetal
	case gputypes.BackendDX12:
		return BackendDX12
	case gputypes.BackendGL:
		return BackendGL
	case gputypes.BackendEmpty:
		return BackendSoftware
	default:
		return ""
	}
}

// syncHALBackends mirrors the HAL's own registry into backends without
// overriding explicit registrations.
func syncHALBackends() {
	for _, v := range hal.AvailableBackends() {
		name := halBackendName(v)
		if name == "" || backends.Has(name) {
			continue
		}
		if b, ok := hal.GetBackend(v); ok {
			RegisterBackend(name, b)
		}
	}
}

// backendCandidate is a backend that setup may try, in order.
type backendCandidate struct {
	name    string
	backend hal.Backend
}

// candidateBackends returns the backends the adapter request will try.
// An explicit backend or backend name yields exactly one candidate; only
// automatic selection walks the registry in priority order.
func candidateBackends(cfg *config) ([]backendCandidate, error) {
	if cfg.backend != nil {
		name := cfg.backendName
		if name == "" {
			name = halBackendName(cfg.backend.Variant())
		}
		return []backendCandidate{{name: name, backend: cfg.backend}}, nil
	}

	syncHALBackends()

	if cfg.backendName != "" {
		if !backends.Has(cfg.backendName) {
			return nil, &AdapterNotFoundError{
				Backend:         cfg.backendName,
				PowerPreference: cfg.power,
				ForceFallback:   cfg.forceFallback,
				Cause:           errors.New("backend not registered"),
			}
		}
		return []backendCandidate{{name: cfg.backendName, backend: backends.Get(cfg.backendName)}}, nil
	}

	names := orderedBackends()
	if len(names) == 0 {
		return nil, &AdapterNotFoundError{
			PowerPreference: cfg.power,
			ForceFallback:   cfg.forceFallback,
			Cause:           errNoBackends,
		}
	}
	out := make([]backendCandidate, 0, len(names))
	for _, name := range names {
		if b := backends.Get(name); b != nil {
			out = append(out, backendCandidate{name: name, backend: b})
		}
	}
	return out, nil
}
