// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/gogpu/gpuboot"
	"github.com/gogpu/wgpu/hal"
)

// Options describes the surface a Factory should create.
type Options struct {
	// Device the surface renders with. Required by window targets.
	Device *gpuboot.Device

	// Width and Height are the framebuffer size in pixels.
	Width, Height int

	// Display and Window are native handles. A zero Window means no
	// window is available.
	Display, Window uintptr

	// PresentMode and AlphaMode apply to window targets. Zero values
	// select FIFO and opaque.
	PresentMode hal.PresentMode
	AlphaMode   hal.CompositeAlphaMode
}

// Factory creates a SurfaceProvider for opts.
type Factory func(opts Options) (gpuboot.SurfaceProvider, error)

// Entry is a registered surface target.
type Entry struct {
	// Name is the unique identifier of the target.
	Name string

	// Priority determines selection order (higher = preferred).
	// The built-in targets use 100 for "window" and 10 for "offscreen".
	Priority int

	// Factory creates surfaces.
	Factory Factory

	// Available reports whether the target can serve opts.
	Available func(opts Options) bool
}

// Registry maps target names to surface factories. The zero value is
// ready to use.
//
// Example:
//
//	surface.Register("headless-x", 50, newHeadlessX, nil)
//
//	// Pick the best target for the handles at hand:
//	s, err := surface.New(surface.Options{Device: dev, Width: 800, Height: 600})
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
// Most code should use the package-level functions.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

var defaultRegistry = NewRegistry()

// Register adds a target to the default registry.
// A nil available means the target is always available; registering an
// existing name replaces it.
func Register(name string, priority int, factory Factory, available func(Options) bool) {
	defaultRegistry.Register(name, priority, factory, available)
}

// Unregister removes a target from the default registry.
func Unregister(name string) { defaultRegistry.Unregister(name) }

// List returns the names in the default registry, highest priority first.
func List() []string { return defaultRegistry.List() }

// Available returns the names in the default registry that can serve opts.
func Available(opts Options) []string { return defaultRegistry.Available(opts) }

// Get returns a copy of a target's entry in the default registry.
func Get(name string) (*Entry, bool) { return defaultRegistry.Get(name) }

// New creates a surface with the best available target of the default
// registry.
func New(opts Options) (gpuboot.SurfaceProvider, error) { return defaultRegistry.New(opts) }

// NewByName creates a surface with a named target of the default registry.
func NewByName(name string, opts Options) (gpuboot.SurfaceProvider, error) {
	return defaultRegistry.NewByName(name, opts)
}

// Register adds a target to r.
func (r *Registry) Register(name string, priority int, factory Factory, available func(Options) bool) {
	if available == nil {
		available = func(Options) bool { return true }
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]*Entry)
	}
	r.entries[name] = &Entry{
		Name:      name,
		Priority:  priority,
		Factory:   factory,
		Available: available,
	}
}

// Unregister removes a target from r.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// List returns all target names, highest priority first.
func (r *Registry) List() []string {
	return r.sorted(nil)
}

// Available returns the names of targets that can serve opts, highest
// priority first.
func (r *Registry) Available(opts Options) []string {
	return r.sorted(&opts)
}

// Get returns a copy of a target's entry.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	c := *e
	return &c, true
}

// New tries the available targets in priority order and returns the first
// surface created. If every factory fails, the last error is returned.
func (r *Registry) New(opts Options) (gpuboot.SurfaceProvider, error) {
	names := r.Available(opts)
	if len(names) == 0 {
		return nil, ErrNoTargetAvailable
	}

	var lastErr error
	for _, name := range names {
		s, err := r.NewByName(name, opts)
		if err == nil {
			return s, nil
		}
		gpuboot.Logger().Debug("surface: target failed", "target", name, "err", err)
		lastErr = err
	}
	return nil, lastErr
}

// NewByName creates a surface with the named target.
func (r *Registry) NewByName(name string, opts Options) (gpuboot.SurfaceProvider, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &TargetNotFoundError{Name: name}
	}
	if !e.Available(opts) {
		return nil, &TargetUnavailableError{Name: name}
	}
	return e.Factory(opts)
}

// sorted returns target names by descending priority, then by name.
// With a non-nil opts only targets available for it are included.
func (r *Registry) sorted(opts *Options) []string {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	if opts != nil {
		entries = slices.DeleteFunc(entries, func(e *Entry) bool { return !e.Available(*opts) })
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	if len(entries) == 0 {
		return nil
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// ErrNoTargetAvailable is returned when no registered target can serve
// the requested options.
var ErrNoTargetAvailable = errors.New("surface: no target available")

// TargetNotFoundError indicates a named target is not registered.
type TargetNotFoundError struct {
	Name string
}

func (e *TargetNotFoundError) Error() string {
	return "surface: target not found: " + e.Name
}

// TargetUnavailableError indicates a target cannot serve the options.
type TargetUnavailableError struct {
	Name string
}

func (e *TargetUnavailableError) Error() string {
	return "surface: target unavailable: " + e.Name
}

// Names of the built-in targets.
const (
	TargetWindow    = "window"
	TargetOffscreen = "offscreen"
)

func init() {
	Register(TargetWindow, 100, func(opts Options) (gpuboot.SurfaceProvider, error) {
		var wopts []WindowOption
		if opts.PresentMode != 0 {
			wopts = append(wopts, WithPresentMode(opts.PresentMode))
		}
		if opts.AlphaMode != 0 {
			wopts = append(wopts, WithAlphaMode(opts.AlphaMode))
		}
		return NewWindow(opts.Device, opts.Display, opts.Window, opts.Width, opts.Height, wopts...)
	}, func(opts Options) bool {
		return opts.Window != 0 && opts.Device != nil
	})

	Register(TargetOffscreen, 10, func(opts Options) (gpuboot.SurfaceProvider, error) {
		return gpuboot.NewOffscreenSurface(opts.Width, opts.Height), nil
	}, nil)
}
