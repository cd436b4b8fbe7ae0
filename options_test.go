package gpuboot

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
)

// TestNewConfigDefault tests the configuration used when no options are given.
func TestNewConfigDefault(t *testing.T) {
	cfg := newConfig(nil)

	if cfg.backend != nil || cfg.backendName != "" {
		t.Error("default config should select the backend automatically")
	}
	if cfg.power != gputypes.PowerPreferenceHighPerformance {
		t.Errorf("power = %v, want HighPerformance", cfg.power)
	}
	if cfg.forceFallback {
		t.Error("forceFallback should default to false")
	}
	if cfg.surfaceHint {
		t.Error("surfaceHint should default to false")
	}
	if cfg.label != "gpuboot-device" {
		t.Errorf("label = %q, want gpuboot-device", cfg.label)
	}
	if cfg.limits != gputypes.DefaultLimits() {
		t.Error("limits should default to gputypes.DefaultLimits()")
	}
}

// TestNewConfigOptions tests that every option lands in the config.
func TestNewConfigOptions(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxBindGroups = 2

	cfg := newConfig([]Option{
		WithBackend(noop.API{}),
		WithBackendName("custom"),
		WithPowerPreference(gputypes.PowerPreferenceLowPower),
		WithForceFallbackAdapter(true),
		WithCompatibleSurface(1, 2),
		WithFeatures(gputypes.Features(4)),
		WithLimits(limits),
		WithLabel("custom-device"),
		WithInstanceFlags(gputypes.InstanceFlags(1)),
		nil,
	})

	if _, ok := cfg.backend.(noop.API); !ok {
		t.Errorf("backend = %T, want noop.API", cfg.backend)
	}
	if cfg.backendName != "custom" {
		t.Errorf("backendName = %q, want custom", cfg.backendName)
	}
	if cfg.power != gputypes.PowerPreferenceLowPower {
		t.Errorf("power = %v, want LowPower", cfg.power)
	}
	if !cfg.forceFallback {
		t.Error("forceFallback = false, want true")
	}
	if !cfg.surfaceHint || cfg.display != 1 || cfg.window != 2 {
		t.Errorf("surface hint = %v (%d, %d), want true (1, 2)", cfg.surfaceHint, cfg.display, cfg.window)
	}
	if cfg.features != 4 {
		t.Errorf("features = %#x, want 0x4", uint64(cfg.features))
	}
	if cfg.limits.MaxBindGroups != 2 {
		t.Errorf("limits.MaxBindGroups = %d, want 2", cfg.limits.MaxBindGroups)
	}
	if cfg.label != "custom-device" {
		t.Errorf("label = %q, want custom-device", cfg.label)
	}
	if cfg.instanceFlags != 1 {
		t.Errorf("instanceFlags = %v, want 1", cfg.instanceFlags)
	}
}

// TestNewConfigLastOptionWins tests that later options override earlier ones.
func TestNewConfigLastOptionWins(t *testing.T) {
	cfg := newConfig([]Option{
		WithLabel("first"),
		WithLabel("second"),
		WithPowerPreference(gputypes.PowerPreferenceLowPower),
		WithPowerPreference(gputypes.PowerPreferenceNone),
	})
	if cfg.label != "second" {
		t.Errorf("label = %q, want second", cfg.label)
	}
	if cfg.power != gputypes.PowerPreferenceNone {
		t.Errorf("power = %v, want None", cfg.power)
	}
}
