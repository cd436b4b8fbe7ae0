//go:build !windows && !(linux && !wayland)

package main

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles is unsupported here. On macOS the Metal backend needs a
// CAMetalLayer, which a GLFW window without a client API does not provide.
func nativeHandles(*glfw.Window) (display, window uintptr, err error) {
	return 0, 0, fmt.Errorf("native window handles are not supported on %s", runtime.GOOS)
}
