//go:build linux && !wayland

package main

import (
	"errors"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles returns the X11 Display* and Window of win.
func nativeHandles(win *glfw.Window) (display, window uintptr, err error) {
	display = uintptr(unsafe.Pointer(glfw.GetX11Display()))
	window = uintptr(win.GetX11Window())
	if display == 0 || window == 0 {
		return 0, 0, errors.New("no X11 window handle")
	}
	return display, window, nil
}
