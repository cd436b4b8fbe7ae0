package main

import (
	"errors"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles returns the HWND of win. Windows surfaces need no display.
func nativeHandles(win *glfw.Window) (display, window uintptr, err error) {
	window = uintptr(unsafe.Pointer(win.GetWin32Window()))
	if window == 0 {
		return 0, 0, errors.New("no Win32 window handle")
	}
	return 0, window, nil
}
