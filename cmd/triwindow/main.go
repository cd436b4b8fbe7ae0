// Command triwindow opens a window and renders the gpuboot triangle into it
// whenever the window needs a redraw.
//
// Usage:
//
//	triwindow -width 800 -height 600 -backend vulkan
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/gpuboot"
	"github.com/gogpu/gpuboot/integration/hostcanvas"
	"github.com/gogpu/gpuboot/surface"
	"github.com/gogpu/gpucontext"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func init() {
	// GLFW must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	var (
		width   = flag.Int("width", 800, "window width")
		height  = flag.Int("height", 600, "window height")
		backend = flag.String("backend", "", "HAL backend name (empty selects automatically)")
		title   = flag.String("title", "gpuboot triangle", "window title")
		verbose = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	gpuboot.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*width, *height, *backend, *title); err != nil {
		log.Fatal(err)
	}
}

func run(width, height int, backend, title string) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initialize GLFW: %w", err)
	}
	defer glfw.Terminate()

	// The HAL presents to the window itself; no GL context.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer win.Destroy()

	display, handle, err := nativeHandles(win)
	if err != nil {
		return err
	}

	opts := []gpuboot.Option{gpuboot.WithCompatibleSurface(display, handle), gpuboot.WithLabel("triwindow")}
	if backend != "" {
		opts = append(opts, gpuboot.WithBackendName(backend))
	}
	dev, err := gpuboot.Setup(opts...)
	if err != nil {
		return err
	}
	defer dev.Destroy()
	gpuboot.Logger().Info("device ready", "backend", dev.BackendName(), "adapter", dev.Info().Name)

	fbW, fbH := win.GetFramebufferSize()
	target, err := surface.New(surface.Options{
		Device:  dev,
		Width:   fbW,
		Height:  fbH,
		Display: display,
		Window:  handle,
	})
	if err != nil {
		return err
	}

	host := &glfwHost{win: win}
	canvas, err := hostcanvas.New(dev, host, target, nil)
	if err != nil {
		return err
	}
	defer canvas.Close()

	win.SetRefreshCallback(func(*glfw.Window) { host.RequestRedraw() })
	win.SetFramebufferSizeCallback(func(*glfw.Window, int, int) { host.RequestRedraw() })
	win.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	host.RequestRedraw()
	for !win.ShouldClose() {
		glfw.WaitEvents()
		if !host.takeRedraw() {
			continue
		}
		if err := canvas.Render(); err != nil {
			gpuboot.Logger().Warn("frame failed", "err", err)
		}
	}
	gpuboot.Logger().Info("window closed", "frames", canvas.Frames())
	return nil
}

// glfwHost exposes a GLFW window as a gpucontext.WindowProvider. Sizes are
// reported in window coordinates; the scale factor maps them to the
// framebuffer.
type glfwHost struct {
	win    *glfw.Window
	redraw bool
}

var _ gpucontext.WindowProvider = (*glfwHost)(nil)

func (h *glfwHost) Size() (width, height int) { return h.win.GetSize() }

func (h *glfwHost) ScaleFactor() float64 {
	w, _ := h.win.GetSize()
	fw, _ := h.win.GetFramebufferSize()
	if w <= 0 || fw <= 0 {
		return 1
	}
	return float64(fw) / float64(w)
}

func (h *glfwHost) RequestRedraw() {
	h.redraw = true
	glfw.PostEmptyEvent()
}

func (h *glfwHost) takeRedraw() bool {
	r := h.redraw
	h.redraw = false
	return r
}
