package gpuboot

import (
	_ "embed"

	"github.com/gogpu/gputypes"
)

//go:embed shaders/triangle.wgsl
var triangleWGSL string

// TriangleShader returns the built-in triangle shader. Its vertex entry point
// "vs_main" emits the triangle (0,-0.5), (0.5,0.5), (-0.5,0.7) from the
// vertex index alone, so it is drawn with Draw(3, 1, 0, 0) and no vertex
// buffers. Its fragment entry point "fs_main" writes the interpolated color
// (x, y, 0.5, 1).
func TriangleShader() ShaderSource {
	return ShaderSource{Label: "triangle", Code: triangleWGSL}
}

// NewTrianglePipeline compiles the triangle shader and a default pipeline
// for format on dev. The shader module is released once the pipeline
// exists.
func NewTrianglePipeline(dev *Device, format gputypes.TextureFormat) (*RenderPipeline, error) {
	module, err := dev.CreateShaderModule(TriangleShader())
	if err != nil {
		return nil, err
	}
	defer module.Destroy()

	desc := DefaultPipelineDescriptor(module, format)
	return dev.CreateRenderPipeline(&desc)
}
