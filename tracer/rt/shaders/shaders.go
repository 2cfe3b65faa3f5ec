package shaders

import (
	_ "embed"
)

//go:embed raytrace.wgsl
var RaytraceWGSL string

//go:embed fullscreen.wgsl
var FullscreenWGSL string

// Compute entry points of RaytraceWGSL.
const (
	RayTraceEntry        = "RayTrace"
	RayTraceUniformEntry = "RayTraceUniform"
)
