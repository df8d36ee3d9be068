package accel

import "github.com/Carmen-Shannon/oxy-rt/engine/gpu"

// WrapperBuilderOption is a functional option for NewWrapper.
type WrapperBuilderOption func(*wrapper)

// WithLabel sets the debug name prefix of every object the wrapper creates.
//
// Parameters:
//   - label: the prefix
//
// Returns:
//   - WrapperBuilderOption: the option
func WithLabel(label string) WrapperBuilderOption {
	return func(w *wrapper) {
		w.label = label
	}
}

// WithVertexStride sets the byte stride between vertex positions of described meshes.
//
// Parameters:
//   - stride: the stride in bytes, at least 12
//
// Returns:
//   - WrapperBuilderOption: the option
func WithVertexStride(stride uint64) WrapperBuilderOption {
	return func(w *wrapper) {
		w.vertexStride = stride
	}
}

// WithInstanceFlags sets the flags of instances described after the option applies. The default
// disables facing culling.
func WithInstanceFlags(flags gpu.GeometryInstanceFlags) WrapperBuilderOption {
	return func(w *wrapper) {
		w.instanceFlags = flags
	}
}

// WithInstanceMask sets the visibility mask of described instances.
func WithInstanceMask(mask uint8) WrapperBuilderOption {
	return func(w *wrapper) {
		w.instanceMask = mask
	}
}

// WithHitGroup sets the shader-binding-table record offset of described instances.
func WithHitGroup(offset uint32) WrapperBuilderOption {
	return func(w *wrapper) {
		w.hitGroup = offset
	}
}
