// Package rhi defines the pipeline creation backend boundary: the synchronous
// calls that turn a decoded descriptor plus resident shader bytecode into a
// native pipeline object, and the dedup caches for fixed-function state.
package rhi

import (
	"github.com/pso-precache/pkg/model"
)

// Backend is the pipeline object creation interface. Creation is synchronous;
// the conveyor only calls it once all shader bytecode is resident. A returned
// error means that PSO will compile normally on first real use; it is never
// retried here.
type Backend interface {
	// SupportsRayTracing reports whether ray tracing pipelines can be built
	// on this run.
	SupportsRayTracing() bool

	// CreateGraphicsPipeline builds a graphics pipeline object.
	CreateGraphicsPipeline(desc *model.GraphicsPipeline, shaders map[model.ShaderHash][]byte) error

	// CreateComputePipeline builds a compute pipeline object.
	CreateComputePipeline(desc *model.ComputePipeline, shaders map[model.ShaderHash][]byte) error

	// CreateRayTracingPipeline builds a ray tracing pipeline object.
	CreateRayTracingPipeline(desc *model.RayTracingPipeline, shaders map[model.ShaderHash][]byte) error
}

// StateHandle is a stable handle to a deduplicated fixed-function state
// object.
type StateHandle uint32

// StateCaches bundles the content-keyed dedup caches for the three
// fixed-function state blocks a graphics descriptor carries.
type StateCaches struct {
	Blend        *StateCache[model.BlendState]
	Rasterizer   *StateCache[model.RasterizerState]
	DepthStencil *StateCache[model.DepthStencilState]
}

// NewStateCaches creates empty state caches.
func NewStateCaches() *StateCaches {
	return &StateCaches{
		Blend:        NewStateCache[model.BlendState](),
		Rasterizer:   NewStateCache[model.RasterizerState](),
		DepthStencil: NewStateCache[model.DepthStencilState](),
	}
}

// Intern deduplicates all three state blocks of a graphics descriptor and
// returns their handles.
func (c *StateCaches) Intern(desc *model.GraphicsPipeline) (blend, raster, depth StateHandle) {
	return c.Blend.GetOrCreate(desc.Blend),
		c.Rasterizer.GetOrCreate(desc.Rasterizer),
		c.DepthStencil.GetOrCreate(desc.DepthStencil)
}

// Release drops all cached state objects.
func (c *StateCaches) Release() {
	c.Blend.Release()
	c.Rasterizer.Release()
	c.DepthStencil.Release()
}
