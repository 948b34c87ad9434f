package rhi

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/pso-precache/pkg/errors"
	"github.com/pso-precache/pkg/model"
)

// NullBackend is a creation backend that builds nothing. It records what it
// was asked to create and can simulate compile latency and per-shader
// failures. Used by dry runs and tests.
type NullBackend struct {
	// RayTracing enables the ray tracing capability.
	RayTracing bool

	// CompileDelay is slept per creation call when non-zero.
	CompileDelay time.Duration

	mu       sync.Mutex
	created  []model.PipelineKind
	failures map[model.ShaderHash]bool
}

// NewNullBackend creates a NullBackend with ray tracing disabled.
func NewNullBackend() *NullBackend {
	return &NullBackend{
		failures: make(map[model.ShaderHash]bool),
	}
}

// FailShader makes any pipeline referencing the shader fail creation.
func (b *NullBackend) FailShader(hash model.ShaderHash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[hash] = true
}

// SupportsRayTracing reports whether ray tracing pipelines can be built.
func (b *NullBackend) SupportsRayTracing() bool {
	return b.RayTracing
}

// CreateGraphicsPipeline builds a graphics pipeline object.
func (b *NullBackend) CreateGraphicsPipeline(desc *model.GraphicsPipeline, shaders map[model.ShaderHash][]byte) error {
	return b.create(model.KindGraphics, shaders)
}

// CreateComputePipeline builds a compute pipeline object.
func (b *NullBackend) CreateComputePipeline(desc *model.ComputePipeline, shaders map[model.ShaderHash][]byte) error {
	return b.create(model.KindCompute, shaders)
}

// CreateRayTracingPipeline builds a ray tracing pipeline object.
func (b *NullBackend) CreateRayTracingPipeline(desc *model.RayTracingPipeline, shaders map[model.ShaderHash][]byte) error {
	if !b.RayTracing {
		return apperrors.ErrCapabilityMissing
	}
	return b.create(model.KindRayTracing, shaders)
}

// NumCreated returns how many pipelines were created.
func (b *NullBackend) NumCreated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

// CreatedKinds returns the kinds of the pipelines created, in order.
func (b *NullBackend) CreatedKinds() []model.PipelineKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]model.PipelineKind, len(b.created))
	copy(kinds, b.created)
	return kinds
}

func (b *NullBackend) create(kind model.PipelineKind, shaders map[model.ShaderHash][]byte) error {
	if b.CompileDelay > 0 {
		time.Sleep(b.CompileDelay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for hash := range shaders {
		if b.failures[hash] {
			return apperrors.Wrap(apperrors.CodeCompileFailure,
				fmt.Sprintf("simulated failure for shader %s", hash), nil)
		}
	}
	b.created = append(b.created, kind)
	return nil
}
