package rhi

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pso-precache/pkg/model"
)

func TestStateCache_GetOrCreate(t *testing.T) {
	c := NewStateCache[model.BlendState]()

	a := c.GetOrCreate(model.BlendState{Enabled: true})
	b := c.GetOrCreate(model.BlendState{Enabled: true})
	other := c.GetOrCreate(model.BlendState{Enabled: false})

	assert.Equal(t, a, b, "identical state must intern to the same handle")
	assert.NotEqual(t, a, other)
	assert.NotZero(t, a, "handle 0 is reserved")
	assert.Equal(t, 2, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
}

func TestStateCache_Release(t *testing.T) {
	c := NewStateCache[model.BlendState]()
	c.GetOrCreate(model.BlendState{Enabled: true})
	c.Release()
	assert.Equal(t, 0, c.Len())

	// Handles keep advancing after a release; stale handles stay invalid.
	h := c.GetOrCreate(model.BlendState{Enabled: true})
	assert.NotZero(t, h)
}

func TestStateCache_Concurrent(t *testing.T) {
	c := NewStateCache[model.RasterizerState]()
	states := []model.RasterizerState{
		{CullMode: "back"},
		{CullMode: "front"},
		{CullMode: "none"},
	}

	var wg sync.WaitGroup
	handles := make([][]StateHandle, 8)
	for i := 0; i < 8; i++ {
		i := i
		handles[i] = make([]StateHandle, len(states))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j, st := range states {
				handles[i][j] = c.GetOrCreate(st)
			}
		}()
	}
	wg.Wait()

	for i := 1; i < 8; i++ {
		assert.Equal(t, handles[0], handles[i])
	}
	assert.Equal(t, len(states), c.Len())
}

func TestStateCaches_Intern(t *testing.T) {
	caches := NewStateCaches()
	desc := &model.GraphicsPipeline{
		VertexShader: 0xA,
		Blend:        model.BlendState{Enabled: true},
		Rasterizer:   model.RasterizerState{CullMode: "back"},
		DepthStencil: model.DepthStencilState{DepthTest: true},
	}

	b1, r1, d1 := caches.Intern(desc)
	b2, r2, d2 := caches.Intern(desc)
	assert.Equal(t, b1, b2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, d1, d2)

	caches.Release()
	assert.Equal(t, 0, caches.Blend.Len())
	assert.Equal(t, 0, caches.Rasterizer.Len())
	assert.Equal(t, 0, caches.DepthStencil.Len())
}

func TestNullBackend(t *testing.T) {
	b := NewNullBackend()
	shaders := map[model.ShaderHash][]byte{0xA: []byte("code")}

	t.Run("CreatesAndRecords", func(t *testing.T) {
		assert.NoError(t, b.CreateGraphicsPipeline(&model.GraphicsPipeline{VertexShader: 0xA}, shaders))
		assert.NoError(t, b.CreateComputePipeline(&model.ComputePipeline{Shader: 0xA}, shaders))
		assert.Equal(t, 2, b.NumCreated())
		assert.Equal(t, []model.PipelineKind{model.KindGraphics, model.KindCompute}, b.CreatedKinds())
	})

	t.Run("RayTracingGated", func(t *testing.T) {
		assert.False(t, b.SupportsRayTracing())
		err := b.CreateRayTracingPipeline(&model.RayTracingPipeline{RayGenShader: 0xA}, shaders)
		assert.Error(t, err)

		b.RayTracing = true
		assert.NoError(t, b.CreateRayTracingPipeline(&model.RayTracingPipeline{RayGenShader: 0xA}, shaders))
	})

	t.Run("FailShader", func(t *testing.T) {
		b.FailShader(0xF)
		err := b.CreateGraphicsPipeline(&model.GraphicsPipeline{VertexShader: 0xF},
			map[model.ShaderHash][]byte{0xF: []byte("bad")})
		assert.Error(t, err)
	})
}
