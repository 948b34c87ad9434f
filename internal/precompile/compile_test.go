package precompile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pso-precache/internal/rhi"
	apperrors "github.com/pso-precache/pkg/errors"
	"github.com/pso-precache/pkg/model"
)

// readyJob builds a job whose shader preloads already landed.
func readyJob(t *testing.T, pool *ReadPool, hash model.Hash, desc *model.Descriptor, preloadErr error) *CompileJob {
	t.Helper()
	job := &CompileJob{
		Header:     model.TaskHeader{Hash: hash, ShaderHashes: desc.ShaderHashes()},
		Descriptor: desc,
		Handle:     newReadHandle(),
	}
	for _, sh := range desc.ShaderHashes() {
		sh := sh
		job.Handle.issue(context.Background(), pool, uint64(sh), func(ctx context.Context) ([]byte, error) {
			if preloadErr != nil {
				return nil, preloadErr
			}
			return []byte("bytecode"), nil
		})
	}
	job.Handle.Wait()
	return job
}

func newTestCompileStage(backend rhi.Backend, counters *Counters) *CompileStage {
	return NewCompileStage(backend, rhi.NewStateCaches(), counters, nil, nil)
}

func TestCompileStage_CompileBatch(t *testing.T) {
	pool := newTestPool(t)
	backend := rhi.NewNullBackend()
	counters := &Counters{}
	counters.admit(2)
	counters.activate(2)
	c := newTestCompileStage(backend, counters)
	tracked := map[model.Hash]struct{}{0x1: {}, 0x2: {}}

	c.Add(readyJob(t, pool, 0x1, graphicsDescriptor(0xA, 0xB), nil))
	c.Add(readyJob(t, pool, 0x2, graphicsDescriptor(0xA, 0), nil))

	processed, requeues := c.CompileBatch(10, tracked)
	assert.Equal(t, 2, processed)
	assert.Empty(t, requeues)
	assert.Equal(t, 2, backend.NumCreated())
	assert.Equal(t, int64(2), counters.Complete())
	assert.Empty(t, tracked)
	assert.True(t, c.Compiled(0x1))
	assert.True(t, c.Compiled(0x2))
}

func TestCompileStage_BatchLimit(t *testing.T) {
	pool := newTestPool(t)
	counters := &Counters{}
	counters.admit(3)
	counters.activate(3)
	c := newTestCompileStage(rhi.NewNullBackend(), counters)
	tracked := map[model.Hash]struct{}{0x1: {}, 0x2: {}, 0x3: {}}

	for i := 1; i <= 3; i++ {
		c.Add(readyJob(t, pool, model.Hash(i), graphicsDescriptor(0xA, 0), nil))
	}

	processed, _ := c.CompileBatch(2, tracked)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, c.Len())
	assert.Len(t, tracked, 1)
}

func TestCompileStage_PreloadFailureRequeues(t *testing.T) {
	pool := newTestPool(t)
	backend := rhi.NewNullBackend()
	counters := &Counters{}
	counters.admit(1)
	counters.activate(1)
	c := newTestCompileStage(backend, counters)
	tracked := map[model.Hash]struct{}{0x1: {}}

	c.Add(readyJob(t, pool, 0x1, graphicsDescriptor(0xA, 0), apperrors.ErrIOError))

	processed, requeues := c.CompileBatch(10, tracked)
	assert.Equal(t, 1, processed)
	require.Len(t, requeues, 1)
	assert.Equal(t, model.Hash(0x1), requeues[0].Hash)
	// A requeued task is neither complete nor compiled.
	assert.Equal(t, int64(0), counters.Complete())
	assert.False(t, c.Compiled(0x1))
	assert.Contains(t, tracked, model.Hash(0x1))
}

func TestCompileStage_DuplicateNeverCompilesTwice(t *testing.T) {
	pool := newTestPool(t)
	backend := rhi.NewNullBackend()
	counters := &Counters{}
	counters.admit(2)
	counters.activate(2)
	c := newTestCompileStage(backend, counters)
	tracked := map[model.Hash]struct{}{0x1: {}}

	c.Add(readyJob(t, pool, 0x1, graphicsDescriptor(0xA, 0), nil))
	c.CompileBatch(10, tracked)
	require.Equal(t, 1, backend.NumCreated())

	tracked[0x1] = struct{}{}
	c.Add(readyJob(t, pool, 0x1, graphicsDescriptor(0xA, 0), nil))
	c.CompileBatch(10, tracked)
	assert.Equal(t, 1, backend.NumCreated())
	assert.Equal(t, int64(2), counters.Complete())
}

func TestCompileStage_InvalidDescriptorCountsComplete(t *testing.T) {
	backend := rhi.NewNullBackend()
	counters := &Counters{}
	counters.admit(1)
	counters.activate(1)
	c := newTestCompileStage(backend, counters)
	tracked := map[model.Hash]struct{}{0x1: {}}

	bad := &model.Descriptor{Kind: model.KindGraphics, Graphics: &model.GraphicsPipeline{}}
	c.Add(&CompileJob{
		Header:     model.TaskHeader{Hash: 0x1},
		Descriptor: bad,
		Handle:     newReadHandle(),
	})

	processed, requeues := c.CompileBatch(10, tracked)
	assert.Equal(t, 1, processed)
	assert.Empty(t, requeues)
	assert.Equal(t, 0, backend.NumCreated())
	assert.Equal(t, int64(1), counters.Complete())
}

func TestCompileStage_ReadyToCompile(t *testing.T) {
	pool := newTestPool(t)
	c := newTestCompileStage(rhi.NewNullBackend(), &Counters{})

	assert.False(t, c.ReadyToCompile(), "empty stage has nothing ready")

	release := make(chan struct{})
	job := &CompileJob{
		Header:     model.TaskHeader{Hash: 0x1},
		Descriptor: graphicsDescriptor(0xA, 0),
		Handle:     newReadHandle(),
	}
	job.Handle.issue(context.Background(), pool, 0xA, func(ctx context.Context) ([]byte, error) {
		<-release
		return []byte("bytecode"), nil
	})
	c.Add(job)

	assert.False(t, c.ReadyToCompile(), "preload still in flight")
	close(release)
	job.Handle.Wait()
	assert.True(t, c.ReadyToCompile())

	t.Run("FenceBlocks", func(t *testing.T) {
		c.SetFence(func() bool { return false })
		assert.False(t, c.ReadyToCompile())
		c.SetFence(nil)
		assert.True(t, c.ReadyToCompile())
	})
}

func TestCompileStage_DrainTo(t *testing.T) {
	pool := newTestPool(t)
	counters := &Counters{}
	counters.admit(2)
	counters.activate(2)
	c := newTestCompileStage(rhi.NewNullBackend(), counters)
	drain := newDrainList(counters)
	tracked := map[model.Hash]struct{}{0x1: {}, 0x2: {}}

	c.Add(readyJob(t, pool, 0x1, graphicsDescriptor(0xA, 0), nil))
	c.Add(readyJob(t, pool, 0x2, graphicsDescriptor(0xB, 0), nil))

	n := c.DrainTo(drain, tracked)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, tracked)

	drain.poll()
	assert.Equal(t, 0, drain.len())
	assert.Equal(t, int64(2), counters.Dropped())
}
