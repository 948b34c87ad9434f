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

// fetchedEntry builds a FetchEntry whose descriptor read already landed with
// the given payload.
func fetchedEntry(t *testing.T, pool *ReadPool, h model.TaskHeader, data []byte, readErr error) *FetchEntry {
	t.Helper()
	entry := &FetchEntry{Header: h, Handle: newReadHandle()}
	entry.Handle.issue(context.Background(), pool, uint64(h.Hash), func(ctx context.Context) ([]byte, error) {
		return data, readErr
	})
	entry.Handle.Wait()
	return entry
}

func encodeTestDescriptor(t *testing.T, d *model.Descriptor) []byte {
	t.Helper()
	data, err := model.EncodeDescriptor(d)
	require.NoError(t, err)
	return data
}

func TestPrepareStage_Ready(t *testing.T) {
	pool := newTestPool(t)
	library := newMemLibrary(0xA, 0xB)
	counters := &Counters{}
	p := NewPrepareStage(library, rhi.NewNullBackend(), pool, counters, nil)

	data := encodeTestDescriptor(t, graphicsDescriptor(0xA, 0xB))
	entry := fetchedEntry(t, pool, header(0x1, 0xA, 0xB), data, nil)

	outcome := p.Prepare(context.Background(), entry)
	require.Equal(t, OutcomeReady, outcome.Kind)
	require.NotNil(t, outcome.Job)
	assert.Equal(t, model.Hash(0x1), outcome.Job.Header.Hash)

	outcome.Job.Handle.Wait()
	require.NoError(t, outcome.Job.Handle.Err())
	assert.Len(t, outcome.Job.Handle.Results(), 2)
	assert.Equal(t, int64(0), counters.Dropped())
}

func TestPrepareStage_ReadErrorIsInvalid(t *testing.T) {
	pool := newTestPool(t)
	counters := &Counters{}
	counters.admit(1)
	counters.activate(1)
	p := NewPrepareStage(newMemLibrary(), rhi.NewNullBackend(), pool, counters, nil)

	entry := fetchedEntry(t, pool, header(0x1, 0xA), nil, apperrors.ErrStoreError)
	outcome := p.Prepare(context.Background(), entry)

	assert.Equal(t, OutcomeInvalid, outcome.Kind)
	assert.Equal(t, int64(1), counters.Dropped())
}

func TestPrepareStage_CorruptBytesAreInvalid(t *testing.T) {
	pool := newTestPool(t)
	counters := &Counters{}
	counters.admit(1)
	counters.activate(1)
	p := NewPrepareStage(newMemLibrary(0xA), rhi.NewNullBackend(), pool, counters, nil)

	t.Run("Garbage", func(t *testing.T) {
		entry := fetchedEntry(t, pool, header(0x1, 0xA), []byte("{{{"), nil)
		assert.Equal(t, OutcomeInvalid, p.Prepare(context.Background(), entry).Kind)
	})

	t.Run("NoShaders", func(t *testing.T) {
		// Structurally valid JSON that fails the consistency check.
		entry := fetchedEntry(t, pool, header(0x2), []byte(`{"kind":0}`), nil)
		assert.Equal(t, OutcomeInvalid, p.Prepare(context.Background(), entry).Kind)
	})
}

func TestPrepareStage_Capability(t *testing.T) {
	pool := newTestPool(t)
	rt := &model.Descriptor{
		Kind:       model.KindRayTracing,
		RayTracing: &model.RayTracingPipeline{RayGenShader: 0xC},
	}
	data := encodeTestDescriptor(t, rt)

	t.Run("MissingCapabilityDiscards", func(t *testing.T) {
		counters := &Counters{}
		counters.admit(1)
		counters.activate(1)
		// Shader 0xC is also unavailable; incompatibility must win so the
		// task is not requeued forever.
		p := NewPrepareStage(newMemLibrary(), rhi.NewNullBackend(), pool, counters, nil)

		outcome := p.Prepare(context.Background(), fetchedEntry(t, pool, header(0x1, 0xC), data, nil))
		assert.Equal(t, OutcomeIncompatible, outcome.Kind)
		assert.Equal(t, int64(1), counters.Dropped())
	})

	t.Run("SupportedProceeds", func(t *testing.T) {
		counters := &Counters{}
		backend := rhi.NewNullBackend()
		backend.RayTracing = true
		p := NewPrepareStage(newMemLibrary(0xC), backend, pool, counters, nil)

		outcome := p.Prepare(context.Background(), fetchedEntry(t, pool, header(0x1, 0xC), data, nil))
		assert.Equal(t, OutcomeReady, outcome.Kind)
	})
}

func TestPrepareStage_MissingShaderRequeues(t *testing.T) {
	pool := newTestPool(t)
	library := newMemLibrary(0xA) // 0xB missing
	counters := &Counters{}
	p := NewPrepareStage(library, rhi.NewNullBackend(), pool, counters, nil)

	data := encodeTestDescriptor(t, graphicsDescriptor(0xA, 0xB))
	h := header(0x1, 0xA, 0xB)
	outcome := p.Prepare(context.Background(), fetchedEntry(t, pool, h, data, nil))

	require.Equal(t, OutcomeRequeue, outcome.Kind)
	assert.Equal(t, h, outcome.Header)
	assert.Equal(t, int64(0), counters.Dropped())
}
