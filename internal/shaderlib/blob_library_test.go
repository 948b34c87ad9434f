package shaderlib

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pso-precache/internal/storage"
	"github.com/pso-precache/pkg/model"
)

func newTestLibrary(t *testing.T) *BlobLibrary {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewBlobLibrary(store, nil)
}

func publish(t *testing.T, l *BlobLibrary, component string, bytecode []byte) model.ShaderHash {
	t.Helper()
	hash, err := l.PublishShader(context.Background(), component, bytecode)
	require.NoError(t, err)
	return hash
}

func TestBlobLibrary_PublishAndOpen(t *testing.T) {
	l := newTestLibrary(t)
	ctx := context.Background()

	h1 := publish(t, l, "base", []byte("vertex shader"))
	h2 := publish(t, l, "base", []byte("fragment shader"))
	assert.NotEqual(t, h1, h2)

	// Published but not open: nothing is resolvable yet.
	assert.False(t, l.Contains(h1))

	require.NoError(t, l.OpenComponent(ctx, "base"))
	assert.True(t, l.Contains(h1))
	assert.True(t, l.Contains(h2))
	assert.Equal(t, []string{"base"}, l.OpenComponents())

	t.Run("Preload", func(t *testing.T) {
		data, err := l.Preload(ctx, h1)
		require.NoError(t, err)
		assert.Equal(t, []byte("vertex shader"), data)
	})

	t.Run("PreloadUnknown", func(t *testing.T) {
		_, err := l.Preload(ctx, 0xDEAD)
		assert.Error(t, err)
	})

	t.Run("OpenTwice", func(t *testing.T) {
		assert.Error(t, l.OpenComponent(ctx, "base"))
	})

	t.Run("OpenMissingComponent", func(t *testing.T) {
		assert.Error(t, l.OpenComponent(ctx, "nonexistent"))
	})
}

func TestBlobLibrary_PublishIsIdempotent(t *testing.T) {
	l := newTestLibrary(t)
	ctx := context.Background()

	h1 := publish(t, l, "base", []byte("shader"))
	h2 := publish(t, l, "base", []byte("shader"))
	assert.Equal(t, h1, h2)

	require.NoError(t, l.OpenComponent(ctx, "base"))
	l.mu.RLock()
	defer l.mu.RUnlock()
	assert.Len(t, l.components["base"], 1)
}

func TestBlobLibrary_CloseComponent(t *testing.T) {
	l := newTestLibrary(t)
	ctx := context.Background()

	shared := publish(t, l, "base", []byte("shared shader"))
	publish(t, l, "dlc", []byte("shared shader"))
	only := publish(t, l, "dlc", []byte("dlc shader"))

	require.NoError(t, l.OpenComponent(ctx, "base"))
	require.NoError(t, l.OpenComponent(ctx, "dlc"))

	// Both components provide the shared shader; closing one keeps it.
	require.NoError(t, l.CloseComponent("dlc"))
	assert.True(t, l.Contains(shared))
	assert.False(t, l.Contains(only))

	require.NoError(t, l.CloseComponent("base"))
	assert.False(t, l.Contains(shared))

	t.Run("CloseNotOpen", func(t *testing.T) {
		assert.Error(t, l.CloseComponent("dlc"))
	})
}

func TestBlobLibrary_Notify(t *testing.T) {
	l := newTestLibrary(t)
	ctx := context.Background()
	publish(t, l, "base", []byte("shader"))

	var events []Event
	unsubscribe := l.Notify(func(ev Event) { events = append(events, ev) })

	require.NoError(t, l.OpenComponent(ctx, "base"))
	require.NoError(t, l.CloseComponent("base"))
	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: ComponentOpened, Component: "base"}, events[0])
	assert.Equal(t, Event{Kind: ComponentClosed, Component: "base"}, events[1])

	unsubscribe()
	require.NoError(t, l.OpenComponent(ctx, "base"))
	assert.Len(t, events, 2, "unsubscribed callback must not fire")
}
