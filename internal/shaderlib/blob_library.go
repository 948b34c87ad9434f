package shaderlib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pso-precache/internal/storage"
	apperrors "github.com/pso-precache/pkg/errors"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/utils"
)

// Manifest describes one component's shaders: which hashes it provides and
// the blob key each one lives under.
type Manifest struct {
	Component string          `json:"component"`
	Shaders   []ManifestEntry `json:"shaders"`
}

// ManifestEntry is a single shader in a component manifest.
type ManifestEntry struct {
	Hash string `json:"hash"`          // 16-digit hex ShaderHash
	Key  string `json:"key,omitempty"` // Blob key, defaults to blobs/<hash>
	Size int64  `json:"size,omitempty"`
}

// BlobLibrary implements Library on top of a storage backend. Components are
// JSON manifests under components/<name>.json pointing at content-addressed
// blobs.
type BlobLibrary struct {
	notifier

	store  storage.Storage
	logger utils.Logger

	mu         sync.RWMutex
	index      map[model.ShaderHash]string // hash -> blob key
	refs       map[model.ShaderHash]int    // components providing the hash
	components map[string][]model.ShaderHash
}

// NewBlobLibrary creates a BlobLibrary over the given storage backend.
func NewBlobLibrary(store storage.Storage, logger utils.Logger) *BlobLibrary {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &BlobLibrary{
		store:      store,
		logger:     logger,
		index:      make(map[model.ShaderHash]string),
		refs:       make(map[model.ShaderHash]int),
		components: make(map[string][]model.ShaderHash),
	}
}

// blobKey is the default key layout for content-addressed shader blobs.
func blobKey(hash model.ShaderHash) string {
	return "blobs/" + hash.String()
}

func manifestKey(component string) string {
	return "components/" + component + ".json"
}

// OpenComponent loads a component manifest and makes its shaders resolvable.
// Fires a ComponentOpened event on success.
func (l *BlobLibrary) OpenComponent(ctx context.Context, name string) error {
	rc, err := l.store.Download(ctx, manifestKey(name))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "failed to read component manifest", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "failed to read component manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "malformed component manifest", err)
	}

	hashes := make([]model.ShaderHash, 0, len(m.Shaders))
	l.mu.Lock()
	if _, ok := l.components[name]; ok {
		l.mu.Unlock()
		return fmt.Errorf("component already open: %s", name)
	}
	for _, entry := range m.Shaders {
		raw, err := strconv.ParseUint(entry.Hash, 16, 64)
		if err != nil {
			l.logger.Warn("Skipping manifest entry with bad hash %q in component %s", entry.Hash, name)
			continue
		}
		hash := model.ShaderHash(raw)
		key := entry.Key
		if key == "" {
			key = blobKey(hash)
		}
		if l.refs[hash] == 0 {
			l.index[hash] = key
		}
		l.refs[hash]++
		hashes = append(hashes, hash)
	}
	l.components[name] = hashes
	l.mu.Unlock()

	l.logger.Info("Shader component %s opened with %d shaders", name, len(hashes))
	l.publish(Event{Kind: ComponentOpened, Component: name})
	return nil
}

// CloseComponent withdraws a component's shaders. Shaders still provided by
// another open component remain resolvable. Fires a ComponentClosed event.
func (l *BlobLibrary) CloseComponent(name string) error {
	l.mu.Lock()
	hashes, ok := l.components[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("component not open: %s", name)
	}
	delete(l.components, name)
	for _, hash := range hashes {
		l.refs[hash]--
		if l.refs[hash] <= 0 {
			delete(l.refs, hash)
			delete(l.index, hash)
		}
	}
	l.mu.Unlock()

	l.logger.Info("Shader component %s closed", name)
	l.publish(Event{Kind: ComponentClosed, Component: name})
	return nil
}

// Contains reports whether bytecode for the hash is currently resolvable.
func (l *BlobLibrary) Contains(hash model.ShaderHash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[hash]
	return ok
}

// Preload reads the bytecode blob for the hash.
func (l *BlobLibrary) Preload(ctx context.Context, hash model.ShaderHash) ([]byte, error) {
	l.mu.RLock()
	key, ok := l.index[hash]
	l.mu.RUnlock()
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeShaderUnavailable,
			fmt.Sprintf("shader %s not in any open component", hash), nil)
	}

	rc, err := l.store.Download(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "failed to read shader blob", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "failed to read shader blob", err)
	}
	return data, nil
}

// PublishShader uploads bytecode into a component, creating or extending its
// manifest. Intended for tooling that seeds a library; the component must be
// reopened for the new shader to become resolvable.
func (l *BlobLibrary) PublishShader(ctx context.Context, component string, bytecode []byte) (model.ShaderHash, error) {
	hash := model.ShaderFingerprint(bytecode)
	key := blobKey(hash)

	if err := l.store.Upload(ctx, key, bytes.NewReader(bytecode)); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIOError, "failed to upload shader blob", err)
	}

	m := Manifest{Component: component}
	if rc, err := l.store.Download(ctx, manifestKey(component)); err == nil {
		data, readErr := io.ReadAll(rc)
		rc.Close()
		if readErr == nil {
			_ = json.Unmarshal(data, &m)
		}
	}

	for _, entry := range m.Shaders {
		if entry.Hash == hash.String() {
			return hash, nil
		}
	}
	m.Shaders = append(m.Shaders, ManifestEntry{
		Hash: hash.String(),
		Key:  key,
		Size: int64(len(bytecode)),
	})

	data, err := json.Marshal(&m)
	if err != nil {
		return 0, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := l.store.Upload(ctx, manifestKey(component), bytes.NewReader(data)); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIOError, "failed to upload manifest", err)
	}

	return hash, nil
}

// OpenComponents returns the names of the currently open components.
func (l *BlobLibrary) OpenComponents() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.components))
	for name := range l.components {
		names = append(names, name)
	}
	return names
}
