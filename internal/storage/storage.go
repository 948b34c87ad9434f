// Package storage provides blob storage backends for shader bytecode.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/pso-precache/pkg/config"
)

// Storage is the interface shader blob backends implement. Blobs are
// content-addressed: keys are derived from shader fingerprints, so objects
// are immutable once written.
type Storage interface {
	// Upload writes the blob at the specified key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Download reads the blob at the specified key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a blob exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the blob at the specified key.
	Delete(ctx context.Context, key string) error

	// GetURL returns the URL for the specified key, if the backend has one.
	GetURL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// NewStorage creates a Storage instance from shader library configuration.
func NewStorage(cfg *config.ShadersConfig) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("shaders config is nil")
	}

	switch StorageType(cfg.StorageType) {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}
