// Package psostore provides the persistent PSO record store: the log of
// pipeline state objects recorded on prior runs, ordered for precompilation
// and updated with bound-PSO bookkeeping.
package psostore

import (
	"context"

	"github.com/pso-precache/pkg/model"
)

// StoreInfo describes an opened store.
type StoreInfo struct {
	Name        string
	Guid        string
	RecordCount int64
}

// PSORecord is one recorded pipeline state object.
type PSORecord struct {
	Hash         model.Hash
	Kind         model.PipelineKind
	UsageMask    model.UsageMask
	BindCount    int64
	ShaderHashes []model.ShaderHash
	Descriptor   []byte // Encoded descriptor bytes
}

// Store is the record store interface the precompile conveyor consumes.
// Implementations must be safe for use from the conveyor goroutine plus
// callers of Save/LogBind.
type Store interface {
	// Open opens the named cache and returns its info.
	Open(ctx context.Context, name string) (StoreInfo, error)

	// OrderedHeaders returns task headers for records passing the current
	// usage mask, the minimum bind count and the exclude set, in the
	// requested order.
	OrderedHeaders(ctx context.Context, order model.PSOOrder, minBindCount int, exclude map[model.Hash]struct{}) ([]model.TaskHeader, error)

	// FetchDescriptor reads the raw descriptor bytes for a hash.
	FetchDescriptor(ctx context.Context, hash model.Hash) ([]byte, error)

	// SetUsageMask installs the mask and comparer used by OrderedHeaders and
	// returns the previous mask.
	SetUsageMask(mask model.UsageMask, cmp model.MaskComparer) model.UsageMask

	// Upsert inserts or replaces a record. Used by recording tools and tests.
	Upsert(ctx context.Context, rec *PSORecord) error

	// LogBind records that a PSO was bound this run. Flushed on Save.
	LogBind(hash model.Hash, mask model.UsageMask)

	// NumNewBinds returns the number of binds logged since the last save.
	NumNewBinds() int

	// Save persists per the given mode.
	Save(ctx context.Context, mode model.SaveMode) error

	// Close releases the store. The store must not be used afterwards.
	Close() error
}
