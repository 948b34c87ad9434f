package psostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/pso-precache/pkg/errors"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/utils"
)

// pendingBind accumulates unsaved bind bookkeeping for one hash.
type pendingBind struct {
	count     int64
	mask      model.UsageMask
	lastBound time.Time
}

// GormStore implements Store on a GORM database.
type GormStore struct {
	db     *gorm.DB
	logger utils.Logger
	clock  utils.Clock

	mu       sync.Mutex
	name     string
	open     bool
	mask     model.UsageMask
	cmp      model.MaskComparer
	pending  map[model.Hash]*pendingBind
	newBinds int
}

// NewGormStore creates a GormStore over an open database handle.
func NewGormStore(db *gorm.DB, logger utils.Logger, clock utils.Clock) *GormStore {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}
	return &GormStore{
		db:      db,
		logger:  logger,
		clock:   clock,
		mask:    model.MaskAll,
		cmp:     model.MaskAnyMatch,
		pending: make(map[model.Hash]*pendingBind),
	}
}

// Open opens the named cache and returns its info.
func (s *GormStore) Open(ctx context.Context, name string) (StoreInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return StoreInfo{}, apperrors.ErrAlreadyOpen
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&PSORow{}, &BindLogRow{}); err != nil {
		return StoreInfo{}, apperrors.Wrap(apperrors.CodeStoreError, "failed to migrate store schema", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&PSORow{}).
		Where("cache_name = ?", name).
		Count(&count).Error; err != nil {
		return StoreInfo{}, apperrors.Wrap(apperrors.CodeStoreError, "failed to count records", err)
	}

	s.name = name
	s.open = true

	info := StoreInfo{
		Name:        name,
		Guid:        fmt.Sprintf("%016x", model.FingerprintBytes([]byte(name))),
		RecordCount: count,
	}
	s.logger.Info("Opened PSO store %s with %d records", name, count)
	return info, nil
}

// OrderedHeaders returns task headers passing the mask, bind count and
// exclude filters. The mask comparer cannot run in SQL, so candidate rows are
// filtered here after the ordered query.
func (s *GormStore) OrderedHeaders(ctx context.Context, order model.PSOOrder, minBindCount int, exclude map[model.Hash]struct{}) ([]model.TaskHeader, error) {
	s.mu.Lock()
	name, open := s.name, s.open
	mask, cmp := s.mask, s.cmp
	s.mu.Unlock()
	if !open {
		return nil, apperrors.ErrNotOpen
	}

	query := s.db.WithContext(ctx).Model(&PSORow{}).
		Select("hash", "usage_mask", "shader_hashes").
		Where("cache_name = ?", name)
	if minBindCount > 0 {
		query = query.Where("bind_count >= ?", minBindCount)
	}

	switch order {
	case model.OrderMostBound:
		query = query.Order("bind_count DESC")
	case model.OrderMostRecent:
		query = query.Order("last_bound_at DESC")
	default:
		query = query.Order("hash ASC")
	}

	var rows []PSORow
	if err := query.Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStoreError, "failed to query headers", err)
	}

	headers := make([]model.TaskHeader, 0, len(rows))
	for _, row := range rows {
		hash := model.Hash(row.Hash)
		if _, skip := exclude[hash]; skip {
			continue
		}
		if cmp != nil && !cmp(model.UsageMask(row.UsageMask), mask) {
			continue
		}
		shaders, err := decodeShaderHashes(row.ShaderHashes)
		if err != nil {
			s.logger.Warn("Record %s has malformed shader hash column, skipping", hash)
			continue
		}
		headers = append(headers, model.TaskHeader{Hash: hash, ShaderHashes: shaders})
	}

	return headers, nil
}

// FetchDescriptor reads the raw descriptor bytes for a hash.
func (s *GormStore) FetchDescriptor(ctx context.Context, hash model.Hash) ([]byte, error) {
	s.mu.Lock()
	name, open := s.name, s.open
	s.mu.Unlock()
	if !open {
		return nil, apperrors.ErrNotOpen
	}

	var row PSORow
	err := s.db.WithContext(ctx).
		Where("cache_name = ? AND hash = ?", name, uint64(hash)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("no record for %s", hash), err)
		}
		return nil, apperrors.Wrap(apperrors.CodeStoreError, "failed to fetch descriptor", err)
	}

	return row.Descriptor, nil
}

// SetUsageMask installs the mask and comparer and returns the previous mask.
func (s *GormStore) SetUsageMask(mask model.UsageMask, cmp model.MaskComparer) model.UsageMask {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.mask
	s.mask = mask
	if cmp != nil {
		s.cmp = cmp
	}
	return previous
}

// Upsert inserts or replaces a record.
func (s *GormStore) Upsert(ctx context.Context, rec *PSORecord) error {
	s.mu.Lock()
	name, open := s.name, s.open
	s.mu.Unlock()
	if !open {
		return apperrors.ErrNotOpen
	}

	shaders, err := encodeShaderHashes(rec.ShaderHashes)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreError, "failed to encode shader hashes", err)
	}

	row := PSORow{
		Hash:         uint64(rec.Hash),
		CacheName:    name,
		Kind:         int(rec.Kind),
		UsageMask:    uint64(rec.UsageMask),
		BindCount:    rec.BindCount,
		LastBoundAt:  s.clock.Now(),
		ShaderHashes: shaders,
		Descriptor:   rec.Descriptor,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}, {Name: "cache_name"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreError, "failed to upsert record", err)
	}
	return nil
}

// LogBind records that a PSO was bound this run.
func (s *GormStore) LogBind(hash model.Hash, mask model.UsageMask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[hash]
	if !ok {
		p = &pendingBind{}
		s.pending[hash] = p
	}
	p.count++
	p.mask |= mask
	p.lastBound = s.clock.Now()
	s.newBinds++
}

// NumNewBinds returns the number of binds logged since the last save.
func (s *GormStore) NumNewBinds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newBinds
}

// Save persists per the given mode and clears the pending bind log.
func (s *GormStore) Save(ctx context.Context, mode model.SaveMode) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return apperrors.ErrNotOpen
	}
	name := s.name
	pending := s.pending
	s.pending = make(map[model.Hash]*pendingBind)
	s.newBinds = 0
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	entries := make([]BindLogRow, 0, len(pending))
	for hash, p := range pending {
		entries = append(entries, BindLogRow{
			CacheName: name,
			Hash:      uint64(hash),
			UsageMask: uint64(p.mask),
			BindCount: p.count,
			BoundAt:   p.lastBound,
		})
	}
	if mode == model.SaveSortedBound {
		sortBindRows(entries)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mode == model.SaveIncremental {
			// Fold bind counts back into the records as well.
			for hash, p := range pending {
				res := tx.Model(&PSORow{}).
					Where("cache_name = ? AND hash = ?", name, uint64(hash)).
					Updates(map[string]interface{}{
						"bind_count":    gorm.Expr("bind_count + ?", p.count),
						"last_bound_at": p.lastBound,
					})
				if res.Error != nil {
					return res.Error
				}
			}
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreError, "failed to save bind log", err)
	}

	s.logger.Debug("Saved %d bind log entries (mode %s)", len(entries), mode)
	return nil
}

// Close releases the store.
func (s *GormStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	s.pending = make(map[model.Hash]*pendingBind)
	s.newBinds = 0
	s.logger.Info("Closed PSO store %s", s.name)
	return nil
}

// sortBindRows orders bind log rows by descending bind count.
func sortBindRows(rows []BindLogRow) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].BindCount > rows[j].BindCount
	})
}
