package psostore

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pso-precache/pkg/model"
)

// SchemaVersion is the revision of the pso_records and pso_bind_log row
// layouts. Bump it when a model change breaks existing cache files.
const SchemaVersion = 1

// PSORow is the GORM row for a recorded PSO.
type PSORow struct {
	Hash         uint64    `gorm:"column:hash;primaryKey;autoIncrement:false"`
	CacheName    string    `gorm:"column:cache_name;primaryKey;index"`
	Kind         int       `gorm:"column:kind"`
	UsageMask    uint64    `gorm:"column:usage_mask"`
	BindCount    int64     `gorm:"column:bind_count;index"`
	LastBoundAt  time.Time `gorm:"column:last_bound_at;index"`
	ShaderHashes string    `gorm:"column:shader_hashes;type:text"` // JSON array of hex hashes
	Descriptor   []byte    `gorm:"column:descriptor"`
}

// TableName overrides the GORM table name.
func (PSORow) TableName() string {
	return "pso_records"
}

// BindLogRow is one persisted bound-PSO log entry.
type BindLogRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CacheName string    `gorm:"column:cache_name;index"`
	Hash      uint64    `gorm:"column:hash"`
	UsageMask uint64    `gorm:"column:usage_mask"`
	BindCount int64     `gorm:"column:bind_count"`
	BoundAt   time.Time `gorm:"column:bound_at"`
}

// TableName overrides the GORM table name.
func (BindLogRow) TableName() string {
	return "pso_bind_log"
}

// encodeShaderHashes serializes shader hashes to the row's JSON column form.
func encodeShaderHashes(hashes []model.ShaderHash) (string, error) {
	strs := make([]string, len(hashes))
	for i, h := range hashes {
		strs[i] = h.String()
	}
	data, err := json.Marshal(strs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeShaderHashes parses the row's JSON column back into hashes.
func decodeShaderHashes(s string) ([]model.ShaderHash, error) {
	if s == "" {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal([]byte(s), &strs); err != nil {
		return nil, err
	}
	hashes := make([]model.ShaderHash, 0, len(strs))
	for _, str := range strs {
		raw, err := strconv.ParseUint(str, 16, 64)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, model.ShaderHash(raw))
	}
	return hashes, nil
}
