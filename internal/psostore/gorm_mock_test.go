package psostore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/pso-precache/pkg/errors"
	"github.com/pso-precache/pkg/model"
	"github.com/pso-precache/pkg/utils"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewGormStore(db, &utils.NullLogger{}, utils.NewRealClock()), mock
}

func TestGormStore_MySQL_OpenMigrationFailure(t *testing.T) {
	store, _ := newMockStore(t)

	// No expectations are registered, so the first schema query fails and
	// the failure must surface as a store error.
	_, err := store.Open(context.Background(), "base")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStoreError, apperrors.GetErrorCode(err))
}

func TestGormStore_MySQL_FailedOpenLeavesStoreClosed(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Open(context.Background(), "base")
	require.Error(t, err)

	_, err = store.FetchDescriptor(context.Background(), model.Hash(0x1))
	assert.ErrorIs(t, err, apperrors.ErrNotOpen)

	_, err = store.OrderedHeaders(context.Background(), model.OrderMostBound, 0, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotOpen)
}
