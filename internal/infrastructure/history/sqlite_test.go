package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(taskID, fp string, status entities.RecordStatus) *entities.DownloadRecord {
	return &entities.DownloadRecord{
		TaskID:          taskID,
		Fingerprint:     fp,
		Filename:        fp + ".jpg",
		DestinationPath: "/photos/" + fp + ".jpg",
		ByteSize:        1024,
		Status:          status,
		Timestamp:       time.Now(),
	}
}

func TestSQLiteStore_ExistsOnlyForSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	exists, err := store.Exists(ctx, "t1", "a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upsert(ctx, record("t1", "a", entities.RecordStatusFailed)))
	exists, err = store.Exists(ctx, "t1", "a")
	require.NoError(t, err)
	assert.False(t, exists, "失败记录不应阻止重试")

	require.NoError(t, store.Upsert(ctx, record("t1", "a", entities.RecordStatusSuccess)))
	exists, err = store.Exists(ctx, "t1", "a")
	require.NoError(t, err)
	assert.True(t, exists)

	// 不同任务互不影响
	exists, err = store.Exists(ctx, "t2", "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStore_UpsertNeverDowngradesSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	require.NoError(t, store.Upsert(ctx, record("t1", "a", entities.RecordStatusSuccess)))

	failed := record("t1", "a", entities.RecordStatusFailed)
	failed.ErrorText = "http error: status 404"
	require.NoError(t, store.Upsert(ctx, failed))

	got, err := store.Get(ctx, "t1", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entities.RecordStatusSuccess, got.Status)
	assert.Empty(t, got.ErrorText)

	missing, err := store.Get(ctx, "t1", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_AggregateCounts(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	counts, err := store.AggregateCounts(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Total)
	assert.Nil(t, counts.LastSuccessAt)

	latest := time.Now().Truncate(time.Millisecond)
	r1 := record("t1", "a", entities.RecordStatusSuccess)
	r1.Timestamp = latest.Add(-time.Hour)
	r2 := record("t1", "b", entities.RecordStatusSuccess)
	r2.Timestamp = latest
	r3 := record("t1", "c", entities.RecordStatusFailed)
	r3.Timestamp = latest.Add(time.Hour)

	for _, r := range []*entities.DownloadRecord{r1, r2, r3, record("t2", "x", entities.RecordStatusSuccess)} {
		require.NoError(t, store.Upsert(ctx, r))
	}

	counts, err = store.AggregateCounts(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.Success)
	assert.Equal(t, 1, counts.Failed)
	require.NotNil(t, counts.LastSuccessAt)
	assert.True(t, counts.LastSuccessAt.Equal(latest))
}

func TestSQLiteStore_PropagatesDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(sqlx.NewDb(db, "sqlmock"))
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("disk I/O error"))

	_, err = store.Exists(context.Background(), "t1", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history lookup failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
