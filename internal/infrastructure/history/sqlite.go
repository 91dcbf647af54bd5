package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/domain/repositories"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS download_records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id          TEXT    NOT NULL,
	fingerprint      TEXT    NOT NULL,
	filename         TEXT    NOT NULL DEFAULT '',
	thumbnail_ref    TEXT    NOT NULL DEFAULT '',
	destination_path TEXT    NOT NULL DEFAULT '',
	byte_size        INTEGER NOT NULL DEFAULT 0,
	status           TEXT    NOT NULL,
	error_text       TEXT    NOT NULL DEFAULT '',
	recorded_at      INTEGER NOT NULL,
	UNIQUE(task_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_download_records_task_status ON download_records(task_id, status);
`

// 成功记录不会被之后的失败覆盖
const upsertQuery = `
INSERT INTO download_records
	(task_id, fingerprint, filename, thumbnail_ref, destination_path, byte_size, status, error_text, recorded_at)
VALUES
	(:task_id, :fingerprint, :filename, :thumbnail_ref, :destination_path, :byte_size, :status, :error_text, :recorded_at)
ON CONFLICT(task_id, fingerprint) DO UPDATE SET
	filename         = excluded.filename,
	thumbnail_ref    = excluded.thumbnail_ref,
	destination_path = excluded.destination_path,
	byte_size        = excluded.byte_size,
	status           = excluded.status,
	error_text       = excluded.error_text,
	recorded_at      = excluded.recorded_at
WHERE download_records.status <> 'success' OR excluded.status = 'success'
`

const countsQuery = `
SELECT
	COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS success,
	COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
	MAX(CASE WHEN status = 'success' THEN recorded_at END) AS last_success_at
FROM download_records
WHERE task_id = ?
`

type recordRow struct {
	TaskID          string `db:"task_id"`
	Fingerprint     string `db:"fingerprint"`
	Filename        string `db:"filename"`
	ThumbnailRef    string `db:"thumbnail_ref"`
	DestinationPath string `db:"destination_path"`
	ByteSize        int64  `db:"byte_size"`
	Status          string `db:"status"`
	ErrorText       string `db:"error_text"`
	RecordedAt      int64  `db:"recorded_at"`
}

type countsRow struct {
	Total         int           `db:"total"`
	Success       int           `db:"success"`
	Failed        int           `db:"failed"`
	LastSuccessAt sql.NullInt64 `db:"last_success_at"`
}

// SQLiteStore 基于 SQLite 的去重/历史存储
type SQLiteStore struct {
	db *sqlx.DB
}

var _ repositories.HistoryStore = (*SQLiteStore)(nil)

// OpenSQLite 打开(必要时创建)数据库文件并初始化表结构
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// SQLite 单写者，串行化连接避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure history db: %w", err)
	}

	store := NewSQLiteStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore 使用已有连接
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate 创建表和索引
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate history db: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, taskID, fingerprint string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM download_records WHERE task_id = ? AND fingerprint = ? AND status = 'success'`,
		taskID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("history lookup failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, record *entities.DownloadRecord) error {
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	row := recordRow{
		TaskID:          record.TaskID,
		Fingerprint:     record.Fingerprint,
		Filename:        record.Filename,
		ThumbnailRef:    record.ThumbnailRef,
		DestinationPath: record.DestinationPath,
		ByteSize:        record.ByteSize,
		Status:          string(record.Status),
		ErrorText:       record.ErrorText,
		RecordedAt:      ts.UnixMilli(),
	}
	if _, err := s.db.NamedExecContext(ctx, upsertQuery, row); err != nil {
		return fmt.Errorf("history upsert failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AggregateCounts(ctx context.Context, taskID string) (*entities.HistoryCounts, error) {
	var row countsRow
	if err := s.db.GetContext(ctx, &row, countsQuery, taskID); err != nil {
		return nil, fmt.Errorf("history aggregate failed: %w", err)
	}

	counts := &entities.HistoryCounts{
		Total:   row.Total,
		Success: row.Success,
		Failed:  row.Failed,
	}
	if row.LastSuccessAt.Valid {
		t := time.UnixMilli(row.LastSuccessAt.Int64)
		counts.LastSuccessAt = &t
	}
	return counts, nil
}

// Get 读取单条记录，不存在时返回 nil
func (s *SQLiteStore) Get(ctx context.Context, taskID, fingerprint string) (*entities.DownloadRecord, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		`SELECT task_id, fingerprint, filename, thumbnail_ref, destination_path, byte_size, status, error_text, recorded_at
		 FROM download_records WHERE task_id = ? AND fingerprint = ?`,
		taskID, fingerprint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history get failed: %w", err)
	}
	return row.toEntity(), nil
}

func (r recordRow) toEntity() *entities.DownloadRecord {
	return &entities.DownloadRecord{
		TaskID:          r.TaskID,
		Fingerprint:     r.Fingerprint,
		Filename:        r.Filename,
		ThumbnailRef:    r.ThumbnailRef,
		DestinationPath: r.DestinationPath,
		ByteSize:        r.ByteSize,
		Status:          entities.RecordStatus(r.Status),
		ErrorText:       r.ErrorText,
		Timestamp:       time.UnixMilli(r.RecordedAt),
	}
}
