package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// BlobDB SQLite 载荷存储
type BlobDB struct {
	db *sql.DB
}

// OpenBlobDB 打开（或创建）载荷数据库
func OpenBlobDB(dbPath string) (*BlobDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite 单连接，写入天然串行
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	b := &BlobDB{db: db}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b, nil
}

func (b *BlobDB) initSchema() error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := b.db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// PutBlobs 写入计划的原始文件与优化结果；同 ID 覆盖
func (b *BlobDB) PutBlobs(id string, blobs Blobs) error {
	if err := requireNonEmptyString(id, "plan id is required"); err != nil {
		return err
	}
	_, err := b.db.Exec(`
		INSERT INTO plan_blobs (
			plan_id,
			original_payload, original_content_type,
			optimized_payload, optimized_content_type
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			original_payload = excluded.original_payload,
			original_content_type = excluded.original_content_type,
			optimized_payload = excluded.optimized_payload,
			optimized_content_type = excluded.optimized_content_type,
			updated_at = CURRENT_TIMESTAMP
	`,
		id,
		nonNil(blobs.OriginalPayload), blobs.OriginalContentType,
		nonNil(blobs.OptimizedPayload), blobs.OptimizedContentType,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan blobs: %w", err)
	}
	return nil
}

// GetBlobs 读取计划载荷
func (b *BlobDB) GetBlobs(id string) (Blobs, error) {
	var out Blobs
	err := b.db.QueryRow(`
		SELECT original_payload, original_content_type, optimized_payload, optimized_content_type
		FROM plan_blobs WHERE plan_id = ?
	`, id).Scan(&out.OriginalPayload, &out.OriginalContentType, &out.OptimizedPayload, &out.OptimizedContentType)
	if errors.Is(err, sql.ErrNoRows) {
		return Blobs{}, ErrNotFound
	}
	if err != nil {
		return Blobs{}, fmt.Errorf("failed to load plan blobs: %w", err)
	}
	return out, nil
}

// DeleteBlobs 删除计划载荷（不存在时不报错）
func (b *BlobDB) DeleteBlobs(id string) error {
	if _, err := b.db.Exec(`DELETE FROM plan_blobs WHERE plan_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete plan blobs: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (b *BlobDB) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nonNil(p []byte) []byte {
	if p == nil {
		return []byte{}
	}
	return p
}
