// Package store 计划存储：元数据索引（JSON 文件）+ 文件载荷（SQLite）。
package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"factoryflow/internal/stats"
)

// ErrNotFound 计划不存在
var ErrNotFound = errors.New("plan not found")

// Plan 计划元数据
type Plan struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	UploadDate        time.Time    `json:"uploadDate"`
	OriginalFilename  string       `json:"originalFilename"`
	OptimizedFilename string       `json:"optimizedFilename"`
	DeliveryStatus    string       `json:"deliveryStatus,omitempty"`
	Stats             *stats.Stats `json:"stats,omitempty"`
}

// Blobs 计划的原始文件与优化结果
type Blobs struct {
	OriginalPayload      []byte
	OriginalContentType  string
	OptimizedPayload     []byte
	OptimizedContentType string
}

// MetadataStore 元数据存储
type MetadataStore interface {
	// Put 写入元数据；同 ID 覆盖
	Put(plan Plan) error
	// Get 不存在时返回 ErrNotFound
	Get(id string) (Plan, error)
	// List 按上传时间倒序
	List() ([]Plan, error)
	Delete(id string) error
	Close() error
}

// BlobStore 文件载荷存储
type BlobStore interface {
	PutBlobs(id string, blobs Blobs) error
	// GetBlobs 不存在时返回 ErrNotFound
	GetBlobs(id string) (Blobs, error)
	DeleteBlobs(id string) error
	Close() error
}

// 数据目录下的文件名
const (
	IndexFile = "plans.json"
	BlobFile  = "blobs.db"
)

// Store 组合磁盘上的元数据索引与 SQLite 载荷库
type Store struct {
	*Index
	*BlobDB
}

var (
	_ MetadataStore = (*Store)(nil)
	_ BlobStore     = (*Store)(nil)
)

// Open 打开数据目录（不存在时创建）
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("dataDir is required")
	}

	idx, err := OpenIndex(filepath.Join(dataDir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open plan index: %w", err)
	}
	blobs, err := OpenBlobDB(filepath.Join(dataDir, BlobFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return &Store{Index: idx, BlobDB: blobs}, nil
}

// Close 关闭底层存储
func (s *Store) Close() error {
	return errors.Join(s.Index.Close(), s.BlobDB.Close())
}
