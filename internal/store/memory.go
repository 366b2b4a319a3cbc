package store

import (
	"errors"
	"sync"
)

// MemoryStore 内存存储（测试与无持久化场景）
type MemoryStore struct {
	plans map[string]Plan
	blobs map[string]Blobs
	mu    sync.RWMutex

	failWrites error
}

var (
	_ MetadataStore = (*MemoryStore)(nil)
	_ BlobStore     = (*MemoryStore)(nil)
)

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[string]Plan),
		blobs: make(map[string]Blobs),
	}
}

// Put 写入元数据
func (s *MemoryStore) Put(plan Plan) error {
	if plan.ID == "" {
		return errors.New("plan id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	s.plans[plan.ID] = plan
	return nil
}

// Get 读取元数据
func (s *MemoryStore) Get(id string) (Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return Plan{}, ErrNotFound
	}
	return p, nil
}

// List 上传时间倒序
func (s *MemoryStore) List() ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sortPlans(out)
	return out, nil
}

// Delete 删除元数据
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	if _, ok := s.plans[id]; !ok {
		return ErrNotFound
	}
	delete(s.plans, id)
	return nil
}

// PutBlobs 写入载荷（复制一份，避免调用方后续修改）
func (s *MemoryStore) PutBlobs(id string, blobs Blobs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	blobs.OriginalPayload = append([]byte(nil), blobs.OriginalPayload...)
	blobs.OptimizedPayload = append([]byte(nil), blobs.OptimizedPayload...)
	s.blobs[id] = blobs
	return nil
}

// GetBlobs 读取载荷
func (s *MemoryStore) GetBlobs(id string) (Blobs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[id]
	if !ok {
		return Blobs{}, ErrNotFound
	}
	return b, nil
}

// DeleteBlobs 删除载荷
func (s *MemoryStore) DeleteBlobs(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	delete(s.blobs, id)
	return nil
}

// SetFailWrites 设置后所有写操作返回 err（模拟存储不可用），传 nil 恢复
func (s *MemoryStore) SetFailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

// Count 计划数量
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plans)
}

// Close 无资源需要释放
func (s *MemoryStore) Close() error {
	return nil
}
