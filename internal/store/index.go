package store

import (
	"sort"
	"sync"
)

const schemaVersion = 1

// PlansIndex 索引文件内容：data/plans.json
type PlansIndex struct {
	SchemaVersion int    `json:"schemaVersion"`
	Items         []Plan `json:"items"`
}

// Index 元数据索引：内存副本 + 原子写回磁盘
type Index struct {
	path string

	mu    sync.Mutex
	index PlansIndex
}

// OpenIndex 打开索引文件，不存在时创建空索引
func OpenIndex(path string) (*Index, error) {
	if err := requireNonEmptyString(path, "index path is required"); err != nil {
		return nil, err
	}

	idx := &Index{
		path: path,
		index: PlansIndex{
			SchemaVersion: schemaVersion,
			Items:         []Plan{},
		},
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (x *Index) load() error {
	if !fileExists(x.path) {
		return writeJSONAtomic(x.path, x.index)
	}
	var idx PlansIndex
	if err := readJSON(x.path, &idx); err != nil {
		return err
	}
	if idx.SchemaVersion == 0 {
		idx.SchemaVersion = schemaVersion
	}
	if idx.Items == nil {
		idx.Items = []Plan{}
	}
	x.index = idx
	x.sortLocked()
	return nil
}

// Put 写入或覆盖计划元数据
func (x *Index) Put(plan Plan) error {
	if err := requireNonEmptyString(plan.ID, "plan id is required"); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	items := make([]Plan, 0, len(x.index.Items)+1)
	items = append(items, plan)
	for _, it := range x.index.Items {
		if it.ID != plan.ID {
			items = append(items, it)
		}
	}

	next := x.index
	next.Items = items
	sortPlans(next.Items)
	if err := writeJSONAtomic(x.path, next); err != nil {
		return err
	}
	x.index = next
	return nil
}

// Get 按 ID 读取
func (x *Index) Get(id string) (Plan, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, it := range x.index.Items {
		if it.ID == id {
			return it, nil
		}
	}
	return Plan{}, ErrNotFound
}

// List 返回全部计划（上传时间倒序）
func (x *Index) List() ([]Plan, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]Plan, len(x.index.Items))
	copy(out, x.index.Items)
	return out, nil
}

// Delete 删除计划；不存在时返回 ErrNotFound
func (x *Index) Delete(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	items := make([]Plan, 0, len(x.index.Items))
	found := false
	for _, it := range x.index.Items {
		if it.ID == id {
			found = true
			continue
		}
		items = append(items, it)
	}
	if !found {
		return ErrNotFound
	}

	next := x.index
	next.Items = items
	if err := writeJSONAtomic(x.path, next); err != nil {
		return err
	}
	x.index = next
	return nil
}

// Close 索引每次修改都已落盘，无需额外动作
func (x *Index) Close() error {
	return nil
}

func (x *Index) sortLocked() {
	sortPlans(x.index.Items)
}

func sortPlans(items []Plan) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UploadDate.After(items[j].UploadDate)
	})
}
