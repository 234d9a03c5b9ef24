package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/kart-io/megaservice/internal/model"
)

// 通函元数据所在的数据库与集合
const (
	CircularsDB         = "easy_circulars"
	CircularsCollection = "circulars"
)

// ErrCircularNotFound 通函不存在。
var ErrCircularNotFound = errors.New("circular not found")

// CircularPatch 通函的部分更新，nil 字段不修改。
type CircularPatch struct {
	Bookmark       *bool
	ConversationID *string
}

// CircularStore 通函元数据存储接口。
type CircularStore interface {
	// UpdateCircular 更新书签或关联会话，通函不存在时返回 ErrCircularNotFound。
	UpdateCircular(ctx context.Context, id string, patch CircularPatch) error
	// GetCircular 获取通函，不存在时返回 ErrCircularNotFound。
	GetCircular(ctx context.Context, id string) (*model.Circular, error)
	// FindCirculars 按 ID 批量获取，忽略不存在的 ID。
	FindCirculars(ctx context.Context, ids []string) ([]model.Circular, error)
	// ListCirculars 列出通函，bookmarked 为 true 时只返回已加书签的。
	ListCirculars(ctx context.Context, bookmarked bool) ([]model.Circular, error)
}

var _ CircularStore = (*MemoryCircularStore)(nil)

// MemoryCircularStore 进程内通函存储，用于测试。
type MemoryCircularStore struct {
	mu sync.RWMutex
	m  map[string]model.Circular
}

// NewMemoryCircularStore 创建进程内通函存储。
func NewMemoryCircularStore(circulars ...model.Circular) *MemoryCircularStore {
	s := &MemoryCircularStore{m: make(map[string]model.Circular, len(circulars))}
	for _, c := range circulars {
		s.m[c.CircularID] = cloneCircular(c)
	}
	return s
}

// UpdateCircular 实现 CircularStore。
func (s *MemoryCircularStore) UpdateCircular(_ context.Context, id string, patch CircularPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[id]
	if !ok {
		return ErrCircularNotFound
	}
	if patch.Bookmark != nil {
		c.Bookmark = *patch.Bookmark
	}
	if patch.ConversationID != nil {
		c.ConversationID = *patch.ConversationID
	}
	s.m[id] = c
	return nil
}

// GetCircular 实现 CircularStore。
func (s *MemoryCircularStore) GetCircular(_ context.Context, id string) (*model.Circular, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.m[id]
	if !ok {
		return nil, ErrCircularNotFound
	}
	c = cloneCircular(c)
	return &c, nil
}

// FindCirculars 实现 CircularStore。
func (s *MemoryCircularStore) FindCirculars(_ context.Context, ids []string) ([]model.Circular, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Circular{}
	for _, id := range ids {
		if c, ok := s.m[id]; ok {
			out = append(out, cloneCircular(c))
		}
	}
	return out, nil
}

// ListCirculars 实现 CircularStore。结果按 ID 排序。
func (s *MemoryCircularStore) ListCirculars(_ context.Context, bookmarked bool) ([]model.Circular, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Circular{}
	for _, c := range s.m {
		if bookmarked && !c.Bookmark {
			continue
		}
		out = append(out, cloneCircular(c))
	}
	slices.SortFunc(out, func(a, b model.Circular) int {
		return strings.Compare(a.CircularID, b.CircularID)
	})
	return out, nil
}

func cloneCircular(c model.Circular) model.Circular {
	c.Tags = slices.Clone(c.Tags)
	c.References = slices.Clone(c.References)
	return c
}
