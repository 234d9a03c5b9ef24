package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/megaservice/internal/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore 进程内会话存储，用于测试和本地调试。
type MemoryStore struct {
	mu  sync.RWMutex
	dbs map[string]map[string]*model.Conversation
}

// NewMemoryStore 创建进程内会话存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dbs: make(map[string]map[string]*model.Conversation)}
}

func (s *MemoryStore) db(name string) map[string]*model.Conversation {
	m, ok := s.dbs[name]
	if !ok {
		m = make(map[string]*model.Conversation)
		s.dbs[name] = m
	}
	return m
}

// Create 实现 Store。
func (s *MemoryStore) Create(_ context.Context, db string, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db(db)[conv.ConversationID] = cloneConversation(conv)
	return nil
}

// Get 实现 Store。
func (s *MemoryStore) Get(_ context.Context, db, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.dbs[db][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

// AppendTurn 实现 Store。
func (s *MemoryStore) AppendTurn(_ context.Context, db, id string, turn model.Turn, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.db(db)
	conv, ok := m[id]
	if !ok {
		conv = &model.Conversation{ConversationID: id, CreatedAt: at, History: []model.Turn{}}
		m[id] = conv
	}
	conv.History = append(conv.History, turn)
	conv.LastUpdated = at
	return nil
}

// Delete 实现 Store。
func (s *MemoryStore) Delete(_ context.Context, db, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[db][id]; !ok {
		return ErrNotFound
	}
	delete(s.dbs[db], id)
	return nil
}

// List 实现 Store。
func (s *MemoryStore) List(_ context.Context, db string, limit, skip int) ([]model.Conversation, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.Conversation, 0, len(s.dbs[db]))
	for _, conv := range s.dbs[db] {
		all = append(all, *cloneConversation(conv))
	}
	slices.SortStableFunc(all, func(a, b model.Conversation) int {
		if c := b.LastUpdated.Compare(a.LastUpdated); c != 0 {
			return c
		}
		return strings.Compare(a.ConversationID, b.ConversationID)
	})

	total := int64(len(all))
	if skip >= len(all) {
		return []model.Conversation{}, total, nil
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

// Ping 实现 Store。
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.History = make([]model.Turn, len(c.History))
	for i, t := range c.History {
		t.Sources = slices.Clone(t.Sources)
		out.History[i] = t
	}
	return &out
}
