// Package store 会话持久化。每个请求通过 db_name 指定数据库，
// 会话记录存放在该库的 conversations 集合中，通函元数据固定存放在 easy_circulars.circulars。
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/megaservice/internal/model"
)

// ErrNotFound 会话不存在。
var ErrNotFound = errors.New("conversation not found")

// Store 会话存储接口。
type Store interface {
	// Create 新建会话。
	Create(ctx context.Context, db string, conv *model.Conversation) error
	// Get 获取会话，不存在时返回 ErrNotFound。
	Get(ctx context.Context, db, id string) (*model.Conversation, error)
	// AppendTurn 追加一轮问答并更新 last_updated，会话不存在时创建。
	AppendTurn(ctx context.Context, db, id string, turn model.Turn, at time.Time) error
	// Delete 删除会话，不存在时返回 ErrNotFound。
	Delete(ctx context.Context, db, id string) error
	// List 按 last_updated 倒序分页列出会话，并返回总数。
	List(ctx context.Context, db string, limit, skip int) ([]model.Conversation, int64, error)
	// Ping 检查存储可用性。
	Ping(ctx context.Context) error
}
