package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
	"github.com/kart-io/megaservice/pkg/cache"
	"github.com/kart-io/megaservice/pkg/utils/json"
)

// cachedAnswer 缓存中保存的非流式回答。
type cachedAnswer struct {
	Text    string                  `json:"text"`
	Sources []orchestrator.Document `json:"sources"`
}

// AnswerCache 非流式回答缓存，键为提示词与参数的 SHA256。
type AnswerCache struct {
	backend cache.Cache
	ttl     time.Duration
}

// NewAnswerCache 创建回答缓存。backend 为 nil 时缓存不生效。
func NewAnswerCache(backend cache.Cache, ttl time.Duration) *AnswerCache {
	return &AnswerCache{backend: backend, ttl: ttl}
}

// Key 计算缓存键。
func (c *AnswerCache) Key(prompt string, params orchestrator.SideParams) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	b, _ := json.Marshal(params)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// Get 查询缓存，未命中或出错时返回 nil。
func (c *AnswerCache) Get(ctx context.Context, key string) *Answer {
	if c == nil || c.backend == nil {
		return nil
	}

	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		logger.Warnw("failed to get answer from cache", "key", key, "error", err.Error())
		return nil
	}
	if !ok {
		return nil
	}

	var v cachedAnswer
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Warnw("failed to unmarshal cached answer", "key", key, "error", err.Error())
		_ = c.backend.Del(ctx, key)
		return nil
	}
	return &Answer{Text: v.Text, Sources: v.Sources, Cached: true}
}

// Set 写入缓存，失败只记录日志。
func (c *AnswerCache) Set(ctx context.Context, key string, a *Answer) {
	if c == nil || c.backend == nil {
		return
	}

	data, err := json.Marshal(cachedAnswer{Text: a.Text, Sources: a.Sources})
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		logger.Warnw("failed to set answer cache", "key", key, "error", err.Error())
		return
	}
	logger.Debugw("cached answer", "key", key, "ttl", c.ttl.String())
}
