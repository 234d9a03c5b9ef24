package megaservice

import (
	"fmt"
	"sync/atomic"

	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/pkg/infra/config"
	megaopts "github.com/kart-io/megaservice/pkg/options/megaservice"
)

// chatTemplatesKey 配置文件中按知识库配置提示模板的键。
const chatTemplatesKey = "megaservice.chat-templates"

// chatTemplates 按 db_name 查找提示模板，配置文件变更时整体替换，内置模板始终保留。
type chatTemplates struct {
	m atomic.Pointer[map[string]string]
}

var _ config.Reloadable = (*chatTemplates)(nil)

func newChatTemplates(init map[string]string) *chatTemplates {
	t := &chatTemplates{}
	m := megaopts.WithDefaultChatTemplates(init)
	t.m.Store(&m)
	return t
}

// Lookup 返回 db_name 对应的模板，未配置时返回空字符串。
func (t *chatTemplates) Lookup(dbName string) string {
	return (*t.m.Load())[dbName]
}

// OnConfigChange 实现 config.Reloadable。
func (t *chatTemplates) OnConfigChange(newConfig any) error {
	m, ok := newConfig.(map[string]string)
	if !ok {
		return fmt.Errorf("unexpected chat templates type %T", newConfig)
	}
	m = megaopts.WithDefaultChatTemplates(m)
	t.m.Store(&m)
	logger.Infow("Chat templates reloaded", "count", len(m))
	return nil
}
