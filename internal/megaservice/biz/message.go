package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/megaservice/internal/model"
	errno "github.com/kart-io/megaservice/pkg/errors"
	"github.com/kart-io/megaservice/pkg/llm/openai"
)

// HandleMessage 将 messages 展平为单个提示词。
//
// 字符串形式原样返回。数组形式中 system 消息作为前缀，user 与 assistant
// 按首次出现的顺序各输出一行 "role: content"，同一角色以最后一条为准。
// 数组内容只取 text 片段并按换行拼接，图片片段被忽略。
func HandleMessage(m model.Messages) (string, error) {
	if !m.IsList() {
		return m.Prompt, nil
	}

	var system string
	var order []string
	contents := make(map[string]string)

	for _, msg := range m.List {
		switch msg.Role {
		case openai.RoleSystem:
			system = msg.Content.String()
		case openai.RoleUser, openai.RoleAssistant:
			if _, seen := contents[msg.Role]; !seen {
				order = append(order, msg.Role)
			}
			contents[msg.Role] = msg.Content.String()
		default:
			return "", errno.ErrInvalidMessages.WithMessage(fmt.Sprintf("unknown role: %s", msg.Role))
		}
	}

	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n")
	}
	for _, role := range order {
		text := contents[role]
		if text == "" {
			b.WriteString(role + ":")
			continue
		}
		b.WriteString(role + ": " + text + "\n")
	}
	return b.String(), nil
}
