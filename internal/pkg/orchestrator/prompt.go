package orchestrator

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const englishRAGTemplate = "\n### You are a helpful, respectful and honest assistant to help the user with questions. " +
	"Please refer to the search results obtained from the local knowledge base. " +
	"But be careful to not incorporate the information that you think is not relevant to the question. " +
	"If you don't know the answer to a question, please don't share false information. \n\n" +
	"### Search results: {context} \n\n" +
	"### Question: {question} \n\n" +
	"### Answer:\n"

const chineseRAGTemplate = "\n### 你将扮演一个乐于助人、尊重他人并诚实的助手，你的目标是帮助用户解答问题。" +
	"有效地利用来自本地知识库的搜索结果。确保你的回答中只包含相关信息。如果你不确定问题的答案，请避免分享不准确的信息。\n" +
	"### 搜索结果：{context}\n" +
	"### 问题：{question}\n" +
	"### 回答：\n"

// chineseRatio 中文字符占比达到该阈值时使用中文模板
const chineseRatio = 0.3

// DefaultRAGPrompt 使用内置模板构造提示词，上下文以中文为主时选择中文模板。
func DefaultRAGPrompt(question string, docs []string) string {
	context := strings.Join(docs, "\n")
	tmpl := englishRAGTemplate
	if isMostlyChinese(context) {
		tmpl = chineseRAGTemplate
	}
	out, _ := formatTemplate(tmpl, map[string]string{"context": context, "question": question})
	return out
}

func isMostlyChinese(s string) bool {
	total := utf8.RuneCountInString(s)
	if total == 0 {
		return false
	}
	han := 0
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			han++
		}
	}
	return float64(han)/float64(total) >= chineseRatio
}

// BuildPrompt 根据用户模板构造提示词。
//
// 模板变量恰为 {context, question} 时两者都填充；仅有 {question} 时只填充问题；
// 其他情况返回 UnsupportedTemplateError，同时返回默认模板的结果。模板为空时直接使用默认模板。
func BuildPrompt(template, question string, docs []string) (string, error) {
	if template == "" {
		return DefaultRAGPrompt(question, docs), nil
	}

	vars, ok := templateVariables(template)
	switch {
	case ok && slices.Equal(vars, []string{"context", "question"}):
		return formatTemplate(template, map[string]string{
			"context":  strings.Join(docs, "\n"),
			"question": question,
		})
	case ok && slices.Equal(vars, []string{"question"}):
		return formatTemplate(template, map[string]string{"question": question})
	}
	return DefaultRAGPrompt(question, docs), &UnsupportedTemplateError{Variables: vars}
}

// templateVariables 解析 {name} 形式的变量，返回去重排序后的变量名。
// "{{" 与 "}}" 为转义的花括号。花括号不配对时 ok 为 false。
func templateVariables(tmpl string) ([]string, bool) {
	var vars []string
	ok := scanTemplate(tmpl, func(string) {}, func(name string) {
		if !slices.Contains(vars, name) {
			vars = append(vars, name)
		}
	})
	slices.Sort(vars)
	return vars, ok
}

// formatTemplate 替换模板变量，未提供的变量保持原样。
func formatTemplate(tmpl string, values map[string]string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(tmpl))
	ok := scanTemplate(tmpl, func(lit string) { sb.WriteString(lit) }, func(name string) {
		if v, found := values[name]; found {
			sb.WriteString(v)
			return
		}
		sb.WriteString("{" + name + "}")
	})
	if !ok {
		return tmpl, &UnsupportedTemplateError{}
	}
	return sb.String(), nil
}

func scanTemplate(tmpl string, literal func(string), variable func(string)) bool {
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			literal("{")
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			literal("}")
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return false
			}
			name := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if name == "" || strings.ContainsAny(name, "{") {
				return false
			}
			variable(name)
			i += end + 2
		case c == '}':
			return false
		default:
			j := i + 1
			for j < len(tmpl) && tmpl[j] != '{' && tmpl[j] != '}' {
				j++
			}
			literal(tmpl[i:j])
			i = j
		}
	}
	return true
}
