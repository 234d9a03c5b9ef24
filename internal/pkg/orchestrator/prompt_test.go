package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRAGPrompt(t *testing.T) {
	t.Run("english", func(t *testing.T) {
		got := DefaultRAGPrompt("What is OPEA?", []string{"doc one", "doc two"})
		assert.True(t, strings.HasPrefix(got, "\n### You are a helpful, respectful and honest assistant"))
		assert.Contains(t, got, "### Search results: doc one\ndoc two \n\n")
		assert.Contains(t, got, "### Question: What is OPEA? \n\n")
		assert.True(t, strings.HasSuffix(got, "### Answer:\n"))
	})

	t.Run("chinese context", func(t *testing.T) {
		got := DefaultRAGPrompt("什么是检索增强生成？", []string{"检索增强生成结合了检索与生成。"})
		assert.Contains(t, got, "### 搜索结果：检索增强生成结合了检索与生成。\n")
		assert.Contains(t, got, "### 问题：什么是检索增强生成？\n")
		assert.True(t, strings.HasSuffix(got, "### 回答：\n"))
	})

	t.Run("mostly english context with some chinese", func(t *testing.T) {
		got := DefaultRAGPrompt("q", []string{"this paragraph is english 中文"})
		assert.Contains(t, got, "### Search results:")
	})

	t.Run("no documents", func(t *testing.T) {
		got := DefaultRAGPrompt("q", nil)
		assert.Contains(t, got, "### Search results:  \n\n")
	})
}

func TestBuildPrompt(t *testing.T) {
	docs := []string{"alpha", "beta"}

	t.Run("context and question", func(t *testing.T) {
		got, err := BuildPrompt("Context:\n{context}\nQ: {question}", "why?", docs)
		require.NoError(t, err)
		assert.Equal(t, "Context:\nalpha\nbeta\nQ: why?", got)
	})

	t.Run("question only", func(t *testing.T) {
		got, err := BuildPrompt("Answer briefly: {question}", "why?", docs)
		require.NoError(t, err)
		assert.Equal(t, "Answer briefly: why?", got)
	})

	t.Run("escaped braces", func(t *testing.T) {
		got, err := BuildPrompt(`Reply as {{"answer": ...}} to {question}`, "why?", docs)
		require.NoError(t, err)
		assert.Equal(t, `Reply as {"answer": ...} to why?`, got)
	})

	t.Run("unsupported variables fall back to default", func(t *testing.T) {
		got, err := BuildPrompt("{history} {question}", "why?", docs)
		var ute *UnsupportedTemplateError
		require.ErrorAs(t, err, &ute)
		assert.Equal(t, []string{"history", "question"}, ute.Variables)
		assert.Equal(t, DefaultRAGPrompt("why?", docs), got)
	})

	t.Run("no variables fall back to default", func(t *testing.T) {
		got, err := BuildPrompt("static text", "why?", docs)
		require.Error(t, err)
		assert.Equal(t, DefaultRAGPrompt("why?", docs), got)
	})

	t.Run("empty template uses default", func(t *testing.T) {
		got, err := BuildPrompt("", "why?", docs)
		require.NoError(t, err)
		assert.Equal(t, DefaultRAGPrompt("why?", docs), got)
	})
}
