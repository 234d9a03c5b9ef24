package orchestrator

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/megaservice/pkg/llm/openai"
)

func ragGraph(t *testing.T, withRerank bool) *ServiceGraph {
	t.Helper()
	nodes := []ServiceNode{
		newNode("embedding", KindEmbedding),
		newNode("retriever", KindRetriever),
	}
	edges := [][2]string{{"embedding", "retriever"}}
	if withRerank {
		nodes = append(nodes, newNode("rerank", KindRerank))
		edges = append(edges, [2]string{"retriever", "rerank"}, [2]string{"rerank", "llm"})
	} else {
		edges = append(edges, [2]string{"retriever", "llm"})
	}
	nodes = append(nodes, newNode("llm", KindGenerator))
	return buildGraph(t, nodes, edges)
}

func score(v float64) *float64 { return &v }

func TestRAGAdapters_AlignInputs(t *testing.T) {
	a := NewRAGAdapters("")
	params := DefaultSideParams()

	t.Run("embedding", func(t *testing.T) {
		got, err := a.AlignInputs(newNode("e", KindEmbedding), TextPayload{Text: "hi"}, &params)
		require.NoError(t, err)
		assert.Equal(t, EmbedRequest{Inputs: "hi"}, got)
	})

	t.Run("embedding rejects other payloads", func(t *testing.T) {
		_, err := a.AlignInputs(newNode("e", KindEmbedding), EmbeddingOutput{}, &params)
		var ae *AdapterError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "e", ae.NodeID)
	})

	t.Run("retriever merges params", func(t *testing.T) {
		got, err := a.AlignInputs(newNode("r", KindRetriever), EmbeddingOutput{Text: "q", Embedding: []float32{0.1}}, &params)
		require.NoError(t, err)
		req := got.(RetrieveRequest)
		assert.Equal(t, "q", req.Text)
		assert.Equal(t, "similarity", req.SearchType)
		assert.Equal(t, 4, req.K)
		assert.Equal(t, 20, req.FetchK)
		assert.InDelta(t, 0.5, req.LambdaMult, 1e-9)
		assert.InDelta(t, 0.2, req.ScoreThreshold, 1e-9)
		assert.Nil(t, req.DistanceThreshold)
	})

	t.Run("generator builds chat request", func(t *testing.T) {
		src := []Document{{ID: "d1", Text: "t"}}
		got, err := a.AlignInputs(newNode("llm", KindGenerator), PromptPayload{Inputs: "prompt", SelectedSources: src}, &params)
		require.NoError(t, err)
		chat := got.(ChatPayload)
		assert.Equal(t, DefaultLLMModel, chat.Request.Model)
		assert.Equal(t, []openai.Message{{Role: "user", Content: openai.TextContent("prompt")}}, chat.Request.Messages)
		assert.Equal(t, 1024, chat.Request.MaxTokens)
		assert.InDelta(t, 0.95, chat.Request.TopP, 1e-9)
		assert.InDelta(t, 0.01, chat.Request.Temperature, 1e-9)
		assert.True(t, chat.Request.Stream)
		assert.Equal(t, src, chat.SelectedSources)
	})

	t.Run("rerank passthrough", func(t *testing.T) {
		in := RerankRequest{Query: "q", Texts: []string{"a"}}
		got, err := a.AlignInputs(newNode("rr", KindRerank), in, &params)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})
}

func TestRAGAdapters_AlignEmbedding(t *testing.T) {
	a := NewRAGAdapters("")
	params := DefaultSideParams()
	node := newNode("embedding", KindEmbedding)

	got, err := a.AlignOutputs(node, EmbedResponse{{0.1, 0.2}}, EmbedRequest{Inputs: "q"}, NewServiceGraph(), &params)
	require.NoError(t, err)
	assert.Equal(t, EmbeddingOutput{Text: "q", Embedding: []float32{0.1, 0.2}}, got)

	_, err = a.AlignOutputs(node, EmbedResponse{}, EmbedRequest{Inputs: "q"}, NewServiceGraph(), &params)
	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
}

func TestRAGAdapters_AlignRetriever(t *testing.T) {
	a := NewRAGAdapters("")
	params := DefaultSideParams()
	node := newNode("retriever", KindRetriever)
	in := RetrieveRequest{Text: "what?"}
	docs := RetrieveResponse{
		InitialQuery: "what?",
		RetrievedDocs: []Document{
			{ID: "doc-1", Text: "first"},
			{ID: "doc-2", Text: "second", Source: "manual.pdf", RelevanceScore: score(0.7)},
		},
	}

	t.Run("forward to rerank", func(t *testing.T) {
		g := ragGraph(t, true)
		got, err := a.AlignOutputs(node, docs, in, g, &params)
		require.NoError(t, err)

		req := got.(RerankRequest)
		assert.Equal(t, "what?", req.Query)
		assert.Equal(t, []string{"first", "second"}, req.Texts)
		require.Len(t, req.DocMetadata, 2)
		assert.Equal(t, "doc-1", req.DocMetadata[0].Source)
		assert.Equal(t, "first", req.DocMetadata[0].Content)
		assert.Equal(t, "manual.pdf", req.DocMetadata[1].Source)
		assert.Equal(t, []string{"rerank"}, g.Downstream("retriever"))
	})

	t.Run("empty result removes rerank", func(t *testing.T) {
		g := ragGraph(t, true)
		got, err := a.AlignOutputs(node, RetrieveResponse{InitialQuery: "what?"}, in, g, &params)
		require.NoError(t, err)

		p := got.(PromptPayload)
		assert.Equal(t, DefaultRAGPrompt("what?", nil), p.Inputs)
		assert.Empty(t, p.SelectedSources)
		assert.Equal(t, []string{"llm"}, g.Downstream("retriever"))
		assert.False(t, g.Has("rerank"))
	})

	t.Run("chained reranks removed", func(t *testing.T) {
		g := buildGraph(t, []ServiceNode{
			newNode("retriever", KindRetriever),
			newNode("rerank1", KindRerank),
			newNode("rerank2", KindRerank),
			newNode("llm", KindGenerator),
		}, [][2]string{{"retriever", "rerank1"}, {"rerank1", "rerank2"}, {"rerank2", "llm"}})

		_, err := a.AlignOutputs(node, RetrieveResponse{}, in, g, &params)
		require.NoError(t, err)
		if diff := cmp.Diff(map[string][]string{"retriever": {"llm"}}, g.Edges()); diff != "" {
			t.Errorf("edges mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no rerank builds prompt with sources", func(t *testing.T) {
		g := ragGraph(t, false)
		got, err := a.AlignOutputs(node, docs, in, g, &params)
		require.NoError(t, err)

		p := got.(PromptPayload)
		assert.Equal(t, DefaultRAGPrompt("what?", []string{"first", "second"}), p.Inputs)
		require.Len(t, p.SelectedSources, 2)
		assert.InDelta(t, 1.0, p.SelectedSources[0].Score(), 1e-9)
		assert.InDelta(t, 0.7, p.SelectedSources[1].Score(), 1e-9)
		assert.Equal(t, "doc-1", p.SelectedSources[0].Source)
	})

	t.Run("user template", func(t *testing.T) {
		p := params
		p.LLM.ChatTemplate = "{context}|{question}"
		got, err := a.AlignOutputs(node, docs, in, ragGraph(t, false), &p)
		require.NoError(t, err)
		assert.Equal(t, "first\nsecond|what?", got.(PromptPayload).Inputs)
	})

	t.Run("unexpected response shape", func(t *testing.T) {
		_, err := a.AlignOutputs(node, EmbedResponse{}, in, ragGraph(t, false), &params)
		var ae *AdapterError
		require.ErrorAs(t, err, &ae)
	})
}

func TestRAGAdapters_AlignRerank(t *testing.T) {
	a := NewRAGAdapters("")
	node := newNode("rerank", KindRerank)
	in := RerankRequest{
		Query: "q",
		Texts: []string{"zero", "one", "two"},
		DocMetadata: []Document{
			{ID: "d0", Text: "zero"},
			{ID: "d1", Text: "one"},
			{ID: "d2", Text: "two", Source: "s2"},
		},
	}
	raw := RerankResponse{{Index: 2, Score: 0.9}, {Index: 0, Score: 0.4}, {Index: 1, Score: 0.1}}

	t.Run("top_n two", func(t *testing.T) {
		params := DefaultSideParams()
		params.Reranker.TopN = 2
		got, err := a.AlignOutputs(node, raw, in, NewServiceGraph(), &params)
		require.NoError(t, err)

		p := got.(PromptPayload)
		assert.Equal(t, DefaultRAGPrompt("q", []string{"two", "zero"}), p.Inputs)
		require.Len(t, p.SelectedSources, 2)
		assert.Equal(t, "s2", p.SelectedSources[0].Source)
		assert.InDelta(t, 0.9, p.SelectedSources[0].Score(), 1e-9)
		assert.Equal(t, "d0", p.SelectedSources[1].Source)
		assert.Equal(t, "zero", p.SelectedSources[1].Content)
		assert.InDelta(t, 0.4, p.SelectedSources[1].Score(), 1e-9)

		// 输入中的文档元数据不被修改
		assert.Nil(t, in.DocMetadata[2].RelevanceScore)
	})

	t.Run("default top_n one", func(t *testing.T) {
		params := DefaultSideParams()
		got, err := a.AlignOutputs(node, raw, in, NewServiceGraph(), &params)
		require.NoError(t, err)
		assert.Len(t, got.(PromptPayload).SelectedSources, 1)
	})

	t.Run("index out of range", func(t *testing.T) {
		params := DefaultSideParams()
		_, err := a.AlignOutputs(node, RerankResponse{{Index: 7, Score: 1}}, in, NewServiceGraph(), &params)
		var ae *AdapterError
		require.ErrorAs(t, err, &ae)
		assert.Contains(t, ae.Error(), "out of range")
	})
}

func TestRAGAdapters_AlignGeneratorAndDefault(t *testing.T) {
	a := NewRAGAdapters("")
	params := DefaultSideParams()
	src := []Document{{Source: "s", Content: "c", RelevanceScore: score(0.5)}}

	resp := ChatResponse{}
	resp.Choices = []openai.ChatCompletionChoice{{Message: openai.Message{Role: "assistant", Content: openai.TextContent("42")}}}
	got, err := a.AlignOutputs(newNode("llm", KindGenerator), resp, ChatPayload{SelectedSources: src}, NewServiceGraph(), &params)
	require.NoError(t, err)
	assert.Equal(t, AnswerPayload{Text: "42", SelectedSources: src}, got)

	_, err = a.AlignOutputs(newNode("llm", KindGenerator), ChatResponse{}, ChatPayload{}, NewServiceGraph(), &params)
	require.Error(t, err)

	// 默认节点原样透传并保留来源
	got, err = a.AlignOutputs(newNode("guard", KindGuardrail), TextPayload{Text: "safe"}, AnswerPayload{SelectedSources: src}, NewServiceGraph(), &params)
	require.NoError(t, err)
	assert.Equal(t, TextPayload{Text: "safe", SelectedSources: src}, got)
}

func TestRAGAdapters_AlignGenerator(t *testing.T) {
	a := NewRAGAdapters("")
	params := DefaultSideParams()
	es := a.AlignGenerator(context.Background(), &sliceStream{frags: []string{"a b"}}, &params)
	text, err := es.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a b", text)
}
