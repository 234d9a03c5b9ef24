package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/pkg/llm/openai"
)

// Adapters 节点载荷适配策略，由编排器在构造时注入。
type Adapters interface {
	// AlignInputs 将上游输出转换为节点 node 的请求。
	AlignInputs(node ServiceNode, in Payload, params *SideParams) (Payload, error)

	// AlignOutputs 将节点 node 的原始响应归一化，可以改写运行时图 g。
	AlignOutputs(node ServiceNode, raw, in Payload, g *ServiceGraph, params *SideParams) (Payload, error)

	// AlignGenerator 包装生成节点返回的原始流。
	AlignGenerator(ctx context.Context, s TokenStream, params *SideParams) *EventStream
}

// DefaultLLMModel 生成请求默认使用的模型名称。
const DefaultLLMModel = "Intel/neural-chat-7b-v3-3"

// RAGAdapters 检索增强生成流程的默认适配器。
type RAGAdapters struct {
	// Model 生成请求中的模型名称
	Model string
}

// NewRAGAdapters 创建默认适配器，model 为空时使用 DefaultLLMModel。
func NewRAGAdapters(model string) *RAGAdapters {
	if model == "" {
		model = DefaultLLMModel
	}
	return &RAGAdapters{Model: model}
}

var _ Adapters = (*RAGAdapters)(nil)

// AlignInputs 实现 Adapters。
func (a *RAGAdapters) AlignInputs(node ServiceNode, in Payload, params *SideParams) (Payload, error) {
	switch node.Kind() {
	case KindEmbedding:
		text, ok := in.(TextPayload)
		if !ok {
			return nil, adapterErr(node, fmt.Sprintf("expected text input, got %s", in.Kind()), nil)
		}
		return EmbedRequest{Inputs: text.Text}, nil

	case KindRetriever:
		emb, ok := in.(EmbeddingOutput)
		if !ok {
			return nil, adapterErr(node, fmt.Sprintf("expected embedding input, got %s", in.Kind()), nil)
		}
		return RetrieveRequest{
			Text:            emb.Text,
			Embedding:       emb.Embedding,
			RetrieverParams: params.Retriever,
		}, nil

	case KindGenerator:
		var prompt string
		switch v := in.(type) {
		case PromptPayload:
			prompt = v.Inputs
		case TextPayload:
			prompt = v.Text
		default:
			return nil, adapterErr(node, fmt.Sprintf("expected prompt input, got %s", in.Kind()), nil)
		}
		return ChatPayload{
			Request: openai.ChatCompletionRequest{
				Model:            a.Model,
				Messages:         []openai.Message{{Role: openai.RoleUser, Content: openai.TextContent(prompt)}},
				MaxTokens:        params.LLM.MaxTokens,
				TopP:             params.LLM.TopP,
				Stream:           params.LLM.Stream,
				FrequencyPenalty: params.LLM.FrequencyPenalty,
				Temperature:      params.LLM.Temperature,
			},
			SelectedSources: sourcesOf(in),
		}, nil
	}
	return in, nil
}

// AlignOutputs 实现 Adapters。
func (a *RAGAdapters) AlignOutputs(node ServiceNode, raw, in Payload, g *ServiceGraph, params *SideParams) (Payload, error) {
	switch node.Kind() {
	case KindEmbedding:
		return a.alignEmbedding(node, raw, in)
	case KindRetriever:
		return a.alignRetriever(node, raw, in, g, params)
	case KindRerank:
		return a.alignRerank(node, raw, in, params)
	case KindGenerator:
		resp, ok := raw.(ChatResponse)
		if !ok {
			return nil, adapterErr(node, fmt.Sprintf("unexpected generator response %s", raw.Kind()), nil)
		}
		if len(resp.Choices) == 0 {
			return nil, adapterErr(node, "generator returned no choices", nil)
		}
		return AnswerPayload{
			Text:            resp.Choices[0].Message.Content.String(),
			SelectedSources: sourcesOf(in),
		}, nil
	}
	return passthrough(raw, in), nil
}

// AlignGenerator 实现 Adapters。
func (a *RAGAdapters) AlignGenerator(_ context.Context, s TokenStream, _ *SideParams) *EventStream {
	return NewEventStream(s)
}

func (a *RAGAdapters) alignEmbedding(node ServiceNode, raw, in Payload) (Payload, error) {
	resp, ok := raw.(EmbedResponse)
	if !ok {
		return nil, adapterErr(node, fmt.Sprintf("unexpected embedding response %s", raw.Kind()), nil)
	}
	if len(resp) == 0 {
		return nil, adapterErr(node, "embedding service returned no vectors", nil)
	}
	var text string
	if req, ok := in.(EmbedRequest); ok {
		text = req.Inputs
	}
	return EmbeddingOutput{Text: text, Embedding: resp[0]}, nil
}

func (a *RAGAdapters) alignRetriever(node ServiceNode, raw, in Payload, g *ServiceGraph, params *SideParams) (Payload, error) {
	resp, ok := raw.(RetrieveResponse)
	if !ok {
		return nil, adapterErr(node, fmt.Sprintf("unexpected retriever response %s", raw.Kind()), nil)
	}

	query := resp.InitialQuery
	if query == "" {
		if req, ok := in.(RetrieveRequest); ok {
			query = req.Text
		}
	}

	docs := make([]Document, 0, len(resp.RetrievedDocs))
	texts := make([]string, 0, len(resp.RetrievedDocs))
	for _, d := range resp.RetrievedDocs {
		docs = append(docs, d.normalized())
		texts = append(texts, d.Text)
	}

	withRerank := hasDownstreamKind(g, node.ID(), KindRerank)
	if withRerank && len(docs) > 0 {
		return RerankRequest{Query: query, Texts: texts, DocMetadata: docs}, nil
	}

	if withRerank {
		if err := spliceRerank(g, node.ID()); err != nil {
			return nil, adapterErr(node, "remove rerank stage", err)
		}
		logger.Debugw("no documents retrieved, rerank stage removed",
			"node", node.ID(),
			"downstream", g.Downstream(node.ID()),
		)
	}

	sources := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.RelevanceScore == nil {
			d = d.withScore(1.0)
		}
		sources = append(sources, d)
	}

	return PromptPayload{
		Inputs:          a.prompt(node, params, query, texts),
		SelectedSources: sources,
	}, nil
}

func (a *RAGAdapters) alignRerank(node ServiceNode, raw, in Payload, params *SideParams) (Payload, error) {
	resp, ok := raw.(RerankResponse)
	if !ok {
		return nil, adapterErr(node, fmt.Sprintf("unexpected rerank response %s", raw.Kind()), nil)
	}
	req, ok := in.(RerankRequest)
	if !ok {
		return nil, adapterErr(node, fmt.Sprintf("expected rerank request input, got %s", in.Kind()), nil)
	}

	topN := params.Reranker.TopN
	if topN <= 0 {
		topN = 1
	}
	if topN > len(resp) {
		topN = len(resp)
	}

	reranked := make([]string, 0, topN)
	sources := make([]Document, 0, topN)
	for _, r := range resp[:topN] {
		if r.Index < 0 || r.Index >= len(req.Texts) {
			return nil, adapterErr(node, fmt.Sprintf("rerank index %d out of range [0,%d)", r.Index, len(req.Texts)), nil)
		}
		reranked = append(reranked, req.Texts[r.Index])
		if r.Index < len(req.DocMetadata) {
			sources = append(sources, req.DocMetadata[r.Index].normalized().withScore(r.Score))
		}
	}

	return PromptPayload{
		Inputs:          a.prompt(node, params, req.Query, reranked),
		SelectedSources: sources,
	}, nil
}

func (a *RAGAdapters) prompt(node ServiceNode, params *SideParams, question string, docs []string) string {
	prompt, err := BuildPrompt(params.LLM.ChatTemplate, question, docs)
	if err != nil {
		logger.Warnw("chat template not used, falling back to default prompt",
			"node", node.ID(),
			"error", err.Error(),
		)
	}
	return prompt
}

// passthrough 原样返回原始响应，并保留输入携带的来源。
func passthrough(raw, in Payload) Payload {
	src := sourcesOf(in)
	if len(src) == 0 || len(sourcesOf(raw)) > 0 {
		return raw
	}
	switch v := raw.(type) {
	case TextPayload:
		v.SelectedSources = src
		return v
	case RawPayload:
		v.SelectedSources = src
		return v
	case AnswerPayload:
		v.SelectedSources = src
		return v
	case PromptPayload:
		v.SelectedSources = src
		return v
	}
	return raw
}

func hasDownstreamKind(g *ServiceGraph, id string, kind NodeKind) bool {
	return slices.ContainsFunc(g.Downstream(id), func(s string) bool {
		n, ok := g.Node(s)
		return ok && n.Kind() == kind
	})
}

// spliceRerank 移除 id 下游的重排节点及其后链式相连的重排节点。
// 收集顺序为广度优先（后继逆序扫描），移除时从最深的一个开始。
func spliceRerank(g *ServiceGraph, id string) error {
	var chain []string
	frontier := []string{id}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		ds := g.Downstream(cur)
		for i := len(ds) - 1; i >= 0; i-- {
			n, ok := g.Node(ds[i])
			if !ok || n.Kind() != KindRerank || slices.Contains(chain, n.ID()) {
				continue
			}
			chain = append(chain, n.ID())
			frontier = append(frontier, n.ID())
		}
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if err := g.SpliceOut(chain[i]); err != nil {
			return err
		}
	}
	return nil
}
