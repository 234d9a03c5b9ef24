package orchestrator

import (
	"github.com/kart-io/megaservice/pkg/llm/openai"
	"github.com/kart-io/megaservice/pkg/utils/json"
)

// Payload 节点之间传递的数据，每种具体类型对应一种节点输入或输出的结构。
type Payload interface {
	Kind() string
}

// wireBodier 由发送体与自身结构不同的载荷实现。
type wireBodier interface {
	WireBody() any
}

// sourceCarrier 由携带检索来源的载荷实现。
type sourceCarrier interface {
	Sources() []Document
}

// TokenStream 生成节点返回的原始增量文本流。
type TokenStream interface {
	// Recv 返回下一段文本，结束时返回 io.EOF。
	Recv() (string, error)
	Close() error
}

// Document 检索得到的文档，也用作回答中的来源记录。
type Document struct {
	ID             string         `json:"id,omitempty"`
	Text           string         `json:"text"`
	Source         string         `json:"source,omitempty"`
	Content        string         `json:"content,omitempty"`
	RelevanceScore *float64       `json:"relevance_score,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// normalized 返回补全 source/content 后的副本。
func (d Document) normalized() Document {
	if d.Source == "" && d.ID != "" {
		d.Source = d.ID
	}
	if d.Content == "" && d.Text != "" {
		d.Content = d.Text
	}
	if d.Metadata != nil {
		m := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			m[k] = v
		}
		d.Metadata = m
	}
	return d
}

// withScore 返回设置了相关性分数的副本。
func (d Document) withScore(score float64) Document {
	d.RelevanceScore = &score
	return d
}

// Score 返回相关性分数，未设置时为 0。
func (d Document) Score() float64 {
	if d.RelevanceScore == nil {
		return 0
	}
	return *d.RelevanceScore
}

// TextPayload 初始请求或护栏节点的输入输出。
type TextPayload struct {
	Text            string     `json:"text"`
	SelectedSources []Document `json:"-"`
}

func (TextPayload) Kind() string          { return "text" }
func (p TextPayload) Sources() []Document { return p.SelectedSources }

// EmbedRequest 嵌入节点请求。
type EmbedRequest struct {
	Inputs string `json:"inputs"`
}

func (EmbedRequest) Kind() string { return "embed_request" }

// EmbedResponse 嵌入节点响应，每个输入对应一个向量。
type EmbedResponse [][]float32

func (EmbedResponse) Kind() string { return "embed_response" }

// EmbeddingOutput 嵌入节点归一化后的输出。
type EmbeddingOutput struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

func (EmbeddingOutput) Kind() string { return "embedding" }

// RetrieveRequest 检索节点请求，检索参数平铺在请求体中。
type RetrieveRequest struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	RetrieverParams
}

func (RetrieveRequest) Kind() string { return "retrieve_request" }

// RetrieveResponse 检索节点响应。
type RetrieveResponse struct {
	RetrievedDocs []Document `json:"retrieved_docs"`
	InitialQuery  string     `json:"initial_query"`
}

func (RetrieveResponse) Kind() string { return "retrieve_response" }

// RerankRequest 重排节点请求。DocMetadata 不发送给远端，仅用于输出对齐。
type RerankRequest struct {
	Query       string     `json:"query"`
	Texts       []string   `json:"texts"`
	DocMetadata []Document `json:"-"`
}

func (RerankRequest) Kind() string { return "rerank_request" }

// RerankResult 单个重排结果。
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// RerankResponse 重排节点响应，按分数从高到低排列。
type RerankResponse []RerankResult

func (RerankResponse) Kind() string { return "rerank_response" }

// PromptPayload 已构造好提示词、可交给生成节点的载荷。
type PromptPayload struct {
	Inputs          string     `json:"inputs"`
	SelectedSources []Document `json:"selected_sources,omitempty"`
}

func (PromptPayload) Kind() string          { return "prompt" }
func (p PromptPayload) Sources() []Document { return p.SelectedSources }

// ChatPayload 生成节点请求，附带上游来源。
type ChatPayload struct {
	Request         openai.ChatCompletionRequest
	SelectedSources []Document
}

func (ChatPayload) Kind() string          { return "chat_request" }
func (p ChatPayload) Sources() []Document { return p.SelectedSources }
func (p ChatPayload) WireBody() any       { return p.Request }

// ChatResponse 生成节点的非流式响应。
type ChatResponse struct {
	openai.ChatCompletionResponse
}

func (ChatResponse) Kind() string { return "chat_response" }

// StreamPayload 生成节点返回的未读取完的流。
type StreamPayload struct {
	Stream TokenStream
}

func (StreamPayload) Kind() string { return "stream" }

// AnswerPayload 最终回答。
type AnswerPayload struct {
	Text            string     `json:"text"`
	SelectedSources []Document `json:"selected_sources,omitempty"`
}

func (AnswerPayload) Kind() string          { return "answer" }
func (p AnswerPayload) Sources() []Document { return p.SelectedSources }

// AggregatePayload 汇聚节点的输入，按前驱的添加顺序排列。
type AggregatePayload struct {
	From   []string  `json:"from"`
	Inputs []Payload `json:"inputs"`
}

func (AggregatePayload) Kind() string { return "aggregate" }

// Sources 汇总所有输入携带的来源。
func (p AggregatePayload) Sources() []Document {
	var out []Document
	for _, in := range p.Inputs {
		out = append(out, sourcesOf(in)...)
	}
	return out
}

// RawPayload 未识别结构的远端响应。
type RawPayload struct {
	Data            json.RawMessage `json:"data"`
	SelectedSources []Document      `json:"-"`
}

func (RawPayload) Kind() string          { return "raw" }
func (p RawPayload) Sources() []Document { return p.SelectedSources }
func (p RawPayload) WireBody() any       { return p.Data }

func sourcesOf(p Payload) []Document {
	if c, ok := p.(sourceCarrier); ok {
		return c.Sources()
	}
	return nil
}

// TextOf 返回载荷中的文本答案。
func TextOf(p Payload) string {
	switch v := p.(type) {
	case AnswerPayload:
		return v.Text
	case TextPayload:
		return v.Text
	case PromptPayload:
		return v.Inputs
	case RawPayload:
		return string(v.Data)
	}
	return ""
}
