package orchestrator

// LLMParams 生成参数。
type LLMParams struct {
	MaxTokens         int     `json:"max_tokens"`
	TopK              int     `json:"top_k"`
	TopP              float64 `json:"top_p"`
	Temperature       float64 `json:"temperature"`
	FrequencyPenalty  float64 `json:"frequency_penalty"`
	PresencePenalty   float64 `json:"presence_penalty"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Stream            bool    `json:"stream"`
	ChatTemplate      string  `json:"chat_template,omitempty"`
}

// RetrieverParams 检索参数，原样合并进检索请求。
type RetrieverParams struct {
	SearchType        string   `json:"search_type"`
	K                 int      `json:"k"`
	DistanceThreshold *float64 `json:"distance_threshold"`
	FetchK            int      `json:"fetch_k"`
	LambdaMult        float64  `json:"lambda_mult"`
	ScoreThreshold    float64  `json:"score_threshold"`
}

// RerankerParams 重排参数。
type RerankerParams struct {
	TopN int `json:"top_n"`
}

// SideParams 请求级只读参数，传递给每一次适配器调用。
type SideParams struct {
	LLM       LLMParams
	Retriever RetrieverParams
	Reranker  RerankerParams
}

// DefaultLLMParams 返回默认生成参数。
func DefaultLLMParams() LLMParams {
	return LLMParams{
		MaxTokens:         1024,
		TopK:              10,
		TopP:              0.95,
		Temperature:       0.01,
		RepetitionPenalty: 1.03,
		Stream:            true,
	}
}

// DefaultRetrieverParams 返回默认检索参数。
func DefaultRetrieverParams() RetrieverParams {
	return RetrieverParams{
		SearchType:     "similarity",
		K:              4,
		FetchK:         20,
		LambdaMult:     0.5,
		ScoreThreshold: 0.2,
	}
}

// DefaultRerankerParams 返回默认重排参数。
func DefaultRerankerParams() RerankerParams {
	return RerankerParams{TopN: 1}
}

// DefaultSideParams 返回全部默认参数。
func DefaultSideParams() SideParams {
	return SideParams{
		LLM:       DefaultLLMParams(),
		Retriever: DefaultRetrieverParams(),
		Reranker:  DefaultRerankerParams(),
	}
}
