package biz

import (
	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
)

// SideParamsFrom 由请求构造编排参数。零值字段使用默认值；stream 以请求为准。
func SideParamsFrom(req *model.ChatQnARequest) orchestrator.SideParams {
	p := orchestrator.DefaultSideParams()

	p.LLM.MaxTokens = orDefault(req.MaxTokens, p.LLM.MaxTokens)
	p.LLM.TopK = orDefault(req.TopK, p.LLM.TopK)
	p.LLM.TopP = orDefault(req.TopP, p.LLM.TopP)
	p.LLM.Temperature = orDefault(req.Temperature, p.LLM.Temperature)
	p.LLM.FrequencyPenalty = orDefault(req.FrequencyPenalty, p.LLM.FrequencyPenalty)
	p.LLM.PresencePenalty = orDefault(req.PresencePenalty, p.LLM.PresencePenalty)
	p.LLM.RepetitionPenalty = orDefault(req.RepetitionPenalty, p.LLM.RepetitionPenalty)
	p.LLM.Stream = req.Stream
	p.LLM.ChatTemplate = req.ChatTemplate

	p.Retriever.SearchType = orDefault(req.SearchType, p.Retriever.SearchType)
	p.Retriever.K = orDefault(req.K, p.Retriever.K)
	p.Retriever.FetchK = orDefault(req.FetchK, p.Retriever.FetchK)
	p.Retriever.LambdaMult = orDefault(req.LambdaMult, p.Retriever.LambdaMult)
	p.Retriever.ScoreThreshold = orDefault(req.ScoreThreshold, p.Retriever.ScoreThreshold)
	if req.DistanceThreshold != nil && *req.DistanceThreshold != 0 {
		d := *req.DistanceThreshold
		p.Retriever.DistanceThreshold = &d
	}

	p.Reranker.TopN = orDefault(req.TopN, p.Reranker.TopN)
	return p
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
