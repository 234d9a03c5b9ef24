package biz

import (
	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
)

// NormalizeSources 将编排结果中的来源转换为会话记录格式。
// source 依次回退到 id 与 "unknown"，content 回退到 text，
// relevance_score 回退到元数据中的 score，均缺失时为 0。
func NormalizeSources(docs []orchestrator.Document) []model.SourceInfo {
	out := make([]model.SourceInfo, 0, len(docs))
	for _, d := range docs {
		info := model.SourceInfo{
			Source:  d.Source,
			Content: d.Content,
		}
		if info.Source == "" {
			info.Source = d.ID
		}
		if info.Source == "" {
			info.Source = "unknown"
		}
		if info.Content == "" {
			info.Content = d.Text
		}
		if d.RelevanceScore != nil && *d.RelevanceScore != 0 {
			info.RelevanceScore = *d.RelevanceScore
		} else {
			info.RelevanceScore = metadataScore(d.Metadata)
		}
		out = append(out, info)
	}
	return out
}

func metadataScore(md map[string]any) float64 {
	switch v := md["score"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
