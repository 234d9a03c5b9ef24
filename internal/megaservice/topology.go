package megaservice

import (
	"fmt"

	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
	megaopts "github.com/kart-io/megaservice/pkg/options/megaservice"
)

// 服务图节点 ID
const (
	NodeGuardrail = "guardrail_in"
	NodeEmbedding = "embedding"
	NodeRetriever = "retriever"
	NodeRerank    = "rerank"
	NodeLLM       = "llm"
)

func address(n megaopts.NodeOptions) orchestrator.Address {
	return orchestrator.Address{Host: n.Host, Port: n.Port, Endpoint: n.Endpoint}
}

// BuildGraph 按配置的拓扑构建模板服务图。
//
//	rerank:    embedding -> retriever -> rerank -> llm
//	no-rerank: embedding -> retriever -> llm
//	guardrail: guardrail_in -> embedding -> retriever -> rerank -> llm
func BuildGraph(opts *megaopts.Options) (*orchestrator.ServiceGraph, error) {
	var nodes []orchestrator.ServiceNode
	switch opts.Topology {
	case megaopts.TopologyGuardrail:
		nodes = append(nodes, orchestrator.NewServiceNode(NodeGuardrail, orchestrator.KindGuardrail, address(opts.Guardrail)))
		fallthrough
	case megaopts.TopologyRerank, megaopts.TopologyNoRerank:
		nodes = append(nodes,
			orchestrator.NewServiceNode(NodeEmbedding, orchestrator.KindEmbedding, address(opts.Embedding)),
			orchestrator.NewServiceNode(NodeRetriever, orchestrator.KindRetriever, address(opts.Retriever)),
		)
	default:
		return nil, fmt.Errorf("unknown topology %q", opts.Topology)
	}
	if opts.Topology != megaopts.TopologyNoRerank {
		nodes = append(nodes, orchestrator.NewServiceNode(NodeRerank, orchestrator.KindRerank, address(opts.Rerank)))
	}
	nodes = append(nodes, orchestrator.NewServiceNode(NodeLLM, orchestrator.KindGenerator, address(opts.LLM)))

	g := orchestrator.NewServiceGraph()
	for i, n := range nodes {
		if err := g.Add(n); err != nil {
			return nil, err
		}
		if i == 0 {
			continue
		}
		if err := g.Connect(nodes[i-1].ID(), n.ID()); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
