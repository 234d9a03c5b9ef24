package orchestrator

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeKind 服务节点类型
type NodeKind string

const (
	KindEmbedding NodeKind = "EMBEDDING"
	KindRetriever NodeKind = "RETRIEVER"
	KindRerank    NodeKind = "RERANK"
	KindGenerator NodeKind = "GENERATOR"
	KindGuardrail NodeKind = "GUARDRAIL"
	KindAggregate NodeKind = "AGGREGATE"
)

// ParseNodeKind 解析配置中的节点类型（大小写不敏感，LLM 为 GENERATOR 的别名）。
func ParseNodeKind(s string) (NodeKind, error) {
	k := NodeKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case KindEmbedding, KindRetriever, KindRerank, KindGenerator, KindGuardrail, KindAggregate:
		return k, nil
	case "LLM":
		return KindGenerator, nil
	}
	return "", fmt.Errorf("unknown node kind %q", s)
}

// Address 远程节点地址
type Address struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

// URL 返回 http://host:port/endpoint。
func (a Address) URL() string {
	ep := a.Endpoint
	if ep != "" && !strings.HasPrefix(ep, "/") {
		ep = "/" + ep
	}
	return "http://" + a.Host + ":" + strconv.Itoa(a.Port) + ep
}

// ServiceNode 服务图中的一个远程能力节点，构造后不可变。
type ServiceNode struct {
	id     string
	kind   NodeKind
	addr   Address
	remote bool
}

// NewServiceNode 创建远程服务节点。
func NewServiceNode(id string, kind NodeKind, addr Address) ServiceNode {
	return ServiceNode{id: id, kind: kind, addr: addr, remote: true}
}

func (n ServiceNode) ID() string       { return n.id }
func (n ServiceNode) Kind() NodeKind   { return n.kind }
func (n ServiceNode) Address() Address { return n.addr }
func (n ServiceNode) Remote() bool     { return n.remote }
func (n ServiceNode) URL() string      { return n.addr.URL() }
func (n ServiceNode) String() string   { return n.id + "(" + string(n.kind) + ")" }
func (n ServiceNode) IsZero() bool     { return n.id == "" }
