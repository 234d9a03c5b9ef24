// Package megaservice provides options for the orchestration service:
// remote node addresses, topology selection and generation defaults.
package megaservice

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/megaservice/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 支持的拓扑
const (
	TopologyRerank    = "rerank"
	TopologyNoRerank  = "no-rerank"
	TopologyGuardrail = "guardrail"
)

// Topologies 返回全部可选拓扑。
func Topologies() []string {
	return []string{TopologyRerank, TopologyNoRerank, TopologyGuardrail}
}

// NodeOptions 远程节点地址。
type NodeOptions struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

func (n *NodeOptions) addFlags(fs *pflag.FlagSet, prefix, name string) {
	fs.StringVar(&n.Host, prefix+name+".host", n.Host, fmt.Sprintf("Host of the %s service.", name))
	fs.IntVar(&n.Port, prefix+name+".port", n.Port, fmt.Sprintf("Port of the %s service.", name))
	fs.StringVar(&n.Endpoint, prefix+name+".endpoint", n.Endpoint, fmt.Sprintf("Endpoint path of the %s service.", name))
}

func (n *NodeOptions) validate(name string) []error {
	var errs []error
	if n.Host == "" {
		errs = append(errs, fmt.Errorf("megaservice.%s.host cannot be empty", name))
	}
	if n.Port <= 0 || n.Port > 65535 {
		errs = append(errs, fmt.Errorf("megaservice.%s.port %d is out of range", name, n.Port))
	}
	return errs
}

// Options 编排服务配置。
type Options struct {
	// Topology 服务图拓扑：rerank、no-rerank 或 guardrail
	Topology string `json:"topology" mapstructure:"topology"`

	Embedding NodeOptions `json:"embedding" mapstructure:"embedding"`
	Retriever NodeOptions `json:"retriever" mapstructure:"retriever"`
	Rerank    NodeOptions `json:"rerank" mapstructure:"rerank"`
	LLM       NodeOptions `json:"llm" mapstructure:"llm"`
	Guardrail NodeOptions `json:"guardrail" mapstructure:"guardrail"`

	// Model 生成请求中的模型名称
	Model string `json:"model" mapstructure:"model"`

	// ChatTemplates 按知识库（db_name）配置的提示模板
	ChatTemplates map[string]string `json:"chat-templates" mapstructure:"chat-templates"`

	// Parallelism 同批就绪节点的最大并发数，1 表示串行
	Parallelism int `json:"parallelism" mapstructure:"parallelism"`

	// InvokeTimeout 单次远程调用超时（流式响应的整个生命周期也受其约束，0 表示不限制）
	InvokeTimeout time.Duration `json:"invoke-timeout" mapstructure:"invoke-timeout"`

	// InvokeRetries 远程调用遇到 5xx 或连接错误时的重试次数
	InvokeRetries int `json:"invoke-retries" mapstructure:"invoke-retries"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{
		Topology:      TopologyRerank,
		Embedding:     NodeOptions{Host: "0.0.0.0", Port: 80, Endpoint: "/embed"},
		Retriever:     NodeOptions{Host: "0.0.0.0", Port: 7000, Endpoint: "/v1/retrieval"},
		Rerank:        NodeOptions{Host: "0.0.0.0", Port: 80, Endpoint: "/rerank"},
		LLM:           NodeOptions{Host: "0.0.0.0", Port: 80, Endpoint: "/v1/chat/completions"},
		Guardrail:     NodeOptions{Host: "0.0.0.0", Port: 80, Endpoint: "/v1/guardrails"},
		Model:         "Intel/neural-chat-7b-v3-3",
		ChatTemplates: map[string]string{},
		Parallelism:   1,
		InvokeTimeout: 0,
		InvokeRetries: 0,
	}
}

// AddFlags adds flags for megaservice options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "megaservice."
	fs.StringVar(&o.Topology, p+"topology", o.Topology, fmt.Sprintf("Service graph topology %v.", Topologies()))
	o.Embedding.addFlags(fs, p, "embedding")
	o.Retriever.addFlags(fs, p, "retriever")
	o.Rerank.addFlags(fs, p, "rerank")
	o.LLM.addFlags(fs, p, "llm")
	o.Guardrail.addFlags(fs, p, "guardrail")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name sent to the generator.")
	fs.StringToStringVar(&o.ChatTemplates, p+"chat-templates", o.ChatTemplates, "Chat templates keyed by db_name.")
	fs.IntVar(&o.Parallelism, p+"parallelism", o.Parallelism, "Maximum concurrent invocations for nodes that become ready together.")
	fs.DurationVar(&o.InvokeTimeout, p+"invoke-timeout", o.InvokeTimeout, "Timeout for a single remote invocation (0 = none).")
	fs.IntVar(&o.InvokeRetries, p+"invoke-retries", o.InvokeRetries, "Retries for a remote invocation that fails with 5xx or a connection error.")
}

// Validate validates the megaservice options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if !slices.Contains(Topologies(), o.Topology) {
		errs = append(errs, fmt.Errorf("megaservice.topology %q is invalid, must be one of %v", o.Topology, Topologies()))
	}
	errs = append(errs, o.Embedding.validate("embedding")...)
	errs = append(errs, o.Retriever.validate("retriever")...)
	errs = append(errs, o.LLM.validate("llm")...)
	if o.Topology != TopologyNoRerank {
		errs = append(errs, o.Rerank.validate("rerank")...)
	}
	if o.Topology == TopologyGuardrail {
		errs = append(errs, o.Guardrail.validate("guardrail")...)
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("megaservice.model cannot be empty"))
	}
	if o.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("megaservice.parallelism must be at least 1"))
	}
	if o.InvokeTimeout < 0 {
		errs = append(errs, fmt.Errorf("megaservice.invoke-timeout must not be negative"))
	}
	if o.InvokeRetries < 0 {
		errs = append(errs, fmt.Errorf("megaservice.invoke-retries must not be negative"))
	}
	return errs
}

// Complete completes the options with defaults.
func (o *Options) Complete() error {
	o.ChatTemplates = WithDefaultChatTemplates(o.ChatTemplates)
	return nil
}

// circularsTemplate easy_circulars 知识库使用的 RBI 通函问答模板。
const circularsTemplate = `You are an expert assistant specializing in RBI circulars. The user is asking about a specific circular,
and your responses must be strictly based on the provided search results.

- Use only the given search results to answer the question.
- Do not add information beyond what is provided.
- If the search results do not contain relevant information, clearly state that the answer is unavailable.
- Ensure responses are concise, accurate, and relevant to the question.

### Search Results:
{context}

### User Question:
{question}

### Answer:
`

// DefaultChatTemplates 返回内置的知识库模板。
func DefaultChatTemplates() map[string]string {
	return map[string]string{"easy_circulars": circularsTemplate}
}

// WithDefaultChatTemplates 返回 m 的副本，并补齐 m 中缺失的内置模板。
func WithDefaultChatTemplates(m map[string]string) map[string]string {
	out := maps.Clone(m)
	if out == nil {
		out = map[string]string{}
	}
	for k, v := range DefaultChatTemplates() {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// ChatTemplate 返回 db_name 对应的提示模板，未配置时返回空字符串。
func (o *Options) ChatTemplate(dbName string) string {
	return o.ChatTemplates[dbName]
}
