// Package metrics 提供 megaservice 的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
)

const namespace = "megaservice"

// Metrics 业务指标集合。所有方法对 nil 接收者安全。
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	nodeCalls    *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	streamEvents prometheus.Counter
	turnsSaved   *prometheus.CounterVec
}

var _ orchestrator.Observer = (*Metrics)(nil)

// New 创建指标集合并注册到独立的 registry。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Orchestrated requests by endpoint and result.",
		}, []string{"endpoint", "result"}),
		nodeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_calls_total",
			Help:      "Remote node invocations by node, kind and result.",
		}, []string{"node", "kind", "result"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Remote node invocation latency.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"node", "kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_cache_lookups_total",
			Help:      "Answer cache lookups by result.",
		}, []string{"result"}),
		streamEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Segmented words sent to streaming clients.",
		}),
		turnsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_saved_total",
			Help:      "Conversation turns persisted by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.nodeCalls,
		m.nodeDuration,
		m.cacheLookups,
		m.streamEvents,
		m.turnsSaved,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveNode 实现 orchestrator.Observer。
func (m *Metrics) ObserveNode(node orchestrator.ServiceNode, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	kind := string(node.Kind())
	m.nodeCalls.WithLabelValues(node.ID(), kind, result(err)).Inc()
	m.nodeDuration.WithLabelValues(node.ID(), kind).Observe(elapsed.Seconds())
}

// RecordRequest 记录一次编排请求。
func (m *Metrics) RecordRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, result(err)).Inc()
}

// RecordCache 记录一次缓存查询。
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordStreamEvents 记录发送给客户端的流式分词数量。
func (m *Metrics) RecordStreamEvents(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.streamEvents.Add(float64(n))
}

// RecordTurnSaved 记录一次会话持久化。
func (m *Metrics) RecordTurnSaved(err error) {
	if m == nil {
		return
	}
	m.turnsSaved.WithLabelValues(result(err)).Inc()
}

// Registry 返回指标 registry。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus 文本格式的 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
