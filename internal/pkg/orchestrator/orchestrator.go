// Package orchestrator 驱动单个请求在远程服务节点图上执行。
//
// 每个请求克隆模板图得到运行时图，从根节点开始按广度优先顺序执行：
// 输入适配、远程调用、输出适配（可能改写运行时图）。叶子节点返回流时，
// 编排器用分词器包装该流并立即返回，由调用方负责消费。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// RootID 合成根节点的 ID，其输出为请求的初始载荷。
const RootID = "__root__"

// State 请求执行状态。
type State string

const (
	StateStart     State = "START"
	StateRunning   State = "RUNNING"
	StateStreaming State = "STREAMING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Observer 接收节点执行结果，用于指标统计。
type Observer interface {
	ObserveNode(node ServiceNode, elapsed time.Duration, err error)
}

// Result 一次执行的结果。
type Result struct {
	// State 为 StateDone 或 StateStreaming
	State State

	// Output 终止叶子节点的归一化输出（流式时为 nil）
	Output Payload

	// Sources 回答引用的来源
	Sources []Document

	// Stream 流式执行时的事件流，调用方负责消费或关闭
	Stream *EventStream

	// Visited 节点执行顺序
	Visited []string

	// Outputs 各节点的归一化输出，包含 RootID
	Outputs map[string]Payload

	// Graph 执行结束时的运行时图
	Graph *ServiceGraph
}

// Text 返回非流式结果中的答案文本。
func (r *Result) Text() string {
	if r.Output == nil {
		return ""
	}
	return TextOf(r.Output)
}

// Orchestrator 请求编排器。模板图在构造后只读，可被多个请求并发使用。
type Orchestrator struct {
	template *ServiceGraph
	adapters Adapters
	invoker  Invoker
	parallel int
	observer Observer
	tracer   trace.Tracer
}

// Option 编排器选项。
type Option func(*Orchestrator)

// WithAdapters 设置载荷适配策略，默认为 NewRAGAdapters("")。
func WithAdapters(a Adapters) Option {
	return func(o *Orchestrator) { o.adapters = a }
}

// WithParallelism 同一批就绪节点的最大并发调用数，小于等于 1 时串行执行。
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallel = n }
}

// WithObserver 设置节点执行观察者。
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New 创建编排器。模板图存在环或悬空边时返回错误。
func New(template *ServiceGraph, invoker Invoker, opts ...Option) (*Orchestrator, error) {
	if template == nil || template.Len() == 0 {
		return nil, fmt.Errorf("orchestrator: empty service graph")
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		template: template.Clone(),
		invoker:  invoker,
		parallel: 1,
		tracer:   otel.Tracer("github.com/kart-io/megaservice/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.adapters == nil {
		o.adapters = NewRAGAdapters("")
	}
	return o, nil
}

// Template 返回模板图的副本。
func (o *Orchestrator) Template() *ServiceGraph {
	return o.template.Clone()
}

// run 单个请求的执行状态。
type run struct {
	o       *Orchestrator
	graph   *ServiceGraph
	params  *SideParams
	outputs map[string]Payload
	// done 记录节点完成的序号，用于选择最近完成的前驱
	done    map[string]int
	visited []string
	queue   []string
}

// Schedule 执行一个请求。
func (o *Orchestrator) Schedule(ctx context.Context, initial Payload, params SideParams) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Schedule")
	defer span.End()

	r := &run{
		o:       o,
		graph:   o.template.Clone(),
		params:  &params,
		outputs: map[string]Payload{RootID: initial},
		done:    make(map[string]int),
	}
	for _, n := range r.graph.Roots() {
		r.queue = append(r.queue, n.ID())
	}

	res, err := r.loop(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("megaservice.state", string(res.State)),
		attribute.StringSlice("megaservice.visited", res.Visited),
	)
	return res, nil
}

// invocation 一个就绪节点在本批次中的执行记录。
type invocation struct {
	node ServiceNode
	in   Payload
	req  Payload
	raw  Payload
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	for len(r.queue) > 0 {
		batch := r.ready()
		if len(batch) == 0 {
			return nil, fmt.Errorf("orchestrator: no runnable node among %v", r.queue)
		}

		invs := make([]*invocation, 0, len(batch))
		for _, id := range batch {
			node, _ := r.graph.Node(id)
			in := r.inputFor(id, node)
			req, err := r.o.adapters.AlignInputs(node, in, r.params)
			if err != nil {
				return nil, asAdapterErr(node, err)
			}
			invs = append(invs, &invocation{node: node, in: in, req: req})
		}

		if err := r.invokeAll(ctx, invs); err != nil {
			return nil, err
		}

		for i, inv := range invs {
			if sp, ok := inv.raw.(StreamPayload); ok {
				closeStreams(invs[i+1:])
				return r.stream(ctx, inv, sp)
			}
			if err := r.complete(inv); err != nil {
				closeStreams(invs[i+1:])
				return nil, err
			}
		}
	}
	return r.result(), nil
}

// ready 取出队列中可以执行的节点。串行模式下只取第一个。
func (r *run) ready() []string {
	var batch, rest []string
	for _, id := range r.queue {
		if !r.graph.Has(id) || r.isDone(id) || slices.Contains(batch, id) {
			continue
		}
		if !r.predsDone(id) || (r.o.parallel <= 1 && len(batch) > 0) {
			if !slices.Contains(rest, id) {
				rest = append(rest, id)
			}
			continue
		}
		batch = append(batch, id)
	}
	r.queue = rest
	return batch
}

func (r *run) isDone(id string) bool {
	_, ok := r.done[id]
	return ok
}

func (r *run) predsDone(id string) bool {
	for _, p := range r.graph.Upstream(id) {
		if !r.isDone(p) {
			return false
		}
	}
	return true
}

// inputFor 根节点使用初始载荷；汇聚节点汇总全部前驱输出；其余节点使用最近完成的前驱的输出。
func (r *run) inputFor(id string, node ServiceNode) Payload {
	preds := r.graph.Upstream(id)
	if len(preds) == 0 {
		return r.outputs[RootID]
	}
	if node.Kind() == KindAggregate {
		agg := AggregatePayload{From: preds, Inputs: make([]Payload, 0, len(preds))}
		for _, p := range preds {
			agg.Inputs = append(agg.Inputs, r.outputs[p])
		}
		return agg
	}
	latest := preds[0]
	for _, p := range preds[1:] {
		if r.done[p] > r.done[latest] {
			latest = p
		}
	}
	return r.outputs[latest]
}

func (r *run) invokeAll(ctx context.Context, invs []*invocation) error {
	if len(invs) == 1 {
		raw, err := r.invoke(ctx, invs[0].node, invs[0].req)
		invs[0].raw = raw
		return err
	}

	// 不使用 errgroup.WithContext：Wait 返回即取消，流式响应体将无法继续读取
	var g errgroup.Group
	g.SetLimit(r.o.parallel)
	for _, inv := range invs {
		g.Go(func() error {
			raw, err := r.invoke(ctx, inv.node, inv.req)
			inv.raw = raw
			return err
		})
	}
	if err := g.Wait(); err != nil {
		closeStreams(invs)
		return err
	}
	return nil
}

func (r *run) invoke(ctx context.Context, node ServiceNode, req Payload) (Payload, error) {
	ctx, span := r.o.tracer.Start(ctx, "orchestrator.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("megaservice.node.id", node.ID()),
			attribute.String("megaservice.node.kind", string(node.Kind())),
			attribute.String("megaservice.node.url", node.URL()),
		),
	)
	defer span.End()

	start := time.Now()
	raw, err := r.o.invoker.Invoke(ctx, node, req)
	elapsed := time.Since(start)
	if r.o.observer != nil {
		r.o.observer.ObserveNode(node, elapsed, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warnw("service node invocation failed",
			"node", node.ID(),
			"url", node.URL(),
			"elapsed", elapsed.String(),
			"error", err.Error(),
		)
		var re *RemoteInvocationError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, &RemoteInvocationError{NodeID: node.ID(), URL: node.URL(), Err: err}
	}

	logger.Debugw("service node invoked",
		"node", node.ID(),
		"kind", string(node.Kind()),
		"elapsed", elapsed.String(),
	)
	return raw, nil
}

// complete 对齐输出、记录结果，并将最新的后继加入队列。
func (r *run) complete(inv *invocation) error {
	id := inv.node.ID()
	out, err := r.o.adapters.AlignOutputs(inv.node, inv.raw, inv.req, r.graph, r.params)
	if err != nil {
		return asAdapterErr(inv.node, err)
	}

	r.outputs[id] = out
	r.done[id] = len(r.visited) + 1
	r.visited = append(r.visited, id)

	for _, s := range r.graph.Downstream(id) {
		if !r.isDone(s) && !slices.Contains(r.queue, s) {
			r.queue = append(r.queue, s)
		}
	}
	return nil
}

func (r *run) stream(ctx context.Context, inv *invocation, sp StreamPayload) (*Result, error) {
	id := inv.node.ID()
	if ds := r.graph.Downstream(id); len(ds) > 0 {
		_ = sp.Stream.Close()
		return nil, &AdapterError{
			NodeID: id,
			Kind:   inv.node.Kind(),
			Reason: fmt.Sprintf("stream returned by non-leaf node with successors %v", ds),
		}
	}

	r.done[id] = len(r.visited) + 1
	r.visited = append(r.visited, id)

	return &Result{
		State:   StateStreaming,
		Sources: sourcesOf(inv.req),
		Stream:  r.o.adapters.AlignGenerator(ctx, sp.Stream, r.params),
		Visited: r.visited,
		Outputs: r.outputs,
		Graph:   r.graph,
	}, nil
}

// result 终止节点为按添加顺序的最后一个叶子；其输出无来源时取执行顺序中第一个带来源的输出。
func (r *run) result() *Result {
	res := &Result{
		State:   StateDone,
		Visited: r.visited,
		Outputs: r.outputs,
		Graph:   r.graph,
	}
	if leaves := r.graph.Leaves(); len(leaves) > 0 {
		res.Output = r.outputs[leaves[len(leaves)-1].ID()]
	}
	if res.Output != nil {
		res.Sources = sourcesOf(res.Output)
	}
	if len(res.Sources) == 0 {
		for _, id := range r.visited {
			if src := sourcesOf(r.outputs[id]); len(src) > 0 {
				res.Sources = src
				break
			}
		}
	}
	return res
}

func closeStreams(invs []*invocation) {
	for _, inv := range invs {
		if sp, ok := inv.raw.(StreamPayload); ok {
			_ = sp.Stream.Close()
		}
	}
}

func asAdapterErr(node ServiceNode, err error) error {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return err
	}
	return adapterErr(node, "align payload", err)
}
