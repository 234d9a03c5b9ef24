package orchestrator

import "slices"

// ServiceGraph 服务节点组成的有向无环图。
//
// 后继列表的插入顺序即执行优先级。模板图只在组装阶段修改；
// 运行时图由单个请求独占，因此不加锁。
type ServiceGraph struct {
	nodes map[string]ServiceNode
	order []string
	edges map[string][]string
}

// NewServiceGraph 创建空图。
func NewServiceGraph() *ServiceGraph {
	return &ServiceGraph{
		nodes: make(map[string]ServiceNode),
		edges: make(map[string][]string),
	}
}

// Add 添加节点，ID 重复时返回 DuplicateNodeError。
func (g *ServiceGraph) Add(n ServiceNode) error {
	if _, ok := g.nodes[n.ID()]; ok {
		return &DuplicateNodeError{ID: n.ID()}
	}
	g.nodes[n.ID()] = n
	g.order = append(g.order, n.ID())
	return nil
}

// Connect 添加有向边 from -> to。已存在的边忽略；会成环的边被拒绝。
func (g *ServiceGraph) Connect(from, to string) error {
	if !g.Has(from) {
		return &UnknownNodeError{ID: from}
	}
	if !g.Has(to) {
		return &UnknownNodeError{ID: to}
	}
	if slices.Contains(g.edges[from], to) {
		return nil
	}
	if from == to || g.reachable(to, from) {
		return &CycleError{From: from, To: to}
	}
	g.edges[from] = append(g.edges[from], to)
	return nil
}

// reachable reports whether dst can be reached from src.
func (g *ServiceGraph) reachable(src, dst string) bool {
	seen := make(map[string]bool)
	stack := []string{src}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == dst {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.edges[cur]...)
	}
	return false
}

// Downstream 返回直接后继（有序副本）。
func (g *ServiceGraph) Downstream(id string) []string {
	return slices.Clone(g.edges[id])
}

// Upstream 按添加顺序返回直接前驱。
func (g *ServiceGraph) Upstream(id string) []string {
	var preds []string
	for _, p := range g.order {
		if slices.Contains(g.edges[p], id) {
			preds = append(preds, p)
		}
	}
	return preds
}

// Leaves 按添加顺序返回没有后继的节点。
func (g *ServiceGraph) Leaves() []ServiceNode {
	var out []ServiceNode
	for _, id := range g.order {
		if len(g.edges[id]) == 0 {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// Roots 按添加顺序返回没有前驱的节点。
func (g *ServiceGraph) Roots() []ServiceNode {
	hasPred := make(map[string]bool, len(g.nodes))
	for _, succs := range g.edges {
		for _, s := range succs {
			hasPred[s] = true
		}
	}
	var out []ServiceNode
	for _, id := range g.order {
		if !hasPred[id] {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// SpliceOut 删除节点 id，并将其每个前驱连接到其每个后继。
//
// 后继在前驱的后继列表中占据 id 原来的位置，保持顺序并去重。
// 没有前驱时，后继成为新的根节点。
func (g *ServiceGraph) SpliceOut(id string) error {
	if !g.Has(id) {
		return &UnknownNodeError{ID: id}
	}
	succs := g.edges[id]

	for _, p := range g.order {
		list := g.edges[p]
		i := slices.Index(list, id)
		if i < 0 {
			continue
		}
		merged := make([]string, 0, len(list)+len(succs))
		merged = append(merged, list[:i]...)
		for _, s := range succs {
			if !slices.Contains(list, s) && !slices.Contains(merged, s) {
				merged = append(merged, s)
			}
		}
		for _, rest := range list[i+1:] {
			if !slices.Contains(merged, rest) {
				merged = append(merged, rest)
			}
		}
		g.edges[p] = merged
	}

	delete(g.edges, id)
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(s string) bool { return s == id })
	return nil
}

// Clone 深拷贝，修改副本不影响原图。
func (g *ServiceGraph) Clone() *ServiceGraph {
	c := &ServiceGraph{
		nodes: make(map[string]ServiceNode, len(g.nodes)),
		order: slices.Clone(g.order),
		edges: make(map[string][]string, len(g.edges)),
	}
	for id, n := range g.nodes {
		c.nodes[id] = n
	}
	for id, succs := range g.edges {
		c.edges[id] = slices.Clone(succs)
	}
	return c
}

// Validate 使用深度优先搜索检测环。
func (g *ServiceGraph) Validate() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(from, id string) error
	visit = func(from, id string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return &CycleError{From: from, To: id}
		}
		temporary[id] = true
		for _, s := range g.edges[id] {
			if !g.Has(s) {
				return &UnknownNodeError{ID: s}
			}
			if err := visit(id, s); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range g.order {
		if err := visit("", id); err != nil {
			return err
		}
	}
	return nil
}

// Node 返回节点。
func (g *ServiceGraph) Node(id string) (ServiceNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Has 判断节点是否存在。
func (g *ServiceGraph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Len 返回节点数量。
func (g *ServiceGraph) Len() int { return len(g.nodes) }

// Nodes 按添加顺序返回全部节点。
func (g *ServiceGraph) Nodes() []ServiceNode {
	out := make([]ServiceNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges 返回边的快照，仅包含有后继的节点。
func (g *ServiceGraph) Edges() map[string][]string {
	out := make(map[string][]string, len(g.edges))
	for id, succs := range g.edges {
		if len(succs) > 0 {
			out[id] = slices.Clone(succs)
		}
	}
	return out
}
