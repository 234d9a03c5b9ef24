package orchestrator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(id string, kind NodeKind) ServiceNode {
	return NewServiceNode(id, kind, Address{Host: "127.0.0.1", Port: 80, Endpoint: "/" + id})
}

// buildGraph 按顺序添加节点并连接边，任何错误都使测试失败。
func buildGraph(t *testing.T, nodes []ServiceNode, edges [][2]string) *ServiceGraph {
	t.Helper()
	g := NewServiceGraph()
	for _, n := range nodes {
		require.NoError(t, g.Add(n))
	}
	for _, e := range edges {
		require.NoError(t, g.Connect(e[0], e[1]))
	}
	return g
}

func ids(nodes []ServiceNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID())
	}
	return out
}

func TestServiceGraph_Add(t *testing.T) {
	g := NewServiceGraph()
	require.NoError(t, g.Add(newNode("embedding", KindEmbedding)))

	err := g.Add(newNode("embedding", KindRetriever))
	var dup *DuplicateNodeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "embedding", dup.ID)

	// 重复添加不改变原节点
	n, ok := g.Node("embedding")
	require.True(t, ok)
	assert.Equal(t, KindEmbedding, n.Kind())
	assert.Equal(t, 1, g.Len())
}

func TestServiceGraph_Connect(t *testing.T) {
	g := buildGraph(t, []ServiceNode{
		newNode("a", KindEmbedding),
		newNode("b", KindRetriever),
		newNode("c", KindGenerator),
	}, [][2]string{{"a", "b"}, {"b", "c"}})

	t.Run("unknown endpoint", func(t *testing.T) {
		var unknown *UnknownNodeError
		require.ErrorAs(t, g.Connect("a", "missing"), &unknown)
		assert.Equal(t, "missing", unknown.ID)
		require.ErrorAs(t, g.Connect("missing", "a"), &unknown)
	})

	t.Run("cycle rejected", func(t *testing.T) {
		var cycle *CycleError
		require.ErrorAs(t, g.Connect("c", "a"), &cycle)
		require.ErrorAs(t, g.Connect("b", "b"), &cycle)
		assert.Empty(t, g.Downstream("c"))
	})

	t.Run("duplicate edge ignored", func(t *testing.T) {
		require.NoError(t, g.Connect("a", "b"))
		assert.Equal(t, []string{"b"}, g.Downstream("a"))
	})
}

func TestServiceGraph_LeavesAndRoots(t *testing.T) {
	g := buildGraph(t, []ServiceNode{
		newNode("leaf1", KindGenerator),
		newNode("root", KindEmbedding),
		newNode("mid", KindRetriever),
		newNode("leaf2", KindGenerator),
	}, [][2]string{{"root", "mid"}, {"mid", "leaf2"}, {"mid", "leaf1"}})

	// 叶子按添加顺序而非边的顺序排列
	assert.Equal(t, []string{"leaf1", "leaf2"}, ids(g.Leaves()))
	assert.Equal(t, []string{"root"}, ids(g.Roots()))
	assert.Equal(t, []string{"leaf2", "leaf1"}, g.Downstream("mid"))
	assert.Equal(t, []string{"mid"}, g.Upstream("leaf1"))
}

func TestServiceGraph_SpliceOut(t *testing.T) {
	t.Run("cross product preserves order", func(t *testing.T) {
		g := buildGraph(t, []ServiceNode{
			newNode("p1", KindRetriever),
			newNode("p2", KindRetriever),
			newNode("x", KindRerank),
			newNode("s1", KindGenerator),
			newNode("s2", KindGenerator),
			newNode("other", KindGenerator),
		}, [][2]string{
			{"p1", "x"}, {"p1", "other"},
			{"p2", "other"}, {"p2", "x"},
			{"x", "s1"}, {"x", "s2"},
		})

		require.NoError(t, g.SpliceOut("x"))

		want := map[string][]string{
			"p1": {"s1", "s2", "other"},
			"p2": {"other", "s1", "s2"},
		}
		if diff := cmp.Diff(want, g.Edges()); diff != "" {
			t.Errorf("edges mismatch (-want +got):\n%s", diff)
		}
		assert.False(t, g.Has("x"))
		assert.Equal(t, []string{"p1", "p2", "s1", "s2", "other"}, ids(g.Nodes()))
	})

	t.Run("successor already linked keeps its position", func(t *testing.T) {
		g := buildGraph(t, []ServiceNode{
			newNode("p", KindRetriever),
			newNode("x", KindRerank),
			newNode("s", KindGenerator),
		}, [][2]string{{"p", "x"}, {"x", "s"}, {"p", "s"}})

		require.NoError(t, g.SpliceOut("x"))
		assert.Equal(t, []string{"s"}, g.Downstream("p"))
	})

	t.Run("no predecessors makes successors roots", func(t *testing.T) {
		g := buildGraph(t, []ServiceNode{
			newNode("x", KindGuardrail),
			newNode("a", KindEmbedding),
			newNode("b", KindEmbedding),
		}, [][2]string{{"x", "a"}, {"x", "b"}})

		require.NoError(t, g.SpliceOut("x"))
		assert.Equal(t, []string{"a", "b"}, ids(g.Roots()))
		assert.Empty(t, g.Edges())
	})

	t.Run("unknown node", func(t *testing.T) {
		g := NewServiceGraph()
		var unknown *UnknownNodeError
		require.ErrorAs(t, g.SpliceOut("nope"), &unknown)
	})
}

func TestServiceGraph_Clone(t *testing.T) {
	g := buildGraph(t, []ServiceNode{
		newNode("retriever", KindRetriever),
		newNode("rerank", KindRerank),
		newNode("llm", KindGenerator),
	}, [][2]string{{"retriever", "rerank"}, {"rerank", "llm"}})

	c := g.Clone()
	require.NoError(t, c.SpliceOut("rerank"))
	require.NoError(t, c.Add(newNode("extra", KindGuardrail)))
	require.NoError(t, c.Connect("llm", "extra"))

	// 原图不受影响
	want := map[string][]string{"retriever": {"rerank"}, "rerank": {"llm"}}
	if diff := cmp.Diff(want, g.Edges()); diff != "" {
		t.Errorf("original graph mutated (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"llm"}, c.Downstream("retriever"))
}

func TestServiceGraph_Validate(t *testing.T) {
	g := buildGraph(t, []ServiceNode{
		newNode("a", KindEmbedding),
		newNode("b", KindRetriever),
	}, [][2]string{{"a", "b"}})
	require.NoError(t, g.Validate())

	// 绕过 Connect 直接写入回边
	g.edges["b"] = append(g.edges["b"], "a")
	var cycle *CycleError
	require.ErrorAs(t, g.Validate(), &cycle)
	assert.Contains(t, cycle.Error(), "cycle detected")
}

func TestAddress_URL(t *testing.T) {
	assert.Equal(t, "http://embedding:6000/embed", Address{Host: "embedding", Port: 6000, Endpoint: "/embed"}.URL())
	assert.Equal(t, "http://h:1/v1/x", Address{Host: "h", Port: 1, Endpoint: "v1/x"}.URL())

	k, err := ParseNodeKind("llm")
	require.NoError(t, err)
	assert.Equal(t, KindGenerator, k)
	_, err = ParseNodeKind("vision")
	assert.Error(t, err)
}
