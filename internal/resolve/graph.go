package resolve

import (
	"slices"
	"strings"
)

// Graph is an undirected graph of entities whose edges are confirmed duplicates.
type Graph struct {
	index map[string]int
	nodes []string
	adj   [][]int
}

// NewGraph creates a graph containing every entity as a node.
func NewGraph(entities ...string) *Graph {
	g := &Graph{index: make(map[string]int)}
	for _, e := range entities {
		g.AddNode(e)
	}
	return g
}

// AddNode adds an entity; adding one twice is a no-op.
func (g *Graph) AddNode(entity string) int {
	if i, ok := g.index[entity]; ok {
		return i
	}
	i := len(g.nodes)
	g.index[entity] = i
	g.nodes = append(g.nodes, entity)
	g.adj = append(g.adj, nil)
	return i
}

// AddEdge connects two entities, adding them as nodes if needed.
func (g *Graph) AddEdge(a, b string) {
	i, j := g.AddNode(a), g.AddNode(b)
	g.adj[i] = append(g.adj[i], j)
	g.adj[j] = append(g.adj[j], i)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Components returns the connected components. Each component is sorted, and
// components are ordered by their smallest member, so the result does not
// depend on insertion order.
func (g *Graph) Components() [][]string {
	visited := make([]bool, len(g.nodes))
	var components [][]string

	for start := range g.nodes {
		if visited[start] {
			continue
		}

		var component []string
		stack := []int{start}
		visited[start] = true
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, g.nodes[u])
			for _, v := range g.adj[u] {
				if !visited[v] {
					visited[v] = true
					stack = append(stack, v)
				}
			}
		}

		slices.Sort(component)
		components = append(components, component)
	}

	slices.SortFunc(components, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})
	return components
}

// Representatives returns one entity per component: the smallest by byte-wise
// string order. The result is sorted.
func (g *Graph) Representatives() []string {
	components := g.Components()
	reps := make([]string, 0, len(components))
	for _, c := range components {
		reps = append(reps, c[0])
	}
	return reps
}
