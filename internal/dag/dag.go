// Package dag provides the join graph of a schema source.
// Nodes are tables; an edge links a child table to a parent table whose
// primary key the child carries. It supports cycle detection, topological
// sorting and path enumeration toward parents.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (table name)
	ID string
	// Data holds arbitrary node data
	Data interface{}
}

// Edge is a child -> parent join over the parent's key columns.
type Edge struct {
	Parent string
	Child  string
	Keys   []string
}

// String renders the edge as "child -> parent [keys]".
func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s [%s]", e.Child, e.Parent, strings.Join(e.Keys, ", "))
}

// Graph represents a directed acyclic graph of tables.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]Edge   // child -> parent edges
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]Edge),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data interface{}) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Data: data}
		g.edges[id] = []string{}
		g.parents[id] = []Edge{}
	} else {
		// Update data if node already exists
		g.nodes[id].Data = data
	}
}

// AddEdge adds a directed edge from parent to child joined on keys.
// Adding an existing edge again replaces its keys.
func (g *Graph) AddEdge(parentID, childID string, keys []string) error {
	// Ensure both nodes exist
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	// Check for self-loops
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
		sort.Strings(g.edges[parentID])
	}

	edge := Edge{Parent: parentID, Child: childID, Keys: append([]string(nil), keys...)}
	for i, e := range g.parents[childID] {
		if e.Parent == parentID {
			g.parents[childID][i] = edge
			return nil
		}
	}
	g.parents[childID] = append(g.parents[childID], edge)
	sort.Slice(g.parents[childID], func(i, j int) bool {
		return g.parents[childID][i].Parent < g.parents[childID][j].Parent
	})

	return nil
}

// HasNode reports whether the node exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetParents returns the parent IDs of a node, sorted.
func (g *Graph) GetParents(id string) []string {
	edges := g.parents[id]
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Parent
	}
	return out
}

// GetEdge returns the edge joining child to parent.
func (g *Graph) GetEdge(parentID, childID string) (Edge, bool) {
	for _, e := range g.parents[childID] {
		if e.Parent == parentID {
			return e, true
		}
	}
	return Edge{}, false
}

// GetChildren returns the children (dependents) of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// GetAllNodes returns all nodes in the graph.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	// Sort for deterministic output
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string) // Track the path for error reporting

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				// Found cycle, reconstruct path
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, n := range g.GetAllNodes() {
		if !visited[n.ID] {
			if dfs(n.ID) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

// TopologicalSort returns nodes in topological order (parents before children).
// Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []*Node

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		// Visit all parents first
		for _, e := range g.parents[id] {
			visit(e.Parent)
		}

		result = append(result, g.nodes[id])
	}

	for _, n := range g.GetAllNodes() {
		visit(n.ID)
	}

	return result, nil
}

// GetUpstreamNodes returns all ancestors of the given node: its parents and their parents.
func (g *Graph) GetUpstreamNodes(id string) []string {
	upstream := make(map[string]bool)

	var markUpstream func(nodeID string)
	markUpstream = func(nodeID string) {
		for _, e := range g.parents[nodeID] {
			if !upstream[e.Parent] {
				upstream[e.Parent] = true
				markUpstream(e.Parent)
			}
		}
	}

	markUpstream(id)

	result := make([]string, 0, len(upstream))
	for nodeID := range upstream {
		result = append(result, nodeID)
	}
	sort.Strings(result)
	return result
}

// GetRoots returns nodes with no parents.
func (g *Graph) GetRoots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// AllPaths returns every simple path from one node to another following
// parent edges. Paths start with from and end with to. Nodes rejected by
// allow are never entered; a nil allow accepts every node. A node is a
// path to itself. Output order is deterministic.
func (g *Graph) AllPaths(from, to string, allow func(id string) bool) [][]string {
	if !g.HasNode(from) || !g.HasNode(to) {
		return nil
	}
	ok := func(id string) bool { return allow == nil || allow(id) }
	if !ok(from) || !ok(to) {
		return nil
	}

	var paths [][]string
	onPath := make(map[string]bool)
	var current []string

	var walk func(id string)
	walk = func(id string) {
		current = append(current, id)
		onPath[id] = true
		if id == to {
			paths = append(paths, append([]string(nil), current...))
		} else {
			for _, e := range g.parents[id] {
				if !onPath[e.Parent] && ok(e.Parent) {
					walk(e.Parent)
				}
			}
		}
		onPath[id] = false
		current = current[:len(current)-1]
	}
	walk(from)

	return paths
}

// Clone returns a copy of the graph. Node data is shared.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for id, n := range g.nodes {
		out.nodes[id] = &Node{ID: id, Data: n.Data}
		out.edges[id] = append([]string{}, g.edges[id]...)
		parents := make([]Edge, len(g.parents[id]))
		for i, e := range g.parents[id] {
			e.Keys = append([]string(nil), e.Keys...)
			parents[i] = e
		}
		out.parents[id] = parents
	}
	return out
}

// contains checks if a slice contains a string.
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
