package vkfg

import (
	"fmt"
	"log"
	"strings"
)

// Cycle is one dependency cycle found during compilation, reported as the
// chain of nodes involved and the resources carrying each edge.
type Cycle struct {
	Nodes     []NodeId
	Resources []ResourceId
}

// CompileReport summarizes a compilation attempt. Dropped lists the nodes
// excluded from a partial compile; Suggestions are human-readable hints for
// breaking each cycle.
type CompileReport struct {
	Cycles      []Cycle
	Dropped     []NodeId
	Suggestions []string
}

type dependencyEdge struct {
	from     NodeId
	to       NodeId
	resource ResourceId
}

// buildEdges derives writer-to-reader edges from the declared dependencies of
// every registered node. Access is coalesced per node and resource first, so
// a node declaring a read input and a write output on one buffer counts as a
// single read-write use. When two nodes both read and write the same resource
// the pair is ordered by registration order instead of producing a two-node
// cycle; genuine cycles through distinct resources are still reported.
func buildEdges(nodes []NodeId, deps map[NodeId]*nodeEntry) []dependencyEdge {
	const (
		useRead  = 1
		useWrite = 2
	)
	accessBits := func(a ResourceAccess) int {
		switch a {
		case AccessRead:
			return useRead
		case AccessWrite:
			return useWrite
		}
		return useRead | useWrite
	}

	uses := make(map[ResourceId]map[NodeId]int)
	record := func(id NodeId, dep ResourceDependency) {
		if dep.Resource == InvalidResource {
			return
		}
		if uses[dep.Resource] == nil {
			uses[dep.Resource] = make(map[NodeId]int)
		}
		uses[dep.Resource][id] |= accessBits(dep.Access)
	}
	for _, id := range nodes {
		e := deps[id]
		for _, dep := range e.node.Inputs() {
			record(id, dep)
		}
		for _, dep := range e.node.Outputs() {
			record(id, dep)
		}
	}

	regOrder := make(map[NodeId]int, len(nodes))
	for i, id := range nodes {
		regOrder[id] = i
	}

	var edges []dependencyEdge
	seen := make(map[dependencyEdge]bool)
	addEdge := func(from, to NodeId, res ResourceId) {
		if from == to {
			return
		}
		e := dependencyEdge{from, to, res}
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}

	for res, byNode := range uses {
		for w, wBits := range byNode {
			if wBits&useWrite == 0 {
				continue
			}
			for r, rBits := range byNode {
				if r == w || rBits&useRead == 0 {
					continue
				}
				if wBits == useRead|useWrite && rBits == useRead|useWrite {
					// Mutual read-write pair: registration order decides.
					if regOrder[w] < regOrder[r] {
						addEdge(w, r, res)
					}
					continue
				}
				addEdge(w, r, res)
			}
		}
	}
	return edges
}

// topoSort produces a deterministic topological order over nodes: among nodes
// with no unresolved dependencies, the one registered earliest goes first.
// Nodes left over after the sort are part of at least one cycle.
func topoSort(nodes []NodeId, edges []dependencyEdge) (order []NodeId, leftover []NodeId) {
	indegree := make(map[NodeId]int, len(nodes))
	succ := make(map[NodeId][]NodeId)
	for _, id := range nodes {
		indegree[id] = 0
	}
	for _, e := range edges {
		succ[e.from] = append(succ[e.from], e.to)
		indegree[e.to]++
	}

	placed := make(map[NodeId]bool, len(nodes))
	for len(order) < len(nodes) {
		next := InvalidNode
		for _, id := range nodes {
			if !placed[id] && indegree[id] == 0 {
				next = id
				break
			}
		}
		if next == InvalidNode {
			break
		}
		placed[next] = true
		order = append(order, next)
		for _, s := range succ[next] {
			indegree[s]--
		}
	}
	for _, id := range nodes {
		if !placed[id] {
			leftover = append(leftover, id)
		}
	}
	return order, leftover
}

// findCycles enumerates every elementary dependency cycle among the given
// nodes using DFS with a blocked set per start node. Enumeration is bounded by
// node registration order so each cycle is reported exactly once, rooted at
// its earliest-registered node.
func findCycles(nodes []NodeId, edges []dependencyEdge) []Cycle {
	regOrder := make(map[NodeId]int, len(nodes))
	for i, id := range nodes {
		regOrder[id] = i
	}
	type edgeTo struct {
		to  NodeId
		res ResourceId
	}
	succ := make(map[NodeId][]edgeTo)
	for _, e := range edges {
		succ[e.from] = append(succ[e.from], edgeTo{e.to, e.resource})
	}

	var cycles []Cycle
	var path []NodeId
	var pathRes []ResourceId
	onPath := make(map[NodeId]bool)

	var dfs func(start, cur NodeId)
	dfs = func(start, cur NodeId) {
		for _, e := range succ[cur] {
			if regOrder[e.to] < regOrder[start] {
				continue
			}
			if e.to == start {
				cyc := Cycle{
					Nodes:     append([]NodeId{}, path...),
					Resources: append(append([]ResourceId{}, pathRes...), e.res),
				}
				cycles = append(cycles, cyc)
				continue
			}
			if onPath[e.to] {
				continue
			}
			onPath[e.to] = true
			path = append(path, e.to)
			pathRes = append(pathRes, e.res)
			dfs(start, e.to)
			path = path[:len(path)-1]
			pathRes = pathRes[:len(pathRes)-1]
			onPath[e.to] = false
		}
	}

	for _, start := range nodes {
		path = []NodeId{start}
		pathRes = nil
		onPath = map[NodeId]bool{start: true}
		dfs(start, start)
	}
	return cycles
}

func (g *FrameGraph) describeCycle(c Cycle) string {
	var b strings.Builder
	for i, id := range c.Nodes {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(g.nodeName(id))
		if i < len(c.Resources) {
			r := g.resources.get(c.Resources[i])
			if r != nil {
				fmt.Fprintf(&b, " [%s]", r.Name)
			}
		}
	}
	if len(c.Nodes) > 0 {
		fmt.Fprintf(&b, " -> %s", g.nodeName(c.Nodes[0]))
	}
	return b.String()
}

func (g *FrameGraph) cycleSuggestions(cycles []Cycle) []string {
	suggestions := make([]string, 0, len(cycles))
	for _, c := range cycles {
		chain := g.describeCycle(c)
		var hint string
		if len(c.Resources) > 0 {
			r := g.resources.get(c.Resources[len(c.Resources)-1])
			name := "resource"
			if r != nil {
				name = r.Name
			}
			hint = fmt.Sprintf("cycle %s: break the loop by double-buffering %q or demoting one write to a read", chain, name)
		} else {
			hint = fmt.Sprintf("cycle %s: remove one dependency edge", chain)
		}
		suggestions = append(suggestions, hint)
	}
	return suggestions
}

func logCompileReport(report CompileReport, nodeName func(NodeId) string) {
	for _, s := range report.Suggestions {
		log.Printf("Frame graph: %s", s)
	}
	for _, id := range report.Dropped {
		log.Printf("Frame graph: dropping node %q from execution (cyclic)", nodeName(id))
	}
}
