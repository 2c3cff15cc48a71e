package binding

import (
	"sort"

	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
)

// DependencyGraph orders rule instances so that a calculated point runs
// before every instance reading its output.
type DependencyGraph struct {
	rank   map[string]int
	order  []string
	cyclic map[string]bool
}

// NewDependencyGraph links producers (instances with an output twin) to the
// instances that read that twin and sorts them topologically. Instances
// left over by the sort sit on or behind a cycle.
func NewDependencyGraph(instances []*rules.RuleInstance) *DependencyGraph {
	producers := make(map[string]string)
	for _, ri := range instances {
		if ri.OutputTwinID != "" {
			producers[ri.OutputTwinID] = ri.ID
		}
	}

	edges := make(map[string][]string)
	indegree := make(map[string]int, len(instances))
	for _, ri := range instances {
		if _, ok := indegree[ri.ID]; !ok {
			indegree[ri.ID] = 0
		}
		for _, input := range ri.Inputs() {
			p, ok := producers[input]
			if !ok {
				continue
			}
			edges[p] = append(edges[p], ri.ID)
			indegree[ri.ID]++
		}
	}

	g := &DependencyGraph{
		rank:   make(map[string]int, len(instances)),
		cyclic: make(map[string]bool),
	}
	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		g.order = append(g.order, id)
		var next []string
		for _, c := range edges[id] {
			if r := g.rank[id] + 1; r > g.rank[c] {
				g.rank[c] = r
			}
			indegree[c]--
			if indegree[c] == 0 {
				next = append(next, c)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}

	for id, d := range indegree {
		if d > 0 {
			g.cyclic[id] = true
		}
	}
	return g
}

// Rank is the length of the longest producer chain ahead of the instance.
func (g *DependencyGraph) Rank(id string) int { return g.rank[id] }

// Order lists the acyclic instances producers first.
func (g *DependencyGraph) Order() []string { return g.order }

// Cyclic reports whether the instance depends on itself.
func (g *DependencyGraph) Cyclic(id string) bool { return g.cyclic[id] }

// CyclicCount is the number of instances caught in a cycle.
func (g *DependencyGraph) CyclicCount() int { return len(g.cyclic) }

// MarkCircular replaces every parameter of a cyclic instance with a failure.
func MarkCircular(instances []*rules.RuleInstance, g *DependencyGraph) {
	for _, ri := range instances {
		if !g.Cyclic(ri.ID) {
			continue
		}
		for i := range ri.Parameters {
			ri.Parameters[i].Expr = expression.Fail(ReasonCircular, ri.Parameters[i].Expr)
		}
		ri.Status |= rules.StatusCircularReference
	}
}
