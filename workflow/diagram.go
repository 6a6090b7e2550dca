package workflow

import (
	"fmt"
	"strings"
)

// MermaidOption configures Mermaid rendering.
type MermaidOption func(*mermaidConfig)

type mermaidConfig struct {
	direction string
	showConds bool
}

// WithDirection sets graph direction: TD, LR, BT or RL.
func WithDirection(dir string) MermaidOption {
	return func(c *mermaidConfig) {
		switch dir = strings.ToUpper(strings.TrimSpace(dir)); dir {
		case "TD", "LR", "BT", "RL":
			c.direction = dir
		}
	}
}

// WithConditionIndicators labels conditional edges with "cond".
func WithConditionIndicators(enabled bool) MermaidOption {
	return func(c *mermaidConfig) { c.showConds = enabled }
}

// MermaidFlowchart renders the workflow graph as a Mermaid flowchart definition.
// Node ids are assigned in depth-first order so output is stable across calls.
func (w *Workflow) MermaidFlowchart(opts ...MermaidOption) string {
	cfg := mermaidConfig{direction: "TD"}
	for _, o := range opts {
		o(&cfg)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "graph %s\n", cfg.direction)
	if w == nil || w.root == nil {
		return b.String()
	}

	r := &mermaidRenderer{ids: map[any]string{}, cfg: cfg}
	r.chain(w.root)
	for _, n := range r.nodes {
		b.WriteString(n)
	}
	for _, e := range r.edges {
		b.WriteString(e)
	}
	return b.String()
}

type mermaidRenderer struct {
	cfg   mermaidConfig
	ids   map[any]string
	nodes []string
	edges []string
}

func (r *mermaidRenderer) id(key any, label string) string {
	if id, ok := r.ids[key]; ok {
		return id
	}
	id := fmt.Sprintf("n%d", len(r.ids)+1)
	r.ids[key] = id
	r.nodes = append(r.nodes, fmt.Sprintf("%s[%q]\n", id, label))
	return id
}

func (r *mermaidRenderer) edge(from, to string, cond bool) {
	if cond && r.cfg.showConds {
		r.edges = append(r.edges, fmt.Sprintf("%s -->|cond| %s\n", from, to))
		return
	}
	r.edges = append(r.edges, fmt.Sprintf("%s --> %s\n", from, to))
}

// chain renders s and its successors and returns the ids of the chain's tail nodes.
func (r *mermaidRenderer) chain(s *step) []string {
	var prev []string
	for cur := s; cur != nil; cur = cur.next {
		if cur.pass {
			continue
		}
		id := r.id(cur, cur.name)
		for _, p := range prev {
			r.edge(p, id, cur.precond != nil)
		}
		prev = []string{id}
		if len(cur.branches) == 0 {
			continue
		}
		var branchTails []string
		for i, child := range cur.branches {
			childID := r.id(child, child.name)
			// a branch condition is either given to Branch or set on the child with When
			cond := i < len(cur.brConds) && cur.brConds[i] != nil || child.precond != nil
			r.edge(id, childID, cond)
			branchTails = append(branchTails, r.chain(child)...)
		}
		if cur.merge == nil {
			return branchTails
		}
		mid := r.id(cur.merge, cur.merge.name)
		for _, t := range branchTails {
			r.edge(t, mid, false)
		}
		prev = []string{mid}
		cur = cur.merge.next
		// cur is now the merge passthrough; the loop advances past it
	}
	return prev
}
