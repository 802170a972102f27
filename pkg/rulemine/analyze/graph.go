package analyze

import (
	"sort"

	"github.com/cognicore/rulemine/pkg/rulemine/pmi"
)

// graph is an undirected weighted keyword graph built from strong
// co-occurrence pairs. Node order is lexicographic everywhere so
// centrality and community output is stable for identical input.
type graph struct {
	nodes []string
	index map[string]int
	adj   [][]int
	wts   []map[int]float64
}

func newGraph(edges []pmi.Edge) *graph {
	set := make(map[string]struct{})
	for _, e := range edges {
		set[e.Word1] = struct{}{}
		set[e.Word2] = struct{}{}
	}
	nodes := make([]string, 0, len(set))
	for n := range set {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	g := &graph{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
		adj:   make([][]int, len(nodes)),
		wts:   make([]map[int]float64, len(nodes)),
	}
	for i, n := range nodes {
		g.index[n] = i
		g.wts[i] = make(map[int]float64)
	}
	for _, e := range edges {
		u, v := g.index[e.Word1], g.index[e.Word2]
		if _, dup := g.wts[u][v]; dup {
			continue
		}
		g.adj[u] = append(g.adj[u], v)
		g.adj[v] = append(g.adj[v], u)
		g.wts[u][v] = e.Weight
		g.wts[v][u] = e.Weight
	}
	for i := range g.adj {
		sort.Ints(g.adj[i])
	}
	return g
}

// centralityScore holds the per-node centrality breakdown.
type centralityScore struct {
	Node        string
	Degree      float64
	Betweenness float64
	Closeness   float64
	Combined    float64
}

// centrality computes normalized degree, betweenness (Brandes over
// unweighted shortest paths), and closeness, combined as
// 0.4*degree + 0.3*betweenness + 0.3*closeness.
func (g *graph) centrality() []centralityScore {
	n := len(g.nodes)
	if n == 0 {
		return nil
	}
	scores := make([]centralityScore, n)
	maxDeg := float64(n - 1)

	btw := g.betweenness()
	maxBtw := 0.0
	for _, b := range btw {
		if b > maxBtw {
			maxBtw = b
		}
	}

	for i, node := range g.nodes {
		deg := 0.0
		if maxDeg > 0 {
			deg = float64(len(g.adj[i])) / maxDeg
		}
		b := 0.0
		if maxBtw > 0 {
			b = btw[i] / maxBtw
		}
		scores[i] = centralityScore{
			Node:        node,
			Degree:      deg,
			Betweenness: b,
			Closeness:   g.closeness(i),
			Combined:    0, // filled below
		}
		scores[i].Combined = 0.4*scores[i].Degree + 0.3*scores[i].Betweenness + 0.3*scores[i].Closeness
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Combined != scores[j].Combined {
			return scores[i].Combined > scores[j].Combined
		}
		return scores[i].Node < scores[j].Node
	})
	return scores
}

// betweenness implements Brandes' algorithm on the unweighted graph.
func (g *graph) betweenness() []float64 {
	n := len(g.nodes)
	cb := make([]float64, n)

	for s := 0; s < n; s++ {
		stack := make([]int, 0, n)
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}
		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}
	// Undirected: each pair counted twice.
	for i := range cb {
		cb[i] /= 2
	}
	return cb
}

// closeness is the normalized inverse mean shortest-path distance to
// reachable nodes.
func (g *graph) closeness(src int) float64 {
	n := len(g.nodes)
	dist := make([]int, n)
	for i := range dist {
		dist[i] = -1
	}
	dist[src] = 0
	queue := []int{src}
	sum, reached := 0, 0
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.adj[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				sum += dist[w]
				reached++
				queue = append(queue, w)
			}
		}
	}
	if sum == 0 || n < 2 {
		return 0
	}
	// Scale by reachable fraction so fragmented graphs don't inflate.
	return (float64(reached) / float64(n-1)) * (float64(reached) / float64(sum))
}

// communities partitions nodes by label propagation with
// deterministic lexicographic ordering, keeping the partition when it
// improves modularity over the trivial split and falling back to
// connected components otherwise. Groups come back sorted, largest
// first, members lexicographic.
func (g *graph) communities() [][]string {
	n := len(g.nodes)
	if n == 0 {
		return nil
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}
	// Fixed sweep order and min-label tie-break keep this stable.
	for iter := 0; iter < 20; iter++ {
		changed := false
		for v := 0; v < n; v++ {
			if len(g.adj[v]) == 0 {
				continue
			}
			weight := make(map[int]float64)
			for _, w := range g.adj[v] {
				weight[labels[w]] += g.wts[v][w]
			}
			best, bestW := labels[v], weight[labels[v]]
			for lbl, wt := range weight {
				if wt > bestW || (wt == bestW && lbl < best) {
					best, bestW = lbl, wt
				}
			}
			if best != labels[v] {
				labels[v] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if g.modularity(labels) <= 0 {
		labels = g.components()
	}

	byLabel := make(map[int][]string)
	for i, lbl := range labels {
		byLabel[lbl] = append(byLabel[lbl], g.nodes[i])
	}
	groups := make([][]string, 0, len(byLabel))
	for _, members := range byLabel {
		sort.Strings(members)
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0] < groups[j][0]
	})
	return groups
}

// modularity computes Newman modularity of a labelling over the
// weighted graph.
func (g *graph) modularity(labels []int) float64 {
	var total float64
	strength := make([]float64, len(g.nodes))
	for u := range g.wts {
		for v, w := range g.wts[u] {
			if u < v {
				total += w
			}
			strength[u] += w
		}
	}
	if total == 0 {
		return 0
	}
	var q float64
	for u := range g.wts {
		for v, w := range g.wts[u] {
			if u >= v || labels[u] != labels[v] {
				continue
			}
			q += w/total - (strength[u]*strength[v])/(4*total*total)
		}
	}
	return q
}

// components labels nodes by connected component.
func (g *graph) components() []int {
	labels := make([]int, len(g.nodes))
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for s := range g.nodes {
		if labels[s] >= 0 {
			continue
		}
		queue := []int{s}
		labels[s] = next
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range g.adj[v] {
				if labels[w] < 0 {
					labels[w] = next
					queue = append(queue, w)
				}
			}
		}
		next++
	}
	return labels
}
