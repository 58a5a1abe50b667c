package graph

import (
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// transferGraph is a directed multigraph over accounts. Parallel transfers
// between the same pair collapse into one edge for degree purposes.
type transferGraph struct {
	order []string            // accounts in order of first appearance
	out   map[string][]string // distinct successors in first-seen order
	in    map[string][]string // distinct predecessors in first-seen order
}

func buildGraph(transfers []domain.Transfer) *transferGraph {
	g := &transferGraph{
		out: make(map[string][]string),
		in:  make(map[string][]string),
	}
	seen := make(map[string]bool)
	edges := make(map[[2]string]bool)

	for _, t := range transfers {
		for _, acct := range []string{t.FromAccount, t.ToAccount} {
			if !seen[acct] {
				seen[acct] = true
				g.order = append(g.order, acct)
			}
		}
		key := [2]string{t.FromAccount, t.ToAccount}
		if edges[key] {
			continue
		}
		edges[key] = true
		g.out[t.FromAccount] = append(g.out[t.FromAccount], t.ToAccount)
		g.in[t.ToAccount] = append(g.in[t.ToAccount], t.FromAccount)
	}
	return g
}

func (g *transferGraph) outDegree(acct string) int { return len(g.out[acct]) }
func (g *transferGraph) inDegree(acct string) int  { return len(g.in[acct]) }
func (g *transferGraph) degree(acct string) int    { return g.outDegree(acct) + g.inDegree(acct) }

// maxDegrees returns the largest distinct out-degree and in-degree.
func (g *transferGraph) maxDegrees() (maxOut, maxIn int) {
	for _, acct := range g.order {
		maxOut = max(maxOut, g.outDegree(acct))
		maxIn = max(maxIn, g.inDegree(acct))
	}
	return maxOut, maxIn
}

// hubs returns accounts whose combined degree reaches threshold, sorted by
// degree descending then id.
func (g *transferGraph) hubs(threshold int) []string {
	var hubs []string
	for _, acct := range g.order {
		if g.degree(acct) >= threshold {
			hubs = append(hubs, acct)
		}
	}
	sort.SliceStable(hubs, func(i, j int) bool {
		di, dj := g.degree(hubs[i]), g.degree(hubs[j])
		if di != dj {
			return di > dj
		}
		return hubs[i] < hubs[j]
	})
	return hubs
}

// hasBridgeHub reports whether some account both collects and distributes:
// in >= 2, out >= 2 and degree >= threshold.
func (g *transferGraph) hasBridgeHub(threshold int) bool {
	for _, acct := range g.order {
		if g.inDegree(acct) >= 2 && g.outDegree(acct) >= 2 && g.degree(acct) >= threshold {
			return true
		}
	}
	return false
}

const (
	white = iota
	gray
	black
)

// findCycle runs an iterative three-colour DFS and returns the accounts of the
// first directed cycle found, in edge order.
func (g *transferGraph) findCycle() []string {
	color := make(map[string]int, len(g.order))

	type frame struct {
		node string
		next int
	}

	for _, start := range g.order {
		if color[start] != white {
			continue
		}
		color[start] = gray
		stack := []frame{{node: start}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := g.out[top.node]
			if top.next >= len(succ) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}

			n := succ[top.next]
			top.next++

			switch color[n] {
			case white:
				color[n] = gray
				stack = append(stack, frame{node: n})
			case gray:
				var cycle []string
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i].node)
					if stack[i].node == n {
						break
					}
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
		}
	}
	return nil
}

// longestPath returns the hop count of the longest simple directed path.
// The backtracking search stops after budget steps and returns the best
// depth found so far; exhausted reports whether that happened.
func (g *transferGraph) longestPath(budget int) (depth int, exhausted bool) {
	s := &pathSearch{
		g:       g,
		visited: make(map[string]bool, len(g.order)),
		budget:  budget,
		limit:   len(g.order) - 1,
	}
	for _, start := range g.order {
		if s.best == s.limit || s.steps >= s.budget {
			break
		}
		s.walk(start, 0)
	}
	return s.best, s.steps >= s.budget && s.best < s.limit
}

type pathSearch struct {
	g       *transferGraph
	visited map[string]bool
	steps   int
	budget  int
	best    int
	limit   int
}

func (s *pathSearch) walk(node string, depth int) {
	if s.steps >= s.budget || s.best == s.limit {
		return
	}
	s.steps++
	if depth > s.best {
		s.best = depth
	}

	s.visited[node] = true
	for _, n := range s.g.out[node] {
		if !s.visited[n] {
			s.walk(n, depth+1)
		}
	}
	s.visited[node] = false
}

// burstRate returns the most transfers seen inside any window, scaled to a
// per-hour rate.
func burstRate(transfers []domain.Transfer, window time.Duration) float64 {
	if len(transfers) == 0 || window <= 0 {
		return 0
	}

	ts := make([]time.Time, len(transfers))
	for i, t := range transfers {
		ts[i] = t.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	best, lo := 0, 0
	for hi := range ts {
		for ts[hi].Sub(ts[lo]) > window {
			lo++
		}
		best = max(best, hi-lo+1)
	}
	return float64(best) * float64(time.Hour) / float64(window)
}
