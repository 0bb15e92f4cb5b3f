package ownership

import "github.com/saint0x/stateless/pattern"

// InvalidationSet returns every pattern reachable from text over
// Invalidates edges, in breadth-first discovery order, each exactly once.
// The origin is not part of its own set, and build-time acyclicity
// guarantees the walk terminates. Order is deterministic: neighbors are
// visited in edge declaration order. Unknown texts yield nil.
func (g *Graph) InvalidationSet(text string) []*pattern.Pattern {
	if _, ok := g.nodes[text]; !ok {
		return nil
	}
	var (
		out     []*pattern.Pattern
		queue   = []string{text}
		visited = map[string]bool{text: true}
	)
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.invOut[v] {
			if visited[w] {
				continue
			}
			visited[w] = true
			out = append(out, g.nodes[w].Space())
			queue = append(queue, w)
		}
	}
	return out
}
