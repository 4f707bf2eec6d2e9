package conductor

// resolveStartupOrder computes a topological order over the given names
// using Kahn's algorithm with a stable tie-breaker: among nodes with
// current in-degree zero, the one with the smallest registration index is
// picked next. Missing dependencies (names not present in byName) are
// ignored for ordering purposes — they are diagnosed separately by
// validateDependencies or at individual start. A cycle leaves residual
// nodes in the graph; the caller is expected to call findCycle to extract
// a concrete cycle for DependencyCycleError.
func resolveStartupOrder(names []string, byName map[string]*record) ([]string, bool) {
	inDegree := make(map[string]int, len(names))
	children := make(map[string][]string, len(names))
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
		inDegree[n] = 0
	}
	for _, n := range names {
		rec := byName[n]
		for _, dep := range rec.opts.Dependencies {
			if !present[dep] {
				continue // missing dependency: ignored for ordering
			}
			inDegree[n]++
			children[dep] = append(children[dep], n)
		}
	}

	// frontier holds the current set of in-degree-0 nodes, ordered by
	// registration index for the stable tie-break.
	frontier := &orderedFrontier{byName: byName}
	for _, n := range names {
		if inDegree[n] == 0 {
			frontier.add(n)
		}
	}

	order := make([]string, 0, len(names))
	for !frontier.isEmpty() {
		n := frontier.popSmallest()
		order = append(order, n)
		for _, child := range children[n] {
			inDegree[child]--
			if inDegree[child] == 0 {
				frontier.add(child)
			}
		}
	}

	return order, len(order) == len(names)
}

// orderedFrontier is a small helper that always pops the queued name with
// the smallest registration index, re-scanning linearly. Startup frontiers
// are small (one orchestrator manages tens of components, not millions),
// so a linear scan beats the bookkeeping of a heap.
type orderedFrontier struct {
	byName map[string]*record
	items  []string
}

func (f *orderedFrontier) add(name string) {
	f.items = append(f.items, name)
}

func (f *orderedFrontier) isEmpty() bool {
	return len(f.items) == 0
}

func (f *orderedFrontier) popSmallest() string {
	bestIdx := 0
	best := f.byName[f.items[0]].registrationIndex
	for i, n := range f.items {
		if idx := f.byName[n].registrationIndex; idx < best {
			best = idx
			bestIdx = i
		}
	}
	name := f.items[bestIdx]
	f.items = append(f.items[:bestIdx], f.items[bestIdx+1:]...)
	return name
}

// findCycle runs a DFS with a recursion-stack trace over names to extract
// one concrete cycle among the dependency edges (restricted to present
// dependencies, same as resolveStartupOrder). It is called only after
// resolveStartupOrder reports residual (un-orderable) nodes.
func findCycle(names []string, byName map[string]*record) []string {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(names))
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, dep := range byName[n].opts.Dependencies {
			if !present[dep] {
				continue
			}
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				// Found the back-edge; extract the cycle from the stack.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append([]string{}, stack[start:]...)
				cycle = append(cycle, dep)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for _, n := range names {
		if color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// validateDependencies reports missing dependencies and cycles without
// mutating or throwing. It continues across disconnected components so
// every back-edge cycle is reported, not just the first found.
type DependencyReport struct {
	MissingDependencies []MissingDependency
	Cycles              [][]string
}

type MissingDependency struct {
	Component  string
	Dependency string
	Optional   bool
}

func validateDependencies(names []string, byName map[string]*record) DependencyReport {
	var report DependencyReport
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	for _, n := range names {
		rec := byName[n]
		for _, dep := range rec.opts.Dependencies {
			if !present[dep] {
				report.MissingDependencies = append(report.MissingDependencies, MissingDependency{
					Component:  n,
					Dependency: dep,
					Optional:   rec.opts.Optional,
				})
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(names))
	var stack []string

	var visit func(n string)
	visit = func(n string) {
		color[n] = gray
		stack = append(stack, n)
		for _, dep := range byName[n].opts.Dependencies {
			if !present[dep] {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cyc := append([]string{}, stack[start:]...)
				cyc = append(cyc, dep)
				report.Cycles = append(report.Cycles, cyc)
			}
		}
		stack = stack[:len(stack)-1]
		if color[n] != black {
			color[n] = black
		}
	}

	for _, n := range names {
		if color[n] == white {
			visit(n)
		}
	}

	return report
}

// reverse returns names in reverse order, used both for shutdown order
// (reverse of a freshly re-resolved startup order) and for rollback
// (reverse of the observed start sequence).
func reverse(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}
