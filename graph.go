package conductor

import (
	"fmt"
	"os"
)

// GraphNode represents a node in the dependency graph.
type GraphNode struct {
	ID    string
	State State
}

// GraphEdge represents a dependency edge: From must be running before To
// can start.
type GraphEdge struct {
	From string
	To   string
}

// Graph is the complete dependency graph of a Manager's registry at a
// point in time.
type Graph struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

// BuildGraph snapshots m's registry into a Graph: one node per registered
// component, one edge per declared dependency.
func (m *Manager) BuildGraph() Graph {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := Graph{
		Nodes: make([]GraphNode, 0, len(m.reg.order)),
		Edges: make([]GraphEdge, 0),
	}
	for _, name := range m.reg.order {
		rec := m.reg.byName[name]
		g.Nodes = append(g.Nodes, GraphNode{ID: name, State: rec.state})
		for _, dep := range rec.opts.Dependencies {
			g.Edges = append(g.Edges, GraphEdge{From: dep, To: name})
		}
	}
	return g
}

// ToDOT renders the graph in Graphviz DOT format.
func (g Graph) ToDOT() string {
	var result string
	result += "digraph conductor {\n"
	result += "  rankdir=TB;\n\n"

	for _, node := range g.Nodes {
		result += fmt.Sprintf("  %q [label=%q, shape=box];\n", node.ID, fmt.Sprintf("%s\\n%s", node.ID, node.State))
	}

	result += "\n"
	for _, edge := range g.Edges {
		result += fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To)
	}

	result += "}\n"
	return result
}

// WriteGraphToFile renders BuildGraph as DOT and writes it to path.
func (m *Manager) WriteGraphToFile(path string) error {
	dot := m.BuildGraph().ToDOT()
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("conductor: failed to create graph output file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(dot); err != nil {
		return fmt.Errorf("conductor: failed to write graph: %w", err)
	}
	return nil
}
