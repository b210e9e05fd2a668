package dag

import (
	"fmt"
	"strings"

	"daedalus/internal/space"
)

// Node is one vertex of a decoded architecture: an operation plus its
// wiring. Parent and child links are installed during assembly.
type Node struct {
	Op       space.Operation
	Name     string
	parents  []*Node
	children []*Node
}

func NewNode(name string, op space.Operation) *Node {
	return &Node{Op: op, Name: name}
}

func (n *Node) Parents() []*Node {
	return append([]*Node(nil), n.parents...)
}

func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

func connect(parent, child *Node) {
	parent.children = append(parent.children, child)
	child.parents = append(child.parents, parent)
}

func (n *Node) String() string {
	names := make([]string, 0, len(n.parents))
	for _, p := range n.parents {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("%s(%s)<-[%s]", n.Name, n.Op.Type(), strings.Join(names, ","))
}

// NodeGraph is the bookkeeping view of one decoded architecture. Layers
// appear in decode order.
type NodeGraph struct {
	Inputs  []*Node
	Layers  []*Node
	Outputs []*Node

	byName map[string]*Node
}

func newNodeGraph() *NodeGraph {
	return &NodeGraph{byName: make(map[string]*Node)}
}

// ByName returns the node with the given unique name.
func (g *NodeGraph) ByName(name string) (*Node, bool) {
	n, ok := g.byName[name]
	return n, ok
}

func (g *NodeGraph) register(n *Node) error {
	if _, exists := g.byName[n.Name]; exists {
		return fmt.Errorf("%w: %q", ErrNameCollision, n.Name)
	}
	g.byName[n.Name] = n
	return nil
}
