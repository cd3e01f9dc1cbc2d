package padding

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
)

// Graph owns the nodes of a fused compute graph.
//
// Nodes are created by the builder functions (Placeholder, Add, ReduceSum, ...) and can only reference
// nodes created before them, so the creation order is a valid dependency order.
type Graph struct {
	name  string
	nodes []*Node
}

// NewGraph creates an empty Graph. The name is only used for printing.
func NewGraph(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Nodes returns all nodes of the graph in dependency order: producers before consumers.
func (g *Graph) Nodes() []*Node {
	return slices.Clone(g.nodes)
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NodeID is the index of a Node in its Graph. It is the identity of the node.
type NodeID int

// Axis describes one axis of a tensor: Size is the physical number of lanes (rounded up to the
// hardware block width), Original is the logical extent. Lanes in [Original, Size) are padding.
type Axis struct {
	Size, Original int
}

// Aligned returns an axis without padding.
func Aligned(size int) Axis {
	return Axis{Size: size, Original: size}
}

// Block returns an axis of logical extent original, stored rounded up to a multiple of width.
func Block(original, width int) Axis {
	if width <= 0 || original <= 0 {
		exceptions.Panicf("padding.Block(%d, %d): original extent and block width must be positive", original, width)
	}
	return Axis{Size: (original + width - 1) / width * width, Original: original}
}

// IsPadded returns whether the axis has padding lanes.
func (a Axis) IsPadded() bool {
	return a.Size > a.Original
}

// String implements fmt.Stringer: "16" for aligned axes, "16/15" for padded ones.
func (a Axis) String() string {
	if a.IsPadded() {
		return fmt.Sprintf("%d/%d", a.Size, a.Original)
	}
	return fmt.Sprintf("%d", a.Size)
}

func (a Axis) validate() {
	if a.Original <= 0 || a.Size < a.Original {
		exceptions.Panicf("invalid axis %d/%d: original extent must be positive and not larger than the size", a.Size, a.Original)
	}
}

// Node is one tensor-producing operation of the Graph. Nodes are compared by identity.
type Node struct {
	graph    *Graph
	id       NodeID
	name     string
	opType   OpType
	operands []Operand
	dtype    dtypes.DType
	axes     []Axis

	// Op specific metadata.
	declaredPadding *PaddingValue // OpPlaceholder only, nil means the engine default.
	value           Scalar        // OpConstant.
	reduceAxes      []int         // Reductions, sorted.
	keepDims        bool          // Reductions.
	compareMode     CompareMode   // OpCompare and OpCmpSel.
}

// Graph returns the graph owning the node.
func (n *Node) Graph() *Graph { return n.graph }

// ID returns the identity of the node within its graph.
func (n *Node) ID() NodeID { return n.id }

// Name returns the node name: the one given by WithName, or "#<id>".
func (n *Node) Name() string {
	if n.name == "" {
		return fmt.Sprintf("#%d", n.id)
	}
	return n.name
}

// WithName sets the name of the node, used only for printing, and returns the node itself.
func (n *Node) WithName(name string) *Node {
	n.name = name
	return n
}

// OpType returns the kind of operator that produced the node.
func (n *Node) OpType() OpType { return n.opType }

// DType of the tensor produced by the node.
func (n *Node) DType() dtypes.DType { return n.dtype }

// Axes returns a copy of the axes of the tensor produced by the node.
func (n *Node) Axes() []Axis { return slices.Clone(n.axes) }

// Rank of the tensor produced by the node.
func (n *Node) Rank() int { return len(n.axes) }

// Operands returns the ordered operands of the node, including immediate scalars and symbols.
func (n *Node) Operands() []Operand { return slices.Clone(n.operands) }

// Inputs returns the ordered graph nodes this node reads. A node used twice is listed twice.
func (n *Node) Inputs() []*Node {
	inputs := make([]*Node, 0, len(n.operands))
	for _, op := range n.operands {
		if op.node != nil {
			inputs = append(inputs, op.node)
		}
	}
	return inputs
}

// ReduceAxes returns the reduced axes, for reductions.
func (n *Node) ReduceAxes() []int { return slices.Clone(n.reduceAxes) }

// KeepDims returns whether a reduction keeps the reduced axes with size 1.
func (n *Node) KeepDims() bool { return n.keepDims }

// CompareMode returns the ordering relation, for Compare and CmpSel.
func (n *Node) CompareMode() CompareMode { return n.compareMode }

// HasPadding returns whether any of the node's axes has padding lanes.
func (n *Node) HasPadding() bool {
	for _, axis := range n.axes {
		if axis.IsPadded() {
			return true
		}
	}
	return false
}

// PaddedAxes returns the indices of the axes with padding lanes.
func (n *Node) PaddedAxes() []int {
	var padded []int
	for ii, axis := range n.axes {
		if axis.IsPadded() {
			padded = append(padded, ii)
		}
	}
	return padded
}

// Operand is an input of an operator: either a graph Node, an immediate scalar constant or an unbound
// symbolic scalar (a runtime parameter the graph doesn't track).
type Operand struct {
	node   *Node
	scalar *Scalar
	symbol string
	dtype  dtypes.DType
}

// NodeOperand wraps a node as an operand.
func NodeOperand(node *Node) Operand {
	if node == nil {
		exceptions.Panicf("padding.NodeOperand(nil)")
	}
	return Operand{node: node, dtype: node.dtype}
}

// ScalarOperand wraps an immediate scalar as an operand.
func ScalarOperand(value Scalar) Operand {
	return Operand{scalar: &value, dtype: value.DType}
}

// SymbolOperand is an unbound scalar of the given dtype, known only at runtime.
func SymbolOperand(name string, dtype dtypes.DType) Operand {
	if name == "" {
		exceptions.Panicf("padding.SymbolOperand requires a name")
	}
	return Operand{symbol: name, dtype: dtype}
}

// Node returns the graph node of the operand, or nil for scalars and symbols.
func (op Operand) Node() *Node { return op.node }

// Scalar returns the immediate value of the operand, if it is one.
func (op Operand) Scalar() (Scalar, bool) {
	if op.scalar == nil {
		return Scalar{}, false
	}
	return *op.scalar, true
}

// Symbol returns the name of a symbolic operand, or "" otherwise.
func (op Operand) Symbol() string { return op.symbol }

// DType of the operand.
func (op Operand) DType() dtypes.DType { return op.dtype }

// String implements fmt.Stringer.
func (op Operand) String() string {
	switch {
	case op.node != nil:
		return op.node.Name()
	case op.scalar != nil:
		return fmt.Sprintf("%s(%s)", op.dtype, op.scalar)
	default:
		return fmt.Sprintf("$%s", op.symbol)
	}
}

// newNode registers a new node in the graph of its node operands (or g, for leaves).
func newNode(g *Graph, opType OpType, dtype dtypes.DType, axes []Axis, operands ...Operand) *Node {
	for _, op := range operands {
		if op.node == nil {
			continue
		}
		if g == nil {
			g = op.node.graph
		} else if op.node.graph != g {
			exceptions.Panicf("%s: operand %s belongs to a different graph", opType, op.node.Name())
		}
	}
	if g == nil {
		exceptions.Panicf("%s: requires at least one node operand", opType)
	}
	for _, axis := range axes {
		axis.validate()
	}
	n := &Node{
		graph:    g,
		id:       NodeID(len(g.nodes)),
		opType:   opType,
		operands: operands,
		dtype:    dtype,
		axes:     axes,
	}
	g.nodes = append(g.nodes, n)
	return n
}

// reachable returns the nodes reachable from roots, in dependency order.
func reachable(roots []*Node) []*Node {
	if len(roots) == 0 {
		return nil
	}
	g := roots[0].graph
	visited := sets.Make[NodeID]()
	stack := make([]*Node, 0, len(roots))
	for _, root := range roots {
		if root.graph != g {
			exceptions.Panicf("root %s belongs to a different graph than root %s", root.Name(), roots[0].Name())
		}
		stack = append(stack, root)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Has(n.id) {
			continue
		}
		visited.Insert(n.id)
		for _, input := range n.Inputs() {
			if input.id >= n.id {
				exceptions.Panicf("cycle in graph: %s reads %s, which is not produced before it", n.Name(), input.Name())
			}
			if !visited.Has(input.id) {
				stack = append(stack, input)
			}
		}
	}
	sorted := make([]*Node, 0, len(visited))
	for _, n := range g.nodes {
		if visited.Has(n.id) {
			sorted = append(sorted, n)
		}
	}
	return sorted
}
