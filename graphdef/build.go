package graphdef

import (
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/padding-gomlx/internal/scalars"
	"github.com/gomlx/padding-gomlx/padding"
	"github.com/pkg/errors"
)

// Model is a built graph description.
type Model struct {
	Graph *padding.Graph

	// Nodes by name.
	Nodes map[string]*padding.Node

	// Outputs are the roots of the graph, to be given to padding.CalcPadding.
	Outputs []*padding.Node
}

// isNodeRef returns whether the input refers to another node, as opposed to a literal or a symbol.
func isNodeRef(input string) bool {
	return !strings.HasPrefix(input, "=") && !strings.HasPrefix(input, "$")
}

// sortedNodes returns the indices of the node definitions sorted such that every node comes after its
// inputs. Ties keep the declaration order.
func (d *Def) sortedNodes() ([]int, error) {
	index := make(map[string]int, len(d.Nodes))
	for ii, node := range d.Nodes {
		if node.Name == "" {
			return nil, errors.Errorf("node #%d has no name", ii)
		}
		if !isNodeRef(node.Name) || strings.HasPrefix(node.Name, "#") {
			return nil, errors.Errorf("invalid node name %q: it can't start with '=', '$' or '#'", node.Name)
		}
		if _, found := index[node.Name]; found {
			return nil, errors.Errorf("node name %q is used more than once", node.Name)
		}
		index[node.Name] = ii
	}

	// Build reverse dependency map, and count pending inputs per node.
	dependants := make(map[string]sets.Set[int])
	pending := make([]int, len(d.Nodes))
	for ii, node := range d.Nodes {
		deps := sets.Make[string]()
		for _, input := range node.Inputs {
			if !isNodeRef(input) {
				continue
			}
			if _, found := index[input]; !found {
				return nil, errors.Errorf("node %q reads unknown node %q", node.Name, input)
			}
			deps.Insert(input)
		}
		for dep := range deps {
			if dependants[dep] == nil {
				dependants[dep] = sets.Make[int]()
			}
			dependants[dep].Insert(ii)
		}
		pending[ii] = len(deps)
	}

	sorted := make([]int, 0, len(d.Nodes))
	var ready []int
	for ii := range d.Nodes {
		if pending[ii] == 0 {
			ready = append(ready, ii)
		}
	}
	for len(ready) > 0 {
		sorted = append(sorted, ready...)
		var next []int
		for _, ii := range ready {
			for dep := range dependants[d.Nodes[ii].Name] {
				pending[dep]--
				if pending[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		slices.Sort(next)
		ready = next
	}
	if len(sorted) != len(d.Nodes) {
		var cycle []string
		for ii, node := range d.Nodes {
			if pending[ii] > 0 {
				cycle = append(cycle, node.Name)
			}
		}
		return nil, errors.Errorf("sorting graph %q failed: nodes %q are part of (or depend on) a cycle", d.Name, cycle)
	}
	return sorted, nil
}

// Build creates the padding.Graph described.
func (d *Def) Build() (*Model, error) {
	sorted, err := d.sortedNodes()
	if err != nil {
		return nil, err
	}
	m := &Model{
		Graph: padding.NewGraph(d.Name),
		Nodes: make(map[string]*padding.Node, len(d.Nodes)),
	}
	for ii, idx := range sorted {
		def := &d.Nodes[idx]
		var node *padding.Node
		err = exceptions.TryCatch[error](func() { node = m.buildNode(def) })
		if err != nil {
			return nil, errors.WithMessagef(err, "while building node %q (%d out of %d)", def.Name, ii, len(sorted))
		}
		m.Nodes[def.Name] = node
	}

	outputs := d.Outputs
	if len(outputs) == 0 {
		read := sets.Make[string]()
		for _, def := range d.Nodes {
			for _, input := range def.Inputs {
				read.Insert(input)
			}
		}
		for _, def := range d.Nodes {
			if !read.Has(def.Name) {
				outputs = append(outputs, def.Name)
			}
		}
	}
	for _, name := range outputs {
		node, found := m.Nodes[name]
		if !found {
			return nil, errors.Errorf("output node %q not found", name)
		}
		m.Outputs = append(m.Outputs, node)
	}
	return m, nil
}

// arity returns the number of inputs of op.
func arity(op padding.OpType) int {
	switch {
	case op == padding.OpPlaceholder || op == padding.OpConstant:
		return 0
	case op.IsUnary(), op.IsReduce(), op == padding.OpBroadcast:
		return 1
	case op.IsBinary(), op == padding.OpCompare:
		return 2
	case op == padding.OpSelect:
		return 3
	case op == padding.OpCmpSel:
		return 4
	default:
		return -1
	}
}

// operandGroups returns the groups of operand positions that share a dtype.
func operandGroups(op padding.OpType) [][]int {
	switch op {
	case padding.OpSelect:
		return [][]int{{0}, {1, 2}}
	case padding.OpCmpSel:
		return [][]int{{0, 1}, {2, 3}}
	default:
		return [][]int{{0, 1}}
	}
}

// buildNode creates the node for def, whose inputs were already built. It panics on errors.
func (m *Model) buildNode(def *NodeDef) *padding.Node {
	op, err := padding.OpTypeFromString(def.Op)
	if err != nil {
		panic(err)
	}
	if n := arity(op); n != len(def.Inputs) {
		exceptions.Panicf("op %s takes %d inputs, got %d", op, n, len(def.Inputs))
	}
	axes := make([]padding.Axis, len(def.Axes))
	for ii, axis := range def.Axes {
		axes[ii] = padding.Axis(axis)
	}

	switch op {
	case padding.OpPlaceholder:
		dtype := parseDType(def.DType)
		if def.Padding == "" {
			return padding.Placeholder(m.Graph, def.Name, dtype, axes...)
		}
		return padding.PlaceholderWithPadding(m.Graph, def.Name, parsePadding(dtype, def.Padding), dtype, axes...)
	case padding.OpConstant:
		dtype := parseDType(def.DType)
		return padding.Constant(m.Graph, parseLiteral(dtype, def.Value), axes...).WithName(def.Name)
	}

	operands := m.operands(op, def)
	var node *padding.Node
	switch {
	case op == padding.OpCast:
		node = padding.Cast(nodeOf(op, operands[0]), parseDType(def.DType))
	case op.IsUnary():
		node = padding.UnaryOp(op, nodeOf(op, operands[0]))
	case op.IsBinary():
		node = padding.BinaryOp(op, operands[0], operands[1])
	case op == padding.OpBroadcast:
		node = padding.Broadcast(nodeOf(op, operands[0]), axes...)
	case op.IsReduce():
		node = padding.Reduce(op, nodeOf(op, operands[0]), def.KeepDims, def.ReduceAxes...)
	case op == padding.OpCompare:
		node = padding.CompareOperands(operands[0], operands[1], parseMode(def.Mode))
	case op == padding.OpSelect:
		node = padding.Select(nodeOf(op, operands[0]), operands[1], operands[2])
	case op == padding.OpCmpSel:
		node = padding.CmpSel(operands[0], operands[1], parseMode(def.Mode), operands[2], operands[3])
	default:
		exceptions.Panicf("op %s not supported in graph descriptions", op)
	}
	return node.WithName(def.Name)
}

// operands converts the inputs of def. Literals and symbols take the dtype of the node operands of their
// group, or def.DType if there are none.
func (m *Model) operands(op padding.OpType, def *NodeDef) []padding.Operand {
	operands := make([]padding.Operand, len(def.Inputs))
	for _, group := range operandGroups(op) {
		dtype := dtypes.InvalidDType
		for _, pos := range group {
			if pos < len(def.Inputs) && isNodeRef(def.Inputs[pos]) {
				dtype = m.Nodes[def.Inputs[pos]].DType()
				break
			}
		}
		for _, pos := range group {
			if pos >= len(def.Inputs) {
				continue
			}
			input := def.Inputs[pos]
			if isNodeRef(input) {
				operands[pos] = padding.NodeOperand(m.Nodes[input])
				continue
			}
			if dtype == dtypes.InvalidDType {
				if def.DType == "" {
					exceptions.Panicf("can't infer the dtype of input %q, set the node dtype", input)
				}
				dtype = parseDType(def.DType)
			}
			if symbol, found := strings.CutPrefix(input, "$"); found {
				operands[pos] = padding.SymbolOperand(symbol, dtype)
			} else {
				operands[pos] = padding.ScalarOperand(parseLiteral(dtype, strings.TrimPrefix(input, "=")))
			}
		}
	}
	return operands
}

func nodeOf(op padding.OpType, operand padding.Operand) *padding.Node {
	if operand.Node() == nil {
		exceptions.Panicf("op %s requires a node input, got %s", op, operand)
	}
	return operand.Node()
}

func parseDType(name string) dtypes.DType {
	dtype, found := dtypes.MapOfNames[name]
	if !found {
		dtype, found = dtypes.MapOfNames[strings.ToLower(name)]
	}
	if !found || !scalars.IsSupported(dtype) {
		exceptions.Panicf("unknown or unsupported dtype %q", name)
	}
	return dtype
}

func parseLiteral(dtype dtypes.DType, text string) padding.Scalar {
	v, err := scalars.Parse(dtype, text)
	if err != nil {
		panic(err)
	}
	return padding.NewScalar(dtype, v)
}

func parsePadding(dtype dtypes.DType, text string) *padding.PaddingValue {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "any", "unconstrained":
		return padding.NewUnconstrained()
	case "dependent", "tensor_dependent":
		return padding.NewTensorDependent()
	default:
		return padding.NewExact(parseLiteral(dtype, text))
	}
}

func parseMode(text string) padding.CompareMode {
	mode, err := padding.ParseCompareMode(text)
	if err != nil {
		panic(err)
	}
	return mode
}
