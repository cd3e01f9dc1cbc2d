package padding

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/support/sets"
)

// String implements fmt.Stringer, e.g. "#3 Exp(#2) Float16[2, 16/15]".
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	operands := make([]string, len(n.operands))
	for ii, op := range n.operands {
		operands[ii] = op.String()
	}
	var extra string
	switch {
	case n.opType == OpConstant:
		extra = fmt.Sprintf("value=%s", n.value)
	case n.opType.IsReduce():
		extra = fmt.Sprintf("axes=%v", n.reduceAxes)
		if n.keepDims {
			extra += ", keep_dims"
		}
	case n.opType == OpCompare || n.opType == OpCmpSel:
		extra = fmt.Sprintf("mode=%s", n.compareMode)
	}
	if extra != "" {
		operands = append(operands, extra)
	}
	return fmt.Sprintf("%s %s(%s) %s", n.Name(), n.opType, strings.Join(operands, ", "), shapeString(n))
}

func shapeString(n *Node) string {
	axes := make([]string, len(n.axes))
	for ii, axis := range n.axes {
		axes[ii] = axis.String()
	}
	return fmt.Sprintf("%s[%s]", n.dtype, strings.Join(axes, ", "))
}

// String implements fmt.Stringer, and pretty prints the graph summary and its nodes.
func (g *Graph) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Graph %q:\n", g.name)
	w("\t# nodes:\t%d\n", len(g.nodes))
	opTypesSet := sets.Make[string]()
	var numPadded int
	for _, n := range g.nodes {
		opTypesSet.Insert(n.opType.String())
		if n.HasPadding() {
			numPadded++
		}
	}
	w("\tOp types:\t%#v\n", slices.Sorted(maps.Keys(opTypesSet)))
	w("\t# padded:\t%d\n", numPadded)
	for _, n := range g.nodes {
		w("\t\t%s\n", n)
	}
	return buf.String()
}

// FormatActions returns a multi-line listing of the actions, one per line.
func FormatActions(actions []Action) string {
	if len(actions) == 0 {
		return "no padding actions\n"
	}
	var buf bytes.Buffer
	for ii, action := range actions {
		fmt.Fprintf(&buf, "%3d: %s\n", ii, action)
	}
	return buf.String()
}
