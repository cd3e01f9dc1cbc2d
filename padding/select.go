package padding

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// resolveBranch returns the padding value of a selected operand, as seen by consumer, and records on the
// operand that consumer relies on it: on the setting the consumer demanded or an unconditional fill, if any,
// or on its own padding value. Immediate scalars resolve to Exact values and symbols to TensorDependent ones.
func (p *propagation) resolveBranch(consumer *Node, op Operand) *PaddingValue {
	pv := p.view(consumer, op)
	if op.node == nil {
		return pv
	}
	st := p.states[op.node.id]
	for ii := len(st.settings) - 1; ii >= 0; ii-- {
		s := st.settings[ii]
		if !slices.Contains(s.demandedBy, consumer) {
			continue
		}
		if len(s.Targets) > 0 && !slices.Contains(s.Targets, consumer) {
			s.Targets = append(s.Targets, consumer)
		}
		return pv
	}
	if _, from := p.lookup(op.node, consumer); from != nil {
		from.addDemand(consumer, false)
		return pv
	}
	st.padding.addTarget(consumer)
	return pv
}

// selectPadding returns the padding value of a selection between onTrue and onFalse given the padding
// value of the condition.
func (p *propagation) selectPadding(n *Node, cond *PaddingValue, onTrue, onFalse Operand) *PaddingValue {
	if cond.Kind == KindExact {
		if cond.Value.DType != dtypes.Bool {
			exceptions.Panicf("%s: condition padding %s is not Bool", n.opType, cond)
		}
		if cond.Value.Value != 0 {
			return p.resolveBranch(n, onTrue)
		}
		return p.resolveBranch(n, onFalse)
	}
	t := p.resolveBranch(n, onTrue)
	f := p.resolveBranch(n, onFalse)
	switch {
	case t.SameValue(f):
		return t
	case cond.Kind == KindUnconstrained, t.Kind == KindUnconstrained, f.Kind == KindUnconstrained:
		return NewUnconstrained()
	default:
		return NewTensorDependent()
	}
}

func (p *propagation) simulateSelect(n *Node) *PaddingValue {
	cond := p.view(n, n.operands[0])
	return p.selectPadding(n, cond, n.operands[1], n.operands[2])
}

func (p *propagation) simulateCmpSel(n *Node) *PaddingValue {
	lhs, rhs := n.operands[0], n.operands[1]
	if lhs.dtype != rhs.dtype {
		exceptions.Panicf("CmpSel: dtype mismatch %s vs %s", lhs.dtype, rhs.dtype)
	}
	cond := p.comparePadding(n.compareMode, p.view(n, lhs), p.view(n, rhs))
	return p.selectPadding(n, cond, n.operands[2], n.operands[3])
}
