package padding

import (
	"math"

	"github.com/gomlx/exceptions"
)

// faultRule describes an operand that would fault (or produce NaN/Inf) if its padding lanes held an unsafe
// value.
type faultRule struct {
	safe     func(v float64) bool
	fallback float64
}

var (
	positiveRule = &faultRule{safe: func(v float64) bool { return v > 0 }, fallback: 1}
	nonZeroRule  = &faultRule{safe: func(v float64) bool { return v != 0 && !math.IsNaN(v) }, fallback: 1}
	nonNegRule   = &faultRule{safe: func(v float64) bool { return v >= 0 }, fallback: 0}
)

// unaryFaultRule returns the fault rule of the operand of a unary op, or nil if the op can't fault.
func unaryFaultRule(opType OpType) *faultRule {
	switch opType {
	case OpLog, OpRsqrt:
		return positiveRule
	case OpReciprocal:
		return nonZeroRule
	case OpSqrt:
		return nonNegRule
	default:
		return nil
	}
}

// faultRuleOf returns the fault rule consumer applies to its operand x, or nil if it can't fault on x.
func faultRuleOf(consumer, x *Node) *faultRule {
	switch {
	case consumer.opType.IsUnary():
		return unaryFaultRule(consumer.opType)
	case consumer.opType == OpDiv && consumer.operands[1].node == x:
		return nonZeroRule
	default:
		return nil
	}
}

// safeFor returns whether v is safe for all rules.
func safeFor(rules []*faultRule, v float64) bool {
	for _, rule := range rules {
		if !rule.safe(v) {
			return false
		}
	}
	return true
}

// requireSafe makes the padding lanes of x safe for its fault-sensitive consumers that read them.
//
// It runs right after x is simulated, before any of its consumers: an unsafe value is replaced by an
// unconditional fill, seen by every reader of x. The fill is the first fallback safe for all the rules.
func (p *propagation) requireSafe(x *Node) {
	st := p.states[x.id]
	var sensitive []*Node
	var rules []*faultRule
	for _, consumer := range st.consumers {
		rule := faultRuleOf(consumer, x)
		if rule == nil || !readsOwnPaddingLanes(consumer, x) {
			continue
		}
		sensitive = append(sensitive, consumer)
		rules = append(rules, rule)
	}
	if len(sensitive) == 0 {
		return
	}
	if pv := st.padding; pv.Kind == KindExact && safeFor(rules, pv.Value.Value) {
		for _, consumer := range sensitive {
			pv.addTarget(consumer)
		}
		return
	}
	var fill FillValue
	found := false
	for _, rule := range rules {
		fallback := NewScalar(x.dtype, rule.fallback)
		if safeFor(rules, fallback.Value) {
			fill, found = ConstantFill(fallback), true
			break
		}
	}
	if !found {
		exceptions.Panicf("internal error: no safe padding value of %s for the consumers of %s", x.dtype, x.Name())
	}
	for _, consumer := range sensitive {
		p.record(consumer, x, fill, false)
	}
}

func (p *propagation) simulateUnary(n *Node) *PaddingValue {
	pv := p.view(n, n.operands[0])
	switch pv.Kind {
	case KindExact:
		return NewExact(evalUnary(n.opType, pv.Value, n.dtype))
	case KindTensorDependent:
		return NewTensorDependent()
	default:
		return NewUnconstrained()
	}
}

func (p *propagation) simulateBinary(n *Node) *PaddingValue {
	lhs, rhs := n.operands[0], n.operands[1]
	if lhs.dtype != rhs.dtype {
		exceptions.Panicf("%s: dtype mismatch %s vs %s", n.opType, lhs.dtype, rhs.dtype)
	}
	return p.binaryPadding(n.opType, p.view(n, lhs), p.view(n, rhs))
}

// binaryRule combines the padding values of the operands of a binary pointwise op.
type binaryRule func(p *propagation, opType OpType, lhs, rhs *PaddingValue) *PaddingValue

// binaryTable is indexed by the kinds of the (lhs, rhs) padding values.
var binaryTable = [numKinds][numKinds]binaryRule{
	KindExact: {
		KindExact:           binaryExactExact,
		KindTensorDependent: binaryExactDependent,
		KindUnconstrained:   binaryUnconstrained,
	},
	KindTensorDependent: {
		KindExact:           binaryDependentExact,
		KindTensorDependent: binaryDependentDependent,
		KindUnconstrained:   binaryUnconstrained,
	},
	KindUnconstrained: {
		KindExact:           binaryUnconstrained,
		KindTensorDependent: binaryUnconstrained,
		KindUnconstrained:   binaryUnconstrained,
	},
}

func (p *propagation) binaryPadding(opType OpType, lhs, rhs *PaddingValue) *PaddingValue {
	if lhs.Kind < 0 || lhs.Kind >= numKinds || rhs.Kind < 0 || rhs.Kind >= numKinds {
		exceptions.Panicf("internal error: invalid padding kinds (%s, %s) for %s", lhs.Kind, rhs.Kind, opType)
	}
	rule := binaryTable[lhs.Kind][rhs.Kind]
	if rule == nil {
		exceptions.Panicf("internal error: no %s rule for padding kinds (%s, %s)", opType, lhs.Kind, rhs.Kind)
	}
	return rule(p, opType, lhs, rhs)
}

func binaryExactExact(_ *propagation, opType OpType, lhs, rhs *PaddingValue) *PaddingValue {
	return NewExact(evalBinary(opType, lhs.Value, rhs.Value))
}

// binaryExactDependent: only a saturating sentinel survives, max(highest, t) and min(lowest, t).
func binaryExactDependent(p *propagation, opType OpType, exact, _ *PaddingValue) *PaddingValue {
	lowest, highest := p.sentinels(exact.Value.DType)
	switch {
	case opType == OpMax && exact.Value.Equal(highest):
		return NewExact(highest)
	case opType == OpMin && exact.Value.Equal(lowest):
		return NewExact(lowest)
	default:
		return NewUnconstrained()
	}
}

func binaryDependentExact(p *propagation, opType OpType, lhs, rhs *PaddingValue) *PaddingValue {
	if opType == OpMax || opType == OpMin {
		return binaryExactDependent(p, opType, rhs, lhs)
	}
	return NewUnconstrained()
}

func binaryDependentDependent(_ *propagation, _ OpType, _, _ *PaddingValue) *PaddingValue {
	return NewTensorDependent()
}

func binaryUnconstrained(_ *propagation, _ OpType, _, _ *PaddingValue) *PaddingValue {
	return NewUnconstrained()
}
