package padding

import (
	"github.com/gomlx/exceptions"
)

// compareRule returns the padding value of "lhs <mode> rhs" for one pair of lattice states.
type compareRule func(p *propagation, mode CompareMode, lhs, rhs *PaddingValue) *PaddingValue

// compareTable is indexed by the kinds of the (lhs, rhs) padding values.
var compareTable = [numKinds][numKinds]compareRule{
	KindExact: {
		KindExact:           compareExactExact,
		KindTensorDependent: compareExactDependent,
		KindUnconstrained:   compareUnconstrained,
	},
	KindTensorDependent: {
		KindExact:           compareDependentExact,
		KindTensorDependent: compareDependentDependent,
		KindUnconstrained:   compareUnconstrained,
	},
	KindUnconstrained: {
		KindExact:           compareUnconstrained,
		KindTensorDependent: compareUnconstrained,
		KindUnconstrained:   compareUnconstrainedUnconstrained,
	},
}

// comparePadding returns the padding value (of dtype Bool) of "lhs <mode> rhs".
func (p *propagation) comparePadding(mode CompareMode, lhs, rhs *PaddingValue) *PaddingValue {
	if mode < 0 || mode >= numCompareModes {
		exceptions.Panicf("internal error: invalid compare mode %d", mode)
	}
	if lhs.Kind < 0 || lhs.Kind >= numKinds || rhs.Kind < 0 || rhs.Kind >= numKinds {
		exceptions.Panicf("internal error: invalid padding kinds (%s, %s) for compare %s", lhs.Kind, rhs.Kind, mode)
	}
	rule := compareTable[lhs.Kind][rhs.Kind]
	if rule == nil {
		exceptions.Panicf("internal error: no compare %s rule for padding kinds (%s, %s)", mode, lhs.Kind, rhs.Kind)
	}
	return rule(p, mode, lhs, rhs)
}

func compareExactExact(_ *propagation, mode CompareMode, lhs, rhs *PaddingValue) *PaddingValue {
	return NewExact(boolScalar(evalCompare(mode, lhs.Value, rhs.Value)))
}

// compareExactDependent: only the dtype sentinels give a provable result, e.g. "highest >= t" always holds.
func compareExactDependent(p *propagation, mode CompareMode, exact, _ *PaddingValue) *PaddingValue {
	lowest, highest := p.sentinels(exact.Value.DType)
	switch {
	case exact.Value.Equal(highest) && mode == CompareGE:
		return NewExact(boolScalar(true))
	case exact.Value.Equal(highest) && mode == CompareLT:
		return NewExact(boolScalar(false))
	case exact.Value.Equal(lowest) && mode == CompareLE:
		return NewExact(boolScalar(true))
	case exact.Value.Equal(lowest) && mode == CompareGT:
		return NewExact(boolScalar(false))
	default:
		return NewUnconstrained()
	}
}

// compareDependentExact mirrors compareExactDependent: "t <= highest" is "highest >= t".
func compareDependentExact(p *propagation, mode CompareMode, lhs, rhs *PaddingValue) *PaddingValue {
	return compareExactDependent(p, mode.Flip(), rhs, lhs)
}

// compareDependentDependent: the comparison is computed by the hardware consistently on all lanes.
func compareDependentDependent(_ *propagation, _ CompareMode, _, _ *PaddingValue) *PaddingValue {
	return NewTensorDependent()
}

func compareUnconstrained(_ *propagation, _ CompareMode, _, _ *PaddingValue) *PaddingValue {
	return NewUnconstrained()
}

// compareUnconstrainedUnconstrained: unknown lanes compared with themselves follow the reflexive laws.
func compareUnconstrainedUnconstrained(_ *propagation, mode CompareMode, lhs, rhs *PaddingValue) *PaddingValue {
	if lhs.SameValue(rhs) {
		return NewExact(boolScalar(mode.IsReflexive()))
	}
	return NewUnconstrained()
}

func (p *propagation) simulateCompare(n *Node) *PaddingValue {
	lhs, rhs := n.operands[0], n.operands[1]
	if lhs.dtype != rhs.dtype {
		exceptions.Panicf("Compare: dtype mismatch %s vs %s", lhs.dtype, rhs.dtype)
	}
	return p.comparePadding(n.compareMode, p.view(n, lhs), p.view(n, rhs))
}
