package padding

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// neutral returns the identity element of the reduction: 0 for sum, 1 for product, the lowest value for
// max and the highest value for min.
func (p *propagation) neutral(opType OpType, dtype dtypes.DType) Scalar {
	switch opType {
	case OpReduceSum:
		return Zero(dtype)
	case OpReduceProd:
		return One(dtype)
	case OpReduceMax:
		lowest, _ := p.sentinels(dtype)
		return lowest
	case OpReduceMin:
		_, highest := p.sentinels(dtype)
		return highest
	default:
		exceptions.Panicf("%s is not a reduction", opType)
		panic(nil) // lint.
	}
}

// simulateReduce requires the padding lanes of the input to hold the neutral element whenever the
// reduction runs over a padded axis.
func (p *propagation) simulateReduce(n *Node) *PaddingValue {
	x := n.operands[0].node
	var paddedReduced []int
	for _, axis := range x.PaddedAxes() {
		if slices.Contains(n.reduceAxes, axis) {
			paddedReduced = append(paddedReduced, axis)
		}
	}

	if len(paddedReduced) == 0 {
		// Only real lanes are reduced: the padding lanes of the output are the reduction of the padding
		// lanes along the other padded axes.
		pv := p.padding(x, n)
		switch pv.Kind {
		case KindExact:
			count := 1
			for _, axis := range n.reduceAxes {
				count *= x.axes[axis].Size
			}
			return NewExact(evalReduceRepeated(n.opType, pv.Value, count))
		case KindTensorDependent:
			return NewTensorDependent()
		default:
			return NewUnconstrained()
		}
	}

	neutral := p.neutral(n.opType, x.dtype)
	p.demand(n, x, ConstantFill(neutral))
	return NewExact(neutral)
}
