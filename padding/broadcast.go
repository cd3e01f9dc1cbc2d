package padding

// This file implements how an operand is read into the lanes of a pointwise consumer, including explicit
// (Broadcast) and implicit broadcasting.
//
// An axis of original extent 1 replicates its single lane into every lane of the consumer's axis,
// including the consumer's padding lanes: these then hold real data of the operand, a TensorDependent value.
// This happens both when the logical extent grows and when only the physical extent does (a 1-lane axis
// read into a padded block). If the single-lane axis is itself stored in a wider block, its padding lanes
// must first hold a copy of lane 0, which is demanded on the operand as a position-dependent fill.

// isBroadcastAxis returns whether the lanes of axis are replicated to fill outAxis.
func isBroadcastAxis(axis, outAxis Axis) bool {
	return axis.Original == 1 && (outAxis.Original > 1 || outAxis.Size > axis.Size)
}

// broadcastAxes returns, in the operand's own axes numbering, the axes that are replicated into consumer's
// axes, and the subset of those whose replication reaches padding lanes of the consumer. It also returns
// whether the consumer's padding lanes read the operand's own padding lanes.
func broadcastAxes(consumer, x *Node) (replicated, intoPadding []int, readsOwnPadding bool) {
	rank := consumer.Rank()
	offset := rank - x.Rank()
	xAxes := expandToRank(x.axes, rank)
	for ii, outAxis := range consumer.axes {
		axis := xAxes[ii]
		isBroadcast := isBroadcastAxis(axis, outAxis)
		if isBroadcast && ii >= offset {
			replicated = append(replicated, ii-offset)
		}
		if !outAxis.IsPadded() {
			continue
		}
		if isBroadcast {
			if ii >= offset {
				intoPadding = append(intoPadding, ii-offset)
			} else {
				intoPadding = append(intoPadding, -1)
			}
		} else {
			readsOwnPadding = true
		}
	}
	return
}

// laneFixAxes returns the replicated axes of x that are stored with more than one lane.
func laneFixAxes(x *Node, replicated []int) []int {
	var fix []int
	for _, axis := range replicated {
		if x.axes[axis].Size > 1 {
			fix = append(fix, axis)
		}
	}
	return fix
}

// readsOwnPaddingLanes returns whether consumer reads padding lanes of x that are not going to be
// overwritten by a broadcast lane fix.
func readsOwnPaddingLanes(consumer, x *Node) bool {
	rank := consumer.Rank()
	xAxes := expandToRank(x.axes, rank)
	for ii, outAxis := range consumer.axes {
		axis := xAxes[ii]
		if axis.IsPadded() && !isBroadcastAxis(axis, outAxis) {
			return true
		}
	}
	return false
}

// view returns the padding value of op as seen in the padding lanes of consumer's output. It demands the
// broadcast lane fix on op if needed.
func (p *propagation) view(consumer *Node, op Operand) *PaddingValue {
	if op.node == nil {
		return p.operandPadding(consumer, op)
	}
	x := op.node
	replicated, intoPadding, readsOwn := broadcastAxes(consumer, x)
	if fix := laneFixAxes(x, replicated); len(fix) > 0 {
		p.demand(consumer, x, FillValue{Expr: &PositionExpr{Source: x, Axes: fix}})
	}
	own := p.padding(x, consumer)
	if len(intoPadding) == 0 {
		return own
	}
	var exprAxes []int
	for _, axis := range intoPadding {
		if axis >= 0 {
			exprAxes = append(exprAxes, axis)
		}
	}
	dependent := &PaddingValue{Kind: KindTensorDependent, Expr: &PositionExpr{Source: x, Axes: exprAxes}}
	if !readsOwn {
		return dependent
	}
	return meetDependent(own)
}

// meetDependent combines padding lanes holding pv with lanes holding tensor-dependent values.
//
// Exact values don't survive being mixed with tensor-dependent ones: the result is Unconstrained.
func meetDependent(pv *PaddingValue) *PaddingValue {
	switch pv.Kind {
	case KindTensorDependent:
		return NewTensorDependent()
	default:
		return NewUnconstrained()
	}
}
