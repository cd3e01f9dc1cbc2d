package padding

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/padding-gomlx/internal/scalars"
)

// This file implements the builder functions of the graph.
//
// As in GoMLX graph functions, they panic (throw exceptions) in case of invalid arguments.

func checkDType(opType OpType, dtype dtypes.DType) {
	if !scalars.IsSupported(dtype) {
		exceptions.Panicf("%s: unsupported dtype %s", opType, dtype)
	}
}

// checkSameDType panics if the operands don't share the same dtype: there is no implicit casting.
func checkSameDType(opType OpType, operands ...Operand) dtypes.DType {
	dtype := operands[0].dtype
	for _, op := range operands[1:] {
		if op.dtype != dtype {
			exceptions.Panicf("%s: dtype mismatch %s (%s) vs %s (%s), use an explicit Cast", opType, dtype, operands[0], op.dtype, op)
		}
	}
	return dtype
}

// expandToRank prepends aligned axes of size 1 to reach rank.
func expandToRank(axes []Axis, rank int) []Axis {
	if len(axes) >= rank {
		return axes
	}
	expanded := make([]Axis, 0, rank)
	for range rank - len(axes) {
		expanded = append(expanded, Aligned(1))
	}
	return append(expanded, axes...)
}

// broadcastShape returns the output axes of a pointwise op over the node operands: ranks are aligned to the
// right, and axes of original extent 1 are broadcast to the other operands' axes.
func broadcastShape(opType OpType, operands []Operand) []Axis {
	rank := 0
	for _, op := range operands {
		if op.node != nil {
			rank = max(rank, op.node.Rank())
		}
	}
	out := make([]Axis, rank)
	initialized := make([]bool, rank)
	for _, op := range operands {
		if op.node == nil {
			continue
		}
		for ii, axis := range expandToRank(op.node.axes, rank) {
			switch {
			case !initialized[ii]:
				out[ii] = axis
				initialized[ii] = true
			case axis == out[ii]:
			case axis.Original == 1 && out[ii].Original == 1:
				out[ii].Size = max(out[ii].Size, axis.Size)
			case axis.Original == 1:
			case out[ii].Original == 1:
				out[ii] = axis
			default:
				exceptions.Panicf("%s: operand %s axis #%d (%s) is not broadcastable to %s", opType, op, ii, axis, out[ii])
			}
		}
	}
	return out
}

// Placeholder creates an input of the graph. Its padding lanes are assumed to follow the engine's input
// convention (see Engine.WithInputPadding).
func Placeholder(g *Graph, name string, dtype dtypes.DType, axes ...Axis) *Node {
	checkDType(OpPlaceholder, dtype)
	return newNode(g, OpPlaceholder, dtype, slices.Clone(axes)).WithName(name)
}

// PlaceholderWithPadding creates an input of the graph whose padding lanes are known to hold the given value.
func PlaceholderWithPadding(g *Graph, name string, padding *PaddingValue, dtype dtypes.DType, axes ...Axis) *Node {
	n := Placeholder(g, name, dtype, axes...)
	if padding == nil {
		exceptions.Panicf("PlaceholderWithPadding(%q): padding value is nil", name)
	}
	if padding.Kind == KindExact && padding.Value.DType != dtype {
		exceptions.Panicf("PlaceholderWithPadding(%q): padding value %s doesn't match dtype %s", name, padding, dtype)
	}
	n.declaredPadding = padding.clone()
	return n
}

// Constant creates a tensor filled with value, including its padding lanes.
func Constant(g *Graph, value Scalar, axes ...Axis) *Node {
	checkDType(OpConstant, value.DType)
	n := newNode(g, OpConstant, value.DType, slices.Clone(axes))
	n.value = value
	return n
}

// Value returns the fill value of an OpConstant node.
func (n *Node) Value() Scalar { return n.value }

func unaryOp(opType OpType, x *Node) *Node {
	return newNode(nil, opType, x.dtype, slices.Clone(x.axes), NodeOperand(x))
}

// Abs returns |x|.
func Abs(x *Node) *Node { return unaryOp(OpAbs, x) }

// Neg returns -x.
func Neg(x *Node) *Node { return unaryOp(OpNeg, x) }

// Exp returns e^x.
func Exp(x *Node) *Node { return unaryOp(OpExp, x) }

// Log returns the natural logarithm of x. It requires the padding lanes of x to be positive.
func Log(x *Node) *Node { return unaryOp(OpLog, x) }

// Sqrt returns the square root of x. It requires the padding lanes of x to be non-negative.
func Sqrt(x *Node) *Node { return unaryOp(OpSqrt, x) }

// Rsqrt returns 1/sqrt(x). It requires the padding lanes of x to be positive.
func Rsqrt(x *Node) *Node { return unaryOp(OpRsqrt, x) }

// Reciprocal returns 1/x. It requires the padding lanes of x to be non-zero.
func Reciprocal(x *Node) *Node { return unaryOp(OpReciprocal, x) }

// Relu returns max(x, 0).
func Relu(x *Node) *Node { return unaryOp(OpRelu, x) }

// Tanh returns the hyperbolic tangent of x.
func Tanh(x *Node) *Node { return unaryOp(OpTanh, x) }

// Cast converts x to dtype.
func Cast(x *Node, dtype dtypes.DType) *Node {
	checkDType(OpCast, dtype)
	return newNode(nil, OpCast, dtype, slices.Clone(x.axes), NodeOperand(x))
}

// UnaryOp creates a unary pointwise node of the given kind. Use Cast for conversions.
func UnaryOp(opType OpType, x *Node) *Node {
	if !opType.IsUnary() || opType == OpCast {
		exceptions.Panicf("UnaryOp(%s): not a unary pointwise op", opType)
	}
	return unaryOp(opType, x)
}

// BinaryOp creates a binary pointwise node. Operands can be nodes, immediate scalars or symbols, but at least
// one must be a node. Operands with axes of original extent 1 are implicitly broadcast.
func BinaryOp(opType OpType, lhs, rhs Operand) *Node {
	if !opType.IsBinary() {
		exceptions.Panicf("BinaryOp(%s): not a binary pointwise op", opType)
	}
	dtype := checkSameDType(opType, lhs, rhs)
	operands := []Operand{lhs, rhs}
	return newNode(nil, opType, dtype, broadcastShape(opType, operands), operands...)
}

// Add returns lhs + rhs.
func Add(lhs, rhs *Node) *Node { return BinaryOp(OpAdd, NodeOperand(lhs), NodeOperand(rhs)) }

// Sub returns lhs - rhs.
func Sub(lhs, rhs *Node) *Node { return BinaryOp(OpSub, NodeOperand(lhs), NodeOperand(rhs)) }

// Mul returns lhs * rhs.
func Mul(lhs, rhs *Node) *Node { return BinaryOp(OpMul, NodeOperand(lhs), NodeOperand(rhs)) }

// Div returns lhs / rhs. It requires the padding lanes of rhs to be non-zero.
func Div(lhs, rhs *Node) *Node { return BinaryOp(OpDiv, NodeOperand(lhs), NodeOperand(rhs)) }

// Max returns the element-wise maximum.
func Max(lhs, rhs *Node) *Node { return BinaryOp(OpMax, NodeOperand(lhs), NodeOperand(rhs)) }

// Min returns the element-wise minimum.
func Min(lhs, rhs *Node) *Node { return BinaryOp(OpMin, NodeOperand(lhs), NodeOperand(rhs)) }

// AddScalar returns x + value.
func AddScalar(x *Node, value Scalar) *Node {
	return BinaryOp(OpAdd, NodeOperand(x), ScalarOperand(value))
}

// MulScalar returns x * value.
func MulScalar(x *Node, value Scalar) *Node {
	return BinaryOp(OpMul, NodeOperand(x), ScalarOperand(value))
}

// Broadcast replicates the axes of x with original extent 1 into the given axes. If x has a smaller rank,
// it is expanded with axes of size 1 on the left.
func Broadcast(x *Node, axes ...Axis) *Node {
	if len(axes) < x.Rank() {
		exceptions.Panicf("Broadcast(%s): target rank %d smaller than operand rank %d", x.Name(), len(axes), x.Rank())
	}
	for ii, axis := range expandToRank(x.axes, len(axes)) {
		if axis != axes[ii] && axis.Original != 1 {
			exceptions.Panicf("Broadcast(%s): axis #%d (%s) can't be broadcast to %s", x.Name(), ii, axis, axes[ii])
		}
	}
	return newNode(nil, OpBroadcast, x.dtype, slices.Clone(axes), NodeOperand(x))
}

// Reduce creates a reduction of the given kind over axes (all axes if none are given). Negative axes count
// from the end.
func Reduce(opType OpType, x *Node, keepDims bool, axes ...int) *Node {
	if !opType.IsReduce() {
		exceptions.Panicf("Reduce(%s): not a reduction", opType)
	}
	reduceAxes := make([]int, 0, len(axes))
	if len(axes) == 0 {
		for axis := range x.Rank() {
			reduceAxes = append(reduceAxes, axis)
		}
	}
	for _, axis := range axes {
		adjusted := axis
		if adjusted < 0 {
			adjusted += x.Rank()
		}
		if adjusted < 0 || adjusted >= x.Rank() {
			exceptions.Panicf("%s(%s): axis %d out of range for rank %d", opType, x.Name(), axis, x.Rank())
		}
		if !slices.Contains(reduceAxes, adjusted) {
			reduceAxes = append(reduceAxes, adjusted)
		}
	}
	slices.Sort(reduceAxes)
	outAxes := make([]Axis, 0, x.Rank())
	for ii, axis := range x.axes {
		switch {
		case !slices.Contains(reduceAxes, ii):
			outAxes = append(outAxes, axis)
		case keepDims:
			outAxes = append(outAxes, Aligned(1))
		}
	}
	n := newNode(nil, opType, x.dtype, outAxes, NodeOperand(x))
	n.reduceAxes = reduceAxes
	n.keepDims = keepDims
	return n
}

// ReduceSum sums x over axes (all if none given).
func ReduceSum(x *Node, keepDims bool, axes ...int) *Node { return Reduce(OpReduceSum, x, keepDims, axes...) }

// ReduceProd multiplies x over axes (all if none given).
func ReduceProd(x *Node, keepDims bool, axes ...int) *Node {
	return Reduce(OpReduceProd, x, keepDims, axes...)
}

// ReduceMax takes the maximum of x over axes (all if none given).
func ReduceMax(x *Node, keepDims bool, axes ...int) *Node { return Reduce(OpReduceMax, x, keepDims, axes...) }

// ReduceMin takes the minimum of x over axes (all if none given).
func ReduceMin(x *Node, keepDims bool, axes ...int) *Node { return Reduce(OpReduceMin, x, keepDims, axes...) }

// CompareOperands returns the Bool tensor "lhs <mode> rhs".
func CompareOperands(lhs, rhs Operand, mode CompareMode) *Node {
	if mode < 0 || mode >= numCompareModes {
		exceptions.Panicf("Compare: invalid mode %d", mode)
	}
	checkSameDType(OpCompare, lhs, rhs)
	operands := []Operand{lhs, rhs}
	n := newNode(nil, OpCompare, dtypes.Bool, broadcastShape(OpCompare, operands), operands...)
	n.compareMode = mode
	return n
}

// Compare returns the Bool tensor "lhs <mode> rhs".
func Compare(lhs, rhs *Node, mode CompareMode) *Node {
	return CompareOperands(NodeOperand(lhs), NodeOperand(rhs), mode)
}

// Select returns onTrue where cond is true, and onFalse elsewhere.
func Select(cond *Node, onTrue, onFalse Operand) *Node {
	if cond.dtype != dtypes.Bool {
		exceptions.Panicf("Select: condition %s must be Bool, got %s", cond.Name(), cond.dtype)
	}
	dtype := checkSameDType(OpSelect, onTrue, onFalse)
	operands := []Operand{NodeOperand(cond), onTrue, onFalse}
	return newNode(nil, OpSelect, dtype, broadcastShape(OpSelect, operands), operands...)
}

// CmpSel fuses a comparison and a selection: it returns onTrue where "lhs <mode> rhs", and onFalse elsewhere.
func CmpSel(lhs, rhs Operand, mode CompareMode, onTrue, onFalse Operand) *Node {
	if mode < 0 || mode >= numCompareModes {
		exceptions.Panicf("CmpSel: invalid mode %d", mode)
	}
	checkSameDType(OpCmpSel, lhs, rhs)
	dtype := checkSameDType(OpCmpSel, onTrue, onFalse)
	operands := []Operand{lhs, rhs, onTrue, onFalse}
	n := newNode(nil, OpCmpSel, dtype, broadcastShape(OpCmpSel, operands), operands...)
	n.compareMode = mode
	return n
}
