package padding

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// This file evaluates operators at compile time over Exact padding values, with the same precision the
// device uses: float32 and the 16-bit floats are computed in single precision.

// evalUnary applies a unary pointwise op to x.
func evalUnary(opType OpType, x Scalar, outDType dtypes.DType) Scalar {
	if opType == OpCast {
		return x.Convert(outDType)
	}
	if x.DType.IsFloat() && x.DType != dtypes.Float64 {
		return NewScalar(x.DType, float64(evalUnaryFloat32(opType, float32(x.Value))))
	}
	v := x.Value
	var result float64
	switch opType {
	case OpAbs:
		result = math.Abs(v)
	case OpNeg:
		result = -v
	case OpExp:
		result = math.Exp(v)
	case OpLog:
		result = math.Log(v)
	case OpSqrt:
		result = math.Sqrt(v)
	case OpRsqrt:
		result = 1 / math.Sqrt(v)
	case OpReciprocal:
		result = 1 / v
	case OpRelu:
		result = math.Max(v, 0)
	case OpTanh:
		result = math.Tanh(v)
	default:
		exceptions.Panicf("no compile-time evaluation for unary op %s", opType)
	}
	return NewScalar(x.DType, result)
}

func evalUnaryFloat32(opType OpType, v float32) float32 {
	switch opType {
	case OpAbs:
		return math32.Abs(v)
	case OpNeg:
		return -v
	case OpExp:
		return math32.Exp(v)
	case OpLog:
		return math32.Log(v)
	case OpSqrt:
		return math32.Sqrt(v)
	case OpRsqrt:
		return 1 / math32.Sqrt(v)
	case OpReciprocal:
		return 1 / v
	case OpRelu:
		return math32.Max(v, 0)
	case OpTanh:
		return math32.Tanh(v)
	default:
		exceptions.Panicf("no compile-time evaluation for unary op %s", opType)
		panic(nil) // lint.
	}
}

// evalBinary applies a binary pointwise op to a and b, which must have the same dtype.
func evalBinary(opType OpType, a, b Scalar) Scalar {
	if a.DType != b.DType {
		exceptions.Panicf("%s: dtype mismatch %s vs %s", opType, a.DType, b.DType)
	}
	x, y := a.Value, b.Value
	var result float64
	switch opType {
	case OpAdd:
		result = x + y
	case OpSub:
		result = x - y
	case OpMul:
		result = x * y
	case OpDiv:
		result = x / y
		if a.DType.IsInt() {
			result = math.Trunc(result)
		}
	case OpMax:
		result = math.Max(x, y)
	case OpMin:
		result = math.Min(x, y)
	default:
		exceptions.Panicf("no compile-time evaluation for binary op %s", opType)
	}
	if a.DType.IsFloat() && a.DType != dtypes.Float64 {
		// Single precision arithmetic, then rounding to the dtype.
		result = float64(float32(result))
	}
	return NewScalar(a.DType, result)
}

// evalCompare evaluates "a <mode> b".
func evalCompare(mode CompareMode, a, b Scalar) bool {
	if a.DType != b.DType {
		exceptions.Panicf("Compare: dtype mismatch %s vs %s", a.DType, b.DType)
	}
	x, y := a.Value, b.Value
	switch mode {
	case CompareGT:
		return x > y
	case CompareGE:
		return x >= y
	case CompareLT:
		return x < y
	case CompareLE:
		return x <= y
	case CompareEQ:
		return x == y
	case CompareNE:
		return x != y
	default:
		exceptions.Panicf("invalid compare mode %d", mode)
		panic(nil) // lint.
	}
}

// boolScalar returns the Bool 0 or 1.
func boolScalar(v bool) Scalar {
	if v {
		return One(dtypes.Bool)
	}
	return Zero(dtypes.Bool)
}

// evalReduceRepeated evaluates the reduction of count copies of x.
func evalReduceRepeated(opType OpType, x Scalar, count int) Scalar {
	switch opType {
	case OpReduceSum:
		return NewScalar(x.DType, x.Value*float64(count))
	case OpReduceProd:
		return NewScalar(x.DType, math.Pow(x.Value, float64(count)))
	case OpReduceMax, OpReduceMin:
		return x
	default:
		exceptions.Panicf("no compile-time evaluation for reduction %s", opType)
		panic(nil) // lint.
	}
}
