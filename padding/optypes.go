package padding

import (
	"strings"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// OpTypeVersion identifies the set of operator kinds known to this package. It changes whenever an
// OpType is added or its padding semantics change.
const OpTypeVersion = 1

// OpType is the kind of operator that produces a Node.
type OpType int

const (
	OpInvalid OpType = iota

	// Leaves.
	OpPlaceholder
	OpConstant

	// Unary pointwise.
	OpAbs
	OpNeg
	OpExp
	OpLog
	OpSqrt
	OpRsqrt
	OpReciprocal
	OpRelu
	OpTanh
	OpCast

	// Binary pointwise.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMax
	OpMin

	OpBroadcast

	// Reductions.
	OpReduceSum
	OpReduceProd
	OpReduceMax
	OpReduceMin

	// Comparison and selection.
	OpCompare
	OpSelect
	OpCmpSel

	opLast
)

var opTypeNames = [opLast]string{
	OpInvalid:     "Invalid",
	OpPlaceholder: "Placeholder",
	OpConstant:    "Constant",
	OpAbs:         "Abs",
	OpNeg:         "Neg",
	OpExp:         "Exp",
	OpLog:         "Log",
	OpSqrt:        "Sqrt",
	OpRsqrt:       "Rsqrt",
	OpReciprocal:  "Reciprocal",
	OpRelu:        "Relu",
	OpTanh:        "Tanh",
	OpCast:        "Cast",
	OpAdd:         "Add",
	OpSub:         "Sub",
	OpMul:         "Mul",
	OpDiv:         "Div",
	OpMax:         "Max",
	OpMin:         "Min",
	OpBroadcast:   "Broadcast",
	OpReduceSum:   "ReduceSum",
	OpReduceProd:  "ReduceProd",
	OpReduceMax:   "ReduceMax",
	OpReduceMin:   "ReduceMin",
	OpCompare:     "Compare",
	OpSelect:      "Select",
	OpCmpSel:      "CmpSel",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < 0 || op >= opLast {
		return "OpType(?)"
	}
	return opTypeNames[op]
}

// OpTypeFromString returns the OpType with the given name (case-insensitive).
func OpTypeFromString(name string) (OpType, error) {
	for op := OpPlaceholder; op < opLast; op++ {
		if strings.EqualFold(opTypeNames[op], name) {
			return op, nil
		}
	}
	return OpInvalid, errors.Errorf("unknown op type %q (op types version %d)", name, OpTypeVersion)
}

var (
	unaryOps  = sets.MakeWith(OpAbs, OpNeg, OpExp, OpLog, OpSqrt, OpRsqrt, OpReciprocal, OpRelu, OpTanh, OpCast)
	binaryOps = sets.MakeWith(OpAdd, OpSub, OpMul, OpDiv, OpMax, OpMin)
	reduceOps = sets.MakeWith(OpReduceSum, OpReduceProd, OpReduceMax, OpReduceMin)
)

// IsUnary returns whether op is a unary pointwise operator.
func (op OpType) IsUnary() bool { return unaryOps.Has(op) }

// IsBinary returns whether op is a binary pointwise operator.
func (op OpType) IsBinary() bool { return binaryOps.Has(op) }

// IsReduce returns whether op is a reduction.
func (op OpType) IsReduce() bool { return reduceOps.Has(op) }

// CompareMode is the ordering relation used by Compare and CmpSel.
type CompareMode int

const (
	CompareGT CompareMode = iota
	CompareGE
	CompareLT
	CompareLE
	CompareEQ
	CompareNE
	numCompareModes
)

var compareModeSymbols = [numCompareModes]string{">", ">=", "<", "<=", "==", "!="}
var compareModeNames = [numCompareModes]string{"gt", "ge", "lt", "le", "eq", "ne"}

// String implements fmt.Stringer.
func (mode CompareMode) String() string {
	if mode < 0 || mode >= numCompareModes {
		return "CompareMode(?)"
	}
	return compareModeSymbols[mode]
}

// Flip returns the mode that gives the same result with the operands swapped: "a > b" is "b < a".
func (mode CompareMode) Flip() CompareMode {
	switch mode {
	case CompareGT:
		return CompareLT
	case CompareGE:
		return CompareLE
	case CompareLT:
		return CompareGT
	case CompareLE:
		return CompareGE
	default:
		return mode
	}
}

// IsReflexive returns whether "a <mode> a" always holds.
func (mode CompareMode) IsReflexive() bool {
	return mode == CompareGE || mode == CompareLE || mode == CompareEQ
}

// ParseCompareMode accepts both the symbol (">=") and the name ("ge") of a mode.
func ParseCompareMode(text string) (CompareMode, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	for mode := CompareGT; mode < numCompareModes; mode++ {
		if text == compareModeSymbols[mode] || text == compareModeNames[mode] {
			return mode, nil
		}
	}
	return CompareGT, errors.Errorf("unknown compare mode %q", text)
}
