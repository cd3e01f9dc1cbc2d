package padding

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the state of the padding-value lattice.
type Kind int

const (
	// KindExact means the padding lanes provably hold a concrete scalar.
	KindExact Kind = iota

	// KindTensorDependent means the padding lanes hold values that are not a fixed scalar, but that are
	// produced consistently by running the same operators over the padding and the real lanes.
	KindTensorDependent

	// KindUnconstrained means the padding lanes hold arbitrary content.
	KindUnconstrained

	numKinds
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "Exact"
	case KindTensorDependent:
		return "TensorDependent"
	case KindUnconstrained:
		return "Unconstrained"
	default:
		return "invalid"
	}
}

// PaddingValue is the inferred content of the padding lanes of a tensor.
type PaddingValue struct {
	Kind Kind

	// Value is the content of the padding lanes, for KindExact.
	Value Scalar

	// Expr optionally describes the content of KindTensorDependent lanes that are replicated from another
	// tensor by a broadcast.
	Expr *PositionExpr

	// Targets are the consumers that relied on this exact value during propagation.
	Targets []*Node

	// origin is the node whose padding lanes hold this value. It gives identity to unconstrained values.
	origin *Node
}

// NewExact returns a padding value holding exactly value.
func NewExact(value Scalar) *PaddingValue {
	return &PaddingValue{Kind: KindExact, Value: value}
}

// NewTensorDependent returns a padding value computed consistently with the real lanes.
func NewTensorDependent() *PaddingValue {
	return &PaddingValue{Kind: KindTensorDependent}
}

// NewUnconstrained returns a padding value with arbitrary content.
func NewUnconstrained() *PaddingValue {
	return &PaddingValue{Kind: KindUnconstrained}
}

// IsExact returns whether the padding value is exactly value.
func (pv *PaddingValue) IsExact(value Scalar) bool {
	return pv.Kind == KindExact && pv.Value.Equal(value)
}

// Origin returns the node whose padding lanes hold this value, if known.
func (pv *PaddingValue) Origin() *Node { return pv.origin }

// SameValue returns whether both padding values are provably the same content: equal Exact values, or the
// very same unconstrained lanes.
func (pv *PaddingValue) SameValue(other *PaddingValue) bool {
	switch {
	case pv.Kind == KindExact && other.Kind == KindExact:
		return pv.Value.Equal(other.Value)
	case pv.Kind == KindUnconstrained && other.Kind == KindUnconstrained:
		return pv.origin != nil && pv.origin == other.origin
	default:
		return false
	}
}

// addTarget appends consumer to the targets, if not there yet.
func (pv *PaddingValue) addTarget(consumer *Node) {
	if consumer != nil && !slices.Contains(pv.Targets, consumer) {
		pv.Targets = append(pv.Targets, consumer)
	}
}

// clone returns a copy without the targets.
func (pv *PaddingValue) clone() *PaddingValue {
	return &PaddingValue{Kind: pv.Kind, Value: pv.Value, Expr: pv.Expr, origin: pv.origin}
}

// String implements fmt.Stringer.
func (pv *PaddingValue) String() string {
	if pv == nil {
		return "<nil>"
	}
	switch pv.Kind {
	case KindExact:
		return fmt.Sprintf("Exact(%s)", pv.Value)
	case KindTensorDependent:
		if pv.Expr != nil {
			return fmt.Sprintf("TensorDependent(%s)", pv.Expr)
		}
		return "TensorDependent"
	case KindUnconstrained:
		if pv.origin != nil {
			return fmt.Sprintf("Unconstrained(%s)", pv.origin.Name())
		}
		return "Unconstrained"
	default:
		return fmt.Sprintf("PaddingValue(kind=%d)", pv.Kind)
	}
}

// PositionExpr is the position-dependent content of padding lanes: each lane holds the lane of Source at the
// same coordinates, except on Axes, where the coordinate is 0 (the single pre-broadcast lane).
type PositionExpr struct {
	Source *Node
	Axes   []int
}

// Equal returns whether both expressions read the same lanes.
func (e *PositionExpr) Equal(other *PositionExpr) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Source == other.Source && slices.Equal(e.Axes, other.Axes)
}

// String implements fmt.Stringer, e.g. "x[axis 1 → 0]".
func (e *PositionExpr) String() string {
	parts := make([]string, len(e.Axes))
	for ii, axis := range e.Axes {
		parts[ii] = fmt.Sprintf("axis %d → 0", axis)
	}
	return fmt.Sprintf("%s[%s]", e.Source.Name(), strings.Join(parts, ", "))
}

// FillValue is what a corrective action writes into the padding lanes: a constant, or, if Expr is set,
// a position-dependent value.
type FillValue struct {
	Scalar Scalar
	Expr   *PositionExpr
}

// ConstantFill returns a FillValue writing value.
func ConstantFill(value Scalar) FillValue {
	return FillValue{Scalar: value}
}

// IsConstant returns whether the fill writes a constant.
func (f FillValue) IsConstant() bool { return f.Expr == nil }

// Equal returns whether both fills write the same content.
func (f FillValue) Equal(other FillValue) bool {
	if f.IsConstant() != other.IsConstant() {
		return false
	}
	if f.IsConstant() {
		return f.Scalar.Equal(other.Scalar)
	}
	return f.Expr.Equal(other.Expr)
}

// String implements fmt.Stringer.
func (f FillValue) String() string {
	if f.IsConstant() {
		return f.Scalar.String()
	}
	return f.Expr.String()
}

// SettingKind is the kind of a SettingValue.
type SettingKind int

const (
	// SettingNormal writes the value into all padding lanes.
	SettingNormal SettingKind = iota
)

// String implements fmt.Stringer.
func (k SettingKind) String() string {
	if k == SettingNormal {
		return "normal"
	}
	return "invalid"
}

// SettingValue is a padding value that is written into a tensor because some consumer requires it.
//
// If Targets is empty the setting is unconditional: the tensor is fixed for every reader. Otherwise, only
// the listed consumers read the fixed value.
type SettingValue struct {
	Kind    SettingKind
	Value   FillValue
	Targets []*Node

	// demandedBy are all consumers that required the value, including those of an unconditional setting.
	demandedBy []*Node
}

// addDemand records that consumer requires the setting, as one of its targets if targeted.
func (s *SettingValue) addDemand(consumer *Node, targeted bool) {
	if consumer == nil || slices.Contains(s.demandedBy, consumer) {
		return
	}
	s.demandedBy = append(s.demandedBy, consumer)
	if targeted {
		s.Targets = append(s.Targets, consumer)
	}
}

// Padding returns the padding value seen by a consumer reading the setting.
func (s *SettingValue) Padding(tensor *Node) *PaddingValue {
	if s.Value.IsConstant() {
		return &PaddingValue{Kind: KindExact, Value: s.Value.Scalar, origin: tensor}
	}
	return &PaddingValue{Kind: KindTensorDependent, Expr: s.Value.Expr, origin: tensor}
}

// String implements fmt.Stringer.
func (s *SettingValue) String() string {
	return fmt.Sprintf("Setting(%s, %s, targets=%s)", s.Kind, s.Value, nodeNames(s.Targets))
}

// Action tells the code emitter to write Value into the padding lanes of Tensor before it is read.
// If Targets is not empty, the write is only required for the listed consumers. Tensor listed in its own
// Targets stands for its store as a graph output, written after every other read.
type Action struct {
	Tensor  *Node
	Value   FillValue
	Targets []*Node
}

// String implements fmt.Stringer.
func (a Action) String() string {
	if len(a.Targets) == 0 {
		return fmt.Sprintf("fill %s with %s", a.Tensor.Name(), a.Value)
	}
	return fmt.Sprintf("fill %s with %s for %s", a.Tensor.Name(), a.Value, nodeNames(a.Targets))
}

// IsOutputFill returns whether the action is only required for the store of Tensor as a graph output.
func (a Action) IsOutputFill() bool {
	return len(a.Targets) == 1 && a.Targets[0] == a.Tensor
}

func nodeNames(nodes []*Node) string {
	names := make([]string, len(nodes))
	for ii, n := range nodes {
		names[ii] = n.Name()
	}
	return "[" + strings.Join(names, ", ") + "]"
}
