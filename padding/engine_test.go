package padding

import (
	"testing"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireAction checks the tensor, value and targets of an action with a constant fill.
func requireAction(t *testing.T, action Action, tensor *Node, value Scalar, targets ...*Node) {
	t.Helper()
	require.Equal(t, tensor, action.Tensor, "action %s", action)
	require.True(t, action.Value.IsConstant(), "action %s should write a constant", action)
	require.True(t, action.Value.Scalar.Equal(value), "action %s should write %s", action, value)
	if len(targets) == 0 {
		require.Empty(t, action.Targets, "action %s should be unconditional", action)
	} else {
		require.Equal(t, targets, action.Targets)
	}
}

// softmax builds max -> sub -> exp -> sum -> log -> sub over axis 1.
func softmax(x *Node) (maxNode, shifted, exp, out *Node) {
	maxNode = ReduceMax(x, true, 1).WithName("max")
	shifted = Sub(x, maxNode).WithName("shifted")
	exp = Exp(shifted).WithName("exp")
	sum := ReduceSum(exp, true, 1).WithName("sum")
	out = Sub(shifted, Log(sum)).WithName("out")
	return
}

func TestScenarios(t *testing.T) {
	t.Run("Abs", func(t *testing.T) {
		g := NewGraph("abs")
		x := Placeholder(g, "x", dtypes.Float32, Aligned(4), Block(15, 16))
		actions, err := CalcPadding(Abs(x))
		require.NoError(t, err)
		require.Empty(t, actions)

		// Unconstrained input, no output requirement.
		actions, err = NewEngine().WithInputPadding(NewUnconstrained()).WithOutputPadding(false).CalcPadding(Abs(x))
		require.NoError(t, err)
		require.Empty(t, actions)
	})

	t.Run("Div", func(t *testing.T) {
		g := NewGraph("div")
		x := Placeholder(g, "x", dtypes.Float32, Aligned(4), Block(15, 16))
		y := Placeholder(g, "y", dtypes.Float32, Aligned(4), Block(15, 16))
		div := Div(x, y)
		actions, err := CalcPadding(div)
		require.NoError(t, err)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], y, One(dtypes.Float32))

		actions, err = NewEngine().WithInputPadding(NewUnconstrained()).WithOutputPadding(false).CalcPadding(div)
		require.NoError(t, err)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], y, One(dtypes.Float32))
	})

	t.Run("BroadcastAdd", func(t *testing.T) {
		g := NewGraph("broadcast_add")
		x := Placeholder(g, "x", dtypes.Float32, Aligned(4), Block(1, 16))
		y := Placeholder(g, "y", dtypes.Float32, Aligned(4), Block(15, 16))
		broadcast := Broadcast(x, Aligned(4), Block(15, 16))
		add := Add(broadcast, y)
		actions, err := CalcPadding(add)
		require.NoError(t, err)
		require.Len(t, actions, 2)

		require.Equal(t, x, actions[0].Tensor)
		require.False(t, actions[0].Value.IsConstant())
		require.Equal(t, &PositionExpr{Source: x, Axes: []int{1}}, actions[0].Value.Expr)
		require.Empty(t, actions[0].Targets)

		requireAction(t, actions[1], add, Zero(dtypes.Float32))
	})

	t.Run("ReduceMaxWithCast", func(t *testing.T) {
		g := NewGraph("reduce_max")
		x := Placeholder(g, "x", dtypes.Float16, Aligned(2), Block(15, 16))
		cast := Cast(x, dtypes.Float32)
		out := Cast(ReduceMax(cast, false), dtypes.Float16)
		actions, err := CalcPadding(out)
		require.NoError(t, err)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], cast, NewScalar(dtypes.Float32, -3.4028234663852886e+38))
	})

	t.Run("ReduceMinFusedAxis", func(t *testing.T) {
		g := NewGraph("reduce_min")
		// N, C, fused H×W, and the channel block.
		x := Placeholder(g, "x", dtypes.Float32, Aligned(1), Aligned(2), Block(15, 16), Aligned(16))
		out := ReduceMin(x, true, 2)
		actions, err := CalcPadding(out)
		require.NoError(t, err)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], x, NewScalar(dtypes.Float32, 3.4028234663852886e+38))
	})

	t.Run("Softmax", func(t *testing.T) {
		g := NewGraph("softmax")
		x := Placeholder(g, "x", dtypes.Float16, Aligned(2), Block(15, 16))
		maxNode, _, exp, out := softmax(x)
		actions, err := CalcPadding(out)
		require.NoError(t, err)
		require.Len(t, actions, 3)
		requireAction(t, actions[0], x, NewScalar(dtypes.Float16, -65504), maxNode)
		requireAction(t, actions[1], exp, Zero(dtypes.Float16))
		requireAction(t, actions[2], out, Zero(dtypes.Float16))
	})

	t.Run("SoftmaxAligned", func(t *testing.T) {
		g := NewGraph("softmax_aligned")
		x := Placeholder(g, "x", dtypes.Float16, Aligned(2), Aligned(16))
		_, _, _, out := softmax(x)
		actions, err := CalcPadding(out)
		require.NoError(t, err)
		require.Empty(t, actions)
	})
}

func TestAnalysis(t *testing.T) {
	g := NewGraph("softmax")
	x := Placeholder(g, "x", dtypes.Float16, Aligned(2), Block(15, 16))
	maxNode, shifted, exp, out := softmax(x)
	analysis, err := NewEngine().Analyze(out)
	require.NoError(t, err)
	require.Len(t, analysis.Nodes, g.NumNodes())

	assert.True(t, analysis.Padding(x).IsExact(Zero(dtypes.Float16)))
	assert.True(t, analysis.Padding(maxNode).IsExact(NewScalar(dtypes.Float16, -65504)))
	assert.Equal(t, KindUnconstrained, analysis.Padding(shifted).Kind)
	assert.Equal(t, shifted, analysis.Padding(shifted).Origin())
	assert.Equal(t, KindUnconstrained, analysis.Padding(exp).Kind)

	settings := analysis.Settings(x)
	require.Len(t, settings, 1)
	assert.Equal(t, []*Node{maxNode}, settings[0].Targets)
	assert.True(t, settings[0].Padding(x).IsExact(NewScalar(dtypes.Float16, -65504)))

	// Nodes not reachable from the roots are not analysed.
	unused := Neg(x)
	assert.Nil(t, analysis.Padding(unused))
	assert.Nil(t, analysis.Settings(unused))
}

func TestDeterminism(t *testing.T) {
	g := NewGraph("softmax")
	x := Placeholder(g, "x", dtypes.Float16, Aligned(2), Block(15, 16))
	_, _, _, out := softmax(x)
	first := MustCalcPadding(out)
	for range 10 {
		again := MustCalcPadding(out)
		require.Equal(t, FormatActions(first), FormatActions(again))
	}
}

func TestEngineConfig(t *testing.T) {
	g := NewGraph("config")
	x := Placeholder(g, "x", dtypes.Float32, Block(15, 16))
	relu := Relu(x)

	// Default: zero input and zero output.
	require.Empty(t, MustCalcPadding(relu))

	// Inputs filled with -1: relu clears them.
	engine := NewEngine().WithInputPadding(NewExact(NewScalar(dtypes.Float64, -1)))
	analysis, err := engine.Analyze(relu)
	require.NoError(t, err)
	assert.True(t, analysis.Padding(x).IsExact(NewScalar(dtypes.Float32, -1)))
	assert.True(t, analysis.Padding(relu).IsExact(Zero(dtypes.Float32)))
	require.Empty(t, analysis.Actions)

	// Unconstrained inputs require the output to be fixed.
	actions, err := NewEngine().WithInputPadding(NewUnconstrained()).CalcPadding(relu)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	requireAction(t, actions[0], relu, Zero(dtypes.Float32))

	// A declared padding takes precedence over the engine's input convention.
	y := PlaceholderWithPadding(g, "y", NewExact(ScalarOf(float32(7))), dtypes.Float32, Block(15, 16))
	analysis, err = NewEngine().WithInputPadding(NewUnconstrained()).WithOutputPadding(false).Analyze(Abs(y))
	require.NoError(t, err)
	assert.True(t, analysis.Padding(y).IsExact(ScalarOf(float32(7))))
	require.Empty(t, analysis.Actions)
}

type failingPlatform struct{}

func (failingPlatform) Lowest(dtypes.DType) (Scalar, error)  { return Scalar{}, errors.New("no lowest") }
func (failingPlatform) Highest(dtypes.DType) (Scalar, error) { return Scalar{}, errors.New("no highest") }

func TestErrors(t *testing.T) {
	_, err := CalcPadding()
	require.Error(t, err)

	g1, g2 := NewGraph("g1"), NewGraph("g2")
	x1 := Placeholder(g1, "x1", dtypes.Float32, Block(15, 16))
	x2 := Placeholder(g2, "x2", dtypes.Float32, Block(15, 16))
	_, err = CalcPadding(x1, x2)
	require.ErrorContains(t, err, "different graph")

	_, err = NewEngine().WithPlatform(failingPlatform{}).CalcPadding(ReduceMax(x1, false))
	require.ErrorContains(t, err, "no lowest")

	invalid := newNode(g1, OpInvalid, dtypes.Float32, []Axis{Aligned(4)})
	_, err = CalcPadding(invalid)
	require.ErrorContains(t, err, "unsupported op type")

	require.Panics(t, func() { MustCalcPadding(invalid) })
}

func TestReduce(t *testing.T) {
	g := NewGraph("reduce")
	x := PlaceholderWithPadding(g, "x", NewExact(ScalarOf(float32(2))), dtypes.Float32, Block(15, 16), Aligned(8))
	sum := ReduceSum(x, false, 1)
	prod := ReduceProd(x, false, 1)
	maxNode := ReduceMax(x, true, 1)
	minNode := ReduceMin(x, false, -1)
	analysis, err := NewEngine().WithOutputPadding(false).Analyze(sum, prod, maxNode, minNode)
	require.NoError(t, err)
	require.Empty(t, analysis.Actions)
	assert.True(t, analysis.Padding(sum).IsExact(ScalarOf(float32(16))))
	assert.True(t, analysis.Padding(prod).IsExact(ScalarOf(float32(256))))
	assert.True(t, analysis.Padding(maxNode).IsExact(ScalarOf(float32(2))))
	assert.True(t, analysis.Padding(minNode).IsExact(ScalarOf(float32(2))))

	// Reducing over the padded axis of a tensor that already holds the neutral value.
	y := Placeholder(g, "y", dtypes.Float32, Block(15, 16), Aligned(8))
	total := ReduceSum(y, false)
	analysis, err = NewEngine().Analyze(total)
	require.NoError(t, err)
	require.Empty(t, analysis.Actions)
	assert.Equal(t, []*Node{total}, analysis.Padding(y).Targets)
	assert.True(t, analysis.Padding(total).IsExact(Zero(dtypes.Float32)))

	// Product over the padded axis: neutral value is 1.
	p := ReduceProd(y, false, 0)
	actions := MustCalcPadding(p)
	require.Len(t, actions, 1)
	requireAction(t, actions[0], y, One(dtypes.Float32))

	// Tensor dependent inputs stay tensor dependent when only real lanes are reduced.
	a := Placeholder(g, "a", dtypes.Float32, Aligned(4), Block(1, 16))
	b := Add(Broadcast(a, Aligned(4), Block(15, 16)), Broadcast(a, Aligned(4), Block(15, 16)))
	s := ReduceSum(b, false, 0)
	analysis, err = NewEngine().WithOutputPadding(false).Analyze(s)
	require.NoError(t, err)
	assert.Equal(t, KindTensorDependent, analysis.Padding(b).Kind)
	assert.Equal(t, KindTensorDependent, analysis.Padding(s).Kind)
}

func TestFaultRules(t *testing.T) {
	g := NewGraph("faults")
	negative := PlaceholderWithPadding(g, "negative", NewExact(ScalarOf(float32(-1))), dtypes.Float32, Block(15, 16))
	positive := PlaceholderWithPadding(g, "positive", NewExact(ScalarOf(float32(2))), dtypes.Float32, Block(15, 16))
	zero := Placeholder(g, "zero", dtypes.Float32, Block(15, 16))

	t.Run("Sqrt", func(t *testing.T) {
		sqrt := Sqrt(negative)
		actions := MustCalcPadding(sqrt)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], negative, Zero(dtypes.Float32))
	})

	t.Run("LogSafe", func(t *testing.T) {
		log := Log(positive)
		analysis, err := NewEngine().WithOutputPadding(false).Analyze(log)
		require.NoError(t, err)
		require.Empty(t, analysis.Actions)
		assert.Contains(t, analysis.Padding(positive).Targets, log)
	})

	t.Run("Rsqrt", func(t *testing.T) {
		actions, err := NewEngine().WithOutputPadding(false).CalcPadding(Rsqrt(zero))
		require.NoError(t, err)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], zero, One(dtypes.Float32))
	})

	t.Run("ReciprocalSharesFill", func(t *testing.T) {
		r1, r2 := Reciprocal(zero), Reciprocal(zero)
		analysis, err := NewEngine().WithOutputPadding(false).Analyze(r1, r2)
		require.NoError(t, err)
		require.Len(t, analysis.Actions, 1)
		requireAction(t, analysis.Actions[0], zero, One(dtypes.Float32))
		settings := analysis.Settings(zero)
		require.Len(t, settings, 1)
		assert.Equal(t, []*Node{r1, r2}, settings[0].demandedBy)
	})

	t.Run("UnconditionalWithOtherReaders", func(t *testing.T) {
		x := Placeholder(g, "x", dtypes.Float32, Aligned(4), Block(15, 16))
		y := Placeholder(g, "y", dtypes.Float32, Aligned(4), Block(15, 16))
		neg := Neg(y).WithName("neg")
		div := Div(x, y).WithName("div")
		// neg is simulated before div, and still sees the fill of the divisor.
		analysis, err := NewEngine().Analyze(neg, div)
		require.NoError(t, err)
		require.Len(t, analysis.Actions, 2)
		requireAction(t, analysis.Actions[0], y, One(dtypes.Float32))
		requireAction(t, analysis.Actions[1], neg, Zero(dtypes.Float32))
		assert.True(t, analysis.Padding(neg).IsExact(ScalarOf(float32(-1))))
		assert.True(t, analysis.Padding(div).IsExact(Zero(dtypes.Float32)))
		assert.True(t, analysis.Padding(y).IsExact(Zero(dtypes.Float32)))
	})

	t.Run("FallbackSafeForAllReaders", func(t *testing.T) {
		u := PlaceholderWithPadding(g, "u", NewUnconstrained(), dtypes.Float32, Block(15, 16))
		sqrt := Sqrt(u)
		div := Div(sqrt, u)
		analysis, err := NewEngine().WithOutputPadding(false).Analyze(div)
		require.NoError(t, err)
		require.Len(t, analysis.Actions, 1)
		requireAction(t, analysis.Actions[0], u, One(dtypes.Float32))
		assert.Equal(t, []*Node{sqrt, div}, analysis.Settings(u)[0].demandedBy)
		assert.True(t, analysis.Padding(div).IsExact(One(dtypes.Float32)))
	})

	t.Run("DivBroadcastDivisor", func(t *testing.T) {
		x := Placeholder(g, "x", dtypes.Float32, Aligned(4), Block(15, 16))
		y := Placeholder(g, "y", dtypes.Float32, Aligned(4), Aligned(1))
		div := Div(x, y)
		actions := MustCalcPadding(div)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], div, Zero(dtypes.Float32))
	})

	t.Run("DivScalar", func(t *testing.T) {
		div := BinaryOp(OpDiv, NodeOperand(zero), ScalarOperand(ScalarOf(float32(2))))
		require.Empty(t, MustCalcPadding(div))
	})
}

func TestBroadcastMixesOwnPadding(t *testing.T) {
	g := NewGraph("broadcast")
	x := Placeholder(g, "x", dtypes.Float32, Block(3, 4), Block(1, 16))
	b := Broadcast(x, Block(3, 4), Block(15, 16))
	analysis, err := NewEngine().WithOutputPadding(false).Analyze(b)
	require.NoError(t, err)
	assert.Equal(t, KindUnconstrained, analysis.Padding(b).Kind)
	require.Len(t, analysis.Actions, 1)
	require.Equal(t, &PositionExpr{Source: x, Axes: []int{1}}, analysis.Actions[0].Value.Expr)

	// A broadcast of a single physical lane needs no lane fix.
	y := Placeholder(g, "y", dtypes.Float32, Aligned(4), Aligned(1))
	by := Broadcast(y, Aligned(4), Block(15, 16))
	analysis, err = NewEngine().WithOutputPadding(false).Analyze(by)
	require.NoError(t, err)
	require.Empty(t, analysis.Actions)
	pv := analysis.Padding(by)
	assert.Equal(t, KindTensorDependent, pv.Kind)
	assert.Equal(t, &PositionExpr{Source: y, Axes: []int{1}}, pv.Expr)
}

func TestOutputReadByOtherNodes(t *testing.T) {
	f32 := dtypes.Float32
	g := NewGraph("outputs")
	x := Placeholder(g, "x", f32, Block(15, 16))
	y := Placeholder(g, "y", f32, Block(15, 16))
	r := BinaryOp(OpAdd, NodeOperand(x), ScalarOperand(ScalarOf(float32(5)))).WithName("r")
	d := Div(y, r).WithName("d")

	// d relies on the 5s in the padding of r: they are only zeroed when r is stored.
	analysis, err := NewEngine().Analyze(r, d)
	require.NoError(t, err)
	assert.True(t, analysis.Padding(r).IsExact(ScalarOf(float32(5))))
	assert.Equal(t, []*Node{d}, analysis.Padding(r).Targets)
	require.Len(t, analysis.Actions, 1)
	requireAction(t, analysis.Actions[0], r, Zero(f32), r)
	assert.True(t, analysis.Actions[0].IsOutputFill())
	assert.Equal(t, "fill r with 0 for [r]", analysis.Actions[0].String())

	// Without other readers the fill is unconditional.
	actions := MustCalcPadding(r)
	require.Len(t, actions, 1)
	requireAction(t, actions[0], r, Zero(f32))
	assert.False(t, actions[0].IsOutputFill())
}

func TestImplicitBroadcastOfSingleLane(t *testing.T) {
	f32 := dtypes.Float32
	g := NewGraph("single_lane")
	a := Placeholder(g, "a", f32, Aligned(4), Block(1, 16))
	b := Placeholder(g, "b", f32, Aligned(4), Aligned(1))

	// The padding lanes of add hold b's real lane added to a's zeros.
	add := Add(a, b)
	require.Equal(t, []Axis{Aligned(4), Block(1, 16)}, add.Axes())
	sum := ReduceSum(add, false, 1)
	analysis, err := NewEngine().Analyze(sum)
	require.NoError(t, err)
	assert.Equal(t, KindUnconstrained, analysis.Padding(add).Kind)
	require.Len(t, analysis.Actions, 1)
	requireAction(t, analysis.Actions[0], add, Zero(f32))

	// Tensor dependent lanes on both sides stay tensor dependent.
	td := PlaceholderWithPadding(g, "td", NewTensorDependent(), f32, Aligned(4), Block(1, 16))
	mul := Mul(td, b)
	analysis, err = NewEngine().WithOutputPadding(false).Analyze(mul)
	require.NoError(t, err)
	assert.Equal(t, KindTensorDependent, analysis.Padding(mul).Kind)
	require.Empty(t, analysis.Actions)

	// A 2-lane block widened to 16 lanes needs its lane fix first.
	narrow := Placeholder(g, "narrow", f32, Aligned(4), Block(1, 2))
	wide := Add(a, narrow)
	analysis, err = NewEngine().WithOutputPadding(false).Analyze(wide)
	require.NoError(t, err)
	require.Len(t, analysis.Actions, 1)
	assert.Equal(t, &PositionExpr{Source: narrow, Axes: []int{1}}, analysis.Actions[0].Value.Expr)
	assert.Empty(t, analysis.Actions[0].Targets)
}

func TestDemandOnUnconditionalFill(t *testing.T) {
	f32 := dtypes.Float32
	g := NewGraph("fill_targets")
	x := PlaceholderWithPadding(g, "x", NewUnconstrained(), f32, Block(15, 16))
	log := Log(x).WithName("log")
	prod := ReduceProd(x, false).WithName("prod")

	// prod needs the 1s written for log: it is recorded on that fill.
	analysis, err := NewEngine().WithOutputPadding(false).Analyze(log, prod)
	require.NoError(t, err)
	require.Len(t, analysis.Actions, 1)
	requireAction(t, analysis.Actions[0], x, One(f32))
	settings := analysis.Settings(x)
	require.Len(t, settings, 1)
	assert.Equal(t, []*Node{log, prod}, settings[0].demandedBy)
	assert.Empty(t, analysis.Padding(x).Targets)
}
