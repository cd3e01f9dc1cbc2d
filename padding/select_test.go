package padding

import (
	"testing"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	f32 := dtypes.Float32
	g := NewGraph("select")
	x := Placeholder(g, "x", f32, Aligned(4), Block(15, 16))
	u := PlaceholderWithPadding(g, "u", NewUnconstrained(), f32, Aligned(4), Block(15, 16))
	v := PlaceholderWithPadding(g, "v", NewUnconstrained(), f32, Aligned(4), Block(15, 16))
	engine := NewEngine().WithOutputPadding(false)

	t.Run("ExactCondition", func(t *testing.T) {
		cond := CompareOperands(NodeOperand(x), ScalarOperand(Zero(f32)), CompareGE)
		sel := Select(cond, NodeOperand(x), ScalarOperand(One(f32)))
		analysis, err := engine.Analyze(sel)
		require.NoError(t, err)
		require.Empty(t, analysis.Actions)
		assert.True(t, analysis.Padding(cond).IsExact(One(dtypes.Bool)))
		assert.True(t, analysis.Padding(sel).IsExact(Zero(f32)))
		assert.Equal(t, []*Node{sel}, analysis.Padding(x).Targets)

		// The false branch is taken: x is not relied upon.
		cond = CompareOperands(NodeOperand(x), ScalarOperand(Zero(f32)), CompareGT)
		sel = Select(cond, NodeOperand(x), ScalarOperand(One(f32)))
		analysis, err = engine.Analyze(sel)
		require.NoError(t, err)
		assert.True(t, analysis.Padding(sel).IsExact(One(f32)))
		assert.Empty(t, analysis.Padding(x).Targets)
	})

	t.Run("UnconstrainedCondition", func(t *testing.T) {
		cond := Compare(u, v, CompareLT)
		same := Select(cond, ScalarOperand(One(f32)), ScalarOperand(One(f32)))
		different := Select(cond, NodeOperand(x), ScalarOperand(One(f32)))
		analysis, err := engine.Analyze(same, different)
		require.NoError(t, err)
		assert.Equal(t, KindUnconstrained, analysis.Padding(cond).Kind)
		assert.True(t, analysis.Padding(same).IsExact(One(f32)))
		assert.Equal(t, KindUnconstrained, analysis.Padding(different).Kind)
		assert.Contains(t, analysis.Padding(x).Targets, different)

		// With the default output requirement the unconstrained selection is fixed.
		actions := MustCalcPadding(different)
		require.Len(t, actions, 1)
		requireAction(t, actions[0], different, Zero(f32))
	})

	t.Run("TensorDependentCondition", func(t *testing.T) {
		a := Placeholder(g, "a", f32, Aligned(4), Aligned(1))
		b := Placeholder(g, "b", f32, Aligned(4), Aligned(1))
		cond := Compare(Broadcast(a, Aligned(4), Block(15, 16)), Broadcast(b, Aligned(4), Block(15, 16)), CompareEQ)
		symbols := Select(cond, SymbolOperand("alpha", f32), SymbolOperand("beta", f32))
		zeros := Select(cond, NodeOperand(x), ScalarOperand(Zero(f32)))
		mixed := Select(cond, NodeOperand(u), SymbolOperand("beta", f32))
		analysis, err := engine.Analyze(symbols, zeros, mixed)
		require.NoError(t, err)
		require.Empty(t, analysis.Actions)
		assert.Equal(t, KindTensorDependent, analysis.Padding(cond).Kind)
		assert.Equal(t, KindTensorDependent, analysis.Padding(symbols).Kind)
		assert.True(t, analysis.Padding(zeros).IsExact(Zero(f32)))
		assert.Equal(t, KindUnconstrained, analysis.Padding(mixed).Kind)
	})

	t.Run("CmpSelReflexive", func(t *testing.T) {
		self := CmpSel(NodeOperand(u), NodeOperand(u), CompareGE, ScalarOperand(One(f32)), ScalarOperand(Zero(f32)))
		notEqual := CmpSel(NodeOperand(u), NodeOperand(u), CompareNE, ScalarOperand(One(f32)), NodeOperand(x))
		distinct := CmpSel(NodeOperand(u), NodeOperand(v), CompareGE, ScalarOperand(One(f32)), ScalarOperand(Zero(f32)))
		analysis, err := engine.Analyze(self, notEqual, distinct)
		require.NoError(t, err)
		assert.True(t, analysis.Padding(self).IsExact(One(f32)))
		assert.True(t, analysis.Padding(notEqual).IsExact(Zero(f32)))
		assert.Equal(t, []*Node{notEqual}, analysis.Padding(x).Targets)
		assert.Equal(t, KindUnconstrained, analysis.Padding(distinct).Kind)
	})

	t.Run("SentinelCondition", func(t *testing.T) {
		// "t >= lowest" holds on tensor dependent lanes.
		a := Placeholder(g, "a2", f32, Aligned(4), Aligned(1))
		ba := Broadcast(a, Aligned(4), Block(15, 16))
		lowest := ScalarOperand(NewScalar(f32, -3.4028234663852886e+38))
		sel := CmpSel(NodeOperand(ba), lowest, CompareGE, NodeOperand(x), ScalarOperand(One(f32)))
		analysis, err := engine.Analyze(sel)
		require.NoError(t, err)
		assert.True(t, analysis.Padding(sel).IsExact(Zero(f32)))
	})
}

func TestResolveBranch(t *testing.T) {
	f32 := dtypes.Float32
	g := NewGraph("resolve")
	x := Placeholder(g, "x", f32, Block(15, 16))
	other := Neg(x)
	sel := Select(Compare(x, x, CompareEQ), NodeOperand(x), ScalarOperand(Zero(f32)))

	p := newTestPropagation()
	for _, n := range g.Nodes() {
		p.states[n.id] = &nodeState{}
	}
	p.states[x.id].padding = &PaddingValue{Kind: KindUnconstrained, origin: x}
	setting := &SettingValue{Value: ConstantFill(One(f32)), Targets: []*Node{other}, demandedBy: []*Node{other, sel}}
	p.states[x.id].settings = []*SettingValue{setting}

	// The setting demanded by the consumer takes precedence over the primary padding value.
	pv := p.resolveBranch(sel, NodeOperand(x))
	assert.True(t, pv.IsExact(One(f32)))
	assert.Equal(t, []*Node{other, sel}, setting.Targets)
	assert.Empty(t, p.states[x.id].padding.Targets)

	// Other consumers see, and rely on, the primary value.
	pv = p.resolveBranch(x, NodeOperand(x))
	assert.Equal(t, KindUnconstrained, pv.Kind)
	assert.Equal(t, []*Node{x}, p.states[x.id].padding.Targets)

	assert.True(t, p.resolveBranch(sel, ScalarOperand(One(f32))).IsExact(One(f32)))
	assert.Equal(t, KindTensorDependent, p.resolveBranch(sel, SymbolOperand("s", f32)).Kind)
}
