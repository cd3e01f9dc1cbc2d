package padding

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Engine infers the padding values of a graph and the corrective actions it requires.
//
// It is configured with the With* methods, and can be reused for any number of graphs: each call to
// Analyze or CalcPadding owns its own analysis state.
type Engine struct {
	platform      Platform
	outputPadding bool
	inputPadding  *PaddingValue
}

// NewEngine returns an engine with the default configuration: DefaultPlatform, graph inputs arriving with
// zero-filled padding, and outputs required to leave zero-filled.
func NewEngine() *Engine {
	return &Engine{
		platform:      DefaultPlatform{},
		outputPadding: true,
	}
}

// WithPlatform sets the provider of dtype sentinel values.
func (e *Engine) WithPlatform(platform Platform) *Engine {
	e.platform = platform
	return e
}

// WithOutputPadding sets whether the outputs (roots) with padding lanes must leave the kernel zero-filled.
// Default is true, the convention of blocked tensor formats.
func (e *Engine) WithOutputPadding(required bool) *Engine {
	e.outputPadding = required
	return e
}

// WithInputPadding sets the padding value assumed for placeholders that don't declare their own.
// A nil value restores the default: Exact(0) in the placeholder's dtype.
func (e *Engine) WithInputPadding(padding *PaddingValue) *Engine {
	e.inputPadding = padding
	return e
}

// CalcPadding is a shortcut to NewEngine().CalcPadding(roots...).
func CalcPadding(roots ...*Node) ([]Action, error) {
	return NewEngine().CalcPadding(roots...)
}

// MustCalcPadding is like CalcPadding, but panics on errors.
func MustCalcPadding(roots ...*Node) []Action {
	actions, err := CalcPadding(roots...)
	if err != nil {
		panic(err)
	}
	return actions
}

// CalcPadding returns the ordered list of corrective actions required for the graph computing roots.
func (e *Engine) CalcPadding(roots ...*Node) ([]Action, error) {
	analysis, err := e.Analyze(roots...)
	if err != nil {
		return nil, err
	}
	return analysis.Actions, nil
}

// Analysis holds the result of the padding inference of a graph.
type Analysis struct {
	// Nodes reachable from the roots, in the order they were simulated.
	Nodes []*Node

	// Actions to be emitted, in the order they were discovered.
	Actions []Action

	graph  *Graph
	states map[NodeID]*nodeState
}

// Padding returns the inferred padding value of n, or nil if n was not analysed.
func (a *Analysis) Padding(n *Node) *PaddingValue {
	if n.graph != a.graph {
		return nil
	}
	st := a.states[n.id]
	if st == nil {
		return nil
	}
	return st.padding
}

// Settings returns the values written into n's padding lanes because of its consumers.
func (a *Analysis) Settings(n *Node) []*SettingValue {
	if n.graph != a.graph {
		return nil
	}
	st := a.states[n.id]
	if st == nil {
		return nil
	}
	return slices.Clone(st.settings)
}

// nodeState is the side table entry of a node: analysis results are never stored in the Node itself.
type nodeState struct {
	padding  *PaddingValue
	settings []*SettingValue

	// consumers are the distinct nodes reading this one, in simulation order.
	consumers []*Node

	// readers is the number of distinct consumers of the node, counting being an output as one.
	readers int
}

// propagation holds the state of one run of the engine.
type propagation struct {
	engine  *Engine
	states  map[NodeID]*nodeState
	actions []actionRecord
}

type actionRecord struct {
	tensor  *Node
	setting *SettingValue
}

// Analyze runs the padding inference over the graph computing roots.
//
// It returns an error if the graph has an unsupported operator, a dtype mismatch or any other condition that
// would make the generated kernel incorrect.
func (e *Engine) Analyze(roots ...*Node) (analysis *Analysis, err error) {
	if len(roots) == 0 {
		return nil, errors.New("padding.Analyze requires at least one root")
	}
	var nodes []*Node
	err = exceptions.TryCatch[error](func() { nodes = reachable(roots) })
	if err != nil {
		return nil, errors.WithMessagef(err, "while walking the graph %q", roots[0].graph.name)
	}

	p := &propagation{engine: e, states: make(map[NodeID]*nodeState, len(nodes))}
	for _, n := range nodes {
		p.states[n.id] = &nodeState{}
	}
	for _, n := range nodes {
		for _, input := range distinctInputs(n) {
			st := p.states[input.id]
			st.consumers = append(st.consumers, n)
			st.readers++
		}
	}
	roots = distinctNodes(roots)
	for _, root := range roots {
		p.states[root.id].readers++
	}

	for ii, n := range nodes {
		err = exceptions.TryCatch[error](func() {
			p.visit(n)
			p.requireSafe(n)
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "while simulating node %s (%d out of %d)", n, ii, len(nodes))
		}
	}
	err = exceptions.TryCatch[error](func() { p.requireOutputs(roots) })
	if err != nil {
		return nil, errors.WithMessage(err, "while checking the outputs")
	}

	analysis = &Analysis{Nodes: nodes, graph: roots[0].graph, states: p.states, Actions: make([]Action, 0, len(p.actions))}
	for _, record := range p.actions {
		analysis.Actions = append(analysis.Actions, Action{
			Tensor:  record.tensor,
			Value:   record.setting.Value,
			Targets: slices.Clone(record.setting.Targets),
		})
	}
	klog.V(1).Infof("padding: graph %q, %d nodes analysed, %d actions", roots[0].graph.name, len(nodes), len(analysis.Actions))
	return analysis, nil
}

// visit simulates one node, whose inputs have all been simulated already.
func (p *propagation) visit(n *Node) {
	var result *PaddingValue
	switch {
	case n.opType == OpPlaceholder:
		result = p.simulatePlaceholder(n)
	case n.opType == OpConstant:
		result = NewExact(n.value)
	case n.opType.IsUnary():
		result = p.simulateUnary(n)
	case n.opType.IsBinary():
		result = p.simulateBinary(n)
	case n.opType == OpBroadcast:
		result = p.view(n, n.operands[0])
	case n.opType.IsReduce():
		result = p.simulateReduce(n)
	case n.opType == OpCompare:
		result = p.simulateCompare(n)
	case n.opType == OpSelect:
		result = p.simulateSelect(n)
	case n.opType == OpCmpSel:
		result = p.simulateCmpSel(n)
	default:
		exceptions.Panicf("unsupported op type %s in node %s", n.opType, n.Name())
	}
	if result.Kind == KindExact && result.Value.DType != n.dtype {
		exceptions.Panicf("internal error: %s simulated padding %s doesn't match dtype %s", n.opType, result, n.dtype)
	}
	result = result.clone()
	result.origin = n
	p.states[n.id].padding = result
	klog.V(2).Infof("padding: %s -> %s", n, result)
}

func (p *propagation) simulatePlaceholder(n *Node) *PaddingValue {
	if n.declaredPadding != nil {
		return n.declaredPadding
	}
	if p.engine.inputPadding != nil {
		pv := p.engine.inputPadding
		if pv.Kind == KindExact {
			return NewExact(pv.Value.Convert(n.dtype))
		}
		return pv
	}
	return NewExact(Zero(n.dtype))
}

// requireOutputs demands zero-filled padding on the roots that have padding lanes.
//
// A root also read by other nodes is stored after those reads: its fill targets the root itself, the
// graph output, so the other readers keep the value they relied on.
func (p *propagation) requireOutputs(roots []*Node) {
	if !p.engine.outputPadding {
		return
	}
	for _, root := range roots {
		if !root.HasPadding() {
			continue
		}
		zero := ConstantFill(Zero(root.dtype))
		if current, _ := p.lookup(root, nil); current.IsExact(zero.Scalar) {
			continue
		}
		if p.states[root.id].readers > 1 {
			p.record(root, root, zero, true)
		} else {
			p.record(nil, root, zero, false)
		}
	}
}

// padding returns the padding value of tensor as read by consumer (see lookup).
func (p *propagation) padding(tensor, consumer *Node) *PaddingValue {
	pv, _ := p.lookup(tensor, consumer)
	return pv
}

// lookup returns the padding value of tensor as read by consumer, and the setting it comes from, if any.
//
// A constant setting the consumer required takes precedence, then an unconditional constant setting, and
// finally the tensor's own padding value. A nil consumer stands for the graph output.
func (p *propagation) lookup(tensor, consumer *Node) (*PaddingValue, *SettingValue) {
	st := p.states[tensor.id]
	if consumer != nil {
		for ii := len(st.settings) - 1; ii >= 0; ii-- {
			s := st.settings[ii]
			if s.Value.IsConstant() && slices.Contains(s.demandedBy, consumer) {
				return s.Padding(tensor), s
			}
		}
	}
	for ii := len(st.settings) - 1; ii >= 0; ii-- {
		s := st.settings[ii]
		if s.Value.IsConstant() && len(s.Targets) == 0 {
			return s.Padding(tensor), s
		}
	}
	return st.padding, nil
}

// demand records that consumer requires value in the padding lanes of tensor.
//
// The setting is unconditional if the consumer is the only reader of the tensor, otherwise it targets the
// consumer.
func (p *propagation) demand(consumer, tensor *Node, value FillValue) {
	p.record(consumer, tensor, value, p.states[tensor.id].readers > 1)
}

// record adds consumer to the setting of value on tensor, creating the setting and its action if needed.
//
// If the tensor already holds the value, the consumer is only recorded as relying on it.
// Equal settings with the same targeting are merged.
func (p *propagation) record(consumer, tensor *Node, value FillValue, targeted bool) {
	if value.IsConstant() && value.Scalar.DType != tensor.dtype {
		exceptions.Panicf("internal error: demanding %s (%s) on tensor %s of dtype %s", value, value.Scalar.DType, tensor.Name(), tensor.dtype)
	}
	st := p.states[tensor.id]
	current, from := p.lookup(tensor, consumer)
	if value.IsConstant() && current.IsExact(value.Scalar) {
		if from != nil {
			from.addDemand(consumer, len(from.Targets) > 0)
		} else {
			current.addTarget(consumer)
		}
		return
	}
	var setting *SettingValue
	for _, s := range st.settings {
		if s.Value.Equal(value) && (len(s.Targets) > 0) == targeted {
			setting = s
			break
		}
	}
	if setting == nil {
		setting = &SettingValue{Kind: SettingNormal, Value: value}
		st.settings = append(st.settings, setting)
		p.actions = append(p.actions, actionRecord{tensor: tensor, setting: setting})
	}
	setting.addDemand(consumer, targeted)
	if klog.V(3).Enabled() {
		klog.Infof("padding: %s demands %s on %s (targeted=%v)", consumerName(consumer), value, tensor.Name(), targeted)
	}
}

// operandPadding returns the padding value of an operand, as read directly (without broadcasting) by consumer.
func (p *propagation) operandPadding(consumer *Node, op Operand) *PaddingValue {
	switch {
	case op.node != nil:
		return p.padding(op.node, consumer)
	case op.scalar != nil:
		return NewExact(*op.scalar)
	default:
		return NewTensorDependent()
	}
}

func consumerName(consumer *Node) string {
	if consumer == nil {
		return "output"
	}
	return consumer.Name()
}

func distinctNodes(nodes []*Node) []*Node {
	distinct := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if !slices.Contains(distinct, n) {
			distinct = append(distinct, n)
		}
	}
	return distinct
}

func distinctInputs(n *Node) []*Node {
	return distinctNodes(n.Inputs())
}

// sentinels returns the lowest and highest values of dtype according to the engine's platform.
func (p *propagation) sentinels(dtype dtypes.DType) (lowest, highest Scalar) {
	var err error
	lowest, err = p.engine.platform.Lowest(dtype)
	if err != nil {
		panic(errors.WithMessagef(err, "querying lowest value of %s", dtype))
	}
	highest, err = p.engine.platform.Highest(dtype)
	if err != nil {
		panic(errors.WithMessagef(err, "querying highest value of %s", dtype))
	}
	return
}
