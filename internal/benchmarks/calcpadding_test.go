// Package benchmarks measures the padding inference throughput over synthetic graphs.
package benchmarks

import (
	"flag"
	"fmt"
	"runtime"
	"testing"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/padding-gomlx/padding"
	"github.com/janpfeifer/go-benchmarks"
	"github.com/janpfeifer/must"
)

var (
	flagBenchDuration = flag.Duration("bench_duration", 0, "Benchmark duration, typically use 10 seconds. If left as 0, benchmark tests are disabled")

	benchDepths = []int{10, 100, 1000}
)

// buildLayers stacks depth layers of normalization-like blocks (max, sub, exp, sum, div, relu), each with a
// padded channel axis, so every layer demands fills from the previous one.
func buildLayers(depth int) *padding.Node {
	g := padding.NewGraph(fmt.Sprintf("layers_%d", depth))
	x := padding.Placeholder(g, "x", dtypes.Float16, padding.Aligned(8), padding.Block(15, 16))
	bias := padding.Placeholder(g, "bias", dtypes.Float16, padding.Aligned(1), padding.Block(15, 16))
	for range depth {
		maxNode := padding.ReduceMax(x, true, 1)
		shifted := padding.Sub(x, maxNode)
		exp := padding.Exp(shifted)
		sum := padding.ReduceSum(exp, true, 1)
		x = padding.Relu(padding.Add(padding.Div(exp, sum), bias))
	}
	return x
}

func TestBenchCalcPadding(t *testing.T) {
	if testing.Short() {
		fmt.Printf("Skipping CalcPadding benchmark test: --short is set\n")
		t.SkipNow()
	}
	if *flagBenchDuration == 0 {
		fmt.Printf("Skipping CalcPadding benchmark test: --bench_duration is not set\n")
		t.SkipNow()
	}
	engine := padding.NewEngine()
	for depthIdx, depth := range benchDepths {
		root := buildLayers(depth)
		numActions := len(must.M1(engine.CalcPadding(root)))
		benchFn := benchmarks.NamedFunction{
			Name: fmt.Sprintf("%s/depth=%04d/actions=%d", t.Name(), depth, numActions),
			Func: func() {
				_ = must.M1(engine.CalcPadding(root))
			},
		}
		runtime.LockOSThread()
		benchmarks.New(benchFn).
			WithWarmUps(10).
			WithDuration(*flagBenchDuration).
			WithHeader(depthIdx == 0).
			Done()
		runtime.UnlockOSThread()
	}
}

func BenchmarkCalcPadding(b *testing.B) {
	for _, depth := range benchDepths {
		root := buildLayers(depth)
		b.Run(fmt.Sprintf("depth=%d", depth), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = must.M1(padding.CalcPadding(root))
			}
		})
	}
}

func TestLayersActions(t *testing.T) {
	actions := must.M1(padding.CalcPadding(buildLayers(3)))
	if len(actions) == 0 {
		t.Fatalf("expected padding actions for a padded channel axis, got none")
	}
	for _, action := range actions {
		if action.Tensor == nil {
			t.Fatalf("action without a tensor: %s", action)
		}
	}
}
