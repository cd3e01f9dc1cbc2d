// padcalc reads a graph description (see package graphdef), infers the padding values of its nodes and
// lists the padding fill actions the code emitter must generate.
//
// Usage:
//
//	padcalc -graph=<graph.yaml> [-plain] [-print_graph] [-unpadded_outputs] [-input_padding=zero|any] [-v=2]
//
// The graph description can also be given as the only positional argument.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/padding-gomlx/graphdef"
	"github.com/gomlx/padding-gomlx/padding"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagPlain           = flag.Bool("plain", false, "Print the actions as plain text instead of a table.")
	flagUnpaddedOutputs = flag.Bool("unpadded_outputs", false,
		"Don't require the outputs of the graph to leave with zero-filled padding lanes.")
	flagInputPadding = flag.String("input_padding", "zero",
		"Padding assumed for graph inputs that don't declare one: \"zero\" or \"any\" (unconstrained).")
	flagGraph      = flag.String("graph", "", "Graph description file (YAML or JSON).")
	flagPrintGraph = flag.Bool("print_graph", false, "Also print the graph.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	graphPath, err := resolveGraphPath(*flagGraph, flag.Args())
	if err != nil {
		klog.Errorf("%v. See 'padcalc -help'.", err)
		os.Exit(1)
	}
	engine, err := newEngine(*flagUnpaddedOutputs, *flagInputPadding)
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	m, err := graphdef.Load(graphPath)
	if err != nil {
		klog.Errorf("Failed to load graph description: %+v", err)
		os.Exit(1)
	}
	if *flagPrintGraph {
		fmt.Println(m.Graph)
	}
	analysis, err := engine.Analyze(m.Outputs...)
	if err != nil {
		klog.Errorf("Padding inference of %q failed: %+v", m.Graph.Name(), err)
		os.Exit(1)
	}
	if *flagPlain {
		fmt.Print(padding.FormatActions(analysis.Actions))
		return
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Graph %q: %d nodes analysed", m.Graph.Name(), len(analysis.Nodes))))
	if len(analysis.Actions) == 0 {
		fmt.Println("No padding actions required.")
		return
	}
	fmt.Println(actionsTable(analysis))
}

// resolveGraphPath returns the graph description file, given with -graph or as the only positional argument.
func resolveGraphPath(graphFlag string, args []string) (string, error) {
	switch {
	case graphFlag != "" && len(args) == 0:
		return graphFlag, nil
	case graphFlag == "" && len(args) == 1:
		return args[0], nil
	default:
		return "", errors.New("expected exactly one graph description file, set with -graph")
	}
}

func newEngine(unpaddedOutputs bool, inputPadding string) (*padding.Engine, error) {
	engine := padding.NewEngine().WithOutputPadding(!unpaddedOutputs)
	switch strings.ToLower(inputPadding) {
	case "zero":
	case "any":
		engine.WithInputPadding(padding.NewUnconstrained())
	default:
		return nil, errors.Errorf("invalid -input_padding=%q, valid values are \"zero\" or \"any\"", inputPadding)
	}
	return engine, nil
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row == lgtable.HeaderRow:
				s = headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			return
		})
}

// actionsTable lists one action per row, with the tensor's producing op, shape and padding value.
func actionsTable(analysis *padding.Analysis) *lgtable.Table {
	table := newPlainTable().Headers("#", "Tensor", "Op", "Shape", "Padding", "Fill", "Targets")
	for ii, action := range analysis.Actions {
		tensor := action.Tensor
		targets := "all readers"
		switch {
		case action.IsOutputFill():
			targets = "graph output"
		case len(action.Targets) > 0:
			names := make([]string, len(action.Targets))
			for jj, target := range action.Targets {
				names[jj] = target.Name()
			}
			targets = strings.Join(names, ", ")
		}
		table.Row(
			fmt.Sprintf("%d", ii),
			tensor.Name(),
			tensor.OpType().String(),
			fmt.Sprintf("%s%v", tensor.DType(), tensor.Axes()),
			analysis.Padding(tensor).String(),
			action.Value.String(),
			targets,
		)
	}
	return table
}
