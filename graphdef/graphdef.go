// Package graphdef loads a padding.Graph from a declarative description in YAML (or JSON, which is a subset).
//
// A description lists named nodes, in any order, referencing their inputs by name:
//
//	name: softmax
//	nodes:
//	  - {name: x, op: Placeholder, dtype: Float16, axes: [2, 16/15]}
//	  - {name: max, op: ReduceMax, inputs: [x], reduce_axes: [1], keep_dims: true}
//	  - {name: shifted, op: Sub, inputs: [x, max]}
//	outputs: [shifted]
//
// Axes are given as "size" for aligned axes, or "size/original" for axes with padding lanes.
// Inputs are node names, immediate literals prefixed with "=" (e.g. "=1", "=min") or unbound runtime
// symbols prefixed with "$".
//
// Malformed descriptions are reported as errors, never as panics.
package graphdef

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/padding-gomlx/padding"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Def is the description of a graph.
type Def struct {
	Name  string    `yaml:"name"`
	Nodes []NodeDef `yaml:"nodes"`

	// Outputs are the names of the roots of the graph. If empty, the nodes not read by any other node are
	// used, in declaration order.
	Outputs []string `yaml:"outputs"`
}

// NodeDef describes one node. Which fields are used depends on the op.
type NodeDef struct {
	Name string `yaml:"name"`
	Op   string `yaml:"op"`

	// DType of Placeholder and Constant nodes, the target of Cast, and the dtype of literal or symbolic
	// operands that can't be inferred from the other operands.
	DType string `yaml:"dtype"`

	// Axes of Placeholder and Constant nodes, and the target axes of Broadcast.
	Axes []Axis `yaml:"axes"`

	// Value of a Constant.
	Value string `yaml:"value"`

	// Padding declared for a Placeholder: a literal, "any" for unconstrained lanes or "dependent".
	// If empty, the engine's input convention is used.
	Padding string `yaml:"padding"`

	Inputs     []string `yaml:"inputs"`
	ReduceAxes []int    `yaml:"reduce_axes"`
	KeepDims   bool     `yaml:"keep_dims"`

	// Mode of Compare and CmpSel: a symbol (">=") or a name ("ge").
	Mode string `yaml:"mode"`
}

// Axis is a padding.Axis that can be unmarshalled from "16" or "16/15".
type Axis padding.Axis

// ParseAxis parses "size" (an aligned axis) or "size/original".
func ParseAxis(text string) (Axis, error) {
	text = strings.TrimSpace(text)
	sizeText, originalText, hasOriginal := strings.Cut(text, "/")
	size, err := strconv.Atoi(strings.TrimSpace(sizeText))
	if err != nil {
		return Axis{}, errors.Wrapf(err, "invalid axis %q", text)
	}
	original := size
	if hasOriginal {
		original, err = strconv.Atoi(strings.TrimSpace(originalText))
		if err != nil {
			return Axis{}, errors.Wrapf(err, "invalid original extent in axis %q", text)
		}
	}
	if original <= 0 || size < original {
		return Axis{}, errors.Errorf("invalid axis %q: original extent must be positive and not larger than the size", text)
	}
	return Axis{Size: size, Original: original}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Axis) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: axis must be a scalar like 16 or \"16/15\"", node.Line)
	}
	axis, err := ParseAxis(node.Value)
	if err != nil {
		return errors.WithMessagef(err, "line %d", node.Line)
	}
	*a = axis
	return nil
}

// Parse decodes a graph description. Unknown fields are errors.
func Parse(data []byte) (*Def, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	def := &Def{}
	if err := dec.Decode(def); err != nil {
		return nil, errors.Wrap(err, "failed to parse graph description")
	}
	if len(def.Nodes) == 0 {
		return nil, errors.Errorf("graph description %q has no nodes", def.Name)
	}
	return def, nil
}

// ReadFile reads and parses the graph description in path.
func ReadFile(path string) (*Def, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph description from %q", path)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", path)
	}
	if def.Name == "" {
		def.Name = path
	}
	return def, nil
}

// Load reads, parses and builds the graph description in path.
func Load(path string) (*Model, error) {
	def, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return def.Build()
}
