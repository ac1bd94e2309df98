package gates

import (
	"fmt"
)

// Node is the YAML form of a gate expression. Exactly one of All, Any,
// or Metric must be set:
//
//	any:
//	  - {metric: mae, op: "<=", value: 4.0}
//	  - {metric: r2, op: ">=", value: 0.55}
//
// or a bare leaf:
//
//	{metric: macro_f1, op: ">=", value: 0.55}
type Node struct {
	All    []Node  `yaml:"all,omitempty" json:"all,omitempty"`
	Any    []Node  `yaml:"any,omitempty" json:"any,omitempty"`
	Metric string  `yaml:"metric,omitempty" json:"metric,omitempty"`
	Op     Op      `yaml:"op,omitempty" json:"op,omitempty"`
	Value  float64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// Compile converts a configuration node into an evaluatable expression.
func Compile(n Node) (Expr, error) {
	set := 0
	if len(n.All) > 0 {
		set++
	}
	if len(n.Any) > 0 {
		set++
	}
	if n.Metric != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("gate node must set exactly one of all, any, or metric")
	}

	switch {
	case len(n.All) > 0:
		children, err := compileChildren(n.All)
		if err != nil {
			return nil, err
		}
		return All(children), nil
	case len(n.Any) > 0:
		children, err := compileChildren(n.Any)
		if err != nil {
			return nil, err
		}
		return Any(children), nil
	default:
		if !n.Op.valid() {
			return nil, fmt.Errorf("gate comparison %q: invalid operator %q", n.Metric, n.Op)
		}
		return Cmp{Metric: n.Metric, Op: n.Op, Value: n.Value}, nil
	}
}

func compileChildren(nodes []Node) ([]Expr, error) {
	children := make([]Expr, 0, len(nodes))
	for i, child := range nodes {
		expr, err := Compile(child)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		children = append(children, expr)
	}
	return children, nil
}
