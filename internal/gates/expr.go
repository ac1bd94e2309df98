package gates

import (
	"fmt"
	"strings"
)

// Expr is a boolean condition over named model quality metrics. Gate
// expressions are configuration, not code: they are loaded from YAML
// as AND/OR trees of numeric comparisons and evaluated against the
// metric set produced by the last training run.
type Expr interface {
	// Evaluate returns whether the metrics clear the gate. When they
	// do not, reasons names every failing comparison with the observed
	// value so operators can see exactly which metric held the model
	// back.
	Evaluate(metrics map[string]float64) (ok bool, reasons []string)
	String() string
}

// Op is a numeric comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "=="
	OpNE Op = "!="
)

func (o Op) valid() bool {
	switch o {
	case OpLT, OpLE, OpGT, OpGE, OpEQ, OpNE:
		return true
	}
	return false
}

// Cmp is a leaf comparison: metric <op> value. Boundary semantics are
// exact: mae == 4.0 passes "mae <= 4.0".
type Cmp struct {
	Metric string
	Op     Op
	Value  float64
}

func (c Cmp) Evaluate(metrics map[string]float64) (bool, []string) {
	observed, present := metrics[c.Metric]
	if !present {
		return false, []string{fmt.Sprintf("%s %s %g: metric absent", c.Metric, c.Op, c.Value)}
	}

	var ok bool
	switch c.Op {
	case OpLT:
		ok = observed < c.Value
	case OpLE:
		ok = observed <= c.Value
	case OpGT:
		ok = observed > c.Value
	case OpGE:
		ok = observed >= c.Value
	case OpEQ:
		ok = observed == c.Value
	case OpNE:
		ok = observed != c.Value
	}
	if ok {
		return true, nil
	}
	return false, []string{fmt.Sprintf("%s %s %g: got %g", c.Metric, c.Op, c.Value, observed)}
}

func (c Cmp) String() string {
	return fmt.Sprintf("%s %s %g", c.Metric, c.Op, c.Value)
}

// All passes only when every child passes (AND). Reasons from all
// failing children are collected, not just the first.
type All []Expr

func (a All) Evaluate(metrics map[string]float64) (bool, []string) {
	ok := true
	var reasons []string
	for _, child := range a {
		childOK, childReasons := child.Evaluate(metrics)
		if !childOK {
			ok = false
			reasons = append(reasons, childReasons...)
		}
	}
	return ok, reasons
}

func (a All) String() string { return joinChildren(a, " AND ") }

// Any passes when at least one child passes (OR). When none do, the
// reasons explain every alternative that was tried.
type Any []Expr

func (a Any) Evaluate(metrics map[string]float64) (bool, []string) {
	var reasons []string
	for _, child := range a {
		childOK, childReasons := child.Evaluate(metrics)
		if childOK {
			return true, nil
		}
		reasons = append(reasons, childReasons...)
	}
	return false, reasons
}

func (a Any) String() string { return joinChildren(a, " OR ") }

func joinChildren(children []Expr, sep string) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		parts = append(parts, c.String())
	}
	return "(" + strings.Join(parts, sep) + ")"
}
