package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/yaml.v3"
)

func TestCmpBoundaryEquality(t *testing.T) {
	tests := []struct {
		name     string
		cmp      Cmp
		observed float64
		want     bool
	}{
		{"le at boundary passes", Cmp{"mae", OpLE, 4.0}, 4.0, true},
		{"le above boundary fails", Cmp{"mae", OpLE, 4.0}, 4.0001, false},
		{"ge at boundary passes", Cmp{"r2", OpGE, 0.55}, 0.55, true},
		{"ge below boundary fails", Cmp{"r2", OpGE, 0.55}, 0.5499, false},
		{"lt at boundary fails", Cmp{"mae", OpLT, 4.0}, 4.0, false},
		{"gt at boundary fails", Cmp{"r2", OpGT, 0.55}, 0.55, false},
		{"eq exact passes", Cmp{"top3", OpEQ, 0.8}, 0.8, true},
		{"ne exact fails", Cmp{"top3", OpNE, 0.8}, 0.8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reasons := tt.cmp.Evaluate(map[string]float64{tt.cmp.Metric: tt.observed})
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Empty(t, reasons)
			} else {
				require.Len(t, reasons, 1)
				assert.Contains(t, reasons[0], tt.cmp.Metric)
			}
		})
	}
}

func TestCmpMissingMetricFails(t *testing.T) {
	ok, reasons := Cmp{"mrr", OpGE, 0.4}.Evaluate(map[string]float64{"mae": 3.0})
	assert.False(t, ok)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "metric absent")
}

func TestAndRequiresAllChildren(t *testing.T) {
	gate := All{
		Cmp{"macro_f1", OpGE, 0.55},
		Cmp{"balanced_accuracy", OpGE, 0.55},
	}

	ok, reasons := gate.Evaluate(map[string]float64{"macro_f1": 0.5, "balanced_accuracy": 0.6})
	assert.False(t, ok)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "macro_f1 >= 0.55: got 0.5")

	ok, reasons = gate.Evaluate(map[string]float64{"macro_f1": 0.6, "balanced_accuracy": 0.6})
	assert.True(t, ok)
	assert.Empty(t, reasons)
}

func TestOrPassesOnAnyChild(t *testing.T) {
	gate := Any{
		Cmp{"mae", OpLE, 4.0},
		Cmp{"r2", OpGE, 0.55},
	}

	ok, _ := gate.Evaluate(map[string]float64{"mae": 6.0, "r2": 0.6})
	assert.True(t, ok, "r2 alone should clear the OR gate")

	ok, reasons := gate.Evaluate(map[string]float64{"mae": 6.0, "r2": 0.3})
	assert.False(t, ok)
	assert.Len(t, reasons, 2, "all failed alternatives should be reported")
}

func TestCompileFromYAML(t *testing.T) {
	raw := `
any:
  - {metric: mae, op: "<=", value: 4.0}
  - {metric: r2, op: ">=", value: 0.55}
`
	var node Node
	require.NoError(t, yaml.Unmarshal([]byte(raw), &node))

	expr, err := Compile(node)
	require.NoError(t, err)
	assert.Equal(t, "(mae <= 4 OR r2 >= 0.55)", expr.String())

	ok, _ := expr.Evaluate(map[string]float64{"mae": 4.0, "r2": 0.1})
	assert.True(t, ok)
}

func TestCompileNestedTree(t *testing.T) {
	node := Node{
		All: []Node{
			{Metric: "macro_f1", Op: OpGE, Value: 0.55},
			{Any: []Node{
				{Metric: "top3_accuracy", Op: OpGE, Value: 0.7},
				{Metric: "mrr", Op: OpGE, Value: 0.5},
			}},
		},
	}

	expr, err := Compile(node)
	require.NoError(t, err)

	ok, _ := expr.Evaluate(map[string]float64{"macro_f1": 0.6, "top3_accuracy": 0.2, "mrr": 0.55})
	assert.True(t, ok)

	ok, _ = expr.Evaluate(map[string]float64{"macro_f1": 0.6, "top3_accuracy": 0.2, "mrr": 0.1})
	assert.False(t, ok)
}

func TestCompileRejectsInvalidNodes(t *testing.T) {
	_, err := Compile(Node{})
	assert.Error(t, err, "empty node")

	_, err = Compile(Node{Metric: "mae", Op: "~", Value: 1})
	assert.Error(t, err, "bad operator")

	_, err = Compile(Node{
		Metric: "mae", Op: OpLE, Value: 4,
		All: []Node{{Metric: "r2", Op: OpGE, Value: 0.5}},
	})
	assert.Error(t, err, "leaf and branch at once")
}
