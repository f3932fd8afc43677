package gdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitStrategyString(t *testing.T) {
	assert.Equal(t, "set covering", InitSetCovering.String())
	assert.Equal(t, "max binary", InitMaxBinary.String())
	assert.Equal(t, "fixed binary", InitFixedBinary.String())
	assert.Equal(t, "custom disjuncts", InitCustomDisjuncts.String())
	assert.Equal(t, "unknown", InitStrategy(42).String())
}

func TestInitSetCovering_VisitsEveryDisjunct(t *testing.T) {
	m := twoSidedModel(t)

	// record which side each evaluated point selects.
	selected := map[int]bool{}
	cfg := testConfig()
	cfg.BeforeSubproblemSolve = func(iteration int, assignment []float64) {
		for i, v := range assignment {
			if v >= 0.5 {
				selected[i] = true
			}
		}
	}

	res, err := m.Solve(cfg)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Status)
	assert.True(t, selected[0], "left disjunct never evaluated")
	assert.True(t, selected[1], "right disjunct never evaluated")
}

func TestInitFixedBinary_SeedsFromCurrentValues(t *testing.T) {
	m := twoSidedModel(t)
	m.disjunctions[0].disjuncts[1].Indicator().Value = 1

	var first []float64
	cfg := testConfig()
	cfg.InitStrategy = InitFixedBinary
	cfg.BeforeSubproblemSolve = func(iteration int, assignment []float64) {
		if first == nil {
			first = append([]float64{}, assignment...)
		}
	}

	res, err := m.Solve(cfg)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Status)
	require.NotNil(t, first)
	assert.Equal(t, []float64{0, 1}, first)
}

func TestInitCustomDisjuncts_PinsSelection(t *testing.T) {
	m := twoSidedModel(t)
	right := m.disjunctions[0].disjuncts[1]

	var first []float64
	cfg := testConfig()
	cfg.InitStrategy = InitCustomDisjuncts
	cfg.CustomInitDisjuncts = [][]*Disjunct{{right}}
	cfg.BeforeSubproblemSolve = func(iteration int, assignment []float64) {
		if first == nil {
			first = append([]float64{}, assignment...)
		}
	}

	res, err := m.Solve(cfg)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Status)
	require.NotNil(t, first)
	assert.InDelta(t, 1, first[1], 1e-9)
}

func TestInitCustomDisjuncts_RejectsForeignDisjunct(t *testing.T) {
	m := twoSidedModel(t)
	foreign := NewModel().NewDisjunct("elsewhere")

	cfg := testConfig()
	cfg.InitStrategy = InitCustomDisjuncts
	cfg.CustomInitDisjuncts = [][]*Disjunct{{foreign}}

	_, err := m.Solve(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the model")
}

func TestInitMaxBinary_ActivatesBinaries(t *testing.T) {
	// free binary alongside the disjunction; max binary turns it on for
	// the seed point.
	m := NewModel()
	x := m.AddVariable("x", 0, 5)
	m.AddBinary("y")
	m.AddObjective(Minimize,
		func(v []float64) float64 {
			return (v[x.Index()] - 1) * (v[x.Index()] - 1)
		},
		func(v, grad []float64) {
			grad[x.Index()] = 2 * (v[x.Index()] - 1)
		},
	)

	var first []float64
	cfg := testConfig()
	cfg.InitStrategy = InitMaxBinary
	cfg.BeforeSubproblemSolve = func(iteration int, assignment []float64) {
		if first == nil {
			first = append([]float64{}, assignment...)
		}
	}

	res, err := m.Solve(cfg)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Status)
	require.NotNil(t, first)
	assert.InDelta(t, 1, first[0], 1e-9)
}
