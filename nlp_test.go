package gdp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAugLagSolve_BoxOnly(t *testing.T) {
	prob := nlpProblem{
		x0:    []float64{0},
		lower: []float64{0},
		upper: []float64{5},
		objective: func(x []float64) float64 {
			return (x[0] - 2) * (x[0] - 2)
		},
		objectiveGrad: func(x, grad []float64) {
			grad[0] = 2 * (x[0] - 2)
		},
	}

	sol, err := augLagBackend{}.SolveNLP(prob, SolverOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.status)
	assert.InDelta(t, 2, sol.x[0], 1e-6)
	assert.Empty(t, sol.duals)
}

func TestAugLagSolve_ActiveConstraintDual(t *testing.T) {
	// minimize x^2 subject to x >= 1. The KKT multiplier of the active
	// constraint is 2, and the cut generator relies on getting it back.
	prob := nlpProblem{
		x0:    []float64{3},
		lower: []float64{-5},
		upper: []float64{5},
		objective: func(x []float64) float64 {
			return x[0] * x[0]
		},
		objectiveGrad: func(x, grad []float64) {
			grad[0] = 2 * x[0]
		},
		cons: []nlpConstraint{
			{
				f:    func(x []float64) float64 { return 1 - x[0] },
				grad: func(_, grad []float64) { grad[0] -= 1 },
			},
		},
	}

	sol, err := augLagBackend{}.SolveNLP(prob, SolverOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.status)
	assert.InDelta(t, 1, sol.x[0], 1e-4)
	require.Len(t, sol.duals, 1)
	assert.InDelta(t, 2, sol.duals[0], 1e-2)
}

func TestAugLagSolve_Infeasible(t *testing.T) {
	prob := nlpProblem{
		x0:    []float64{0},
		lower: []float64{-5},
		upper: []float64{5},
		objective: func(x []float64) float64 {
			return x[0]
		},
		objectiveGrad: func(_, grad []float64) {
			grad[0] = 1
		},
		cons: []nlpConstraint{
			{
				// x^2 + 1 <= 0 never holds.
				f:    func(x []float64) float64 { return x[0]*x[0] + 1 },
				grad: func(x, grad []float64) { grad[0] += 2 * x[0] },
			},
		},
	}

	sol, err := augLagBackend{}.SolveNLP(prob, SolverOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.status)
}

func TestAugLagSolve_AllFixed(t *testing.T) {
	feasible := nlpProblem{
		x0:    []float64{1, 0},
		lower: []float64{1, 0},
		upper: []float64{1, 0},
		objective: func(x []float64) float64 {
			return x[0]
		},
		objectiveGrad: func(_, grad []float64) {
			grad[0] = 1
		},
		cons: []nlpConstraint{
			{
				f:    func(x []float64) float64 { return x[0] - 2 },
				grad: func(_, grad []float64) { grad[0] += 1 },
			},
		},
	}

	sol, err := augLagBackend{}.SolveNLP(feasible, SolverOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.status)
	assert.Equal(t, []float64{1, 0}, sol.x)

	infeasible := feasible
	infeasible.cons = []nlpConstraint{
		{
			f:    func(x []float64) float64 { return 2 - x[0] },
			grad: func(_, grad []float64) { grad[0] -= 1 },
		},
	}
	sol, err = augLagBackend{}.SolveNLP(infeasible, SolverOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.status)
}

func TestAugLagSolve_BadBounds(t *testing.T) {
	prob := nlpProblem{
		x0:    []float64{0},
		lower: []float64{0},
		upper: []float64{1, 2},
		objective: func(x []float64) float64 {
			return x[0]
		},
		objectiveGrad: func(_, grad []float64) {
			grad[0] = 1
		},
	}
	_, err := augLagBackend{}.SolveNLP(prob, SolverOptions{})
	assert.Error(t, err)
}

func TestMaxAbsDiff(t *testing.T) {
	assert.Equal(t, 0.5, maxAbsDiff([]float64{1, 2}, []float64{1, 2.5}))
	assert.Equal(t, float64(0), maxAbsDiff(nil, nil))
	assert.False(t, math.IsNaN(maxAbsDiff([]float64{0}, []float64{0})))
}
