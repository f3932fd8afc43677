package gdp

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T, m *Model, cfg Config) *solveState {
	t.Helper()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)
	return &solveState{work: w, cfg: &cfg, pools: newCutPools(false)}
}

func TestSnapAssignment(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", 0, 1)
	m.AddBinary("y")
	simpleObjective(m, x)

	st := newTestState(t, m, testConfig())

	snapped, err := st.snapAssignment([]float64{1 - 1e-7})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, snapped)

	snapped, err = st.snapAssignment([]float64{1e-7})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, snapped)

	_, err = st.snapAssignment([]float64{0.4})
	assert.True(t, errors.Is(err, ErrNonIntegralBinary))
}

func TestSnapAssignment_RoundingDisabled(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", 0, 1)
	m.AddBinary("y")
	simpleObjective(m, x)

	cfg := testConfig()
	cfg.RoundNLPBinaries = false
	st := newTestState(t, m, cfg)

	// exactly integral passes, near-integral does not.
	snapped, err := st.snapAssignment([]float64{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, snapped)

	_, err = st.snapAssignment([]float64{1 - 1e-7})
	assert.True(t, errors.Is(err, ErrNonIntegralBinary))
}

// recordingNLP captures the problem it is given and replies with a fixed
// solution.
type recordingNLP struct {
	prob *nlpProblem
	sol  nlpSolution
}

func (r *recordingNLP) SolveNLP(p nlpProblem, opts SolverOptions) (nlpSolution, error) {
	*r.prob = p
	return r.sol, nil
}

func TestSolveSubproblem_PinsBinariesAndSelectsDisjuncts(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", -5, 5)
	d1 := m.NewDisjunct("left")
	d1.AddNonlinear("inside",
		func(v []float64) float64 { return v[0] },
		func(_, grad []float64) { grad[0] += 1 },
	)
	d2 := m.NewDisjunct("right")
	d2.AddNonlinear("inside",
		func(v []float64) float64 { return -v[0] },
		func(_, grad []float64) { grad[0] -= 1 },
	)
	m.AddDisjunction("side", d1, d2)
	simpleObjective(m, x)

	var captured nlpProblem
	cfg := testConfig()
	cfg.NLPBackend = &recordingNLP{
		prob: &captured,
		sol:  nlpSolution{status: StatusOptimal, x: []float64{1, 0, 1, 1}},
	}
	st := newTestState(t, m, cfg)

	out, err := st.solveSubproblem([]float64{0, 1}, nil)
	require.NoError(t, err)
	require.True(t, out.feasible)

	// indicators pinned to the assignment.
	i1 := d1.Indicator().Index()
	i2 := d2.Indicator().Index()
	assert.Equal(t, float64(0), captured.lower[i1])
	assert.Equal(t, float64(0), captured.upper[i1])
	assert.Equal(t, float64(1), captured.lower[i2])
	assert.Equal(t, float64(1), captured.upper[i2])

	// constraints: the epigraph row and the selected disjunct's row only.
	require.Len(t, captured.cons, 2)

	// duals arrive padded to the nonlinear constraint count even when the
	// backend returns none.
	require.Len(t, out.duals, 2)
	assert.Equal(t, []float64{0, 0}, out.duals)
	require.Len(t, out.cons, 2)
	assert.Same(t, st.work.findDisjunct(d2), out.cons[1].disjunct)
}

func TestSolveSubproblem_InfeasibleIsNotAnError(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", 0, 1)
	m.AddBinary("y")
	simpleObjective(m, x)

	var captured nlpProblem
	cfg := testConfig()
	cfg.NLPBackend = &recordingNLP{
		prob: &captured,
		sol:  nlpSolution{status: StatusInfeasible},
	}
	st := newTestState(t, m, cfg)

	out, err := st.solveSubproblem([]float64{1}, nil)
	require.NoError(t, err)
	assert.False(t, out.feasible)
	assert.Nil(t, out.duals)
}
