package gdp

import (
	"io"
	"log"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	if err := cfg.finalize(); err != nil {
		panic(err)
	}
	return cfg
}

func simpleObjective(m *Model, x *Variable) {
	m.AddObjective(Minimize,
		func(v []float64) float64 { return v[x.Index()] },
		func(_, grad []float64) { grad[x.Index()] = 1 },
	)
}

func TestNewWorkingModel_RejectsIntegers(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", 0, 1)
	m.AddInteger("n", 0, 10)
	simpleObjective(m, x)

	cfg := testConfig()
	_, err := newWorkingModel(m, &cfg)
	assert.True(t, errors.Is(err, ErrIntegerVariables))
}

func TestNewWorkingModel_RejectsReservedName(t *testing.T) {
	m := NewModel()
	x := m.AddVariable(epigraphVarName, 0, 1)
	simpleObjective(m, x)

	cfg := testConfig()
	_, err := newWorkingModel(m, &cfg)
	assert.True(t, errors.Is(err, ErrReservedName))
}

func TestNewWorkingModel_RejectsMultipleObjectives(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", 0, 1)
	simpleObjective(m, x)
	second := m.AddObjective(Maximize,
		func(v []float64) float64 { return -v[x.Index()] },
		func(_, grad []float64) { grad[x.Index()] = -1 },
	)

	cfg := testConfig()
	_, err := newWorkingModel(m, &cfg)
	assert.True(t, errors.Is(err, ErrMultipleObjectives))

	// deactivating all but one clears the error.
	second.Deactivate()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, w.numObjectives)
}

func TestNewWorkingModel_DummyObjective(t *testing.T) {
	m := NewModel()
	m.AddVariable("x", 0, 1)

	cfg := testConfig()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, w.numObjectives)
	assert.Equal(t, float64(1), w.objective.F(nil))
	assert.Equal(t, Minimize, w.sense)
}

func TestNewWorkingModel_Epigraph(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", -5, 5)
	m.AddObjective(Minimize,
		func(v []float64) float64 { return v[x.Index()] * v[x.Index()] },
		func(v, grad []float64) { grad[x.Index()] = 2 * v[x.Index()] },
	)

	cfg := testConfig()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)

	require.Len(t, w.vars, 2)
	assert.Equal(t, 1, w.nOrig)
	assert.Equal(t, epigraphVarName, w.vars[w.epigraph].Name)

	// the epigraph constraint holds iff the auxiliary variable dominates
	// the objective.
	epi := w.nonlinear[len(w.nonlinear)-1]
	assert.InDelta(t, -5, epi.F([]float64{2, 9}), 1e-12)
	assert.InDelta(t, 0, epi.F([]float64{2, 4}), 1e-12)

	grad := make([]float64, 2)
	epi.Grad([]float64{2, 4}, grad)
	assert.Equal(t, []float64{4, -1}, grad)
}

func TestNewWorkingModel_MaximizeFlipsSign(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", -5, 5)
	m.AddObjective(Maximize,
		func(v []float64) float64 { return v[x.Index()] },
		func(_, grad []float64) { grad[x.Index()] = 1 },
	)

	cfg := testConfig()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)
	assert.Equal(t, Maximize, w.sense)
	assert.Equal(t, float64(-1), w.objSign)

	// internal orientation: maximizing x means minimizing -x.
	assert.Equal(t, float64(-3), w.internalObjective([]float64{3, 0}))

	epi := w.nonlinear[len(w.nonlinear)-1]
	grad := make([]float64, 2)
	epi.Grad([]float64{3, -3}, grad)
	assert.Equal(t, []float64{-1, -1}, grad)
}

func TestWorkingModel_CopiesAreIsolated(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", 0, 10)
	c := m.AddLinear("c", []Term{{1, x}}, 5)
	simpleObjective(m, x)

	cfg := testConfig()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)

	w.vars[0].Value = 7
	w.linear[0].RHS = 99
	assert.Equal(t, float64(0), x.Value)
	assert.Equal(t, float64(5), c.RHS)
}

func TestClampedBounds(t *testing.T) {
	m := NewModel()
	m.AddVariable("free", math.Inf(-1), math.Inf(1))
	x := m.AddVariable("boxed", -2, 3)
	simpleObjective(m, x)

	cfg := testConfig()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)

	lo, hi := w.clampedBounds()
	assert.Equal(t, -unboundedFallback, lo[0])
	assert.Equal(t, float64(unboundedFallback), hi[0])
	assert.Equal(t, float64(-2), lo[1])
	assert.Equal(t, float64(3), hi[1])
}

func TestCopyBack_SnapsToBounds(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", 0, 1)
	simpleObjective(m, x)

	cfg := testConfig()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)

	best := make([]float64, len(w.vars))
	best[0] = 1 + 1e-10
	w.copyBack(best, 1e-8)
	assert.Equal(t, float64(1), x.Value)

	best[0] = -1e-10
	w.copyBack(best, 1e-8)
	assert.Equal(t, float64(0), x.Value)
}

func TestFindDisjunct(t *testing.T) {
	m := NewModel()
	x := m.AddVariable("x", -5, 5)
	d1 := m.NewDisjunct("a")
	d1.AddLinear("c", []Term{{1, x}}, 0)
	d2 := m.NewDisjunct("b")
	d2.AddLinear("c", []Term{{-1, x}}, 0)
	m.AddDisjunction("dj", d1, d2)
	simpleObjective(m, x)

	cfg := testConfig()
	w, err := newWorkingModel(m, &cfg)
	require.NoError(t, err)

	wd := w.findDisjunct(d2)
	require.NotNil(t, wd)
	assert.Equal(t, d2.Indicator().Index(), wd.indicator)

	foreign := NewModel().NewDisjunct("elsewhere")
	assert.Nil(t, w.findDisjunct(foreign))
}
