package gdp

import (
	"math"

	"github.com/pkg/errors"
)

// Model validation errors.
var (
	ErrMultipleObjectives = errors.New("model has multiple active objectives")
	ErrIntegerVariables   = errors.New("model contains general integer variables, which are not supported")
	ErrReservedName       = errors.New("model uses a variable name reserved for the solver's workspace")
	ErrNonIntegralBinary  = errors.New("binary variable value is not within tolerance of 0 or 1")
)

const (
	// epigraphVarName is the reserved name of the auxiliary objective-value
	// variable added to the working model.
	epigraphVarName = "_gdp.objective_value"

	// objectiveBound is the artificial box on the epigraph variable. The
	// bundled simplex backend needs a bounded master problem; before the
	// first outer approximation cut arrives, this is the only thing bounding
	// the relaxed objective.
	objectiveBound = 1e7

	// unboundedFallback replaces infinite variable bounds during master
	// assembly and big-M derivation.
	unboundedFallback = 1e7
)

// workDisjunct is a disjunct of the working model, with constraint copies
// that the solver owns.
type workDisjunct struct {
	src       *Disjunct
	indicator int // variable index
	linear    []*LinearConstraint
	nonlinear []*NonlinearConstraint
}

type workDisjunction struct {
	disjuncts []*workDisjunct
}

// workingModel is the solver's private copy of a Model. Variables and
// constraints keep the declaration order of the original so that values can
// be copied between the two by index. The epigraph variable and its
// constraint are appended last.
type workingModel struct {
	src  *Model
	vars []*Variable

	// nOrig counts the caller's variables; vars[:nOrig] align 1:1 with
	// src.Variables().
	nOrig int

	linear       []*LinearConstraint
	nonlinear    []*NonlinearConstraint
	disjunctions []*workDisjunction

	// binaries holds the variable indices with an integrality constraint,
	// in declaration order. A discrete assignment is a value vector over
	// this list.
	binaries []int

	// epigraph is the index of the auxiliary objective-value variable.
	epigraph int

	sense Sense

	// objSign maps the user objective onto the internal minimize-only
	// convention: +1 for minimize, -1 for maximize. Bounds are always kept
	// minimize-oriented, and mirrored back on the result surface.
	objSign float64

	objective *Objective

	// numObjectives is the number of active objectives found during
	// validation.
	numObjectives int

	noDiscrete bool
}

// newWorkingModel validates the model and builds the solver's working copy.
func newWorkingModel(m *Model, cfg *Config) (*workingModel, error) {
	w := &workingModel{
		src:   m,
		nOrig: len(m.vars),
	}

	remap := make(map[*Variable]*Variable, len(m.vars))
	for _, v := range m.vars {
		if v.Integer && !v.Binary {
			return nil, errors.Wrapf(ErrIntegerVariables, "variable %s", v.Name)
		}
		if v.Name == epigraphVarName {
			return nil, errors.Wrapf(ErrReservedName, "variable %s", v.Name)
		}
		clone := *v
		w.vars = append(w.vars, &clone)
		remap[v] = &clone
	}

	copyLinear := func(src []*LinearConstraint) []*LinearConstraint {
		out := make([]*LinearConstraint, 0, len(src))
		for _, c := range src {
			clone := *c
			clone.Terms = make([]Term, len(c.Terms))
			for i, t := range c.Terms {
				clone.Terms[i] = Term{Coef: t.Coef, Var: remap[t.Var]}
			}
			out = append(out, &clone)
		}
		return out
	}
	copyNonlinear := func(src []*NonlinearConstraint) []*NonlinearConstraint {
		out := make([]*NonlinearConstraint, 0, len(src))
		for _, c := range src {
			clone := *c
			out = append(out, &clone)
		}
		return out
	}

	w.linear = copyLinear(m.linear)
	w.nonlinear = copyNonlinear(m.nonlinear)
	for _, dj := range m.disjunctions {
		wdj := &workDisjunction{}
		for _, d := range dj.disjuncts {
			wdj.disjuncts = append(wdj.disjuncts, &workDisjunct{
				src:       d,
				indicator: d.indicator.index,
				linear:    copyLinear(d.linear),
				nonlinear: copyNonlinear(d.nonlinear),
			})
		}
		w.disjunctions = append(w.disjunctions, wdj)
	}

	for _, v := range w.vars {
		if v.Binary {
			w.binaries = append(w.binaries, v.index)
		}
	}
	w.noDiscrete = len(w.binaries) == 0 && len(w.disjunctions) == 0

	if err := w.normalizeObjective(cfg); err != nil {
		return nil, err
	}
	return w, nil
}

// normalizeObjective locates the single active objective (substituting a
// constant dummy when there is none) and moves its expression into an
// epigraph constraint, leaving "minimize objSign * epigraphVar" as the
// internal objective. This keeps the objective compatible with the linear
// cuts generated from constraint duals.
func (w *workingModel) normalizeObjective(cfg *Config) error {
	var active []*Objective
	for _, o := range w.src.objectives {
		if !o.inactive {
			active = append(active, o)
		}
	}
	w.numObjectives = len(active)

	switch len(active) {
	case 0:
		cfg.Logger.Printf("gdp: model has no active objectives, adding dummy objective")
		w.objective = &Objective{
			Sense: Minimize,
			F:     func([]float64) float64 { return 1 },
			Grad:  func(_, _ []float64) {},
		}
	case 1:
		w.objective = active[0]
	default:
		return ErrMultipleObjectives
	}

	w.sense = w.objective.Sense
	w.objSign = 1
	if w.sense == Maximize {
		w.objSign = -1
	}

	epi := &Variable{
		Name:  epigraphVarName,
		Lower: -objectiveBound,
		Upper: objectiveBound,
		index: len(w.vars),
	}
	w.vars = append(w.vars, epi)
	w.epigraph = epi.index

	sign := w.objSign
	obj := w.objective
	w.nonlinear = append(w.nonlinear, &NonlinearConstraint{
		Name: epigraphVarName,
		F: func(x []float64) float64 {
			return sign*obj.F(x) - x[epi.index]
		},
		Grad: func(x, grad []float64) {
			obj.Grad(x, grad)
			if sign < 0 {
				for i := range grad {
					grad[i] = -grad[i]
				}
			}
			grad[epi.index] = -1
		},
	})
	return nil
}

// values returns the working variables' current values, epigraph included.
func (w *workingModel) values() []float64 {
	out := make([]float64, len(w.vars))
	for i, v := range w.vars {
		out[i] = v.Value
	}
	return out
}

// internalObjective evaluates the user objective at x in the internal
// minimize orientation.
func (w *workingModel) internalObjective(x []float64) float64 {
	return w.objSign * w.objective.F(x)
}

// findDisjunct maps a caller's disjunct to its working copy.
func (w *workingModel) findDisjunct(d *Disjunct) *workDisjunct {
	for _, dj := range w.disjunctions {
		for _, wd := range dj.disjuncts {
			if wd.src == d {
				return wd
			}
		}
	}
	return nil
}

// assignment extracts the discrete point from a full value vector.
func (w *workingModel) assignment(x []float64) []float64 {
	out := make([]float64, len(w.binaries))
	for i, idx := range w.binaries {
		out[i] = x[idx]
	}
	return out
}

// clampedBounds returns the variable box with infinite bounds replaced by
// the fallback, so the master relaxation is always a bounded problem.
func (w *workingModel) clampedBounds() (lo, hi []float64) {
	lo = make([]float64, len(w.vars))
	hi = make([]float64, len(w.vars))
	for i, v := range w.vars {
		lo[i], hi[i] = v.Lower, v.Upper
		if math.IsInf(lo[i], -1) {
			lo[i] = -unboundedFallback
		}
		if math.IsInf(hi[i], 1) {
			hi[i] = unboundedFallback
		}
	}
	return lo, hi
}

// copyBack writes the best found values into the working variables and the
// caller's original model. Values within the variable tolerance of a bound
// are snapped onto it.
func (w *workingModel) copyBack(best []float64, varTol float64) {
	for i, v := range w.vars {
		val := best[i]
		if val < v.Lower && val > v.Lower-varTol {
			val = v.Lower
		}
		if val > v.Upper && val < v.Upper+varTol {
			val = v.Upper
		}
		v.Value = val
		if i < w.nOrig {
			w.src.vars[i].Value = val
		}
	}
}
