package gdp

import (
	"math"

	"github.com/pkg/errors"
)

// subproblemConstraint is one active nonlinear constraint of a fixed
// subproblem, tagged with its owning disjunct (nil for globals). The cut
// generator linearizes these, aligned with the returned duals.
type subproblemConstraint struct {
	f        func(x []float64) float64
	grad     func(x, grad []float64)
	disjunct *workDisjunct
}

// nlpOutcome is what the iteration loop consumes from a subproblem solve.
// Subproblem infeasibility is not an error: feasible is false, duals are
// absent, and the caller still records an integer cut for the assignment.
type nlpOutcome struct {
	feasible bool
	x        []float64

	// objective is the user objective at x in the internal minimize
	// orientation. Only meaningful when feasible.
	objective float64

	duals []float64
	cons  []subproblemConstraint
}

// snapAssignment rounds a master assignment onto exact binary values.
// Values within the integer tolerance of 0 or 1 are snapped when rounding
// is enabled; anything else fails the run with ErrNonIntegralBinary.
func (st *solveState) snapAssignment(assignment []float64) ([]float64, error) {
	w := st.work
	tol := st.cfg.IntegerTolerance
	out := make([]float64, len(assignment))
	for i, val := range assignment {
		var snapped float64
		switch {
		case math.Abs(val) <= tol:
			snapped = 0
		case math.Abs(val-1) <= tol:
			snapped = 1
		default:
			return nil, errors.Wrapf(ErrNonIntegralBinary,
				"binary variable %s value %g (tolerance %g)", w.vars[w.binaries[i]].Name, val, tol)
		}
		if snapped != val && !st.cfg.RoundNLPBinaries {
			return nil, errors.Wrapf(ErrNonIntegralBinary,
				"binary variable %s value %g and rounding is disabled", w.vars[w.binaries[i]].Name, val)
		}
		out[i] = snapped
	}
	return out, nil
}

// solveSubproblem fixes the binaries per the assignment, keeps only the
// selected disjuncts' constraints, and hands the resulting continuous NLP
// to the configured backend.
func (st *solveState) solveSubproblem(assignment, masterX []float64) (nlpOutcome, error) {
	w := st.work
	snapped, err := st.snapAssignment(assignment)
	if err != nil {
		return nlpOutcome{}, err
	}

	lower := make([]float64, len(w.vars))
	upper := make([]float64, len(w.vars))
	for i, v := range w.vars {
		lower[i], upper[i] = v.Lower, v.Upper
	}
	for i, idx := range w.binaries {
		lower[idx], upper[idx] = snapped[i], snapped[i]
	}

	// start from the master solution when available, else the current
	// working values.
	x0 := make([]float64, len(w.vars))
	if masterX != nil {
		copy(x0, masterX)
	} else {
		copy(x0, w.values())
	}
	for i, idx := range w.binaries {
		x0[idx] = snapped[i]
	}

	active := make(map[int]bool, len(w.binaries))
	for i, idx := range w.binaries {
		active[idx] = snapped[i] == 1
	}

	// nonlinear constraints first: the returned duals for this prefix feed
	// the cut generator.
	var cons []subproblemConstraint
	for _, nc := range w.nonlinear {
		if nc.inactive {
			continue
		}
		cons = append(cons, subproblemConstraint{f: nc.F, grad: nc.Grad})
	}
	for _, dj := range w.disjunctions {
		for _, d := range dj.disjuncts {
			if !active[d.indicator] {
				continue
			}
			for _, nc := range d.nonlinear {
				if nc.inactive {
					continue
				}
				cons = append(cons, subproblemConstraint{f: nc.F, grad: nc.Grad, disjunct: d})
			}
		}
	}
	nNonlinear := len(cons)

	// linear constraints of the fixed problem ride along as plain
	// inequalities; they need no duals because the master already carries
	// them exactly.
	appendLinear := func(lc *LinearConstraint) {
		if lc.inactive {
			return
		}
		terms := lc.Terms
		rhs := lc.RHS
		cons = append(cons, subproblemConstraint{
			f: func(x []float64) float64 {
				s := -rhs
				for _, t := range terms {
					s += t.Coef * x[t.Var.index]
				}
				return s
			},
			grad: func(_, grad []float64) {
				for _, t := range terms {
					grad[t.Var.index] += t.Coef
				}
			},
		})
		if lc.Equality {
			cons = append(cons, subproblemConstraint{
				f: func(x []float64) float64 {
					s := rhs
					for _, t := range terms {
						s -= t.Coef * x[t.Var.index]
					}
					return s
				},
				grad: func(_, grad []float64) {
					for _, t := range terms {
						grad[t.Var.index] -= t.Coef
					}
				},
			})
		}
	}
	for _, lc := range w.linear {
		appendLinear(lc)
	}
	for _, dj := range w.disjunctions {
		for _, d := range dj.disjuncts {
			if active[d.indicator] {
				for _, lc := range d.linear {
					appendLinear(lc)
				}
			}
		}
	}

	nlpCons := make([]nlpConstraint, len(cons))
	for i, c := range cons {
		nlpCons[i] = nlpConstraint{f: c.f, grad: c.grad}
	}

	epi := w.epigraph
	x0[epi] = w.internalObjective(x0)
	prob := nlpProblem{
		x0:        x0,
		lower:     lower,
		upper:     upper,
		objective: func(x []float64) float64 { return x[epi] },
		objectiveGrad: func(_, grad []float64) {
			grad[epi] = 1
		},
		cons: nlpCons,
	}

	st.nlpIteration++
	sol, err := st.cfg.NLPBackend.SolveNLP(prob, st.cfg.NLPOptions)
	if err != nil {
		return nlpOutcome{}, errors.Wrap(err, "subproblem")
	}

	switch sol.status {
	case StatusOptimal:
		duals := make([]float64, nNonlinear)
		copy(duals, sol.duals)
		return nlpOutcome{
			feasible:  true,
			x:         sol.x,
			objective: w.internalObjective(sol.x),
			duals:     duals,
			cons:      cons[:nNonlinear],
		}, nil
	case StatusInfeasible:
		return nlpOutcome{feasible: false, x: sol.x}, nil
	default:
		return nlpOutcome{}, errors.Errorf("subproblem: NLP backend returned status %v", sol.status)
	}
}
