package gdp

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// masterResult is the outcome of one master MILP solve.
type masterResult struct {
	status SolveStatus

	// x holds the working-variable values (slacks stripped).
	x []float64

	// objective is the master objective estimate, a candidate bound.
	objective float64

	// assignment is the discrete point, unsnapped.
	assignment []float64
}

// masterSpec customizes a master assembly. The zero value is the regular
// relaxation: minimize the epigraph variable plus the OA slack penalty.
type masterSpec struct {
	// objective, when non-nil, replaces the epigraph objective with
	// minimize objective . x over the working variables. Used by the
	// initialization strategies.
	objective []float64

	// fixed pins indicator variables to a value (by variable index).
	fixed map[int]float64
}

// assembled is a master problem in backend matrix form, plus what is needed
// to map a backend solution back onto the working variables.
type assembled struct {
	milp  milpProblem
	shift []float64 // lower bound of each master variable
	nVars int       // working variables; the remainder are OA slacks
	c     []float64 // objective in unshifted space
}

// rowBuilder accumulates constraint rows over the master variables.
type rowBuilder struct {
	n            int
	eqRows, gRows [][]float64
	b, h          []float64
}

func (rb *rowBuilder) row() []float64 { return make([]float64, rb.n) }

func (rb *rowBuilder) addEq(coefs []float64, rhs float64) {
	rb.eqRows = append(rb.eqRows, coefs)
	rb.b = append(rb.b, rhs)
}

func (rb *rowBuilder) addLe(coefs []float64, rhs float64) {
	rb.gRows = append(rb.gRows, coefs)
	rb.h = append(rb.h, rhs)
}

// assembleMaster builds the current MILP relaxation: the original linear
// constraints, the big-M'd disjunct constraints, and every accumulated cut.
func (st *solveState) assembleMaster(spec masterSpec) assembled {
	w := st.work
	lo, hi := w.clampedBounds()

	nVars := len(w.vars)
	nSlack := len(st.pools.oa)
	n := nVars + nSlack

	lower := make([]float64, n)
	upper := make([]float64, n)
	copy(lower, lo)
	copy(upper, hi)
	for _, idx := range w.binaries {
		lower[idx], upper[idx] = 0, 1
	}
	for idx, val := range spec.fixed {
		lower[idx], upper[idx] = val, val
	}
	for k := 0; k < nSlack; k++ {
		lower[nVars+k], upper[nVars+k] = 0, st.cfg.MaxSlack
	}

	// objective: minimize the epigraph value, penalizing OA slack usage.
	c := make([]float64, n)
	if spec.objective != nil {
		copy(c, spec.objective)
	} else {
		c[w.epigraph] = 1
		for k := 0; k < nSlack; k++ {
			c[nVars+k] = st.cfg.OAPenaltyFactor
		}
	}

	rb := &rowBuilder{n: n}

	linearRow := func(lc *LinearConstraint) []float64 {
		row := rb.row()
		for _, t := range lc.Terms {
			row[t.Var.index] += t.Coef
		}
		return row
	}

	// big-M bound on how far a row can exceed its right side within the box.
	bigM := func(row []float64, rhs float64) float64 {
		m := -rhs
		for j := 0; j < nVars; j++ {
			if row[j] > 0 {
				m += row[j] * upper[j]
			} else {
				m += row[j] * lower[j]
			}
		}
		if m < 0 {
			return 0
		}
		return m
	}

	// original linear constraints.
	for _, lc := range w.linear {
		if lc.inactive {
			continue
		}
		if lc.Equality {
			rb.addEq(linearRow(lc), lc.RHS)
		} else {
			rb.addLe(linearRow(lc), lc.RHS)
		}
	}

	// exactly one disjunct per disjunction, and each disjunct's linear
	// constraints under big-M relaxation.
	for _, dj := range w.disjunctions {
		sel := rb.row()
		for _, d := range dj.disjuncts {
			sel[d.indicator] = 1
		}
		rb.addEq(sel, 1)

		for _, d := range dj.disjuncts {
			for _, lc := range d.linear {
				if lc.inactive {
					continue
				}
				base := linearRow(lc)
				rows := [][]float64{base}
				rhss := []float64{lc.RHS}
				if lc.Equality {
					neg := rb.row()
					for j := range base {
						neg[j] = -base[j]
					}
					rows = append(rows, neg)
					rhss = append(rhss, -lc.RHS)
				}
				for i, row := range rows {
					m := bigM(row, rhss[i])
					row[d.indicator] += m
					rb.addLe(row, rhss[i]+m)
				}
			}
		}
	}

	// outer approximation cuts, one slack each.
	for k, cut := range st.pools.oa {
		row := rb.row()
		copy(row, cut.coefs)
		row[nVars+k] = -1
		rhs := cut.rhs
		if cut.disjunct != nil {
			m := bigM(row, rhs)
			row[cut.disjunct.indicator] += m
			rhs += m
		}
		rb.addLe(row, rhs)
	}

	// integer cuts and, when active, the no-backtracking set.
	addExclusion := func(cut integerCut) {
		row := rb.row()
		ones := 0
		for i, idx := range w.binaries {
			if cut.bits[i] == 1 {
				row[idx] = 1
				ones++
			} else {
				row[idx] = -1
			}
		}
		rb.addLe(row, float64(ones-1))
	}
	for _, cut := range st.pools.integer {
		addExclusion(cut)
	}
	if st.pools.noBacktrackingActive {
		for _, cut := range st.pools.noBacktracking {
			addExclusion(cut)
		}
	}

	// upper bound rows keep the shifted variables inside their box.
	for j := 0; j < n; j++ {
		row := rb.row()
		row[j] = 1
		rb.addLe(row, upper[j])
	}

	// shift to x' = x - lower so the backend sees nonnegative variables.
	shiftRows := func(rows [][]float64, rhs []float64) {
		for i, row := range rows {
			rhs[i] -= floats.Dot(row, lower)
		}
	}
	shiftRows(rb.eqRows, rb.b)
	shiftRows(rb.gRows, rb.h)

	integrality := make([]bool, n)
	for _, idx := range w.binaries {
		integrality[idx] = true
	}

	p := milpProblem{
		c:           c,
		G:           denseFromRows(rb.gRows, n),
		h:           rb.h,
		integrality: integrality,
	}
	if len(rb.eqRows) > 0 {
		p.A = denseFromRows(rb.eqRows, n)
		p.b = rb.b
	}
	return assembled{milp: p, shift: lower, nVars: nVars, c: c}
}

func denseFromRows(rows [][]float64, n int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	data := make([]float64, 0, len(rows)*n)
	for _, row := range rows {
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), n, data)
}

// solveMaster assembles and solves the MILP relaxation and maps the
// solution back to the working variables. An infeasible master is not an
// error: it signals that no unexplored discrete point remains.
func (st *solveState) solveMaster(spec masterSpec) (masterResult, error) {
	asm := st.assembleMaster(spec)
	st.mipIteration++

	sol, err := st.cfg.MIPBackend.SolveMILP(asm.milp, st.cfg.MIPOptions)
	if err != nil {
		return masterResult{}, errors.Wrap(err, "master problem")
	}
	switch sol.status {
	case StatusOptimal:
	case StatusInfeasible:
		return masterResult{status: StatusInfeasible}, nil
	default:
		return masterResult{}, errors.Errorf("master problem: MIP backend returned status %v", sol.status)
	}

	full := make([]float64, len(asm.c))
	for j := range full {
		full[j] = sol.x[j] + asm.shift[j]
	}
	x := full[:asm.nVars]
	return masterResult{
		status:     StatusOptimal,
		x:          x,
		objective:  floats.Dot(asm.c, full),
		assignment: st.work.assignment(x),
	}, nil
}
