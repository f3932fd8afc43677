package gdp

import (
	"github.com/pkg/errors"
)

// InitStrategy selects how the decomposition seeds its first linear cuts
// before the main iteration loop starts.
type InitStrategy int

const (
	// InitSetCovering solves a sequence of weighted masters so that every
	// disjunct is active in at least one evaluated discrete point.
	InitSetCovering InitStrategy = iota

	// InitMaxBinary evaluates the discrete point that activates as many
	// binaries as the linear relaxation allows.
	InitMaxBinary

	// InitFixedBinary evaluates the discrete point given by the binary
	// variables' current values.
	InitFixedBinary

	// InitCustomDisjuncts evaluates one discrete point per caller-supplied
	// disjunct selection.
	InitCustomDisjuncts
)

func (s InitStrategy) String() string {
	switch s {
	case InitSetCovering:
		return "set covering"
	case InitMaxBinary:
		return "max binary"
	case InitFixedBinary:
		return "fixed binary"
	case InitCustomDisjuncts:
		return "custom disjuncts"
	}
	return "unknown"
}

// initializeMaster seeds the master approximation with cuts from one or
// more subproblem solves. A strategy that finds no feasible point is not an
// error: the main loop still runs on whatever cuts were generated.
func (st *solveState) initializeMaster() error {
	if st.work.noDiscrete {
		// no discrete structure to seed; the main loop settles the problem
		// in a single pass.
		return nil
	}
	st.cfg.logf("gdp: initialization strategy: %v", st.cfg.InitStrategy)
	switch st.cfg.InitStrategy {
	case InitSetCovering:
		return st.initSetCovering()
	case InitMaxBinary:
		return st.initMaxBinary()
	case InitFixedBinary:
		return st.initFixedBinary()
	case InitCustomDisjuncts:
		return st.initCustomDisjuncts()
	}
	return errors.Errorf("initialize: unknown strategy %d", st.cfg.InitStrategy)
}

// initSetCovering repeatedly solves a master whose objective rewards
// activating disjuncts not yet seen in a feasible subproblem, until every
// disjunct is covered or the covering iteration limit runs out.
func (st *solveState) initSetCovering() error {
	w := st.work
	total := 0
	for _, dj := range w.disjunctions {
		total += len(dj.disjuncts)
	}
	if total == 0 {
		// nothing to cover; fall back to a single seed solve.
		return st.initMaxBinary()
	}

	covered := map[int]bool{} // by indicator variable index
	for iter := 0; iter < st.cfg.SetCoverIterLim; iter++ {
		obj := make([]float64, len(w.vars))
		for _, dj := range w.disjunctions {
			for _, d := range dj.disjuncts {
				if !covered[d.indicator] {
					obj[d.indicator] = -1
				}
			}
		}

		res, err := st.solveMaster(masterSpec{objective: obj})
		if err != nil {
			return err
		}
		if res.status == StatusInfeasible {
			// exclusion cuts left no uncovered selection; the main loop
			// decides what that means for the overall problem.
			st.cfg.logf("gdp: set covering master infeasible after %d rounds", iter)
			return nil
		}

		feasible, _, err := st.evaluateAssignment(res.assignment, res.x)
		if err != nil {
			return err
		}
		if feasible {
			for _, dj := range w.disjunctions {
				for _, d := range dj.disjuncts {
					if res.x[d.indicator] >= 0.5 {
						covered[d.indicator] = true
					}
				}
			}
			if len(covered) == total {
				return nil
			}
		}
	}
	st.cfg.logf("gdp: set covering iteration limit reached with %d disjuncts uncovered", total-len(covered))
	return nil
}

// initMaxBinary seeds from the discrete point that maximizes the number of
// active binaries over the linear relaxation.
func (st *solveState) initMaxBinary() error {
	w := st.work
	obj := make([]float64, len(w.vars))
	for _, idx := range w.binaries {
		obj[idx] = -1
	}

	res, err := st.solveMaster(masterSpec{objective: obj})
	if err != nil {
		return err
	}
	if res.status == StatusInfeasible {
		st.cfg.logf("gdp: max binary master infeasible")
		return nil
	}
	_, _, err = st.evaluateAssignment(res.assignment, res.x)
	return err
}

// initFixedBinary seeds from the binary variables' current values.
func (st *solveState) initFixedBinary() error {
	w := st.work
	assignment := make([]float64, len(w.binaries))
	for i, idx := range w.binaries {
		assignment[i] = w.vars[idx].Value
	}
	_, _, err := st.evaluateAssignment(assignment, nil)
	return err
}

// initCustomDisjuncts seeds from caller-chosen disjunct selections. Each
// selection pins its indicators to 1 in a master solve; the exactly-one
// rows then settle the remaining indicators.
func (st *solveState) initCustomDisjuncts() error {
	w := st.work
	for i, selection := range st.cfg.CustomInitDisjuncts {
		fixed := map[int]float64{}
		for _, d := range selection {
			wd := w.findDisjunct(d)
			if wd == nil {
				return errors.Errorf("initialize: custom disjunct set %d references a disjunct not in the model", i)
			}
			fixed[wd.indicator] = 1
		}

		res, err := st.solveMaster(masterSpec{fixed: fixed})
		if err != nil {
			return err
		}
		if res.status == StatusInfeasible {
			st.cfg.logf("gdp: custom disjunct set %d has no feasible relaxation, skipping", i)
			continue
		}
		if _, _, err := st.evaluateAssignment(res.assignment, res.x); err != nil {
			return err
		}
	}
	return nil
}
