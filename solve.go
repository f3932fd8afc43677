package gdp

import (
	"math"
)

// TerminationStatus describes how a solve ended.
type TerminationStatus string

const (
	// Converged: the bound gap closed within the bound tolerance, or the
	// discrete search space was exhausted with a feasible solution in hand.
	Converged TerminationStatus = "converged"

	// StalledOut: the configured number of consecutive master iterations
	// passed without improvement of the best feasible solution.
	StalledOut TerminationStatus = "stalled out"

	// IterationLimitReached: the master iteration limit was hit first.
	IterationLimitReached TerminationStatus = "iteration limit reached"

	// Infeasible: no feasible discrete point remains and no feasible
	// solution was ever found.
	Infeasible TerminationStatus = "infeasible"
)

// IterationRecord is the per-iteration snapshot kept for diagnostics.
type IterationRecord struct {
	LB       float64
	UB       float64
	Feasible bool
}

// Result is the outcome of a solve. Bounds and objective are reported in
// the model's own objective sense; internally the algorithm works on a
// minimize-equivalent problem and mirrors the bounds back here.
type Result struct {
	Status TerminationStatus

	LowerBound float64
	UpperBound float64

	// Objective is the best feasible objective found; NaN when none was.
	Objective float64

	// X holds the best solution's variable values in declaration order.
	// It is also copied back into the model's variables.
	X []float64

	Sense Sense

	// Objectives is the number of active objectives found during
	// validation.
	Objectives int

	// Iterations is the number of master iterations run.
	Iterations int

	Log map[int]IterationRecord
}

// solveState is the single mutable record threading through one solve call.
// It is owned exclusively by that call; cuts and bounds never survive into
// the next one.
type solveState struct {
	work *workingModel
	cfg  *Config

	masterIteration int
	mipIteration    int
	nlpIteration    int

	// bounds on the internal minimize-equivalent objective: lb from master
	// relaxations, ub from feasible subproblems. lb never decreases and ub
	// never increases within a run.
	lb, ub float64

	best          []float64
	bestObjective float64
	haveBest      bool

	// nonImproving counts consecutive master iterations without a strict
	// improvement of the best feasible solution.
	nonImproving int

	iterationLog map[int]IterationRecord

	pools cutPools
}

// Solve runs the outer-approximation decomposition on the model and writes
// the best solution found back into the model's variable values.
func (m *Model) Solve(cfg Config) (*Result, error) {
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	work, err := newWorkingModel(m, &cfg)
	if err != nil {
		return nil, err
	}

	// with no discrete decisions there is nothing to re-explore, so the
	// no-backtracking pool stays off regardless of configuration.
	st := &solveState{
		work:          work,
		cfg:           &cfg,
		lb:            math.Inf(-1),
		ub:            math.Inf(1),
		bestObjective: math.NaN(),
		iterationLog:  map[int]IterationRecord{},
		pools:         newCutPools(cfg.NoBacktracking && !work.noDiscrete),
	}
	if work.noDiscrete {
		cfg.logf("gdp: problem has no discrete decisions")
	}

	cfg.logf("gdp: starting initialization")
	if err := st.initializeMaster(); err != nil {
		return nil, err
	}

	status, err := st.iterationLoop()
	if err != nil {
		return nil, err
	}

	if st.haveBest {
		st.work.copyBack(st.best, cfg.VariableTolerance)
	}
	cfg.logf("gdp: finished, status %q, bounds [%g, %g]", status, st.lb, st.ub)
	return st.result(status), nil
}

// iterationLoop drives master solve -> termination check -> subproblem
// solve -> cut generation -> termination check until a terminal state.
func (st *solveState) iterationLoop() (TerminationStatus, error) {
	cfg := st.cfg

	// initialization may already have closed the gap.
	if status, done := st.checkTermination(); done {
		return status, nil
	}

	for st.masterIteration < cfg.IterLim {
		st.masterIteration++
		st.mipIteration = 0
		st.nlpIteration = 0
		cfg.logf("gdp: master iteration %d", st.masterIteration)

		res, err := st.solveMaster(masterSpec{})
		if err != nil {
			return "", err
		}
		if res.status == StatusInfeasible {
			// the discrete search space is exhausted. Whatever we found is
			// final: with a feasible solution in hand the gap closes, and
			// without one the problem has no solution.
			if st.haveBest {
				st.lb = st.ub
				st.logIteration(false)
				return Converged, nil
			}
			st.logIteration(false)
			return Infeasible, nil
		}

		if res.objective > st.lb {
			st.lb = res.objective
		}
		if cfg.OnMasterSolved != nil {
			cfg.OnMasterSolved(st.masterIteration, res.objective, res.assignment)
		}
		if status, done := st.checkTermination(); done {
			st.logIteration(false)
			return status, nil
		}

		feasible, improved, err := st.evaluateAssignment(res.assignment, res.x)
		if err != nil {
			return "", err
		}
		if improved {
			st.nonImproving = 0
		} else {
			st.nonImproving++
		}
		st.logIteration(feasible)

		if status, done := st.checkTermination(); done {
			return status, nil
		}
	}
	return IterationLimitReached, nil
}

// evaluateAssignment solves the subproblem at a discrete point, updates the
// incumbent and upper bound, and records the resulting cuts. It is shared
// by the main loop and the initialization strategies.
func (st *solveState) evaluateAssignment(assignment, masterX []float64) (feasible, improved bool, err error) {
	cfg := st.cfg
	if cfg.BeforeSubproblemSolve != nil {
		cfg.BeforeSubproblemSolve(st.masterIteration, assignment)
	}

	out, err := st.solveSubproblem(assignment, masterX)
	if err != nil {
		return false, false, err
	}
	if cfg.AfterSubproblemSolve != nil {
		cfg.AfterSubproblemSolve(st.masterIteration, out.feasible, out.x)
	}

	if out.feasible {
		cfg.logf("gdp: subproblem feasible, objective %g", out.objective)
		if out.objective < st.ub {
			improved = st.ub-out.objective > cfg.BoundTolerance
			st.ub = out.objective
			st.best = append([]float64{}, out.x...)
			st.bestObjective = out.objective
			st.haveBest = true
		}
		if st.work.noDiscrete && out.objective > st.lb {
			// the subproblem was the whole problem; its solution is final.
			st.lb = out.objective
		}
		st.addOACuts(out)
		if cfg.AfterSubproblemFeasible != nil {
			cfg.AfterSubproblemFeasible(st.masterIteration, out.objective, out.x)
		}
	} else {
		cfg.logf("gdp: subproblem infeasible at assignment %v", assignment)
	}

	// feasible or not, the assignment is now explored.
	st.addIntegerCut(assignment, out.feasible)
	return out.feasible, improved, nil
}

// checkTermination is the termination predicate, evaluated after the master
// solve and again after cut generation.
func (st *solveState) checkTermination() (TerminationStatus, bool) {
	if st.ub-st.lb <= st.cfg.BoundTolerance {
		return Converged, true
	}
	if st.nonImproving >= st.cfg.AlgorithmStallAfter {
		return StalledOut, true
	}
	return "", false
}

// logIteration writes the current iteration's snapshot, once.
func (st *solveState) logIteration(feasible bool) {
	if _, ok := st.iterationLog[st.masterIteration]; ok {
		return
	}
	st.iterationLog[st.masterIteration] = IterationRecord{LB: st.lb, UB: st.ub, Feasible: feasible}
}

func (st *solveState) result(status TerminationStatus) *Result {
	r := &Result{
		Status:     status,
		Sense:      st.work.sense,
		Objectives: st.work.numObjectives,
		Iterations: st.masterIteration,
		Log:        st.iterationLog,
		Objective:  math.NaN(),
	}
	if st.work.sense == Minimize {
		r.LowerBound, r.UpperBound = st.lb, st.ub
	} else {
		r.LowerBound, r.UpperBound = -st.ub, -st.lb
	}
	if st.haveBest {
		r.Objective = st.work.objSign * st.bestObjective
		r.X = append([]float64{}, st.best[:st.work.nOrig]...)
	}
	return r
}
