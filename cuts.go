package gdp

import (
	"math"
	"strconv"
	"strings"
)

// oaCut is a linear outer approximation of one active nonlinear constraint,
// taken at an NLP solution:
//
//	coefs . x <= rhs (+ slack, relaxed by big-M when the source constraint
//	lives inside a disjunct)
//
// Cuts are valid outer approximations only for convex constraints; for
// nonconvex regions the relaxation may cut into the feasible set and the
// resulting bounds are best-effort.
type oaCut struct {
	// master iteration that produced the cut (0 for initialization).
	iteration int

	coefs []float64
	rhs   float64

	// disjunct is non-nil when the linearized constraint belongs to a
	// disjunct; the master then enforces the cut only while that disjunct
	// is selected.
	disjunct *workDisjunct
}

// integerCut excludes one discrete assignment, recorded as rounded bits over
// the model's binaries in order.
type integerCut struct {
	iteration int
	bits      []int
}

// cutPools holds the accumulated cuts of a run. All pools are append-only:
// the master relaxation only ever tightens.
type cutPools struct {
	oa             []oaCut
	integer        []integerCut
	noBacktracking []integerCut

	noBacktrackingActive bool

	seen   map[string]bool
	nbSeen map[string]bool
}

func newCutPools(active bool) cutPools {
	return cutPools{
		noBacktrackingActive: active,
		seen:                 map[string]bool{},
		nbSeen:               map[string]bool{},
	}
}

// assignmentBits rounds a discrete assignment to exact bits. The caller
// must have verified integrality beforehand.
func assignmentBits(assignment []float64) []int {
	bits := make([]int, len(assignment))
	for i, v := range assignment {
		if v >= 0.5 {
			bits[i] = 1
		}
	}
	return bits
}

// assignmentKey is the dictionary key of a discrete assignment: two
// assignments are equal iff every binary component matches after rounding.
func assignmentKey(bits []int) string {
	var sb strings.Builder
	for _, b := range bits {
		sb.WriteString(strconv.Itoa(b))
	}
	return sb.String()
}

// addOACuts linearizes every active nonlinear constraint of the solved
// subproblem at its solution, using the constraint duals to select which
// linearizations matter. Duals below the small-dual tolerance are dropped:
// multiplying a near-zero dual into a cut invites numerical trouble for no
// tightening in return.
func (st *solveState) addOACuts(out nlpOutcome) {
	n := len(st.work.vars)
	for i, c := range out.cons {
		if math.Abs(out.duals[i]) < st.cfg.SmallDualTolerance {
			continue
		}
		g := c.f(out.x)
		grad := make([]float64, n)
		c.grad(out.x, grad)

		// first-order expansion: g(x*) + grad . (x - x*) <= 0
		rhs := -g
		for j, d := range grad {
			rhs += d * out.x[j]
		}
		st.pools.oa = append(st.pools.oa, oaCut{
			iteration: st.masterIteration,
			coefs:     grad,
			rhs:       rhs,
			disjunct:  c.disjunct,
		})
	}
}

// addIntegerCut records a cut excluding the given assignment from all
// subsequent master solves. Feasible points additionally land in the
// no-backtracking pool when that pool is active, keeping them out of any
// later search phase that rebuilds its cut set.
func (st *solveState) addIntegerCut(assignment []float64, feasible bool) {
	bits := assignmentBits(assignment)
	key := assignmentKey(bits)

	if !st.pools.seen[key] {
		st.pools.seen[key] = true
		st.pools.integer = append(st.pools.integer, integerCut{
			iteration: st.masterIteration,
			bits:      bits,
		})
	}

	if feasible && st.pools.noBacktrackingActive && !st.pools.nbSeen[key] {
		st.pools.nbSeen[key] = true
		st.pools.noBacktracking = append(st.pools.noBacktracking, integerCut{
			iteration: st.masterIteration,
			bits:      bits,
		})
	}
}
