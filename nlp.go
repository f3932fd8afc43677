package gdp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

// nlpConstraint is an inequality g(x) <= 0 over the full variable vector.
type nlpConstraint struct {
	f    func(x []float64) float64
	grad func(x, grad []float64)
}

// nlpProblem is a continuous nonlinear program with box bounds. Variables
// with lower == upper are fixed and excluded from the search.
type nlpProblem struct {
	x0            []float64
	lower, upper  []float64
	objective     func(x []float64) float64
	objectiveGrad func(x, grad []float64)
	cons          []nlpConstraint
}

// nlpSolution carries the solve outcome. duals holds one multiplier per
// constraint in nlpProblem.cons, in the same order; it is nil unless the
// status is optimal.
type nlpSolution struct {
	status SolveStatus
	x      []float64
	duals  []float64
}

// NLPBackend solves continuous nonlinear programs. A solve either returns a
// definite status or an error; there are no partial results.
type NLPBackend interface {
	SolveNLP(p nlpProblem, opts SolverOptions) (nlpSolution, error)
}

// augLagBackend is the bundled NLP backend: an augmented Lagrangian method
// with LBFGS inner minimizations. Constraint multipliers converge to the
// KKT multipliers on convex problems, which is exactly what the cut
// generator consumes as duals.
type augLagBackend struct{}

const (
	augLagOuterDefault = 60
	augLagFeasDefault  = 1e-6
	augLagRhoInit      = 10.0
	augLagRhoMax       = 1e9
)

func (augLagBackend) SolveNLP(p nlpProblem, opts SolverOptions) (nlpSolution, error) {
	n := len(p.x0)
	if len(p.lower) != n || len(p.upper) != n {
		return nlpSolution{}, errors.New("auglag: bound vectors are not same length as x0")
	}

	feasTol := opts.Tolerance
	if feasTol == 0 {
		feasTol = augLagFeasDefault
	}
	maxOuter := opts.MaxIterations
	if maxOuter == 0 {
		maxOuter = augLagOuterDefault
	}

	// free variables enter the search; fixed ones stay pinned at their bound.
	var free []int
	for i := 0; i < n; i++ {
		if p.upper[i] > p.lower[i] {
			free = append(free, i)
		} else {
			p.x0[i] = p.lower[i]
		}
	}

	// bound inequalities for the free variables join the constraint set so
	// one multiplier scheme covers everything. Their multipliers are not
	// reported.
	cons := make([]nlpConstraint, len(p.cons))
	copy(cons, p.cons)
	for _, idx := range free {
		i := idx
		if !math.IsInf(p.lower[i], -1) {
			lo := p.lower[i]
			cons = append(cons, nlpConstraint{
				f:    func(x []float64) float64 { return lo - x[i] },
				grad: func(_, grad []float64) { grad[i] -= 1 },
			})
		}
		if !math.IsInf(p.upper[i], 1) {
			hi := p.upper[i]
			cons = append(cons, nlpConstraint{
				f:    func(x []float64) float64 { return x[i] - hi },
				grad: func(_, grad []float64) { grad[i] += 1 },
			})
		}
	}

	x := append([]float64{}, p.x0...)
	if len(free) == 0 {
		// nothing to optimize; just report feasibility of the pinned point.
		if maxViolation(cons, x) > feasTol {
			return nlpSolution{status: StatusInfeasible, x: x}, nil
		}
		return nlpSolution{status: StatusOptimal, x: x, duals: make([]float64, len(p.cons))}, nil
	}

	lambda := make([]float64, len(cons))
	rho := augLagRhoInit
	prevViol := math.Inf(1)

	fullGrad := make([]float64, n)
	evalL := func(z []float64) float64 {
		writeFree(x, free, z)
		l := p.objective(x)
		for j, c := range cons {
			if t := c.f(x) + lambda[j]/rho; t > 0 {
				l += 0.5 * rho * t * t
			}
			l -= lambda[j] * lambda[j] / (2 * rho)
		}
		return l
	}
	evalGradL := func(grad, z []float64) {
		writeFree(x, free, z)
		for i := range fullGrad {
			fullGrad[i] = 0
		}
		p.objectiveGrad(x, fullGrad)
		for j, c := range cons {
			if t := c.f(x) + lambda[j]/rho; t > 0 {
				gj := make([]float64, n)
				c.grad(x, gj)
				for i := range fullGrad {
					fullGrad[i] += rho * t * gj[i]
				}
			}
		}
		for k, idx := range free {
			grad[k] = fullGrad[idx]
		}
	}

	z := make([]float64, len(free))
	for k, idx := range free {
		z[k] = math.Min(math.Max(x[idx], p.lower[idx]), p.upper[idx])
	}

	var xPrev []float64
	for outer := 0; outer < maxOuter; outer++ {
		problem := optimize.Problem{Func: evalL, Grad: evalGradL}
		settings := &optimize.Settings{GradientThreshold: 1e-10}
		result, err := optimize.Minimize(problem, z, settings, &optimize.LBFGS{})
		if result == nil {
			return nlpSolution{status: StatusFailed}, errors.Wrap(err, "auglag: inner minimization")
		}
		copy(z, result.X)
		writeFree(x, free, z)

		viol := 0.0
		for j, c := range cons {
			g := c.f(x)
			lambda[j] = math.Max(0, lambda[j]+rho*g)
			if g > viol {
				viol = g
			}
		}

		if viol <= feasTol && xPrev != nil && maxAbsDiff(x, xPrev) <= 1e-9 {
			return nlpSolution{status: StatusOptimal, x: x, duals: append([]float64{}, lambda[:len(p.cons)]...)}, nil
		}
		xPrev = append(xPrev[:0], x...)

		// tighten the penalty when infeasibility is not shrinking fast
		// enough.
		if viol > 0.25*prevViol && rho < augLagRhoMax {
			rho *= 10
		}
		prevViol = viol
	}

	if maxViolation(cons, x) <= feasTol {
		return nlpSolution{status: StatusOptimal, x: x, duals: append([]float64{}, lambda[:len(p.cons)]...)}, nil
	}
	return nlpSolution{status: StatusInfeasible, x: x}, nil
}

func writeFree(x []float64, free []int, z []float64) {
	for k, idx := range free {
		x[idx] = z[k]
	}
}

func maxViolation(cons []nlpConstraint, x []float64) float64 {
	viol := 0.0
	for _, c := range cons {
		if g := c.f(x); g > viol {
			viol = g
		}
	}
	return viol
}

func maxAbsDiff(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		if v := math.Abs(a[i] - b[i]); v > d {
			d = v
		}
	}
	return d
}
