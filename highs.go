//go:build highs

package gdp

import (
	"github.com/lanl/highs"
	"github.com/pkg/errors"
)

func init() {
	RegisterMIPBackend("highs", highsBackend{})
}

// highsBackend solves the master problems with HiGHS through its cgo
// bindings. It is only compiled in under the "highs" build tag so the
// default build stays pure Go.
type highsBackend struct{}

func (highsBackend) SolveMILP(p milpProblem, opts SolverOptions) (milpSolution, error) {
	if len(p.integrality) != len(p.c) {
		return milpSolution{}, errors.New("highs: integrality vector is not same length as vector c")
	}
	if insane := sanityCheckDimensions(p.c, p.A, p.b, p.G, p.h); insane != nil {
		return milpSolution{}, errors.Wrap(insane, "highs")
	}

	n := len(p.c)
	model := new(highs.Model)
	model.ColCosts = append([]float64{}, p.c...)
	model.ColLower = make([]float64, n)
	model.ColUpper = make([]float64, n)
	model.VarTypes = make([]highs.VariableType, n)
	for j := 0; j < n; j++ {
		// the engine hands over problems in x >= 0 form; upper bounds
		// arrive as inequality rows.
		model.ColUpper[j] = 1e30
		if p.integrality[j] {
			model.VarTypes[j] = highs.IntegerType
		}
	}

	if p.A != nil {
		rows, _ := p.A.Dims()
		for i := 0; i < rows; i++ {
			model.AddDenseRow(p.b[i], p.A.RawRowView(i), p.b[i])
		}
	}
	if p.G != nil {
		rows, _ := p.G.Dims()
		for i := 0; i < rows; i++ {
			model.AddDenseRow(-1e30, p.G.RawRowView(i), p.h[i])
		}
	}

	sol, err := model.Solve()
	if err != nil {
		return milpSolution{status: StatusFailed}, errors.Wrap(err, "highs: solve")
	}
	switch sol.Status {
	case highs.Optimal:
		return milpSolution{
			status: StatusOptimal,
			x:      append([]float64{}, sol.ColumnPrimal[:n]...),
			z:      sol.Objective,
		}, nil
	case highs.Infeasible:
		return milpSolution{status: StatusInfeasible}, nil
	case highs.Unbounded, highs.UnboundedOrInfeasible:
		return milpSolution{status: StatusUnbounded}, nil
	default:
		return milpSolution{status: StatusFailed}, errors.Errorf("highs: status %v", sol.Status)
	}
}
