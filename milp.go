package gdp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// SolveStatus is the outcome of a backend solve.
type SolveStatus int

const (
	StatusOptimal SolveStatus = iota
	StatusInfeasible
	StatusUnbounded
	StatusFailed
)

func (s SolveStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "failed"
	}
}

// milpProblem is a mixed-integer linear program in matrix form:
//
//	minimize    c^T x
//	subject to  A x  = b
//	            G x <= h
//	            x >= 0
//
// with the integrality constraint applied to the variables flagged in
// integrality. A and G may each be nil when no constraints of that kind
// exist, but not both.
type milpProblem struct {
	c []float64
	A *mat.Dense
	b []float64
	G *mat.Dense
	h []float64

	// which variables to apply the integrality constraint to. Same order
	// as c.
	integrality []bool
}

type milpSolution struct {
	status SolveStatus
	x      []float64
	z      float64
}

// MIPBackend solves mixed-integer linear programs. A solve either returns a
// definite status or an error; there are no partial results.
type MIPBackend interface {
	SolveMILP(p milpProblem, opts SolverOptions) (milpSolution, error)
}

// bnbBackend is the bundled MIP backend: branch-and-bound with simplex
// relaxations. The engine calls it synchronously, one master problem at a
// time, so the search walks a depth-first stack rather than a worker pool.
type bnbBackend struct{}

const (
	defaultNodeLimit  = 20000
	defaultIntegerTol = 1e-5
)

func init() {
	RegisterMIPBackend("bnb", bnbBackend{})
	RegisterNLPBackend("auglag", augLagBackend{})
}

// bnbNode is one subproblem of the enumeration: the root relaxation plus the
// bound constraints added on the way down.
type bnbNode struct {
	prob *milpProblem

	// additional inequality rows from branching. Each step down in the
	// search adds one.
	branchG [][]float64
	branchH []float64
}

func (n bnbNode) child(branchOn int, factor, rhs float64) bnbNode {
	row := make([]float64, len(n.prob.c))
	row[branchOn] = factor
	g := make([][]float64, len(n.branchG), len(n.branchG)+1)
	copy(g, n.branchG)
	h := make([]float64, len(n.branchH), len(n.branchH)+1)
	copy(h, n.branchH)
	return bnbNode{
		prob:    n.prob,
		branchG: append(g, row),
		branchH: append(h, rhs),
	}
}

// combineInequalities stacks the problem's G matrix with the rows added by
// branching.
func (n bnbNode) combineInequalities() (*mat.Dense, []float64) {
	if len(n.branchG) == 0 {
		if n.prob.G == nil {
			return nil, nil
		}
		return mat.DenseCopyOf(n.prob.G), n.prob.h
	}

	var data []float64
	for _, row := range n.branchG {
		data = append(data, row...)
	}
	branch := mat.NewDense(len(n.branchG), len(n.prob.c), data)
	h := append(append([]float64{}, n.prob.h...), n.branchH...)

	if n.prob.G == nil {
		return branch, h
	}
	origRows, _ := n.prob.G.Dims()
	stacked := mat.NewDense(origRows+len(n.branchG), len(n.prob.c), nil)
	stacked.Stack(n.prob.G, branch)
	return stacked, h
}

// solveRelaxation drops the integrality constraints and solves the node
// with the simplex method, converting inequality rows to equalities with
// slack variables first.
func (n bnbNode) solveRelaxation() (z float64, x []float64, err error) {
	G, h := n.combineInequalities()

	if G != nil {
		c, A, b := convertToEqualities(n.prob.c, n.prob.A, n.prob.b, G, h)
		z, x, err = lp.Simplex(c, A, b, 0, nil)
		// take only the non-slack variables from the result.
		if err == nil && len(x) != len(n.prob.c) {
			x = x[:len(n.prob.c)]
		}
		return z, x, err
	}
	return lp.Simplex(n.prob.c, n.prob.A, n.prob.b, 0, nil)
}

func (b bnbBackend) SolveMILP(p milpProblem, opts SolverOptions) (milpSolution, error) {
	if len(p.integrality) != len(p.c) {
		return milpSolution{}, errors.New("bnb: integrality vector is not same length as vector c")
	}
	if insane := sanityCheckDimensions(p.c, p.A, p.b, p.G, p.h); insane != nil {
		return milpSolution{}, errors.Wrap(insane, "bnb")
	}

	intTol := opts.Tolerance
	if intTol == 0 {
		intTol = defaultIntegerTol
	}
	nodeLimit := opts.MaxIterations
	if nodeLimit == 0 {
		nodeLimit = defaultNodeLimit
	}

	root := bnbNode{prob: &p}

	// without integrality constraints a single relaxation solve suffices.
	if !anyTrue(p.integrality) {
		z, x, err := root.solveRelaxation()
		return mapRelaxationOutcome(z, x, err)
	}

	var (
		incumbent  []float64
		incumbentZ = math.Inf(1)
		truncated  bool
		stack      = []bnbNode{root}
		nodes      int
	)

	for len(stack) > 0 {
		if nodes++; nodes > nodeLimit {
			truncated = true
			break
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		z, x, err := node.solveRelaxation()
		switch {
		case err == lp.ErrInfeasible:
			continue
		case err == lp.ErrSingular:
			// degenerate relaxation; abandon the node.
			continue
		case err == lp.ErrUnbounded:
			if len(node.branchG) == 0 {
				return milpSolution{status: StatusUnbounded}, nil
			}
			continue
		case err != nil:
			return milpSolution{status: StatusFailed}, errors.Wrap(err, "bnb: relaxation solve")
		}

		if z >= incumbentZ-1e-12 {
			// worse than incumbent
			continue
		}

		if branchOn, fractional := mostFractional(x, p.integrality, intTol); !fractional {
			// better than incumbent and integer feasible, so replacing
			// incumbent
			incumbent = x
			incumbentZ = z
		} else {
			floor := math.Floor(x[branchOn])
			// explore the 'smaller or equal than' branch, then the
			// 'larger than' branch expressed with inverted sign.
			stack = append(stack,
				node.child(branchOn, 1, floor),
				node.child(branchOn, -1, -(floor+1)),
			)
		}
	}

	if incumbent == nil {
		if truncated {
			return milpSolution{status: StatusFailed}, errors.Errorf("bnb: no integer feasible solution within %d nodes", nodeLimit)
		}
		// the tree was searched exhaustively; no integer point exists.
		return milpSolution{status: StatusInfeasible}, nil
	}
	return milpSolution{status: StatusOptimal, x: incumbent, z: incumbentZ}, nil
}

func mapRelaxationOutcome(z float64, x []float64, err error) (milpSolution, error) {
	switch err {
	case nil:
		return milpSolution{status: StatusOptimal, x: x, z: z}, nil
	case lp.ErrInfeasible:
		return milpSolution{status: StatusInfeasible}, nil
	case lp.ErrUnbounded:
		return milpSolution{status: StatusUnbounded}, nil
	default:
		return milpSolution{status: StatusFailed}, errors.Wrap(err, "relaxation solve")
	}
}

// mostFractional picks the integrality-constrained variable whose value is
// furthest from integral (the most infeasible one). The bool reports
// whether any fractional variable remains.
func mostFractional(x []float64, integrality []bool, tol float64) (int, bool) {
	best := -1
	bestDist := tol
	for i, v := range x {
		if !integrality[i] {
			continue
		}
		dist := math.Abs(v - math.Round(v))
		if dist > bestDist {
			best, bestDist = i, dist
		}
	}
	return best, best >= 0
}

func anyTrue(in []bool) bool {
	for _, x := range in {
		if x {
			return true
		}
	}
	return false
}

// convertToEqualities rewrites a problem with inequalities (G and h) into
// one with only equalities over nonnegative variables, by adding one slack
// variable per inequality row.
func convertToEqualities(c []float64, A *mat.Dense, b []float64, G *mat.Dense, h []float64) (cNew []float64, aNew *mat.Dense, bNew []float64) {
	if G == nil {
		panic("provided pointer to G matrix is nil")
	}
	if insane := sanityCheckDimensions(c, A, b, G, h); insane != nil {
		panic(insane)
	}

	nVar := len(c)
	nCons := len(b)
	nIneq := len(h)

	// slack variables enter the objective as zeroes.
	cNew = make([]float64, nVar+nIneq)
	copy(cNew, c)

	bNew = make([]float64, nCons+nIneq)
	copy(bNew, b)
	copy(bNew[nCons:], h)

	aNew = mat.NewDense(nCons+nIneq, nVar+nIneq, nil)
	if A != nil {
		aNew.Slice(0, nCons, 0, nVar).(*mat.Dense).Copy(A)
	}
	aNew.Slice(nCons, nCons+nIneq, 0, nVar).(*mat.Dense).Copy(G)

	// diagonal of slack indicators next to the embedded G.
	bottomRight := aNew.Slice(nCons, nCons+nIneq, nVar, nVar+nIneq).(*mat.Dense)
	for i := 0; i < nIneq; i++ {
		bottomRight.Set(i, i, 1)
	}
	return cNew, aNew, bNew
}

// sanityCheckDimensions validates the problem's matrix dimensions.
func sanityCheckDimensions(c []float64, A *mat.Dense, b []float64, G *mat.Dense, h []float64) error {
	if G == nil && A == nil {
		return errors.New("no constraint matrices provided")
	}
	if G != nil {
		if h == nil {
			return errors.New("h vector is nil while G matrix is provided")
		}
		rG, cG := G.Dims()
		if rG != len(h) {
			return errors.New("number of rows in G matrix is not equal to length of h")
		}
		if cG != len(c) {
			return errors.New("number of columns in G matrix is not equal to number of variables")
		}
	}
	if h != nil && G == nil {
		return errors.New("G matrix is nil while h vector is provided")
	}
	if A != nil {
		rA, cA := A.Dims()
		if rA != len(b) {
			return errors.New("number of rows in A matrix is not equal to length of b")
		}
		if cA != len(c) {
			return errors.New("number of columns in A matrix is not equal to number of variables")
		}
	}
	if b != nil && A == nil {
		return errors.New("A matrix is nil while b vector is provided")
	}
	return nil
}
