package gdp

import (
	"log"

	"github.com/pkg/errors"
)

// Strategy selects the decomposition scheme. Logic-based outer approximation
// is currently the only one implemented.
type Strategy int

const (
	LOA Strategy = iota
)

// SolverOptions are passed through to a backend on every solve call.
type SolverOptions struct {
	// MaxIterations caps the backend's internal iterations (branch-and-bound
	// nodes for the MIP backend, outer multiplier updates for the NLP
	// backend). Zero means the backend default.
	MaxIterations int

	// Tolerance is the backend's primary tolerance: integrality for the MIP
	// backend, constraint feasibility for the NLP backend. Zero means the
	// corresponding engine tolerance is used.
	Tolerance float64
}

// Config carries all solver options. The zero value is not usable; start
// from DefaultConfig. Option domains are checked once, before any solver
// call.
type Config struct {
	// IterLim is the master iteration limit.
	IterLim int

	// Strategy is the decomposition strategy.
	Strategy Strategy

	// InitStrategy selects how the initial master approximation is seeded.
	InitStrategy InitStrategy

	// CustomInitDisjuncts holds the seed disjunct selections for the
	// InitCustomDisjuncts strategy, one subproblem solve per entry.
	CustomInitDisjuncts [][]*Disjunct

	// SetCoverIterLim caps the number of set covering iterations.
	SetCoverIterLim int

	// MaxSlack is the upper bound on the slack variables attached to outer
	// approximation cuts in the master problem.
	MaxSlack float64

	// OAPenaltyFactor is the objective penalty on those slack variables.
	OAPenaltyFactor float64

	// MIP names the registered MIP backend to use. Ignored when MIPBackend
	// is set directly.
	MIP        string
	MIPOptions SolverOptions
	MIPBackend MIPBackend

	// NLP names the registered NLP backend to use. Ignored when NLPBackend
	// is set directly.
	NLP        string
	NLPOptions SolverOptions
	NLPBackend NLPBackend

	// Callback hooks. A nil hook is a no-op.
	OnMasterSolved          func(iteration int, objective float64, assignment []float64)
	BeforeSubproblemSolve   func(iteration int, assignment []float64)
	AfterSubproblemSolve    func(iteration int, feasible bool, x []float64)
	AfterSubproblemFeasible func(iteration int, objective float64, x []float64)

	// AlgorithmStallAfter is the number of consecutive master iterations
	// without improvement of the best feasible solution after which the
	// algorithm stalls out.
	AlgorithmStallAfter int

	// Tee streams per-iteration output to Logger.
	Tee    bool
	Logger *log.Logger

	// Numeric tolerances. All must be non-negative.
	BoundTolerance      float64
	SmallDualTolerance  float64
	IntegerTolerance    float64
	ConstraintTolerance float64
	VariableTolerance   float64

	// RoundNLPBinaries snaps near-integral binary values from the master
	// solution to exactly 0 or 1 before fixing them in the subproblem.
	RoundNLPBinaries bool

	// NoBacktracking adds stronger exclusion cuts for discrete points that
	// were already evaluated via a subproblem solve. Forced off when the
	// problem has no discrete decisions.
	NoBacktracking bool
}

// DefaultConfig returns the documented default option values.
func DefaultConfig() Config {
	return Config{
		IterLim:             30,
		Strategy:            LOA,
		InitStrategy:        InitSetCovering,
		SetCoverIterLim:     8,
		MaxSlack:            1000,
		OAPenaltyFactor:     1000,
		MIP:                 "bnb",
		NLP:                 "auglag",
		AlgorithmStallAfter: 2,
		BoundTolerance:      1e-6,
		SmallDualTolerance:  1e-8,
		IntegerTolerance:    1e-5,
		ConstraintTolerance: 1e-6,
		VariableTolerance:   1e-8,
		RoundNLPBinaries:    true,
		NoBacktracking:      true,
	}
}

// finalize validates all option domains and resolves backend names. Any
// violation is a configuration error, raised before the first solver call.
func (c *Config) finalize() error {
	if c.IterLim < 0 {
		return errors.Errorf("config: iteration limit must be non-negative, got %d", c.IterLim)
	}
	if c.Strategy != LOA {
		return errors.Errorf("config: unknown decomposition strategy %d", c.Strategy)
	}
	if c.InitStrategy < InitSetCovering || c.InitStrategy > InitCustomDisjuncts {
		return errors.Errorf("config: unknown initialization strategy %d", c.InitStrategy)
	}
	if c.InitStrategy == InitCustomDisjuncts && len(c.CustomInitDisjuncts) == 0 {
		return errors.New("config: custom disjunct initialization requires at least one disjunct set")
	}
	if c.SetCoverIterLim < 0 {
		return errors.Errorf("config: set covering iteration limit must be non-negative, got %d", c.SetCoverIterLim)
	}
	if c.AlgorithmStallAfter <= 0 {
		return errors.Errorf("config: stall-after count must be positive, got %d", c.AlgorithmStallAfter)
	}
	for _, tol := range []struct {
		name  string
		value float64
	}{
		{"bound", c.BoundTolerance},
		{"small dual", c.SmallDualTolerance},
		{"integer", c.IntegerTolerance},
		{"constraint", c.ConstraintTolerance},
		{"variable", c.VariableTolerance},
		{"max slack", c.MaxSlack},
		{"OA penalty factor", c.OAPenaltyFactor},
	} {
		if tol.value < 0 {
			return errors.Errorf("config: %s tolerance must be non-negative, got %g", tol.name, tol.value)
		}
	}

	if c.MIPBackend == nil {
		b, ok := mipBackends[c.MIP]
		if !ok {
			return errors.Errorf("config: unknown MIP backend %q", c.MIP)
		}
		c.MIPBackend = b
	}
	if c.NLPBackend == nil {
		b, ok := nlpBackends[c.NLP]
		if !ok {
			return errors.Errorf("config: unknown NLP backend %q", c.NLP)
		}
		c.NLPBackend = b
	}

	if c.MIPOptions.Tolerance == 0 {
		c.MIPOptions.Tolerance = c.IntegerTolerance
	}
	if c.NLPOptions.Tolerance == 0 {
		c.NLPOptions.Tolerance = c.ConstraintTolerance
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return nil
}

func (c *Config) logf(format string, args ...interface{}) {
	if c.Tee {
		c.Logger.Printf(format, args...)
	}
}

var (
	mipBackends = map[string]MIPBackend{}
	nlpBackends = map[string]NLPBackend{}
)

// RegisterMIPBackend makes a MIP backend selectable by name in Config.MIP.
func RegisterMIPBackend(name string, b MIPBackend) {
	mipBackends[name] = b
}

// RegisterNLPBackend makes an NLP backend selectable by name in Config.NLP.
func RegisterNLPBackend(name string, b NLPBackend) {
	nlpBackends[name] = b
}
