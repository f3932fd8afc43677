package gdp

import "fmt"

// Sense of an objective.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Variable is a single decision variable. Nonlinear closures address the
// value vector by Index, so variables keep their declaration order.
type Variable struct {
	Name string

	// bounds
	Lower float64
	Upper float64

	// Binary restricts the variable to {0, 1}.
	Binary bool

	// Integer marks a general (non-binary) integer variable. Declared for
	// completeness; the solver rejects these at validation time.
	Integer bool

	// Value is the variable's current value. It seeds the NLP subproblems
	// (and the fixed_binary initialization) and holds the best solution
	// found after a solve.
	Value float64

	index int
}

// Index is the variable's position in the model's ordered variable list.
func (v *Variable) Index() int { return v.index }

// Term is an expression of a variable and an arbitrary float for use in
// defining linear constraints, e.g. "-1 * x1".
type Term struct {
	Coef float64
	Var  *Variable
}

// LinearConstraint is sum(Terms) <= RHS, or == RHS when Equality is set.
type LinearConstraint struct {
	Name     string
	Terms    []Term
	RHS      float64
	Equality bool

	inactive bool
}

// Deactivate excludes the constraint from subsequent solves.
func (c *LinearConstraint) Deactivate() { c.inactive = true }

// Activate re-includes the constraint in subsequent solves.
func (c *LinearConstraint) Activate() { c.inactive = false }

// NonlinearConstraint is F(x) <= 0. F and Grad receive the full variable
// value vector, addressed by Variable.Index. Grad must write dF/dx_i into
// grad[i] for every variable the constraint involves; grad arrives zeroed.
type NonlinearConstraint struct {
	Name string
	F    func(x []float64) float64
	Grad func(x, grad []float64)

	inactive bool
}

func (c *NonlinearConstraint) Deactivate() { c.inactive = true }
func (c *NonlinearConstraint) Activate()   { c.inactive = false }

// Objective is minimize/maximize F(x), with the same closure conventions as
// NonlinearConstraint.
type Objective struct {
	Sense Sense
	F     func(x []float64) float64
	Grad  func(x, grad []float64)

	inactive bool
}

func (o *Objective) Deactivate() { o.inactive = true }
func (o *Objective) Activate()   { o.inactive = false }

// Disjunct is one alternative of a disjunction: a named block of constraints
// that hold exactly when the disjunct is selected. Its indicator binary is
// created on the owning model when the disjunct is declared.
type Disjunct struct {
	Name string

	indicator *Variable
	linear    []*LinearConstraint
	nonlinear []*NonlinearConstraint
	model     *Model
}

// Indicator returns the disjunct's auto-created indicator binary.
func (d *Disjunct) Indicator() *Variable { return d.indicator }

// AddLinear adds sum(terms) <= rhs to the disjunct's block.
func (d *Disjunct) AddLinear(name string, terms []Term, rhs float64) *LinearConstraint {
	d.model.checkTerms(terms)
	c := &LinearConstraint{Name: name, Terms: terms, RHS: rhs}
	d.linear = append(d.linear, c)
	return c
}

// AddLinearEquality adds sum(terms) == rhs to the disjunct's block.
func (d *Disjunct) AddLinearEquality(name string, terms []Term, rhs float64) *LinearConstraint {
	d.model.checkTerms(terms)
	c := &LinearConstraint{Name: name, Terms: terms, RHS: rhs, Equality: true}
	d.linear = append(d.linear, c)
	return c
}

// AddNonlinear adds f(x) <= 0 to the disjunct's block.
func (d *Disjunct) AddNonlinear(name string, f func(x []float64) float64, grad func(x, grad []float64)) *NonlinearConstraint {
	c := &NonlinearConstraint{Name: name, F: f, Grad: grad}
	d.nonlinear = append(d.nonlinear, c)
	return c
}

// Disjunction is a set of disjuncts of which exactly one must hold.
type Disjunction struct {
	Name      string
	disjuncts []*Disjunct
}

// Disjuncts returns the disjunction's alternatives in declaration order.
func (dj *Disjunction) Disjuncts() []*Disjunct { return dj.disjuncts }

// Model is a Generalized Disjunctive Program under construction.
type Model struct {
	vars         []*Variable
	linear       []*LinearConstraint
	nonlinear    []*NonlinearConstraint
	disjunctions []*Disjunction
	objectives   []*Objective
}

func NewModel() *Model {
	return &Model{}
}

// AddVariable adds a continuous variable and returns a reference to it.
// Its initial value is 0, clamped into the bounds.
func (m *Model) AddVariable(name string, lower, upper float64) *Variable {
	if lower > upper {
		panic(fmt.Sprintf("variable %s has lower bound %g above upper bound %g", name, lower, upper))
	}
	v := &Variable{
		Name:  name,
		Lower: lower,
		Upper: upper,
		index: len(m.vars),
	}
	if v.Value < lower {
		v.Value = lower
	}
	if v.Value > upper {
		v.Value = upper
	}
	m.vars = append(m.vars, v)
	return v
}

// AddBinary adds a {0,1} variable and returns a reference to it.
func (m *Model) AddBinary(name string) *Variable {
	v := m.AddVariable(name, 0, 1)
	v.Binary = true
	return v
}

// AddInteger adds a general integer variable. The solver does not support
// these; validation fails with ErrIntegerVariables when any are present.
func (m *Model) AddInteger(name string, lower, upper float64) *Variable {
	v := m.AddVariable(name, lower, upper)
	v.Integer = true
	return v
}

// AddLinear adds the global constraint sum(terms) <= rhs.
func (m *Model) AddLinear(name string, terms []Term, rhs float64) *LinearConstraint {
	m.checkTerms(terms)
	c := &LinearConstraint{Name: name, Terms: terms, RHS: rhs}
	m.linear = append(m.linear, c)
	return c
}

// AddLinearEquality adds the global constraint sum(terms) == rhs.
func (m *Model) AddLinearEquality(name string, terms []Term, rhs float64) *LinearConstraint {
	m.checkTerms(terms)
	c := &LinearConstraint{Name: name, Terms: terms, RHS: rhs, Equality: true}
	m.linear = append(m.linear, c)
	return c
}

// AddNonlinear adds the global constraint f(x) <= 0.
func (m *Model) AddNonlinear(name string, f func(x []float64) float64, grad func(x, grad []float64)) *NonlinearConstraint {
	c := &NonlinearConstraint{Name: name, F: f, Grad: grad}
	m.nonlinear = append(m.nonlinear, c)
	return c
}

// NewDisjunct declares a disjunct and its indicator binary. The disjunct
// must subsequently be attached to a disjunction via AddDisjunction.
func (m *Model) NewDisjunct(name string) *Disjunct {
	return &Disjunct{
		Name:      name,
		indicator: m.AddBinary(name + ".indicator"),
		model:     m,
	}
}

// AddDisjunction groups disjuncts into an exactly-one-holds disjunction.
func (m *Model) AddDisjunction(name string, disjuncts ...*Disjunct) *Disjunction {
	if len(disjuncts) == 0 {
		panic("must add disjuncts")
	}
	for _, d := range disjuncts {
		if d.model != m {
			panic("provided disjunct was not declared on this model")
		}
	}
	dj := &Disjunction{Name: name, disjuncts: disjuncts}
	m.disjunctions = append(m.disjunctions, dj)
	return dj
}

// AddObjective adds an objective. Exactly one may be active at solve time.
func (m *Model) AddObjective(sense Sense, f func(x []float64) float64, grad func(x, grad []float64)) *Objective {
	o := &Objective{Sense: sense, F: f, Grad: grad}
	m.objectives = append(m.objectives, o)
	return o
}

// Variables returns the model's variables in declaration order.
func (m *Model) Variables() []*Variable { return m.vars }

// Values returns the current variable values in declaration order.
func (m *Model) Values() []float64 {
	out := make([]float64, len(m.vars))
	for i, v := range m.vars {
		out[i] = v.Value
	}
	return out
}

// Check whether each term references a variable that has been declared to
// this model.
func (m *Model) checkTerms(terms []Term) {
	if len(terms) == 0 {
		panic("must add terms")
	}
	for _, t := range terms {
		if t.Var == nil || t.Var.index >= len(m.vars) || m.vars[t.Var.index] != t.Var {
			panic("provided term contains a variable that has not been declared to this model yet")
		}
	}
}
