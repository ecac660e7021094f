package shaper

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

// ModelFunc evaluates a model with parameters p at x.
type ModelFunc func(x float64, p []float64) float64

// Problem is a box-constrained weighted least-squares problem. Residuals are
// (Y - Model)/Err.
type Problem struct {
	X         []float64
	Y         []float64
	Err       []float64
	Model     ModelFunc
	Start     []float64
	Lower     []float64
	Upper     []float64
	MaxIter   int
	Tolerance float64
}

// Solution holds best-fit parameters and their asymptotic errors taken from
// the inverse curvature matrix.
type Solution struct {
	Params     []float64
	Errors     []float64
	Covariance *mat.SymDense
	Chi2       float64
	NDF        int
	Iterations int
	AtBound    []bool
}

func (s Solution) Chi2NDF() float64 {
	if s.NDF <= 0 {
		return math.NaN()
	}
	return s.Chi2 / float64(s.NDF)
}

const (
	lambdaStart = 1e-3
	lambdaMin   = 1e-12
	lambdaMax   = 1e20
)

// LeastSquares minimizes chi2 with a Levenberg-Marquardt iteration. Steps are
// projected onto the bounds and parameters sitting on a bound with the
// gradient pointing outwards are frozen for that iteration.
func LeastSquares(prob Problem) (Solution, error) {
	n := len(prob.X)
	m := len(prob.Start)
	if len(prob.Y) != n || len(prob.Err) != n {
		return Solution{}, fmt.Errorf("x, y and error lengths differ (%d, %d, %d)", n, len(prob.Y), len(prob.Err))
	}
	if len(prob.Lower) != m || len(prob.Upper) != m {
		return Solution{}, fmt.Errorf("need %d lower and upper bounds", m)
	}
	if n <= m {
		return Solution{}, fmt.Errorf("%d points for %d parameters: %w", n, m, ErrTooFewPoints)
	}
	for i, e := range prob.Err {
		if !(e > 0) {
			return Solution{}, fmt.Errorf("error of point %d is %g, must be positive", i, e)
		}
	}
	if prob.MaxIter < 1 {
		prob.MaxIter = 100
	}
	if prob.Tolerance <= 0 {
		prob.Tolerance = 1e-10
	}

	p := make([]float64, m)
	for j := range p {
		p[j] = clamp(prob.Start[j], prob.Lower[j], prob.Upper[j])
	}
	chi2 := prob.chi2(p)
	if math.IsInf(chi2, 1) {
		return Solution{}, fmt.Errorf("model is not finite at the start values")
	}

	r := make([]float64, n)
	jac := mat.NewDense(n, m, nil)
	trial := make([]float64, m)
	lambda := lambdaStart
	converged := false
	iter := 0

	for iter = 1; iter <= prob.MaxIter && !converged; iter++ {
		prob.residuals(p, r)
		prob.jacobian(p, jac)
		a, g := normalEquations(jac, r)

		free := make([]bool, m)
		for j := range p {
			free[j] = !((p[j] <= prob.Lower[j] && g.AtVec(j) < 0) || (p[j] >= prob.Upper[j] && g.AtVec(j) > 0))
		}

		for {
			delta, ok := dampedStep(a, g, free, lambda)
			if ok {
				for j := range p {
					trial[j] = clamp(p[j]+delta[j], prob.Lower[j], prob.Upper[j])
				}
				chi2Trial := prob.chi2(trial)
				if chi2Trial <= chi2 {
					decrease := (chi2 - chi2Trial) / math.Max(chi2, math.SmallestNonzeroFloat64)
					step := 0.0
					for j := range p {
						step = math.Max(step, math.Abs(trial[j]-p[j])/(math.Abs(p[j])+math.SmallestNonzeroFloat64))
					}
					copy(p, trial)
					chi2 = chi2Trial
					lambda = math.Max(lambda/10, lambdaMin)
					if decrease < prob.Tolerance || step < prob.Tolerance {
						converged = true
					}
					break
				}
			}
			lambda *= 10
			if lambda > lambdaMax {
				// No step along the damped gradient lowers chi2 any more.
				converged = true
				break
			}
		}
	}
	if !converged {
		return Solution{}, fmt.Errorf("after %d iterations: %w", prob.MaxIter, ErrMaxIterations)
	}

	prob.residuals(p, r)
	prob.jacobian(p, jac)
	a, _ := normalEquations(jac, r)
	cov, err := invertScaled(a)
	if err != nil {
		return Solution{}, err
	}
	sol := Solution{
		Params:     p,
		Errors:     make([]float64, m),
		Covariance: cov,
		Chi2:       chi2,
		NDF:        n - m,
		Iterations: iter - 1,
		AtBound:    make([]bool, m),
	}
	for j := range p {
		sol.Errors[j] = math.Sqrt(cov.At(j, j))
		sol.AtBound[j] = p[j] <= prob.Lower[j] || p[j] >= prob.Upper[j]
	}
	return sol, nil
}

func (prob *Problem) residuals(p []float64, r []float64) {
	for i, x := range prob.X {
		r[i] = (prob.Y[i] - prob.Model(x, p)) / prob.Err[i]
	}
}

func (prob *Problem) chi2(p []float64) float64 {
	var sum float64
	for i, x := range prob.X {
		d := (prob.Y[i] - prob.Model(x, p)) / prob.Err[i]
		sum += d * d
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return sum
}

// jacobian fills the derivatives of the weighted model by finite differences,
// one-sided next to a bound.
func (prob *Problem) jacobian(p []float64, jac *mat.Dense) {
	shifted := make([]float64, len(p))
	for j := range p {
		h := prob.step(j, p[j])
		hi := math.Min(p[j]+h, prob.Upper[j])
		lo := math.Max(p[j]-h, prob.Lower[j])
		if hi == lo {
			for i := range prob.X {
				jac.Set(i, j, 0)
			}
			continue
		}
		copy(shifted, p)
		for i, x := range prob.X {
			shifted[j] = hi
			fHi := prob.Model(x, shifted)
			shifted[j] = lo
			fLo := prob.Model(x, shifted)
			jac.Set(i, j, (fHi-fLo)/(hi-lo)/prob.Err[i])
		}
	}
}

func (prob *Problem) step(j int, value float64) float64 {
	scale := math.Max(math.Abs(value), math.Abs(prob.Start[j]))
	if scale == 0 {
		scale = prob.Upper[j] - prob.Lower[j]
		if scale == 0 || math.IsInf(scale, 0) {
			scale = 1
		}
	}
	return 1e-6 * scale
}

func normalEquations(jac *mat.Dense, r []float64) (*mat.SymDense, *mat.VecDense) {
	_, m := jac.Dims()
	a := mat.NewSymDense(m, nil)
	a.SymOuterK(1, jac.T())
	g := mat.NewVecDense(m, nil)
	g.MulVec(jac.T(), mat.NewVecDense(len(r), r))
	return a, g
}

// dampedStep solves (A + lambda diag(A)) delta = g in coordinates scaled to a
// unit diagonal. Frozen parameters get a zero step.
func dampedStep(a *mat.SymDense, g *mat.VecDense, free []bool, lambda float64) ([]float64, bool) {
	m := a.SymmetricDim()
	scale := diagonalScale(a)
	d := mat.NewSymDense(m, nil)
	rhs := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			switch {
			case !free[i] || !free[j]:
				if i == j {
					d.SetSym(i, j, 1)
				}
			case i == j:
				d.SetSym(i, j, a.At(i, j)/(scale[i]*scale[j])*(1+lambda))
			default:
				d.SetSym(i, j, a.At(i, j)/(scale[i]*scale[j]))
			}
		}
		if free[i] {
			rhs.SetVec(i, g.AtVec(i)/scale[i])
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(d); !ok {
		return nil, false
	}
	x := mat.NewVecDense(m, nil)
	if err := chol.SolveVecTo(x, rhs); err != nil {
		return nil, false
	}
	delta := make([]float64, m)
	for j := range delta {
		delta[j] = x.AtVec(j) / scale[j]
		if math.IsNaN(delta[j]) || math.IsInf(delta[j], 0) {
			return nil, false
		}
	}
	return delta, true
}

// invertScaled returns A^-1, inverting the unit-diagonal version of A to keep
// parameters of very different magnitude well conditioned.
func invertScaled(a *mat.SymDense) (*mat.SymDense, error) {
	m := a.SymmetricDim()
	scale := diagonalScale(a)
	scaled := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		// a zero diagonal means the parameter does not affect the model
		if a.At(i, i) <= 0 {
			return nil, ErrSingularMatrix
		}
		for j := i; j < m; j++ {
			scaled.SetSym(i, j, a.At(i, j)/(scale[i]*scale[j]))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(scaled); !ok {
		return nil, ErrSingularMatrix
	}
	inv := mat.NewSymDense(m, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}
	cov := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			cov.SetSym(i, j, inv.At(i, j)/(scale[i]*scale[j]))
		}
	}
	return cov, nil
}

func diagonalScale(a *mat.SymDense) []float64 {
	m := a.SymmetricDim()
	scale := make([]float64, m)
	for i := range scale {
		scale[i] = math.Sqrt(a.At(i, i))
		if scale[i] == 0 || math.IsNaN(scale[i]) {
			scale[i] = 1
		}
	}
	return scale
}

func clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
