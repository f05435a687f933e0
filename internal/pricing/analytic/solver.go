package analytic

import (
	"math"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// Objective returns f(x) and f'(x).
type Objective func(x float64) (value, derivative float64, err error)

// NewtonRaphson finds a root of f starting from guess. It stops when |f(x)|
// falls under tol and fails after maxIterations or on a flat derivative.
func NewtonRaphson(f Objective, guess, tol float64, maxIterations int) (float64, error) {
	x := guess
	for i := 0; i < maxIterations; i++ {
		value, derivative, err := f(x)
		if err != nil {
			return 0, err
		}
		if math.Abs(value) < tol {
			return x, nil
		}
		if derivative == 0 || math.IsNaN(derivative) {
			return 0, errors.Computationf("newton step has flat derivative at x=%f", x)
		}
		x -= value / derivative
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, errors.Computationf("newton iteration diverged after %d steps", i+1)
		}
	}
	return 0, errors.Computationf("newton iteration did not converge in %d steps (last x=%f)", maxIterations, x)
}
