// Package analytic holds closed-form option formulas and the numeric solvers
// the pricers use.
package analytic

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

var stdNormal = distuv.UnitNormal

// Black prices a European option on a forward. totalVariance is sigma^2 * T
// and df discounts the payoff from expiry.
func Black(isCall bool, forward, strike, totalVariance, df float64) (float64, error) {
	if forward <= 0 || strike <= 0 {
		return 0, errors.Computationf("invalid inputs for Black formula: F=%f, K=%f", forward, strike)
	}
	if totalVariance < 0 {
		return 0, errors.Computationf("negative total variance %f", totalVariance)
	}

	// Expired or zero vol options are worth their discounted intrinsic value.
	if totalVariance == 0 {
		if isCall {
			return df * math.Max(forward-strike, 0), nil
		}
		return df * math.Max(strike-forward, 0), nil
	}

	stdDev := math.Sqrt(totalVariance)
	d1 := (math.Log(forward/strike) + 0.5*totalVariance) / stdDev
	d2 := d1 - stdDev

	if isCall {
		return df * (forward*stdNormal.CDF(d1) - strike*stdNormal.CDF(d2)), nil
	}
	return df * (strike*stdNormal.CDF(-d2) - forward*stdNormal.CDF(-d1)), nil
}

// BlackScholes prices a European option on spot S with continuous rate r and
// dividend yield q over T years.
func BlackScholes(isCall bool, S, K, r, q, T, sigma float64) (float64, error) {
	forward := S * math.Exp((r-q)*T)
	return Black(isCall, forward, K, sigma*sigma*T, math.Exp(-r*T))
}

// BlackVega is the sensitivity of Black to sigma, for sigma over T years.
func BlackVega(forward, strike, sigma, T, df float64) float64 {
	if sigma <= 0 || T <= 0 {
		return 0
	}
	stdDev := sigma * math.Sqrt(T)
	d1 := (math.Log(forward/strike) + 0.5*stdDev*stdDev) / stdDev
	return df * forward * stdNormal.Prob(d1) * math.Sqrt(T)
}

// ImpliedVolatility inverts Black for sigma by Newton-Raphson.
func ImpliedVolatility(isCall bool, price, forward, strike, T, df float64) (float64, error) {
	if price <= 0 || T <= 0 {
		return 0, errors.InvalidArgumentf("cannot imply volatility from price %f over %f years", price, T)
	}
	f := func(sigma float64) (float64, float64, error) {
		p, err := Black(isCall, forward, strike, sigma*sigma*T, df)
		if err != nil {
			return 0, 0, err
		}
		return p - price, BlackVega(forward, strike, sigma, T, df), nil
	}
	return NewtonRaphson(f, 0.2, 1e-10, 100)
}
