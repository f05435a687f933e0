package analytic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlackScholesKnownValues(t *testing.T) {
	call, err := BlackScholes(true, 100, 100, 0.05, 0, 1, 0.2)
	require.NoError(t, err)
	assert.InDelta(t, 10.4506, call, 1e-4)

	put, err := BlackScholes(false, 100, 100, 0.05, 0, 1, 0.2)
	require.NoError(t, err)
	assert.InDelta(t, 5.5735, put, 1e-4)
}

func TestBlackPutCallParity(t *testing.T) {
	forward, strike, variance, df := 105.0, 98.0, 0.3*0.3*0.75, 0.97
	call, err := Black(true, forward, strike, variance, df)
	require.NoError(t, err)
	put, err := Black(false, forward, strike, variance, df)
	require.NoError(t, err)
	assert.InDelta(t, df*(forward-strike), call-put, 1e-10)
}

func TestBlackZeroVarianceIsIntrinsic(t *testing.T) {
	call, err := Black(true, 110, 100, 0, 0.9)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, call, 1e-12)

	put, err := Black(false, 110, 100, 0, 0.9)
	require.NoError(t, err)
	assert.Zero(t, put)
}

func TestBlackRejectsBadInputs(t *testing.T) {
	_, err := Black(true, -1, 100, 0.04, 1)
	assert.Error(t, err)
	_, err = Black(true, 100, 100, -0.04, 1)
	assert.Error(t, err)
}

func TestImpliedVolatilityRecoversSigma(t *testing.T) {
	price, err := Black(true, 100, 110, 0.25*0.25*2, 0.95)
	require.NoError(t, err)
	sigma, err := ImpliedVolatility(true, price, 100, 110, 2, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sigma, 1e-8)
}

func TestNewtonRaphson(t *testing.T) {
	root, err := NewtonRaphson(func(x float64) (float64, float64, error) {
		return x*x - 2, 2 * x, nil
	}, 1, 1e-12, 50)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, root, 1e-12)

	_, err = NewtonRaphson(func(x float64) (float64, float64, error) {
		return 1, 0, nil
	}, 1, 1e-12, 50)
	assert.Error(t, err)
}
