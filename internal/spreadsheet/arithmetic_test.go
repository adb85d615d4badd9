package spreadsheet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(seed uint64) *ArithmeticEngine {
	cfg := DefaultConfig()
	cfg.SampleSize = 5000
	cfg.RNGSeed = &seed
	return NewArithmeticEngine(cfg, NewSeededRandomGenerator(&seed))
}

func TestArithmeticEngineScalarOps(t *testing.T) {
	e := newTestEngine(1)

	t.Run("add snaps negligible residuals to zero", func(t *testing.T) {
		a, b := 0.1, 0.2
		v, err := e.Add(a+b, -0.3)
		require.NoError(t, err)
		require.Equal(t, 0.0, v)
	})

	t.Run("div by zero is DIV0", func(t *testing.T) {
		_, err := e.Div(10.0, 0.0)
		require.Error(t, err)
		sErr, ok := err.(*SpreadsheetError)
		require.True(t, ok)
		require.Equal(t, ErrorCodeDiv0, sErr.ErrorCode)
	})

	t.Run("pow of non-numeric operand is VALUE", func(t *testing.T) {
		_, err := e.Pow("nope", 2.0)
		require.Error(t, err)
	})

	t.Run("errors propagate through operands untouched", func(t *testing.T) {
		propagated := NewSpreadsheetError(ErrorCodeRef, "bad ref")
		_, err := e.Add(propagated, 1.0)
		require.Error(t, err)
		sErr, ok := err.(*SpreadsheetError)
		require.True(t, ok)
		require.Equal(t, ErrorCodeRef, sErr.ErrorCode)
	})
}

func TestArithmeticEngineDistributionClassification(t *testing.T) {
	e := newTestEngine(2)

	t.Run("gaussian plus gaussian stays gaussian", func(t *testing.T) {
		v, err := e.Add(NewGaussian(10, 2), NewGaussian(5, 1))
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistGaussian, d.Kind)
	})

	t.Run("gaussian plus scalar stays gaussian", func(t *testing.T) {
		v, err := e.Add(NewGaussian(10, 2), 5.0)
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistGaussian, d.Kind)
	})

	t.Run("uniform plus uniform is not preserved", func(t *testing.T) {
		v, err := e.Add(NewUniform(0, 1), NewUniform(0, 1))
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistSampled, d.Kind)
	})

	t.Run("uniform plus scalar stays uniform", func(t *testing.T) {
		v, err := e.Add(NewUniform(0, 1), 5.0)
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistUniform, d.Kind)
	})

	t.Run("gaussian times gaussian is not preserved", func(t *testing.T) {
		v, err := e.Mul(NewGaussian(10, 1), NewGaussian(10, 1))
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistSampled, d.Kind)
	})

	t.Run("lognormal times scalar stays lognormal", func(t *testing.T) {
		v, err := e.Mul(NewLogNormal(0, 0.5), 2.0)
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistLogNormal, d.Kind)
	})

	t.Run("uniform times uniform is not preserved", func(t *testing.T) {
		v, err := e.Mul(NewUniform(1, 2), NewUniform(1, 2))
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistSampled, d.Kind)
	})

	t.Run("lognormal to the power of a scalar stays lognormal", func(t *testing.T) {
		v, err := e.Pow(NewLogNormal(0, 0.5), 2.0)
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistLogNormal, d.Kind)
	})
}

func TestArithmeticEngineUnaryOps(t *testing.T) {
	e := newTestEngine(3)

	t.Run("unary minus negates a distribution's mean", func(t *testing.T) {
		v, err := e.UnaryMinus(NewGaussian(10, 1))
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		mean, err := d.MeanValue()
		require.NoError(t, err)
		require.InDelta(t, -10, mean, 0.5)
	})

	t.Run("unary minus on a lognormal falls back to sampled instead of corrupting", func(t *testing.T) {
		v, err := e.UnaryMinus(NewLogNormal(0, 1))
		require.NoError(t, err)
		d, ok := v.(Distribution)
		require.True(t, ok)
		require.Equal(t, DistSampled, d.Kind)
		mean, err := d.MeanValue()
		require.NoError(t, err)
		require.False(t, math.IsNaN(mean))
		require.Less(t, mean, 0.0)
	})

	t.Run("unary plus is a no-op on distributions", func(t *testing.T) {
		g := NewGaussian(10, 1)
		v, err := e.UnaryPlus(g)
		require.NoError(t, err)
		require.Equal(t, g, v)
	})

	t.Run("unary percent divides scalars by 100", func(t *testing.T) {
		v, err := e.UnaryPercent(50.0)
		require.NoError(t, err)
		require.Equal(t, 0.5, v)
	})
}

func TestArithmeticEngineComparisons(t *testing.T) {
	e := newTestEngine(4)

	lt, err := e.Lt(1.0, 2.0)
	require.NoError(t, err)
	require.True(t, lt)

	eq, err := e.Eq(NewGaussian(10, 1), 10.0)
	require.NoError(t, err)
	require.True(t, eq)
}
