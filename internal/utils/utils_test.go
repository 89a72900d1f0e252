package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenUnitsToFloat64(t *testing.T) {
	value, err := TokenUnitsToFloat64(sdkmath.NewInt(1_234_560_000), USDCDecimals)
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, value, 1e-9)

	value, err = TokenUnitsToFloat64(sdkmath.ZeroInt(), USDCDecimals)
	require.NoError(t, err)
	assert.Zero(t, value)

	_, err = TokenUnitsToFloat64(sdkmath.NewInt(-5), USDCDecimals)
	assert.ErrorIs(t, err, ErrAmountNegative)

	_, err = TokenUnitsToFloat64(sdkmath.Int{}, USDCDecimals)
	assert.ErrorIs(t, err, ErrAmountNil)

	_, err = TokenUnitsToFloat64(sdkmath.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestFloat64ToTokenUnits(t *testing.T) {
	units, err := Float64ToTokenUnits(1234.56, USDCDecimals)
	require.NoError(t, err)
	assert.Equal(t, int64(1_234_560_000), units.Int64())

	units, err = Float64ToTokenUnits(0.0000019, USDCDecimals)
	require.NoError(t, err)
	assert.Equal(t, int64(1), units.Int64(), "sub-unit remainder is truncated")

	_, err = Float64ToTokenUnits(-1, USDCDecimals)
	assert.ErrorIs(t, err, ErrAmountNegative)

	_, err = Float64ToTokenUnits(math.Inf(1), USDCDecimals)
	assert.ErrorIs(t, err, ErrNotFinite)

	_, err = Float64ToTokenUnits(math.NaN(), USDCDecimals)
	assert.ErrorIs(t, err, ErrNotFinite)
}

func TestPercentToBasisPoints(t *testing.T) {
	cases := map[float64]int64{
		9.2299: 922,
		8.0:    800,
		5.4:    540,
		12.3:   1230,
		0:      0,
	}
	for percent, want := range cases {
		got, err := PercentToBasisPoints(percent)
		require.NoError(t, err, "percent %f", percent)
		assert.Equal(t, want, got, "percent %f", percent)
	}

	_, err := PercentToBasisPoints(-0.5)
	assert.ErrorIs(t, err, ErrAmountNegative)

	assert.Equal(t, 9.22, BasisPointsToPercent(922))
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 7.13, Round2(7.125))
	assert.Equal(t, -7.13, Round2(-7.125))
	assert.Equal(t, 10.91, Round2(10.9149))
	assert.Equal(t, 0.667, RoundTo(2.0/3.0, 3))
	assert.Equal(t, 4000.0, RoundCents(3999.999))
	assert.True(t, math.IsNaN(RoundTo(math.NaN(), 2)))
	assert.True(t, math.IsInf(RoundTo(math.Inf(-1), 2), -1))
}
