/*
This file contains common utility functions for converting between on-chain integer units and
human-readable floats, particularly 6-decimal stablecoin amounts and basis-point rates.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

const (
	// USDCDecimals is the precision of the stablecoin amounts reported by the yield contract.
	USDCDecimals = 6
	// basisPointDecimals turns a percentage into basis points (8.5% -> 850).
	basisPointDecimals = 2
)

// TokenUnitsToFloat64 converts an integer token amount to float64 with proper precision handling
func TokenUnitsToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := sdkmath.LegacyNewDecFromInt(amount).Quo(precisionFactor(precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// Float64ToTokenUnits converts a float64 to integer token units, truncating below the precision
func Float64ToTokenUnits(amount float64, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// Format with extra digits so the truncation happens in decimal, not in binary.
	amountStr := fmt.Sprintf("%.*f", precision+4, amount)

	decAmount, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}

	result := decAmount.Mul(precisionFactor(precision)).TruncateInt()
	if result.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	return result, nil
}

// PercentToBasisPoints converts an APY percentage to integer basis points, truncating (9.2299 -> 922).
func PercentToBasisPoints(percent float64) (int64, error) {
	bps, err := Float64ToTokenUnits(percent, basisPointDecimals)
	if err != nil {
		return 0, err
	}
	if !bps.IsInt64() {
		return 0, fmt.Errorf("%w: %s basis points overflows int64", ErrConversionFailed, bps.String())
	}
	return bps.Int64(), nil
}

// BasisPointsToPercent converts basis points back to a percentage (922 -> 9.22).
func BasisPointsToPercent(bps int64) float64 {
	return float64(bps) / 100
}

func precisionFactor(precision int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor
}
