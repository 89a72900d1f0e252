package analyzer

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestOptimizer(t *testing.T, opts ...Option) *Optimizer {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	o, err := NewOptimizer(config.DefaultOptimizerParameters, opts...)
	require.NoError(t, err)
	return o
}

func catalogMetrics() map[types.ProtocolID]types.ProtocolMetric {
	return config.FallbackMetrics(config.ProtocolCatalog())
}

func metric(id string, apy, risk, liquidity, benefit, maxAllocation float64) types.ProtocolMetric {
	return types.ProtocolMetric{
		ID:                     types.ProtocolID(id),
		Name:                   id,
		APY:                    apy,
		RiskScore:              risk,
		LiquidityScore:         liquidity,
		DiversificationBenefit: benefit,
		MaxAllocation:          maxAllocation,
	}
}

func sumWeights(plan types.PortfolioPlan) float64 {
	total := 0.0
	for _, w := range plan.Weights {
		total += w
	}
	return total
}

func sumAmounts(plan types.PortfolioPlan) float64 {
	total := 0.0
	for _, a := range plan.Allocations {
		total += a.Amount
	}
	return total
}

func TestOptimize_LowRiskScenario(t *testing.T) {
	o := newTestOptimizer(t)

	plan, err := o.Optimize(10000, "low", catalogMetrics())
	require.NoError(t, err)

	require.Len(t, plan.Weights, 2)
	assert.Contains(t, plan.Weights, types.ProtocolID("compound"))
	assert.Contains(t, plan.Weights, types.ProtocolID("curve"))
	assert.InDelta(t, 1.0, sumWeights(plan), 1e-9)
	assert.InDelta(t, 10000.0, sumAmounts(plan), 0.01)
	assert.Equal(t, types.RiskLevelConservative, plan.RiskLevel)

	assert.InDelta(t, 0.5398419867, plan.Weights["compound"], 1e-9)
	assert.InDelta(t, 0.4601580133, plan.Weights["curve"], 1e-9)
	assert.Equal(t, 5398.42, plan.Recommendations["compound"])
	assert.Equal(t, 4601.58, plan.Recommendations["curve"])
	assert.Equal(t, 7.44, plan.ExpectedAPY)
	assert.Equal(t, 2.04, plan.ExpectedDaily)
	assert.Equal(t, 62.01, plan.ExpectedMonthly)
	assert.Equal(t, 1.96, plan.WeightedRiskScore)
	assert.Equal(t, 2.51, plan.SharpeLikeRatio)
	assert.Equal(t, 95.0, plan.Confidence)
	assert.Equal(t, 50.0, plan.DiversificationScore)
	assert.Equal(t, 744.16, plan.EstimatedAnnual)
	assert.Equal(t, 3.72, plan.EstimatedFees)
	assert.Equal(t, types.RiskLow, plan.RiskTolerance)
	assert.Equal(t, "multi_factor", plan.Policy)
	assert.Equal(t, fixedNow, plan.Timestamp)
}

func TestOptimize_HighRiskScenarioClampsAmountFactor(t *testing.T) {
	o := newTestOptimizer(t)

	plan, err := o.Optimize(50000, "high", catalogMetrics())
	require.NoError(t, err)

	assert.Len(t, plan.Weights, 4)
	assert.Equal(t, 2.0, plan.AmountFactor)
	assert.InDelta(t, 1.0, sumWeights(plan), 1e-9)
	assert.InDelta(t, 50000.0, sumAmounts(plan), 0.02)
	assert.Equal(t, 10.91, plan.ExpectedAPY)
	assert.Equal(t, 3.83, plan.WeightedRiskScore)
	assert.Equal(t, types.RiskLevelModerate, plan.RiskLevel)
	assert.Equal(t, 100.0, plan.DiversificationScore)
	assert.Equal(t, 92.59, plan.Confidence)

	atClamp, err := o.Optimize(20000, "high", catalogMetrics())
	require.NoError(t, err)
	for id, w := range atClamp.Weights {
		assert.InDelta(t, w, plan.Weights[id], 1e-12, "weights must not scale past the clamp (%s)", id)
	}
}

func TestAmountFactorBoundaries(t *testing.T) {
	params := config.DefaultOptimizerParameters
	assert.Equal(t, 0.5, AmountFactor(5000, params))
	assert.Equal(t, 1.0, AmountFactor(10000, params))
	assert.Equal(t, 2.0, AmountFactor(20000, params))
	assert.Equal(t, 2.0, AmountFactor(30000, params))

	o := newTestOptimizer(t)
	for _, amount := range []float64{10000, 20000, 30000} {
		plan, err := o.Optimize(amount, "medium", catalogMetrics())
		require.NoError(t, err)
		assert.Equal(t, AmountFactor(amount, params), plan.AmountFactor)
	}
}

func TestOptimize_WeightsSumToOne(t *testing.T) {
	o := newTestOptimizer(t)
	for _, tolerance := range []string{"low", "medium", "high", "unknown"} {
		for _, amount := range []float64{1, 999.99, 10000, 25000, 1e7} {
			plan, err := o.Optimize(amount, tolerance, catalogMetrics())
			require.NoError(t, err)
			assert.InDelta(t, 1.0, sumWeights(plan), 1e-9, "tolerance=%s amount=%f", tolerance, amount)
		}
	}
}

func TestOptimize_FirstPassCanExceedCap(t *testing.T) {
	o := newTestOptimizer(t)
	metrics := catalogMetrics()

	// compound's raw weight is under its 0.4 cap, but curve is the only other eligible protocol.
	plan, err := o.Optimize(10000, "low", metrics)
	require.NoError(t, err)
	assert.Greater(t, plan.Weights["compound"], metrics["compound"].MaxAllocation)
	assert.InDelta(t, 1.0, sumWeights(plan), 1e-9)

	// with all four protocols eligible no cap binds.
	plan, err = o.Optimize(15000, "high", metrics)
	require.NoError(t, err)
	for id, w := range plan.Weights {
		assert.LessOrEqual(t, w, metrics[id].MaxAllocation+1e-9, "protocol=%s", id)
	}
}

func TestOptimize_FloorTakesPrecedenceOverCap(t *testing.T) {
	o := newTestOptimizer(t)
	metrics := map[types.ProtocolID]types.ProtocolMetric{
		"x": metric("x", 1, 2.9, 1, 0.1, 0.15),
		"y": metric("y", 5, 1.0, 9, 0.9, 0.9),
		"z": metric("z", 4, 1.5, 9, 0.9, 0.9),
	}

	// x normalizes to 0.126, under its 0.15 cap. The low floor of 0.7/3 lifts it above the cap.
	plan, err := o.Optimize(10000, "low", metrics)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sumWeights(plan), 1e-9)
	assert.Greater(t, plan.Weights["x"], 0.15)
	assert.InDelta(t, 0.2107174033, plan.Weights["x"], 1e-9)
	assert.InDelta(t, 0.4220469441, plan.Weights["y"], 1e-9)
	assert.InDelta(t, 0.3672356526, plan.Weights["z"], 1e-9)
	assert.Equal(t, 3.79, plan.ExpectedAPY)
}

func TestOptimize_ExpectedAPYWithinAllocatedBounds(t *testing.T) {
	o := newTestOptimizer(t)
	metrics := catalogMetrics()
	for _, tolerance := range []string{"low", "medium", "high"} {
		plan, err := o.Optimize(12345.67, tolerance, metrics)
		require.NoError(t, err)

		minAPY, maxAPY := math.Inf(1), math.Inf(-1)
		for id := range plan.Weights {
			minAPY = math.Min(minAPY, metrics[id].APY)
			maxAPY = math.Max(maxAPY, metrics[id].APY)
		}
		assert.GreaterOrEqual(t, plan.ExpectedAPY, math.Floor(minAPY*100)/100)
		assert.LessOrEqual(t, plan.ExpectedAPY, math.Ceil(maxAPY*100)/100)
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	o := newTestOptimizer(t)
	metrics := catalogMetrics()

	first, err := o.Optimize(42000, "medium", metrics)
	require.NoError(t, err)
	second, err := o.Optimize(42000, "medium", metrics)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestOptimize_ConcurrentCallsAgree(t *testing.T) {
	o := newTestOptimizer(t)
	metrics := catalogMetrics()
	want, err := o.Optimize(30000, "high", metrics)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]types.PortfolioPlan, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = o.Optimize(30000, "high", metrics)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestOptimize_ExpectedAPYMonotonicInAmount(t *testing.T) {
	o := newTestOptimizer(t)
	for _, tolerance := range []string{"low", "medium", "high"} {
		previous := -1.0
		for _, amount := range []float64{100, 1000, 5000, 10000, 15000, 20000, 30000, 1e6} {
			plan, err := o.Optimize(amount, tolerance, catalogMetrics())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, plan.ExpectedAPY, previous, "tolerance=%s amount=%f", tolerance, amount)
			previous = plan.ExpectedAPY
		}
	}
}

func TestOptimize_InvalidAmount(t *testing.T) {
	o := newTestOptimizer(t)
	for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := o.Optimize(amount, "medium", catalogMetrics())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))

		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "amount", validationErr.Field)
	}
}

func TestOptimize_InvalidMetric(t *testing.T) {
	o := newTestOptimizer(t)

	metrics := catalogMetrics()
	broken := metrics["aave"]
	broken.RiskScore = 0
	metrics["aave"] = broken

	_, err := o.Optimize(1000, "medium", metrics)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "metrics[aave].risk_score", validationErr.Field)

	metrics = catalogMetrics()
	broken = metrics["curve"]
	broken.MaxAllocation = 1.5
	metrics["curve"] = broken
	_, err = o.Optimize(1000, "medium", metrics)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// a negative APY would otherwise yield a zero weight that no normalization can fix.
	metrics = map[types.ProtocolID]types.ProtocolMetric{
		"sinking": metric("sinking", -40, 1.0, 9, 0.5, 0.5),
	}
	plan, err := o.Optimize(1000, "low", metrics)
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "metrics[sinking].apy", validationErr.Field)
	assert.True(t, plan.IsEmpty())
}

func TestOptimize_UnknownToleranceDefaultsToMedium(t *testing.T) {
	o := newTestOptimizer(t)

	medium, err := o.Optimize(10000, "medium", catalogMetrics())
	require.NoError(t, err)
	unknown, err := o.Optimize(10000, "yolo", catalogMetrics())
	require.NoError(t, err)
	shouted, err := o.Optimize(10000, "  MEDIUM ", catalogMetrics())
	require.NoError(t, err)

	assert.Equal(t, medium, unknown)
	assert.Equal(t, medium, shouted)
	assert.Equal(t, types.RiskMedium, unknown.RiskTolerance)
	assert.Len(t, medium.Weights, 3)
}

func TestOptimize_EmptyPlanWhenNothingEligible(t *testing.T) {
	o := newTestOptimizer(t)
	metrics := map[types.ProtocolID]types.ProtocolMetric{
		"degen": metric("degen", 80, 9.5, 2, 0.5, 0.5),
	}

	plan, err := o.Optimize(10000, "low", metrics)
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
	assert.Empty(t, plan.Allocations)
	assert.Empty(t, plan.Recommendations)
	assert.Zero(t, plan.ExpectedAPY)
	assert.Zero(t, plan.ExpectedDaily)
	assert.Zero(t, plan.Confidence)
	assert.Zero(t, plan.DiversificationScore)

	plan, err = o.Optimize(10000, "medium", map[types.ProtocolID]types.ProtocolMetric{})
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
}

func TestOptimize_SingleEligibleProtocolTakesEverything(t *testing.T) {
	o := newTestOptimizer(t)
	metrics := map[types.ProtocolID]types.ProtocolMetric{
		"safe":  metric("safe", 4, 1.0, 9, 0.5, 0.3),
		"risky": metric("risky", 40, 9.0, 5, 0.5, 0.5),
	}

	plan, err := o.Optimize(1000, "low", metrics)
	require.NoError(t, err)
	require.Len(t, plan.Weights, 1)
	// normalization lifts the single weight past its 0.3 cap and the floor does not apply.
	assert.InDelta(t, 1.0, plan.Weights["safe"], 1e-12)
	assert.Equal(t, 1000.0, plan.Recommendations["safe"])
	assert.Equal(t, 1000.0, plan.Allocations[0].Amount)
	assert.Equal(t, 50.0, plan.DiversificationScore)
}

type equalWeightPolicy struct{}

func (equalWeightPolicy) Name() string { return "equal" }

func (equalWeightPolicy) Score(metric types.ProtocolMetric, _ types.RiskProfile) types.AllocationWeight {
	return types.AllocationWeight{ProtocolID: metric.ID, RiskAdjustedReturn: metric.APY / (metric.RiskScore + 1), AIWeight: 1}
}

func (equalWeightPolicy) RawWeight(score types.AllocationWeight, _ types.ProtocolMetric, _ float64) float64 {
	return score.AIWeight
}

func TestOptimize_PluggablePolicy(t *testing.T) {
	o := newTestOptimizer(t, WithPolicy(equalWeightPolicy{}))

	plan, err := o.Optimize(9000, "medium", catalogMetrics())
	require.NoError(t, err)
	assert.Equal(t, "equal", plan.Policy)
	for _, w := range plan.Weights {
		assert.InDelta(t, 1.0/3, w, 1e-12)
	}
}

func TestNewOptimizer_RejectsInvalidParameters(t *testing.T) {
	params := config.DefaultOptimizerParameters
	params.AmountNormalizer = 0
	params.StablePenalty = 2

	_, err := NewOptimizer(params)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidOptimizerParameters)
	assert.Contains(t, err.Error(), "AmountNormalizer")
	assert.Contains(t, err.Error(), "StablePenalty")
}
