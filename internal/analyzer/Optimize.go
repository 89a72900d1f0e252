/*

This file contains the allocation optimizer entry point.

Optimize is a pure computation over the metrics it is given: it performs no I/O, holds no mutable state
and is safe to call concurrently. Apart from the timestamp, identical inputs produce identical plans.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/logger"
	"github.com/elys-network/yield-aggregator/internal/types"
)

var optimizerLogger = logger.GetForComponent("optimizer")

// ErrInvalidInput is wrapped by every ValidationError.
var ErrInvalidInput = errors.New("invalid optimizer input")

// ValidationError reports a rejected optimizer input.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Optimizer produces portfolio plans with a pluggable allocation policy.
type Optimizer struct {
	policy AllocationPolicy
	params types.OptimizerParameters
	now    func() time.Time
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithPolicy replaces the default multi-factor policy.
func WithPolicy(policy AllocationPolicy) Option {
	return func(o *Optimizer) { o.policy = policy }
}

// WithClock sets the clock used for plan timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) { o.now = now }
}

// NewOptimizer validates params and builds an optimizer using the multi-factor policy unless overridden.
func NewOptimizer(params types.OptimizerParameters, opts ...Option) (*Optimizer, error) {
	if err := config.ValidateOptimizerParameters(params); err != nil {
		return nil, err
	}
	o := &Optimizer{
		policy: NewMultiFactorPolicy(params),
		params: params,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// PolicyName returns the name of the active allocation policy.
func (o *Optimizer) PolicyName() string {
	return o.policy.Name()
}

type scoredProtocol struct {
	metric types.ProtocolMetric
	score  types.AllocationWeight
}

// Optimize computes the allocation of amount across the protocols in metrics for the given risk tolerance.
// Unknown tolerance labels resolve to medium. An empty plan (no weights, zero metrics) is returned when no
// protocol is eligible even at the safe threshold.
func (o *Optimizer) Optimize(amount float64, riskTolerance string, metrics map[types.ProtocolID]types.ProtocolMetric) (types.PortfolioPlan, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return types.PortfolioPlan{}, &ValidationError{Field: "amount", Value: amount, Reason: "must be a finite number"}
	}
	if amount <= 0 {
		return types.PortfolioPlan{}, &ValidationError{Field: "amount", Value: amount, Reason: "must be positive"}
	}

	normalized, err := normalizeMetrics(metrics)
	if err != nil {
		return types.PortfolioPlan{}, err
	}

	profile := config.ResolveRiskProfile(riskTolerance)
	amountFactor := AmountFactor(amount, o.params)

	plan := types.PortfolioPlan{
		Policy:          o.policy.Name(),
		RiskTolerance:   profile.Tolerance,
		Amount:          amount,
		AmountFactor:    amountFactor,
		Weights:         map[types.ProtocolID]float64{},
		Recommendations: map[types.ProtocolID]float64{},
		Allocations:     []types.ProtocolAllocation{},
		Timestamp:       o.now().UTC(),
	}

	eligible := FilterEligible(normalized, profile, o.params.SafeRiskThreshold)
	if len(eligible) == 0 {
		optimizerLogger.Warn().
			Str("riskTolerance", string(profile.Tolerance)).
			Int("catalogSize", len(normalized)).
			Msg("No eligible protocol, returning empty plan")
		plan.RiskLevel = PortfolioRiskLevel(0)
		return plan, nil
	}

	scored := make([]scoredProtocol, len(eligible))
	for i, metric := range eligible {
		scored[i] = scoredProtocol{metric: metric, score: o.policy.Score(metric, profile)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score.RiskAdjustedReturn != scored[j].score.RiskAdjustedReturn {
			return scored[i].score.RiskAdjustedReturn > scored[j].score.RiskAdjustedReturn
		}
		return scored[i].metric.ID < scored[j].metric.ID
	})

	ordered := make([]types.ProtocolMetric, len(scored))
	raw := make([]float64, len(scored))
	plan.Scores = make(map[types.ProtocolID]types.AllocationWeight, len(scored))
	for i, s := range scored {
		ordered[i] = s.metric
		raw[i] = o.policy.RawWeight(s.score, s.metric, amountFactor)
		plan.Scores[s.metric.ID] = s.score
	}

	weights := ApplyDiversificationFloor(Normalize(raw), profile.MinDiversification)

	AggregatePortfolio(&plan, ordered, weights, len(normalized), o.params)

	optimizerLogger.Debug().
		Str("riskTolerance", string(profile.Tolerance)).
		Float64("amount", amount).
		Float64("amountFactor", amountFactor).
		Int("eligible", len(ordered)).
		Float64("expectedAPY", plan.ExpectedAPY).
		Str("riskLevel", plan.RiskLevel).
		Msg("Portfolio plan computed")

	return plan, nil
}

// normalizeMetrics validates every metric and fills in missing IDs from the map keys.
func normalizeMetrics(metrics map[types.ProtocolID]types.ProtocolMetric) (map[types.ProtocolID]types.ProtocolMetric, error) {
	ids := make([]types.ProtocolID, 0, len(metrics))
	for id := range metrics {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	normalized := make(map[types.ProtocolID]types.ProtocolMetric, len(metrics))
	for _, id := range ids {
		metric := metrics[id]
		if metric.ID == "" {
			metric.ID = id
		}
		if err := validateMetric(metric); err != nil {
			return nil, err
		}
		normalized[id] = metric
	}
	return normalized, nil
}

func validateMetric(metric types.ProtocolMetric) error {
	field := "metrics[" + string(metric.ID) + "]"
	numeric := []struct {
		name  string
		value float64
	}{
		{"apy", metric.APY},
		{"risk_score", metric.RiskScore},
		{"liquidity_score", metric.LiquidityScore},
		{"diversification_benefit", metric.DiversificationBenefit},
		{"max_allocation", metric.MaxAllocation},
	}
	for _, n := range numeric {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return &ValidationError{Field: field + "." + n.name, Value: n.value, Reason: "must be a finite number"}
		}
	}
	if metric.APY < 0 {
		return &ValidationError{Field: field + ".apy", Value: metric.APY, Reason: "cannot be negative"}
	}
	if metric.RiskScore <= 0 {
		return &ValidationError{Field: field + ".risk_score", Value: metric.RiskScore, Reason: "must be positive"}
	}
	if metric.MaxAllocation <= 0 || metric.MaxAllocation > 1 {
		return &ValidationError{Field: field + ".max_allocation", Value: metric.MaxAllocation, Reason: "must be in (0, 1]"}
	}
	return nil
}
