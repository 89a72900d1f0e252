/*

This file contains the protocol metric retriever.

Each protocol API is queried with retries behind its own circuit breaker. Only APY and TVL are taken from the
response; every other optimizer input comes from the catalog. Any protocol that cannot be fetched is filled with
its catalog fallback, so Fetch always returns a complete snapshot.

*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/logger"
	"github.com/elys-network/yield-aggregator/internal/metrics"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/sony/gobreaker"
)

var retrieverLogger = logger.GetForComponent("protocol_retriever")

var ErrProtocolUnavailable = errors.New("protocol data unavailable")
var ErrMarketNotFound = errors.New("USDC market not found in protocol response")
var ErrInvalidProtocolData = errors.New("invalid protocol data")
var ErrUnknownProtocol = errors.New("no extractor registered for protocol")

const (
	MAX_RETRIES      = 3
	RETRY_BASE_DELAY = time.Second
	MAX_BODY_BYTES   = 16 << 20
	DEFAULT_TIMEOUT  = 10 * time.Second
)

// Provider supplies protocol metrics to the optimizer.
// The returned snapshot is always complete; a non-nil error only reports which protocols fell back.
type Provider interface {
	Fetch(ctx context.Context) (types.MetricsSnapshot, error)
}

// ProtocolRetriever fetches live protocol metrics over HTTP.
type ProtocolRetriever struct {
	client     *http.Client
	catalog    []config.ProtocolSpec
	extractors map[types.ProtocolID]extractor
	breakers   map[types.ProtocolID]*gobreaker.CircuitBreaker
	retryDelay time.Duration
	now        func() time.Time
}

// NewProtocolRetriever builds a retriever for the catalog. A nil client gets a DEFAULT_TIMEOUT client.
func NewProtocolRetriever(client *http.Client, catalog []config.ProtocolSpec) *ProtocolRetriever {
	if client == nil {
		client = &http.Client{Timeout: DEFAULT_TIMEOUT}
	}
	r := &ProtocolRetriever{
		client:     client,
		catalog:    catalog,
		extractors: defaultExtractors(),
		breakers:   make(map[types.ProtocolID]*gobreaker.CircuitBreaker, len(catalog)),
		retryDelay: RETRY_BASE_DELAY,
		now:        time.Now,
	}
	for _, spec := range catalog {
		r.breakers[spec.ID] = newBreaker("protocol_" + string(spec.ID))
	}
	return r
}

// Fetch queries every protocol in catalog order and substitutes fallbacks for failures.
func (r *ProtocolRetriever) Fetch(ctx context.Context) (types.MetricsSnapshot, error) {
	snapshot := types.MetricsSnapshot{
		Protocols: make(map[types.ProtocolID]types.ProtocolMetric, len(r.catalog)),
		FetchedAt: r.now().UTC(),
	}

	var errs []error
	for _, spec := range r.catalog {
		metric := spec.FallbackMetric()

		apy, tvl, err := r.fetchProtocol(ctx, spec)
		if err != nil {
			retrieverLogger.Warn().
				Err(err).
				Str("protocol", string(spec.ID)).
				Float64("fallbackAPY", spec.FallbackAPY).
				Msg("Using fallback metrics for protocol")
			errs = append(errs, fmt.Errorf("%s: %w", spec.ID, err))
		} else {
			metric.APY = apy
			if tvl > 0 {
				metric.TVL = tvl
			}
			metric.Source = types.SourceLive
		}

		metrics.ProtocolFetchTotal.WithLabelValues(string(spec.ID), string(metric.Source)).Inc()
		metrics.ProtocolAPY.WithLabelValues(string(spec.ID)).Set(metric.APY)
		snapshot.Protocols[spec.ID] = metric
	}

	retrieverLogger.Info().
		Int("protocols", len(snapshot.Protocols)).
		Int("live", snapshot.LiveCount()).
		Msg("Protocol snapshot fetched")

	if len(errs) > 0 {
		return snapshot, errors.Join(ErrProtocolUnavailable, errors.Join(errs...))
	}
	return snapshot, nil
}

func (r *ProtocolRetriever) fetchProtocol(ctx context.Context, spec config.ProtocolSpec) (float64, float64, error) {
	extract, ok := r.extractors[spec.ID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownProtocol, spec.ID)
	}
	if spec.Endpoint == "" {
		return 0, 0, fmt.Errorf("%w: no endpoint configured", ErrProtocolUnavailable)
	}

	breaker := r.breakers[spec.ID]
	result, err := breaker.Execute(func() (interface{}, error) {
		return r.fetchWithRetries(ctx, spec, extract)
	})
	if err != nil {
		return 0, 0, err
	}
	reading := result.(protocolReading)
	return reading.apy, reading.tvl, nil
}

func (r *ProtocolRetriever) fetchWithRetries(ctx context.Context, spec config.ProtocolSpec, extract extractor) (protocolReading, error) {
	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		retrieverLogger.Debug().
			Str("protocol", string(spec.ID)).
			Int("attempt", attempt).
			Int("maxRetries", MAX_RETRIES).
			Msg("Making API request")

		body, err := r.get(ctx, spec.Endpoint)
		if err == nil {
			var reading protocolReading
			reading, err = extract(body)
			if err == nil {
				err = validateReading(reading)
			}
			if err == nil {
				return reading, nil
			}
		}
		lastErr = err

		// Malformed data will not fix itself on retry.
		if errors.Is(err, ErrMarketNotFound) || errors.Is(err, ErrInvalidProtocolData) {
			break
		}
		if attempt < MAX_RETRIES {
			select {
			case <-ctx.Done():
				return protocolReading{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.retryDelay):
			}
		}
	}
	return protocolReading{}, lastErr
}

func (r *ProtocolRetriever) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch protocol data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API returned status %d", ErrProtocolUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MAX_BODY_BYTES))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrInvalidProtocolData)
	}
	return body, nil
}

func validateReading(reading protocolReading) error {
	if math.IsNaN(reading.apy) || math.IsInf(reading.apy, 0) || reading.apy < 0 {
		return fmt.Errorf("%w: apy %f", ErrInvalidProtocolData, reading.apy)
	}
	if math.IsNaN(reading.tvl) || math.IsInf(reading.tvl, 0) || reading.tvl < 0 {
		return fmt.Errorf("%w: tvl %f", ErrInvalidProtocolData, reading.tvl)
	}
	return nil
}

// newBreaker trips after at least 3 requests with a 60% failure ratio and probes again after a minute.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			retrieverLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// StaticProvider serves the catalog fallbacks without any network access.
type StaticProvider struct {
	Catalog []config.ProtocolSpec
	Now     func() time.Time
}

func (p StaticProvider) Fetch(context.Context) (types.MetricsSnapshot, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return types.MetricsSnapshot{
		Protocols: config.FallbackMetrics(p.Catalog),
		FetchedAt: now().UTC(),
	}, nil
}
