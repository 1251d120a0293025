package dispatch

import (
	"context"
	"math"
	"time"

	"github.com/sony/gobreaker"
)

// FareConfig is the §4.5/§6 tunable fare pipeline configuration.
type FareConfig struct {
	BaseFare           float64
	PerKMRate          float64
	Currency           string
	WeightThresholdKG  float64 // > this and <= WeightThresholdHighKG draws WeightMidMultiplier
	WeightThresholdHighKG float64 // above this draws WeightMultiplier
	WeightMidMultiplier float64
	WeightMultiplier   float64
	SurgeMultiplier    float64 // applied outside the peak and late-night bands; 1 when <= 0
	SurgePeakStartHour    int
	SurgePeakEndHour      int
	SurgePeakMultiplier   float64
	SurgeLateNightStartHour int
	SurgeLateNightEndHour   int
	SurgeLateNightMultiplier float64
}

// DefaultFareConfig mirrors §4.5's stated defaults.
func DefaultFareConfig() FareConfig {
	return FareConfig{
		BaseFare:              25,
		PerKMRate:             8,
		Currency:              "INR",
		WeightThresholdKG:     5,
		WeightThresholdHighKG: 10,
		WeightMidMultiplier:   1.1,
		WeightMultiplier:      1.2,
		SurgeMultiplier:       1.0,
		SurgePeakStartHour:       8,
		SurgePeakEndHour:        10,
		SurgePeakMultiplier:      1.2,
		SurgeLateNightStartHour:  22,
		SurgeLateNightEndHour:    6,
		SurgeLateNightMultiplier: 1.3,
	}
}

// DistanceProvider is the external collaborator (C_map) §6 names: a
// routed-distance lookup, normally backed by a third-party maps API.
type DistanceProvider interface {
	Distance(ctx context.Context, origin, destination Coordinate) (km float64, err error)
}

// FareEngine computes the auditable FareBreakdown for a booking (C6/§4.5).
//
// Distance comes from an external DistanceProvider when one is configured,
// guarded by a circuit breaker so a degraded map API can't cascade into
// slow booking creation; Haversine is always the fallback, both when the
// breaker is open and when no provider is configured at all.
type FareEngine struct {
	cfg      FareConfig
	provider DistanceProvider
	breaker  *gobreaker.CircuitBreaker
}

// NewFareEngine builds a fare engine. provider may be nil, in which case
// distance is always computed via Haversine.
func NewFareEngine(cfg FareConfig, provider DistanceProvider) *FareEngine {
	var cb *gobreaker.CircuitBreaker
	if provider != nil {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "map-distance",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
			},
		})
	}
	return &FareEngine{cfg: cfg, provider: provider, breaker: cb}
}

// DistanceKM resolves the distance to bill for a pickup/dropoff pair,
// preferring the routed-distance provider and falling back to the
// straight-line Haversine distance on any failure or absent provider.
func (f *FareEngine) DistanceKM(ctx context.Context, pickup, dropoff Coordinate) float64 {
	if f.provider == nil {
		return HaversineMeters(pickup, dropoff) / 1000
	}
	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.provider.Distance(ctx, pickup, dropoff)
	})
	if err != nil {
		return HaversineMeters(pickup, dropoff) / 1000
	}
	return result.(float64)
}

// Compute runs the §4.5 pipeline: base + distance*rate, multiplied by the
// two-band weight surcharge, multiplied by the requestTime's local
// wall-clock surge band, rounded to whole rupees. Given identical
// (distanceKM, pkg, requestTime) the output is byte-identical (P9).
func (f *FareEngine) Compute(distanceKM float64, pkg Package, requestTime time.Time) FareBreakdown {
	subtotal := f.cfg.BaseFare + distanceKM*f.cfg.PerKMRate

	weightMult := f.weightMultiplier(pkg.WeightKG)
	surgeMult := f.surgeMultiplier(requestTime)

	total := math.Round(subtotal * weightMult * surgeMult)

	return FareBreakdown{
		BaseFare:         f.cfg.BaseFare,
		DistanceKM:       round2(distanceKM),
		PerKMRate:        f.cfg.PerKMRate,
		Subtotal:         round2(subtotal),
		WeightMultiplier: weightMult,
		SurgeMultiplier:  surgeMult,
		Total:            total,
		Currency:         f.cfg.Currency,
	}
}

// weightMultiplier applies the §4.5 step 2 two-band surcharge: above the
// high threshold draws the top multiplier, the band between the low and
// high thresholds draws the mid multiplier, at or below the low
// threshold draws none.
func (f *FareEngine) weightMultiplier(weightKG float64) float64 {
	switch {
	case weightKG > f.cfg.WeightThresholdHighKG:
		return f.cfg.WeightMultiplier
	case weightKG > f.cfg.WeightThresholdKG:
		return f.cfg.WeightMidMultiplier
	default:
		return 1.0
	}
}

// surgeMultiplier applies the §4.5 step 3 local wall-clock band: peak
// hours draw the peak multiplier, the late-night band (which wraps past
// midnight) draws the late-night multiplier, everything else draws the
// configured floor (defaulting to 1 when unset or non-positive).
func (f *FareEngine) surgeMultiplier(requestTime time.Time) float64 {
	hour := requestTime.Local().Hour()
	switch {
	case hour >= f.cfg.SurgePeakStartHour && hour < f.cfg.SurgePeakEndHour:
		return f.cfg.SurgePeakMultiplier
	case inWrappingHourBand(hour, f.cfg.SurgeLateNightStartHour, f.cfg.SurgeLateNightEndHour):
		return f.cfg.SurgeLateNightMultiplier
	default:
		floor := f.cfg.SurgeMultiplier
		if floor <= 0 {
			floor = 1.0
		}
		return floor
	}
}

// inWrappingHourBand reports whether hour falls in [start, end) where the
// band may wrap past midnight (e.g. 22 -> 6).
func inWrappingHourBand(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
