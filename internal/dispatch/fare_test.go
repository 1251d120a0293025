package dispatch

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// offPeak is a fixed wall-clock time outside both the peak and
// late-night surge bands, so tests that aren't exercising surge
// behavior get a neutral 1.0 multiplier.
func offPeak() time.Time {
	return time.Date(2026, 7, 31, 14, 0, 0, 0, time.Local)
}

func TestFareEngineComputeBaseAndDistance(t *testing.T) {
	f := NewFareEngine(FareConfig{
		BaseFare: 25, PerKMRate: 8, Currency: "INR",
		WeightThresholdKG: 5, WeightThresholdHighKG: 10,
		WeightMidMultiplier: 1.1, WeightMultiplier: 1.2, SurgeMultiplier: 1.0,
	}, nil)

	b := f.Compute(10, Package{WeightKG: 2}, offPeak())
	assert.Equal(t, 25.0, b.BaseFare)
	assert.Equal(t, 10.0, b.DistanceKM)
	assert.Equal(t, 105.0, b.Subtotal) // 25 + 10*8
	assert.Equal(t, 1.0, b.WeightMultiplier)
	assert.Equal(t, 105.0, b.Total)
	assert.Equal(t, "INR", b.Currency)
}

func TestFareEngineComputeWeightSurchargeBands(t *testing.T) {
	f := NewFareEngine(DefaultFareConfig(), nil)

	light := f.Compute(5, Package{WeightKG: 5}, offPeak())
	assert.Equal(t, 1.0, light.WeightMultiplier)

	mid := f.Compute(5, Package{WeightKG: 7}, offPeak())
	assert.Equal(t, 1.1, mid.WeightMultiplier)

	midBoundary := f.Compute(5, Package{WeightKG: 10}, offPeak())
	assert.Equal(t, 1.1, midBoundary.WeightMultiplier)

	heavy := f.Compute(5, Package{WeightKG: 10.01}, offPeak())
	assert.Equal(t, 1.2, heavy.WeightMultiplier)
	assert.Equal(t, math.Round(light.Subtotal*1.2), heavy.Total)
}

func TestFareEngineComputeSurgePeakBand(t *testing.T) {
	f := NewFareEngine(DefaultFareConfig(), nil)
	peak := time.Date(2026, 7, 31, 9, 0, 0, 0, time.Local)

	b := f.Compute(10, Package{WeightKG: 1}, peak)
	assert.Equal(t, 1.2, b.SurgeMultiplier)
	assert.Equal(t, math.Round((25.0+10*8)*1.2), b.Total)
}

func TestFareEngineComputeSurgeLateNightBandWrapsMidnight(t *testing.T) {
	f := NewFareEngine(DefaultFareConfig(), nil)

	lateEvening := f.Compute(1, Package{}, time.Date(2026, 7, 31, 23, 0, 0, 0, time.Local))
	assert.Equal(t, 1.3, lateEvening.SurgeMultiplier)

	earlyMorning := f.Compute(1, Package{}, time.Date(2026, 7, 31, 3, 0, 0, 0, time.Local))
	assert.Equal(t, 1.3, earlyMorning.SurgeMultiplier)
}

func TestFareEngineComputeSurgeOffBandUsesFloor(t *testing.T) {
	cfg := DefaultFareConfig()
	f := NewFareEngine(cfg, nil)

	b := f.Compute(10, Package{WeightKG: 1}, offPeak())
	assert.Equal(t, 1.0, b.SurgeMultiplier)
}

func TestFareEngineComputeSurgeMultiplierFloorsToOneWhenNonPositive(t *testing.T) {
	cfg := DefaultFareConfig()
	cfg.SurgeMultiplier = 0
	f := NewFareEngine(cfg, nil)

	b := f.Compute(1, Package{}, offPeak())
	assert.Equal(t, 1.0, b.SurgeMultiplier)
}

func TestFareEngineComputeRoundsTotalToWholeRupees(t *testing.T) {
	cfg := FareConfig{BaseFare: 10, PerKMRate: 3.333, Currency: "INR", SurgeMultiplier: 1}
	f := NewFareEngine(cfg, nil)
	b := f.Compute(3, Package{}, offPeak())
	assert.Equal(t, math.Round(10+3*3.333), b.Total)
	assert.Equal(t, math.Trunc(b.Total), b.Total, "total must be a whole rupee amount")
}

type fakeDistanceProvider struct {
	km  float64
	err error
}

func (p *fakeDistanceProvider) Distance(ctx context.Context, origin, destination Coordinate) (float64, error) {
	return p.km, p.err
}

func TestFareEngineDistanceKMWithoutProviderUsesHaversine(t *testing.T) {
	f := NewFareEngine(DefaultFareConfig(), nil)
	a := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	b := Coordinate{Latitude: 12.9352, Longitude: 77.6245}
	assert.InDelta(t, HaversineMeters(a, b)/1000, f.DistanceKM(context.Background(), a, b), 1e-9)
}

func TestFareEngineDistanceKMPrefersProvider(t *testing.T) {
	provider := &fakeDistanceProvider{km: 42}
	f := NewFareEngine(DefaultFareConfig(), provider)
	a := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	b := Coordinate{Latitude: 12.9352, Longitude: 77.6245}
	assert.Equal(t, 42.0, f.DistanceKM(context.Background(), a, b))
}

func TestFareEngineDistanceKMFallsBackOnProviderError(t *testing.T) {
	provider := &fakeDistanceProvider{err: errors.New("map api down")}
	f := NewFareEngine(DefaultFareConfig(), provider)
	a := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	b := Coordinate{Latitude: 12.9352, Longitude: 77.6245}
	got := f.DistanceKM(context.Background(), a, b)
	assert.InDelta(t, HaversineMeters(a, b)/1000, got, 1e-9)
}

func TestFareEngineDistanceKMBreakerOpensAfterRepeatedFailures(t *testing.T) {
	provider := &fakeDistanceProvider{err: errors.New("map api down")}
	f := NewFareEngine(DefaultFareConfig(), provider)
	a := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	b := Coordinate{Latitude: 12.9352, Longitude: 77.6245}

	for i := 0; i < 5; i++ {
		f.DistanceKM(context.Background(), a, b)
	}
	provider.err = nil
	provider.km = 99
	got := f.DistanceKM(context.Background(), a, b)
	assert.InDelta(t, HaversineMeters(a, b)/1000, got, 1e-9, "breaker should be open and still falling back to haversine")
}
