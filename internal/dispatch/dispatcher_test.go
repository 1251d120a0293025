package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchEngineCandidatesRanksNearestFirst(t *testing.T) {
	repo := newFakeRepository()
	pool := &fakeDriverPool{repo: repo}
	engine := NewDispatchEngine(pool, NewGeoIndex())

	pickup := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	near := onlineDriver("near")
	near.CurrentLocation = &Coordinate{Latitude: 12.9720, Longitude: 77.5950}
	far := onlineDriver("far")
	far.CurrentLocation = &Coordinate{Latitude: 12.9900, Longitude: 77.6400}
	require.NoError(t, repo.SaveDriver(nil, near))
	require.NoError(t, repo.SaveDriver(nil, far))

	candidates, err := engine.Candidates("b1", pickup)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "near", candidates[0].Driver.UserID)
	assert.Equal(t, "far", candidates[1].Driver.UserID)
}

func TestDispatchEngineCandidatesExcludesRejected(t *testing.T) {
	repo := newFakeRepository()
	pool := &fakeDriverPool{repo: repo}
	engine := NewDispatchEngine(pool, NewGeoIndex())

	drv := onlineDriver("drv1")
	require.NoError(t, repo.SaveDriver(nil, drv))
	require.NoError(t, repo.RecordRejection(nil, RejectionRecord{BookingID: "b1", DriverID: "drv1"}))

	candidates, err := engine.Candidates("b1", Coordinate{Latitude: 12.9716, Longitude: 77.5946})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDispatchEngineCandidatesExcludesDriversWithoutLocation(t *testing.T) {
	repo := newFakeRepository()
	pool := &fakeDriverPool{repo: repo}
	engine := NewDispatchEngine(pool, NewGeoIndex())

	drv := onlineDriver("drv1")
	drv.CurrentLocation = nil
	require.NoError(t, repo.SaveDriver(nil, drv))

	candidates, err := engine.Candidates("b1", Coordinate{Latitude: 12.9716, Longitude: 77.5946})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDispatchEngineCandidatesExcludesBeyondRadius(t *testing.T) {
	repo := newFakeRepository()
	pool := &fakeDriverPool{repo: repo}
	engine := NewDispatchEngine(pool, NewGeoIndex())
	engine.radiusM = 1000

	drv := onlineDriver("drv1")
	drv.CurrentLocation = &Coordinate{Latitude: 13.5, Longitude: 78.2}
	require.NoError(t, repo.SaveDriver(nil, drv))

	candidates, err := engine.Candidates("b1", Coordinate{Latitude: 12.9716, Longitude: 77.5946})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDispatchEngineCandidatesStaleGeoIndexNeverLosesAMatch(t *testing.T) {
	repo := newFakeRepository()
	pool := &fakeDriverPool{repo: repo}
	geoIndex := NewGeoIndex()
	engine := NewDispatchEngine(pool, geoIndex)

	// Driver exists in the authoritative pool but was never (or is no
	// longer) reflected in the advisory geo index.
	drv := onlineDriver("drv1")
	require.NoError(t, repo.SaveDriver(nil, drv))
	geoIndex.Update("someone-else", Coordinate{Latitude: 12.9716, Longitude: 77.5946})

	candidates, err := engine.Candidates("b1", Coordinate{Latitude: 12.9716, Longitude: 77.5946})
	require.NoError(t, err)
	assert.Len(t, candidates, 1, "drv1 has no index entry, so the hint for someone-else's cell must not filter it out")

	// With nothing at all in the index for the pickup cell's ring, the
	// hint map is nil and the full authoritative pool is used.
	emptyIndex := NewGeoIndex()
	engine2 := NewDispatchEngine(pool, emptyIndex)
	candidates, err = engine2.Candidates("b1", Coordinate{Latitude: 12.9716, Longitude: 77.5946})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestDispatchEngineBestReturnsFalseWhenNoneQualify(t *testing.T) {
	repo := newFakeRepository()
	pool := &fakeDriverPool{repo: repo}
	engine := NewDispatchEngine(pool, NewGeoIndex())

	_, ok, err := engine.Best("b1", Coordinate{Latitude: 12.9716, Longitude: 77.5946})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatchEngineUpdateAndRemoveLocation(t *testing.T) {
	repo := newFakeRepository()
	pool := &fakeDriverPool{repo: repo}
	geoIndex := NewGeoIndex()
	engine := NewDispatchEngine(pool, geoIndex)

	loc := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	engine.UpdateLocation("drv1", loc)
	assert.Contains(t, geoIndex.CandidatesNear(loc), "drv1")

	engine.RemoveLocation("drv1")
	assert.NotContains(t, geoIndex.CandidatesNear(loc), "drv1")
}

func TestBuildNotificationNormalizesLatLng(t *testing.T) {
	b := &Booking{
		ID:          "b1",
		Pickup:      Address{Location: Coordinate{Latitude: 1, Longitude: 2}},
		Dropoff:     Address{Location: Coordinate{Latitude: 3, Longitude: 4}},
		VehicleType: TwoWheeler,
		Fare:        FareBreakdown{Total: 99},
		DistanceKM:  5,
	}
	n := BuildNotification(b)
	assert.Equal(t, LatLng{Lat: 1, Lng: 2}, n.Pickup)
	assert.Equal(t, LatLng{Lat: 3, Lng: 4}, n.Dropoff)
	assert.Equal(t, 99.0, n.Fare)
}
