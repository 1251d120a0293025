package dispatch

import "sort"

// DefaultNotificationRadiusMeters matches the service area's outer bound
// for consistency, per §4.7.
const DefaultNotificationRadiusMeters = 25000

// DriverPool is the read side the dispatch engine needs over the
// authoritative driver set and rejection history.
type DriverPool interface {
	OnlineAvailableVerifiedDrivers() []*User
	RejectedDrivers(bookingID string) (map[string]bool, error)
}

// Candidate is one eligible driver ranked against a pickup point.
type Candidate struct {
	Driver       *User
	DistanceKM   float64
	WithinRadius bool
}

// DispatchEngine discovers and ranks eligible drivers for a booking (C7).
// It never assigns a booking directly — assignment is always performed
// through the booking core's atomic Accept (§4.6).
type DispatchEngine struct {
	pool      DriverPool
	geoIndex  *GeoIndex
	radiusM   float64
}

func NewDispatchEngine(pool DriverPool, geoIndex *GeoIndex) *DispatchEngine {
	return &DispatchEngine{pool: pool, geoIndex: geoIndex, radiusM: DefaultNotificationRadiusMeters}
}

// Candidates returns every eligible, non-rejected driver within the
// notification radius of pickup, nearest first. The geo index is used
// only to shrink the scan when it holds entries; the eligibility and
// distance filters are always re-applied against the authoritative pool,
// so a stale or empty index never produces a wrong result, only a slower
// one.
func (d *DispatchEngine) Candidates(bookingID string, pickup Coordinate) ([]Candidate, error) {
	rejected, err := d.pool.RejectedDrivers(bookingID)
	if err != nil {
		return nil, err
	}

	drivers := d.pool.OnlineAvailableVerifiedDrivers()

	var hinted map[string]bool
	if d.geoIndex != nil {
		ids := d.geoIndex.CandidatesNear(pickup)
		if len(ids) > 0 {
			hinted = make(map[string]bool, len(ids))
			for _, id := range ids {
				hinted[id] = true
			}
		}
	}

	var out []Candidate
	for _, drv := range drivers {
		if rejected[drv.UserID] {
			continue
		}
		if drv.CurrentLocation == nil {
			continue
		}
		if hinted != nil && !hinted[drv.UserID] {
			if _, indexed := d.geoIndex.driverCell[drv.UserID]; indexed {
				continue
			}
		}
		distM := HaversineMeters(*drv.CurrentLocation, pickup)
		if distM > d.radiusM {
			continue
		}
		out = append(out, Candidate{
			Driver:       drv,
			DistanceKM:   distM / 1000,
			WithinRadius: true,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].DistanceKM, out[j].DistanceKM
		if abs(di-dj) <= 1.0 {
			if out[i].Driver.Rating != out[j].Driver.Rating {
				return out[i].Driver.Rating > out[j].Driver.Rating
			}
			return out[i].Driver.TripCount > out[j].Driver.TripCount
		}
		return di < dj
	})

	return out, nil
}

// UpdateLocation refreshes a driver's entry in the geo prefilter index.
// It is a hint only — Candidates always re-validates against the
// authoritative pool, so a missed or stale update can only cost speed.
func (d *DispatchEngine) UpdateLocation(driverID string, loc Coordinate) {
	if d.geoIndex != nil {
		d.geoIndex.Update(driverID, loc)
	}
}

// RemoveLocation drops a driver from the geo prefilter index, typically
// once they go offline.
func (d *DispatchEngine) RemoveLocation(driverID string) {
	if d.geoIndex != nil {
		d.geoIndex.Remove(driverID)
	}
}

// Best returns the single top-ranked candidate, or false if none qualify.
func (d *DispatchEngine) Best(bookingID string, pickup Coordinate) (Candidate, bool, error) {
	candidates, err := d.Candidates(bookingID, pickup)
	if err != nil || len(candidates) == 0 {
		return Candidate{}, false, err
	}
	return candidates[0], true, nil
}

// NotificationPayload is the booking descriptor sent to each candidate
// driver, with geopoints normalized to plain {lat,lng} pairs (§9).
type NotificationPayload struct {
	BookingID   string      `json:"bookingId"`
	Pickup      LatLng      `json:"pickup"`
	Dropoff     LatLng      `json:"dropoff"`
	VehicleType VehicleType `json:"vehicleType"`
	Fare        float64     `json:"fare"`
	DistanceKM  float64     `json:"distanceKm"`
}

// LatLng is the normalized geopoint shape wire consumers expect (§9),
// independent of whichever internal Coordinate shape produced it.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func toLatLng(c Coordinate) LatLng { return LatLng{Lat: c.Latitude, Lng: c.Longitude} }

// BuildNotification constructs the candidate-facing payload for a booking.
func BuildNotification(b *Booking) NotificationPayload {
	return NotificationPayload{
		BookingID:   b.ID,
		Pickup:      toLatLng(b.Pickup.Location),
		Dropoff:     toLatLng(b.Dropoff.Location),
		VehicleType: b.VehicleType,
		Fare:        b.Fare.Total,
		DistanceKM:  b.DistanceKM,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
