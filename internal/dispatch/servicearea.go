package dispatch

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the WGS-84 mean sphere radius used for the
// Haversine distance per §4.3.
const earthRadiusMeters = 6371000.0

// ServiceAreaConfig is the centre + annulus configuration of §4.3/§6.
type ServiceAreaConfig struct {
	CenterLat        float64
	CenterLng        float64
	CenterName       string
	RadiusMinMeters  float64
	RadiusMaxMeters  float64
	WarningThreshold float64
	Strict           bool
}

// ServiceArea is the C4 validator.
type ServiceArea struct {
	cfg ServiceAreaConfig
}

func NewServiceArea(cfg ServiceAreaConfig) *ServiceArea {
	return &ServiceArea{cfg: cfg}
}

func (s *ServiceArea) Config() ServiceAreaConfig { return s.cfg }

// HaversineMeters returns the great-circle distance between two points
// in metres, using the WGS-84 sphere approximation (§4.3).
func HaversineMeters(a, b Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLng := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(math.Min(1, h)))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// DistanceFromCenter returns the point's distance from the configured
// centre, in metres.
func (s *ServiceArea) DistanceFromCenter(p Coordinate) float64 {
	return HaversineMeters(Coordinate{Latitude: s.cfg.CenterLat, Longitude: s.cfg.CenterLng}, p)
}

// Membership describes the result of a single-point check.
type Membership struct {
	DistanceMeters float64
	Valid          bool
	Warning        bool
}

// Check reports whether p is within [radius_min, radius_max] of the
// configured centre, and whether it is in the warning band.
func (s *ServiceArea) Check(p Coordinate) Membership {
	d := s.DistanceFromCenter(p)
	valid := d >= s.cfg.RadiusMinMeters && d <= s.cfg.RadiusMaxMeters
	warning := valid && d >= s.cfg.WarningThreshold
	return Membership{DistanceMeters: d, Valid: valid, Warning: warning}
}

// ValidateBooking validates both pickup and dropoff, failing on whichever
// is out of area first and naming the offending endpoint (§4.3).
func (s *ServiceArea) ValidateBooking(pickup, dropoff Coordinate) error {
	if m := s.Check(pickup); !m.Valid {
		return fmt.Errorf("%w: Pickup is %.0fm from %s, outside the service area",
			ErrServiceAreaViolation, m.DistanceMeters, s.cfg.CenterName)
	}
	if m := s.Check(dropoff); !m.Valid {
		return fmt.Errorf("%w: Dropoff is %.0fm from %s, outside the service area",
			ErrServiceAreaViolation, m.DistanceMeters, s.cfg.CenterName)
	}
	return nil
}

// ValidateDriverGoOnline refuses to let a driver flip isOnline=true
// while outside the area, but only when strict mode is configured.
func (s *ServiceArea) ValidateDriverGoOnline(loc Coordinate) error {
	if !s.cfg.Strict {
		return nil
	}
	if m := s.Check(loc); !m.Valid {
		return fmt.Errorf("%w: driver location is %.0fm from %s, outside the service area",
			ErrServiceAreaViolation, m.DistanceMeters, s.cfg.CenterName)
	}
	return nil
}

// RouteCheckResult summarizes a sampled-route validation (§4.3).
type RouteCheckResult struct {
	TotalPoints   int
	ValidPoints   int
	WarningPoints int
	InvalidPoints int
}

// ValidateRoute iterates sampled route points and reports counts,
// rather than failing on the first violation — routes may legitimately
// pass briefly through the warning band.
func (s *ServiceArea) ValidateRoute(points []Coordinate) RouteCheckResult {
	var res RouteCheckResult
	res.TotalPoints = len(points)
	for _, p := range points {
		m := s.Check(p)
		if m.Valid {
			res.ValidPoints++
			if m.Warning {
				res.WarningPoints++
			}
		} else {
			res.InvalidPoints++
		}
	}
	return res
}
