package dispatch

import (
	"github.com/uber/h3-go/v4"
)

// candidateIndexResolution is the H3 cell resolution used for candidate
// prefiltering: resolution 8 cells are roughly 0.7km² median, fine enough
// to shrink a city's driver pool without fragmenting it per §4.3's
// "non-authoritative" note.
const candidateIndexResolution = 8

// GeoIndex maintains an H3 cell -> driver-id index so the dispatch
// engine can shrink its candidate set before running the authoritative
// Haversine ranking (§4.3, §4.7). The index is advisory: a driver with no
// entry in it is never the reason a correct match is missed, because
// Candidates keeps every pool driver the index holds no cell for and
// falls back to the full driver set when the index returns nothing.
type GeoIndex struct {
	cellDrivers map[h3.Cell]map[string]struct{}
	driverCell  map[string]h3.Cell
}

func NewGeoIndex() *GeoIndex {
	return &GeoIndex{
		cellDrivers: make(map[h3.Cell]map[string]struct{}),
		driverCell:  make(map[string]h3.Cell),
	}
}

func cellFor(c Coordinate) h3.Cell {
	return h3.LatLngToCell(h3.LatLng{Lat: c.Latitude, Lng: c.Longitude}, candidateIndexResolution)
}

// Update moves a driver to the cell containing its current location,
// removing any prior placement.
func (g *GeoIndex) Update(driverID string, loc Coordinate) {
	cell := cellFor(loc)
	if prev, ok := g.driverCell[driverID]; ok {
		if prev == cell {
			return
		}
		if set, ok := g.cellDrivers[prev]; ok {
			delete(set, driverID)
			if len(set) == 0 {
				delete(g.cellDrivers, prev)
			}
		}
	}
	if g.cellDrivers[cell] == nil {
		g.cellDrivers[cell] = make(map[string]struct{})
	}
	g.cellDrivers[cell][driverID] = struct{}{}
	g.driverCell[driverID] = cell
}

// Remove drops a driver from the index entirely (going offline).
func (g *GeoIndex) Remove(driverID string) {
	if prev, ok := g.driverCell[driverID]; ok {
		if set, ok := g.cellDrivers[prev]; ok {
			delete(set, driverID)
			if len(set) == 0 {
				delete(g.cellDrivers, prev)
			}
		}
		delete(g.driverCell, driverID)
	}
}

// CandidatesNear returns driver ids in the cell containing center plus its
// immediate ring, for a coarse prefilter. An empty result is not a
// guarantee of no nearby drivers; callers must treat this as a hint only.
func (g *GeoIndex) CandidatesNear(center Coordinate) []string {
	origin := cellFor(center)
	cells, err := h3.GridDisk(origin, 1)
	if err != nil {
		cells = []h3.Cell{origin}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, cell := range cells {
		for driverID := range g.cellDrivers[cell] {
			if _, ok := seen[driverID]; !ok {
				seen[driverID] = struct{}{}
				out = append(out, driverID)
			}
		}
	}
	return out
}
