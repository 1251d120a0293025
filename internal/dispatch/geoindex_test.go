package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeoIndexUpdateAndCandidatesNear(t *testing.T) {
	idx := NewGeoIndex()
	loc := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	idx.Update("drv1", loc)

	candidates := idx.CandidatesNear(loc)
	assert.Contains(t, candidates, "drv1")
}

func TestGeoIndexUpdateMovesDriverBetweenCells(t *testing.T) {
	idx := NewGeoIndex()
	here := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	farAway := Coordinate{Latitude: 40.0, Longitude: -70.0}

	idx.Update("drv1", here)
	idx.Update("drv1", farAway)

	assert.NotContains(t, idx.CandidatesNear(here), "drv1")
	assert.Contains(t, idx.CandidatesNear(farAway), "drv1")
}

func TestGeoIndexRemove(t *testing.T) {
	idx := NewGeoIndex()
	loc := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	idx.Update("drv1", loc)
	idx.Remove("drv1")

	assert.NotContains(t, idx.CandidatesNear(loc), "drv1")
}

func TestGeoIndexCandidatesNearDeduplicates(t *testing.T) {
	idx := NewGeoIndex()
	loc := Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	idx.Update("drv1", loc)
	idx.Update("drv1", loc) // same cell, no-op per the early return

	candidates := idx.CandidatesNear(loc)
	count := 0
	for _, id := range candidates {
		if id == "drv1" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
