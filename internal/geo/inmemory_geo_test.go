package geo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIndexUpsertAndNearby(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "drv1", 12.9716, 77.5946, time.Now()))
	require.NoError(t, idx.Upsert(ctx, "drv2", 13.5, 78.2, time.Now()))

	hits, err := idx.Nearby(ctx, 12.9716, 77.5946, 5, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "drv1", hits[0].DriverID)
}

func TestInMemoryIndexNearbySortsByDistance(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()
	origin := struct{ lat, lon float64 }{12.9716, 77.5946}

	require.NoError(t, idx.Upsert(ctx, "far", 12.99, 77.64, time.Now()))
	require.NoError(t, idx.Upsert(ctx, "near", 12.972, 77.595, time.Now()))

	hits, err := idx.Nearby(ctx, origin.lat, origin.lon, 50, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].DriverID)
	assert.Equal(t, "far", hits[1].DriverID)
	assert.Less(t, hits[0].DistanceKM, hits[1].DistanceKM)
}

func TestInMemoryIndexNearbyRespectsLimit(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Upsert(ctx, string(rune('a'+i)), 12.9716, 77.5946, time.Now()))
	}
	hits, err := idx.Nearby(ctx, 12.9716, 77.5946, 10, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestInMemoryIndexRemove(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "drv1", 12.9716, 77.5946, time.Now()))
	require.NoError(t, idx.Remove(ctx, "drv1"))

	hits, err := idx.Nearby(ctx, 12.9716, 77.5946, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestInMemoryIndexPruneOlderThan(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, idx.Upsert(ctx, "stale", 12.9716, 77.5946, old))
	require.NoError(t, idx.Upsert(ctx, "fresh", 12.9716, 77.5946, time.Now()))

	pruned := idx.PruneOlderThan(time.Now().Add(-time.Minute))
	assert.Equal(t, 1, pruned)

	hits, err := idx.Nearby(ctx, 12.9716, 77.5946, 5, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fresh", hits[0].DriverID)
}
