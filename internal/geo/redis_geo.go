package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex wraps a Redis GEO sorted set for live driver locations. Each
// driver is also stamped into a parallel hash so stale entries can be
// pruned without a second round trip to the authoritative store.
type RedisIndex struct {
	client   *redis.Client
	key      string
	stampKey string
}

func NewRedisIndex(client *redis.Client, namespace string) *RedisIndex {
	if namespace == "" {
		namespace = "dispatch"
	}
	return &RedisIndex{
		client:   client,
		key:      namespace + ":drivers:geo",
		stampKey: namespace + ":drivers:stamp",
	}
}

func (i *RedisIndex) Upsert(ctx context.Context, driverID string, lat, lon float64, at time.Time) error {
	pipe := i.client.TxPipeline()
	pipe.GeoAdd(ctx, i.key, &redis.GeoLocation{Name: driverID, Longitude: lon, Latitude: lat})
	pipe.HSet(ctx, i.stampKey, driverID, at.Unix())
	_, err := pipe.Exec(ctx)
	return err
}

func (i *RedisIndex) Remove(ctx context.Context, driverID string) error {
	pipe := i.client.TxPipeline()
	pipe.ZRem(ctx, i.key, driverID)
	pipe.HDel(ctx, i.stampKey, driverID)
	_, err := pipe.Exec(ctx)
	return err
}

func (i *RedisIndex) Nearby(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := i.client.GeoSearchLocation(ctx, i.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{DriverID: r.Name, DistanceKM: r.Dist})
	}
	return hits, nil
}

// PruneStaleStamps removes drivers whose location stamp is older than
// cutoff, guarding against a driver that went offline without a clean
// disconnect.
func (i *RedisIndex) PruneStaleStamps(ctx context.Context, cutoff time.Time) (int, error) {
	stamps, err := i.client.HGetAll(ctx, i.stampKey).Result()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for driverID, v := range stamps {
		sec, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || time.Unix(sec, 0).Before(cutoff) {
			if err := i.Remove(ctx, driverID); err == nil {
				pruned++
			}
		}
	}
	return pruned, nil
}
