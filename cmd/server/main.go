package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dispatchcore/internal/api"
	"dispatchcore/internal/collab"
	"dispatchcore/internal/config"
	"dispatchcore/internal/dispatch"
	"dispatchcore/internal/geo"
	"dispatchcore/internal/logging"
	"dispatchcore/internal/metrics"
	"dispatchcore/internal/session"
	"dispatchcore/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	store, idemStore, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		log.Fatal("postgres connect failed", zap.Error(err))
	}

	redisClient := connectRedis(ctx, cfg, log)

	lockService := buildLockService(redisClient)
	geoLive := buildGeoLive(redisClient)
	authProvider := buildAuthProvider(cfg)
	objectStorage := collab.NewLocalObjectStorage("./data/documents", "/documents")

	serviceArea := dispatch.NewServiceArea(dispatch.ServiceAreaConfig{
		CenterLat:        cfg.ServiceAreaCenterLat,
		CenterLng:        cfg.ServiceAreaCenterLng,
		CenterName:       cfg.ServiceAreaCenterName,
		RadiusMinMeters:  cfg.ServiceAreaMinMeters,
		RadiusMaxMeters:  cfg.ServiceAreaMaxMeters,
		WarningThreshold: cfg.ServiceAreaWarningM,
		Strict:           cfg.ServiceAreaStrict,
	})

	var distanceProvider dispatch.DistanceProvider
	if cfg.MapProviderBaseURL != "" {
		distanceProvider = collab.NewHTTPMapProvider(cfg.MapProviderBaseURL, cfg.MapProviderAPIKey)
		log.Info("map distance provider configured", zap.String("base_url", cfg.MapProviderBaseURL))
	}
	fareEngine := dispatch.NewFareEngine(dispatch.FareConfig{
		BaseFare:                 cfg.FareBaseFare,
		PerKMRate:                cfg.FarePerKMRate,
		Currency:                 cfg.FareCurrency,
		WeightThresholdKG:        cfg.FareWeightThresholdKG,
		WeightThresholdHighKG:    cfg.FareWeightThresholdHighKG,
		WeightMidMultiplier:      cfg.FareWeightMidMultiplier,
		WeightMultiplier:         cfg.FareWeightMultiplier,
		SurgeMultiplier:          cfg.FareSurgeMultiplier,
		SurgePeakStartHour:       cfg.FareSurgePeakStartHour,
		SurgePeakEndHour:         cfg.FareSurgePeakEndHour,
		SurgePeakMultiplier:      cfg.FareSurgePeakMultiplier,
		SurgeLateNightStartHour:  cfg.FareSurgeLateNightStartHour,
		SurgeLateNightEndHour:    cfg.FareSurgeLateNightEndHour,
		SurgeLateNightMultiplier: cfg.FareSurgeLateNightMultiplier,
	}, distanceProvider)

	geoIndex := dispatch.NewGeoIndex()
	dispatchEngine := dispatch.NewDispatchEngine(store, geoIndex)
	bookingCore := dispatch.NewBookingCore(store, lockService, serviceArea, fareEngine)
	verificationEngine := dispatch.NewVerificationEngine()

	slotLoc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		slotLoc = time.UTC
	}
	slotScheduler := dispatch.NewSlotScheduler(slotLoc)

	hub := session.NewHub()
	go hub.Run()
	plane := session.NewPlane(hub, bookingCore, store, dispatchEngine, log)

	handler := &api.Handler{
		Core:         bookingCore,
		Engine:       dispatchEngine,
		Verification: verificationEngine,
		Slots:        slotScheduler,
		Store:        store,
		Idempotency:  idemStore,
		GeoLive:      geoLive,
		Auth:         authProvider,
		Storage:      objectStorage,
		Plane:        plane,
		Metrics:      reg,
		Log:          log,
		SlotLocation: slotLoc,
	}

	r := chi.NewRouter()
	api.AttachRoutes(r, handler, cfg.Env, cfg.RateLimitPerMinute)

	go pruneStaleGeoEntries(ctx, geoLive, log)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("dispatchcore listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

func connectPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage.Postgres, *storage.IdempotencyStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := storage.DefaultPool(connectCtx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.ApplySchema(connectCtx, pool); err != nil {
		return nil, nil, err
	}
	store := storage.NewPostgres(pool)

	idem := storage.NewIdempotencyStore(pool, 30*time.Minute)
	if err := idem.EnsureSchema(connectCtx); err != nil {
		log.Warn("idempotency schema init failed, retries will not be deduplicated", zap.Error(err))
		idem = nil
	}
	return store, idem, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Info("redis not configured, using in-memory lock and geo index")
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("redis URL parse failed, falling back to in-memory", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, falling back to in-memory", zap.Error(err))
		return nil
	}
	log.Info("redis connected")
	return client
}

func buildLockService(client *redis.Client) dispatch.LockService {
	if client == nil {
		return dispatch.NewInMemoryLockService()
	}
	return dispatch.NewRedisLockService(client)
}

func buildGeoLive(client *redis.Client) geo.Index {
	if client == nil {
		return geo.NewInMemoryIndex()
	}
	return geo.NewRedisIndex(client, "dispatchcore")
}

func buildAuthProvider(cfg *config.Config) collab.AuthProvider {
	if cfg.JWTSecret != "" {
		return collab.NewJWTAuthProvider(cfg.JWTSecret)
	}
	return collab.NewInMemoryAuthProvider(cfg.JWTTTL)
}

// pruneStaleGeoEntries periodically evicts driver entries the live geo
// index hasn't heard from recently, keeping the prefilter from growing
// unbounded with drivers that disconnected without a clean status update.
// It never touches the authoritative isOnline flag (I4) — only the
// advisory index.
func pruneStaleGeoEntries(ctx context.Context, live geo.Index, log *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-5 * time.Minute)
			switch idx := live.(type) {
			case *geo.InMemoryIndex:
				if n := idx.PruneOlderThan(cutoff); n > 0 {
					log.Info("pruned stale geo entries", zap.Int("count", n))
				}
			case *geo.RedisIndex:
				pruneCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				n, err := idx.PruneStaleStamps(pruneCtx, cutoff)
				cancel()
				if err != nil {
					log.Warn("geo prune failed", zap.Error(err))
				} else if n > 0 {
					log.Info("pruned stale geo entries", zap.Int("count", n))
				}
			}
		}
	}
}
