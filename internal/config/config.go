// Package config centralizes every environment-driven setting this core
// reads, replacing scattered os.Getenv calls with one viper-backed load.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings this core loads. It has no entry for bcrypt
// rounds, the slot-generation guard window, the maximum package weight,
// the maximum distance or the minimum booking amount. LockTTL and
// DispatchRadiusMeters are loaded but not read by cmd/server, which uses
// dispatch.DefaultLockTTL and dispatch.DefaultNotificationRadiusMeters.
type Config struct {
	Addr string `mapstructure:"addr"`
	Env  string `mapstructure:"env"`

	PostgresURL string `mapstructure:"postgres_url"`
	RedisURL    string `mapstructure:"redis_url"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	ServiceAreaCenterLat  float64 `mapstructure:"service_area_center_lat"`
	ServiceAreaCenterLng  float64 `mapstructure:"service_area_center_lng"`
	ServiceAreaCenterName string  `mapstructure:"service_area_center_name"`
	ServiceAreaMinMeters  float64 `mapstructure:"service_area_min_meters"`
	ServiceAreaMaxMeters  float64 `mapstructure:"service_area_max_meters"`
	ServiceAreaWarningM   float64 `mapstructure:"service_area_warning_meters"`
	ServiceAreaStrict     bool    `mapstructure:"service_area_strict"`

	FareBaseFare                 float64 `mapstructure:"fare_base_fare"`
	FarePerKMRate                float64 `mapstructure:"fare_per_km_rate"`
	FareCurrency                 string  `mapstructure:"fare_currency"`
	FareWeightThresholdKG        float64 `mapstructure:"fare_weight_threshold_kg"`
	FareWeightThresholdHighKG    float64 `mapstructure:"fare_weight_threshold_high_kg"`
	FareWeightMidMultiplier      float64 `mapstructure:"fare_weight_mid_multiplier"`
	FareWeightMultiplier         float64 `mapstructure:"fare_weight_multiplier"`
	FareSurgeMultiplier          float64 `mapstructure:"fare_surge_multiplier"`
	FareSurgePeakStartHour       int     `mapstructure:"fare_surge_peak_start_hour"`
	FareSurgePeakEndHour         int     `mapstructure:"fare_surge_peak_end_hour"`
	FareSurgePeakMultiplier      float64 `mapstructure:"fare_surge_peak_multiplier"`
	FareSurgeLateNightStartHour  int     `mapstructure:"fare_surge_late_night_start_hour"`
	FareSurgeLateNightEndHour    int     `mapstructure:"fare_surge_late_night_end_hour"`
	FareSurgeLateNightMultiplier float64 `mapstructure:"fare_surge_late_night_multiplier"`

	DispatchRadiusMeters float64 `mapstructure:"dispatch_radius_meters"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	AcceptAwaitWindow    time.Duration `mapstructure:"accept_await_window"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	MapProviderBaseURL string `mapstructure:"map_provider_base_url"`
	MapProviderAPIKey  string `mapstructure:"map_provider_api_key"`

	ObjectStorageBucket string `mapstructure:"object_storage_bucket"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from (in ascending priority) built-in
// defaults, a config file named "dispatchcore" on the search paths, and
// DISPATCHCORE_-prefixed environment variables.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("dispatchcore")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("DISPATCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("env", "development")

	v.SetDefault("jwt_ttl", 24*time.Hour)

	v.SetDefault("service_area_center_name", "service center")
	v.SetDefault("service_area_min_meters", 0.0)
	v.SetDefault("service_area_max_meters", 25000.0)
	v.SetDefault("service_area_warning_meters", 20000.0)
	v.SetDefault("service_area_strict", false)

	v.SetDefault("fare_base_fare", 25.0)
	v.SetDefault("fare_per_km_rate", 8.0)
	v.SetDefault("fare_currency", "INR")
	v.SetDefault("fare_weight_threshold_kg", 5.0)
	v.SetDefault("fare_weight_threshold_high_kg", 10.0)
	v.SetDefault("fare_weight_mid_multiplier", 1.1)
	v.SetDefault("fare_weight_multiplier", 1.2)
	v.SetDefault("fare_surge_multiplier", 1.0)
	v.SetDefault("fare_surge_peak_start_hour", 8)
	v.SetDefault("fare_surge_peak_end_hour", 10)
	v.SetDefault("fare_surge_peak_multiplier", 1.2)
	v.SetDefault("fare_surge_late_night_start_hour", 22)
	v.SetDefault("fare_surge_late_night_end_hour", 6)
	v.SetDefault("fare_surge_late_night_multiplier", 1.3)

	v.SetDefault("dispatch_radius_meters", 25000.0)
	v.SetDefault("lock_ttl", 10*time.Second)
	v.SetDefault("accept_await_window", 15*time.Second)

	v.SetDefault("rate_limit_per_minute", 120)

	v.SetDefault("log_level", "info")
}
