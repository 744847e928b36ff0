package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
)

// Region is one geographic sweep target.
type Region struct {
	Name   string
	Center domain.Coordinate
}

// Vehicle identifies one fleet vehicle for the safety sweep.
type Vehicle struct {
	Year  int
	Make  string
	Model string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	// TomTom traffic upstream. An empty key disables the traffic sweep
	// (feature flag, TOMTOM_ENABLED overrides); other jobs still run.
	TomTomAPIKey  string
	TomTomBaseURL string
	TomTomEnabled bool

	// NHTSA vehicle-safety upstream (no credential required).
	NHTSABaseURL string

	KafkaBrokers           []string
	KafkaTrafficTopic      string
	KafkaIncidentTopic     string
	KafkaVehicleTopic      string
	KafkaRiskTopic         string
	KafkaModelRefreshTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Poller tuning. Min spacing is per upstream rate-limit domain: each
	// API key gets its own token gate, so sweeps never throttle each other.
	TomTomMinSpacing time.Duration
	NHTSAMinSpacing  time.Duration
	BatchSize        int
	BatchCooldown    time.Duration
	PollWorkers      int
	CallTimeout      time.Duration

	// Geographic sampling.
	GridDensity  int
	GridRadiusKM float64
	Regions      []Region

	// Vehicle fleet for the safety sweep.
	Fleet []Vehicle

	// Job cadences.
	TrafficSweepInterval time.Duration
	VehicleSweepInterval time.Duration
	ModelRefreshInterval time.Duration
	FullPipelineInterval time.Duration

	// Fusion weight overrides merged onto the calibrated defaults.
	FusionWeights domain.Weights
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	apiKey := os.Getenv("TOMTOM_API_KEY")
	tomtomEnabled := apiKey != ""
	if v := os.Getenv("TOMTOM_ENABLED"); v != "" {
		tomtomEnabled = v == "true"
	}

	cfg := &Config{
		TomTomAPIKey:  apiKey,
		TomTomBaseURL: envOrDefault("TOMTOM_BASE_URL", "https://api.tomtom.com/traffic"),
		TomTomEnabled: tomtomEnabled,
		NHTSABaseURL:  envOrDefault("NHTSA_BASE_URL", "https://api.nhtsa.gov"),

		KafkaBrokers:           splitAndTrim(envOrDefault("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTrafficTopic:      envOrDefault("KAFKA_TRAFFIC_TOPIC", "traffic-samples"),
		KafkaIncidentTopic:     envOrDefault("KAFKA_INCIDENT_TOPIC", "traffic-incidents"),
		KafkaVehicleTopic:      envOrDefault("KAFKA_VEHICLE_TOPIC", "vehicle-safety-records"),
		KafkaRiskTopic:         envOrDefault("KAFKA_RISK_TOPIC", "risk-scores"),
		KafkaModelRefreshTopic: envOrDefault("KAFKA_MODEL_REFRESH_TOPIC", "model-refresh-triggers"),

		HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TomTomMinSpacing, err = durationEnv("TOMTOM_MIN_SPACING", time.Second); err != nil {
		return nil, err
	}
	if cfg.NHTSAMinSpacing, err = durationEnv("NHTSA_MIN_SPACING", time.Second); err != nil {
		return nil, err
	}
	if cfg.BatchCooldown, err = durationEnv("BATCH_COOLDOWN", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = durationEnv("CALL_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = intEnv("BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.PollWorkers, err = intEnv("POLL_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.GridDensity, err = intEnv("GRID_DENSITY", 2); err != nil {
		return nil, err
	}
	if cfg.GridRadiusKM, err = floatEnv("GRID_RADIUS_KM", 10); err != nil {
		return nil, err
	}

	if cfg.TrafficSweepInterval, err = durationEnv("TRAFFIC_SWEEP_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.VehicleSweepInterval, err = durationEnv("VEHICLE_SWEEP_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ModelRefreshInterval, err = durationEnv("MODEL_REFRESH_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.FullPipelineInterval, err = durationEnv("FULL_PIPELINE_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Regions, err = parseRegions(envOrDefault("REGIONS", defaultRegions)); err != nil {
		return nil, err
	}
	if cfg.Fleet, err = parseFleet(envOrDefault("FLEET", defaultFleet)); err != nil {
		return nil, err
	}
	if cfg.FusionWeights, err = parseWeights(os.Getenv("FUSION_WEIGHTS")); err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

// Default sweep targets: major-metro centers and a small demo fleet.
const (
	defaultRegions = "san_francisco,37.7749,-122.4194;" +
		"los_angeles,34.0522,-118.2437;" +
		"new_york,40.7128,-74.0060;" +
		"chicago,41.8781,-87.6298;" +
		"seattle,47.6062,-122.3321"

	defaultFleet = "2020,Honda,Civic;" +
		"2018,Ford,F-150;" +
		"2022,Tesla,Model 3;" +
		"2019,BMW,330i;" +
		"2021,Subaru,Outback"
)

func (c *Config) validate() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.TomTomEnabled && c.TomTomAPIKey == "" {
		return errors.New("TOMTOM_ENABLED is true but TOMTOM_API_KEY is not set")
	}
	if c.BatchSize < 1 {
		return errors.New("BATCH_SIZE must be at least 1")
	}
	if c.PollWorkers < 1 {
		return errors.New("POLL_WORKERS must be at least 1")
	}
	if c.GridDensity < 0 {
		return errors.New("GRID_DENSITY must not be negative")
	}
	if c.GridRadiusKM <= 0 {
		return errors.New("GRID_RADIUS_KM must be positive")
	}
	if len(c.Regions) == 0 {
		return errors.New("REGIONS is required")
	}
	// Weight names are validated by the fusion engine at construction; a
	// typo there must fail startup, so surface it here too.
	if _, err := domain.NewFusionEngine(c.FusionWeights); err != nil {
		return fmt.Errorf("FUSION_WEIGHTS: %w", err)
	}
	return nil
}

// parseRegions parses "name,lat,lon;name,lat,lon;…".
func parseRegions(s string) ([]Region, error) {
	entries := splitAndTrim(s, ";")
	regions := make([]Region, 0, len(entries))
	for _, entry := range entries {
		parts := splitAndTrim(entry, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid REGIONS entry %q: want name,lat,lon", entry)
		}
		lat, errLat := strconv.ParseFloat(parts[1], 64)
		lon, errLon := strconv.ParseFloat(parts[2], 64)
		if errLat != nil || errLon != nil {
			return nil, fmt.Errorf("invalid REGIONS coordinates in %q", entry)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("REGIONS coordinates out of range in %q", entry)
		}
		regions = append(regions, Region{Name: parts[0], Center: domain.Coordinate{Lat: lat, Lon: lon}})
	}
	return regions, nil
}

// parseFleet parses "year,make,model;year,make,model;…".
func parseFleet(s string) ([]Vehicle, error) {
	entries := splitAndTrim(s, ";")
	fleet := make([]Vehicle, 0, len(entries))
	for _, entry := range entries {
		parts := splitAndTrim(entry, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid FLEET entry %q: want year,make,model", entry)
		}
		year, err := strconv.Atoi(parts[0])
		if err != nil || year < 1900 {
			return nil, fmt.Errorf("invalid FLEET year in %q", entry)
		}
		fleet = append(fleet, Vehicle{Year: year, Make: parts[1], Model: parts[2]})
	}
	return fleet, nil
}

// parseWeights parses "speeding=0.3,weather=0.1" into partial weight
// overrides. Empty input means no overrides.
func parseWeights(s string) (domain.Weights, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	weights := domain.Weights{}
	for _, pair := range splitAndTrim(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid FUSION_WEIGHTS entry %q: want name=value", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FUSION_WEIGHTS value in %q", pair)
		}
		weights[strings.TrimSpace(name)] = w
	}
	return weights, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
