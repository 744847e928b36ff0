package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
)

const testAPIKey = "tt-test-key"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.TomTomEnabled, "traffic sweep is disabled without a key")
	assert.Equal(t, "https://api.tomtom.com/traffic", cfg.TomTomBaseURL)
	assert.Equal(t, "https://api.nhtsa.gov", cfg.NHTSABaseURL)

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "traffic-samples", cfg.KafkaTrafficTopic)
	assert.Equal(t, "traffic-incidents", cfg.KafkaIncidentTopic)
	assert.Equal(t, "vehicle-safety-records", cfg.KafkaVehicleTopic)
	assert.Equal(t, "risk-scores", cfg.KafkaRiskTopic)
	assert.Equal(t, "model-refresh-triggers", cfg.KafkaModelRefreshTopic)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, time.Second, cfg.TomTomMinSpacing)
	assert.Equal(t, time.Second, cfg.NHTSAMinSpacing)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.BatchCooldown)
	assert.Equal(t, 4, cfg.PollWorkers)
	assert.Equal(t, 15*time.Second, cfg.CallTimeout)

	assert.Equal(t, 2, cfg.GridDensity)
	assert.Equal(t, 10.0, cfg.GridRadiusKM)

	assert.Equal(t, 15*time.Minute, cfg.TrafficSweepInterval)
	assert.Equal(t, 6*time.Hour, cfg.VehicleSweepInterval)
	assert.Equal(t, time.Hour, cfg.ModelRefreshInterval)
	assert.Equal(t, 30*time.Minute, cfg.FullPipelineInterval)

	require.Len(t, cfg.Regions, 5)
	assert.Equal(t, "san_francisco", cfg.Regions[0].Name)
	assert.InDelta(t, 37.7749, cfg.Regions[0].Center.Lat, 1e-9)
	assert.InDelta(t, -122.4194, cfg.Regions[0].Center.Lon, 1e-9)

	require.Len(t, cfg.Fleet, 5)
	assert.Equal(t, Vehicle{Year: 2020, Make: "Honda", Model: "Civic"}, cfg.Fleet[0])
	assert.Equal(t, Vehicle{Year: 2022, Make: "Tesla", Model: "Model 3"}, cfg.Fleet[2])

	assert.Nil(t, cfg.FusionWeights, "no overrides by default")
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", testAPIKey)
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("TOMTOM_MIN_SPACING", "250ms")
	t.Setenv("NHTSA_MIN_SPACING", "2s")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("BATCH_COOLDOWN", "10s")
	t.Setenv("POLL_WORKERS", "8")
	t.Setenv("GRID_DENSITY", "1")
	t.Setenv("GRID_RADIUS_KM", "25")
	t.Setenv("TRAFFIC_SWEEP_INTERVAL", "5m")
	t.Setenv("REGIONS", "austin,30.2672,-97.7431")
	t.Setenv("FLEET", "2019,BMW,330i")
	t.Setenv("FUSION_WEIGHTS", "speeding=0.30,weather=0.03")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.TomTomEnabled)
	assert.Equal(t, testAPIKey, cfg.TomTomAPIKey)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.TomTomMinSpacing)
	assert.Equal(t, 2*time.Second, cfg.NHTSAMinSpacing)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.BatchCooldown)
	assert.Equal(t, 8, cfg.PollWorkers)
	assert.Equal(t, 1, cfg.GridDensity)
	assert.Equal(t, 25.0, cfg.GridRadiusKM)
	assert.Equal(t, 5*time.Minute, cfg.TrafficSweepInterval)

	require.Len(t, cfg.Regions, 1)
	assert.Equal(t, "austin", cfg.Regions[0].Name)

	require.Len(t, cfg.Fleet, 1)
	assert.Equal(t, Vehicle{Year: 2019, Make: "BMW", Model: "330i"}, cfg.Fleet[0])

	assert.Equal(t, domain.Weights{"speeding": 0.30, "weather": 0.03}, cfg.FusionWeights)
}

func TestLoad_TomTomExplicitlyDisabled(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", testAPIKey)
	t.Setenv("TOMTOM_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.TomTomEnabled)
}

func TestLoad_TomTomEnabledWithoutKey(t *testing.T) {
	t.Setenv("TOMTOM_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOMTOM_API_KEY")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("NHTSA_MIN_SPACING", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NHTSA_MIN_SPACING")
}

func TestLoad_NegativeInterval(t *testing.T) {
	t.Setenv("VEHICLE_SWEEP_INTERVAL", "-6h")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VEHICLE_SWEEP_INTERVAL")
}

func TestLoad_InvalidRegion(t *testing.T) {
	t.Setenv("REGIONS", "austin,30.2672")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGIONS")
}

func TestLoad_RegionOutOfRange(t *testing.T) {
	t.Setenv("REGIONS", "nowhere,95.0,-97.7")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestLoad_InvalidFleetYear(t *testing.T) {
	t.Setenv("FLEET", "soon,Honda,Civic")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLEET")
}

func TestLoad_UnknownFusionWeight(t *testing.T) {
	t.Setenv("FUSION_WEIGHTS", "tailgating=0.5")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FUSION_WEIGHTS")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}
