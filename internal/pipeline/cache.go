package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
)

// SignalCache holds the most recent traffic sample per region and safety
// record per fleet vehicle, feeding risk recomputation between sweeps.
type SignalCache struct {
	mu       sync.RWMutex
	traffic  map[string]domain.TrafficSample
	vehicles map[string]domain.VehicleSafetyRecord
}

// NewSignalCache creates an empty cache.
func NewSignalCache() *SignalCache {
	return &SignalCache{
		traffic:  make(map[string]domain.TrafficSample),
		vehicles: make(map[string]domain.VehicleSafetyRecord),
	}
}

// SetTraffic stores the latest sample for a region.
func (c *SignalCache) SetTraffic(region string, sample domain.TrafficSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traffic[region] = sample
}

// Traffic returns the latest sample for a region.
func (c *SignalCache) Traffic(region string) (domain.TrafficSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sample, ok := c.traffic[region]
	return sample, ok
}

// SetVehicle stores the latest safety record for a fleet vehicle.
func (c *SignalCache) SetVehicle(year int, make, model string, record domain.VehicleSafetyRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vehicles[vehicleKey(year, make, model)] = record
}

// Vehicle returns the latest safety record for a fleet vehicle.
func (c *SignalCache) Vehicle(year int, make, model string) (domain.VehicleSafetyRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.vehicles[vehicleKey(year, make, model)]
	return record, ok
}

func vehicleKey(year int, make, model string) string {
	return fmt.Sprintf("%d|%s|%s", year, strings.ToLower(make), strings.ToLower(model))
}
