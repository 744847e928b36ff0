// Package tomtom adapts the TomTom Traffic API family into domain traffic
// samples and incidents.
package tomtom

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
)

// Fallback sample constants: conservative mid-flow conditions substituted
// when the flow API is unreachable, so fusion always has a traffic value.
const (
	fallbackCurrentSpeed  = 45.0
	fallbackFreeFlowSpeed = 50.0
	fallbackCongestion    = 0.1
	fallbackConfidence    = 0.5
)

// Client calls the TomTom flow and incident services.
type Client struct {
	rest    *resty.Client
	apiKey  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates a TomTom client. Retry stays disabled: the poller owns
// rate and retry policy, the client must not sleep behind its back.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0)

	return &Client{
		rest:    rest,
		apiKey:  apiKey,
		logger:  logger,
		metrics: metrics,
	}
}

// Flow fetches current flow conditions at a coordinate. It never fails from
// the caller's perspective: any transport or parse error degrades to a
// fallback-tagged sample so downstream fusion always has a value.
func (c *Client) Flow(ctx context.Context, coord domain.Coordinate) domain.TrafficSample {
	var out flowResponse

	start := time.Now()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":   c.apiKey,
			"point": fmt.Sprintf("%f,%f", coord.Lat, coord.Lon),
			"unit":  "KMPH",
		}).
		SetResult(&out).
		Get("/services/4/flowSegmentData/absolute/10/json")

	switch {
	case err != nil:
		c.observe("tomtom_flow", "error", start)
		c.logger.Warn("traffic flow request failed, using fallback sample",
			"lat", coord.Lat, "lon", coord.Lon, "error", err)
		return c.fallbackSample(coord)
	case resp.IsError():
		c.observe("tomtom_flow", "error", start)
		c.logger.Warn("traffic flow request rejected, using fallback sample",
			"lat", coord.Lat, "lon", coord.Lon, "status", resp.StatusCode())
		return c.fallbackSample(coord)
	case out.FlowSegmentData == nil:
		c.observe("tomtom_flow", "error", start)
		c.logger.Warn("traffic flow response missing segment data, using fallback sample",
			"lat", coord.Lat, "lon", coord.Lon)
		return c.fallbackSample(coord)
	}
	c.observe("tomtom_flow", "success", start)

	seg := out.FlowSegmentData
	now := domain.Now()
	return domain.TrafficSample{
		ID:              domain.SampleID(coord, now),
		Coordinate:      coord,
		CurrentSpeed:    seg.CurrentSpeed,
		FreeFlowSpeed:   seg.FreeFlowSpeed,
		CongestionLevel: domain.CongestionLevel(seg.CurrentSpeed, seg.FreeFlowSpeed),
		RoadClosed:      seg.RoadClosure,
		Confidence:      seg.Confidence,
		CollectedAt:     now,
		Source:          domain.SourceLive,
	}
}

// Incidents fetches active incidents within radiusKM of a coordinate.
// Incidents are best-effort context: the caller treats an error as "no known
// incidents" and keeps sweeping.
func (c *Client) Incidents(ctx context.Context, coord domain.Coordinate, radiusKM float64) ([]domain.Incident, error) {
	var out incidentResponse

	start := time.Now()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":      c.apiKey,
			"language": "en-US",
		}).
		SetResult(&out).
		Get(fmt.Sprintf("/services/5/incidentDetails/s3/%f,%f,%f/10/-1/json", coord.Lat, coord.Lon, radiusKM))

	if err != nil {
		c.observe("tomtom_incidents", "error", start)
		return nil, fmt.Errorf("incident request: %w", err)
	}
	if resp.IsError() {
		c.observe("tomtom_incidents", "error", start)
		return nil, fmt.Errorf("incident request: status %d", resp.StatusCode())
	}
	c.observe("tomtom_incidents", "success", start)

	now := domain.Now()
	incidents := make([]domain.Incident, 0, len(out.Incidents))
	for _, in := range out.Incidents {
		at := coord
		// GeoJSON order is lon,lat.
		if len(in.Geometry.Coordinates) == 2 {
			at = domain.Coordinate{Lat: in.Geometry.Coordinates[1], Lon: in.Geometry.Coordinates[0]}
		}

		description := in.Description
		if description == "" {
			description = "Traffic incident"
		}
		category := strconv.Itoa(in.IconCategory)

		id := in.ID
		if id == "" {
			id = domain.IncidentID(at, category, now)
		}

		incidents = append(incidents, domain.Incident{
			ID:           id,
			Category:     category,
			Description:  description,
			Severity:     in.Magnitude,
			Coordinate:   at,
			DelaySeconds: in.Delay,
			CollectedAt:  now,
		})
	}
	return incidents, nil
}

func (c *Client) fallbackSample(coord domain.Coordinate) domain.TrafficSample {
	now := domain.Now()
	return domain.TrafficSample{
		ID:              domain.SampleID(coord, now),
		Coordinate:      coord,
		CurrentSpeed:    fallbackCurrentSpeed,
		FreeFlowSpeed:   fallbackFreeFlowSpeed,
		CongestionLevel: fallbackCongestion,
		Confidence:      fallbackConfidence,
		CollectedAt:     now,
		Source:          domain.SourceFallback,
	}
}

func (c *Client) observe(api, outcome string, start time.Time) {
	c.metrics.UpstreamLatency.WithLabelValues(api, outcome).Observe(time.Since(start).Seconds())
}

// TomTom API response types.

type flowResponse struct {
	FlowSegmentData *flowSegment `json:"flowSegmentData"`
}

type flowSegment struct {
	CurrentSpeed  float64 `json:"currentSpeed"`
	FreeFlowSpeed float64 `json:"freeFlowSpeed"`
	RoadClosure   bool    `json:"roadClosure"`
	Confidence    float64 `json:"confidence"`
}

type incidentResponse struct {
	Incidents []incident `json:"incidents"`
}

type incident struct {
	ID           string           `json:"id"`
	IconCategory int              `json:"iconCategory"`
	Description  string           `json:"description"`
	Magnitude    float64          `json:"magnitude"`
	Geometry     incidentGeometry `json:"geometry"`
	Delay        int              `json:"delay"`
}

type incidentGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}
