// Package nhtsa adapts the NHTSA SafetyRatings and recalls APIs into domain
// vehicle-safety records.
package nhtsa

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
)

// Rater looks up a crash-safety record for one make/model/year. It never
// returns an error: every failure tier degrades to a tagged record.
type Rater interface {
	Rate(ctx context.Context, year int, make, model string) domain.VehicleSafetyRecord
}

// Client implements Rater against the NHTSA APIs. Lookups are two-step:
// model-year search resolves a vehicle ID, then the ID fetches detailed
// ratings. Recall counts come from the recalls endpoint and are best-effort.
type Client struct {
	rest    *resty.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates an NHTSA client. The API requires no credential.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0)

	return &Client{
		rest:    rest,
		logger:  logger,
		metrics: metrics,
	}
}

// Rate looks up the safety record for a vehicle with three-tier fallback:
//
//	live           explicit star rating returned by the API
//	default        lookup succeeded but no rating data → 4 stars
//	error_fallback lookup call failed → 3 stars (neutral)
//
// The tiers stay distinct because they change fusion confidence downstream.
func (c *Client) Rate(ctx context.Context, year int, vehicleMake, model string) domain.VehicleSafetyRecord {
	start := time.Now()

	detail, found, err := c.lookupRatings(ctx, year, vehicleMake, model)
	if err != nil {
		c.observe("error", start)
		c.logger.Warn("vehicle safety lookup failed, using error fallback",
			"year", year, "make", vehicleMake, "model", model, "error", err)
		return c.synthesize(year, vehicleMake, model, 3, domain.SourceErrorFallback)
	}
	c.observe("success", start)

	if !found {
		c.logger.Debug("no safety rating data, using default record",
			"year", year, "make", vehicleMake, "model", model)
		return c.synthesize(year, vehicleMake, model, 4, domain.SourceDefault)
	}

	overall := parseRating(detail.OverallRating)
	if overall == nil {
		// Vehicle exists but was never star-rated ("Not Rated").
		return c.synthesize(year, vehicleMake, model, 4, domain.SourceDefault)
	}

	now := domain.Now()
	return domain.VehicleSafetyRecord{
		ID:          domain.VehicleRecordID(year, vehicleMake, model, now),
		Make:        vehicleMake,
		Model:       model,
		Year:        year,
		Overall:     overall,
		Rollover:    parseRating(detail.RolloverRating),
		Frontal:     parseRating(detail.FrontalCrashRating),
		Side:        parseRating(detail.SideCrashRating),
		RecallCount: c.recallCount(ctx, year, vehicleMake, model),
		RiskImpact:  domain.RiskImpactFor(overall),
		CollectedAt: now,
		Source:      domain.SourceLive,
	}
}

// lookupRatings resolves the vehicle ID and fetches its rating detail.
// found=false means both calls succeeded but NHTSA has no data for the
// vehicle, which is the default tier, not an error.
func (c *Client) lookupRatings(ctx context.Context, year int, vehicleMake, model string) (ratingDetail, bool, error) {
	var search ratingResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("format", "json").
		SetResult(&search).
		Get(fmt.Sprintf("/SafetyRatings/modelyear/%d/make/%s/model/%s",
			year, url.PathEscape(strings.ToUpper(vehicleMake)), url.PathEscape(strings.ToUpper(model))))
	if err != nil {
		return ratingDetail{}, false, fmt.Errorf("safety rating search: %w", err)
	}
	if resp.IsError() {
		return ratingDetail{}, false, fmt.Errorf("safety rating search: status %d", resp.StatusCode())
	}
	if len(search.Results) == 0 {
		return ratingDetail{}, false, nil
	}

	var detail ratingResponse
	resp, err = c.rest.R().
		SetContext(ctx).
		SetQueryParam("format", "json").
		SetResult(&detail).
		Get(fmt.Sprintf("/SafetyRatings/VehicleId/%d", search.Results[0].VehicleID))
	if err != nil {
		return ratingDetail{}, false, fmt.Errorf("safety rating detail: %w", err)
	}
	if resp.IsError() {
		return ratingDetail{}, false, fmt.Errorf("safety rating detail: status %d", resp.StatusCode())
	}
	if len(detail.Results) == 0 {
		return ratingDetail{}, false, nil
	}

	return detail.Results[0], true, nil
}

// recallCount fetches the number of open recall campaigns. Failures count as
// zero: recalls enrich the record but never block it.
func (c *Client) recallCount(ctx context.Context, year int, vehicleMake, model string) int {
	var out recallResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"make":      vehicleMake,
			"model":     model,
			"modelYear": strconv.Itoa(year),
			"format":    "json",
		}).
		SetResult(&out).
		Get("/recalls/recallsByVehicle")
	if err != nil || resp.IsError() {
		c.logger.Debug("recall lookup failed, counting zero",
			"year", year, "make", vehicleMake, "model", model, "error", err)
		return 0
	}
	return len(out.Results)
}

// synthesize builds a fallback record with every rating at the given stars.
func (c *Client) synthesize(year int, vehicleMake, model string, stars int, source domain.SourceTag) domain.VehicleSafetyRecord {
	now := domain.Now()
	rating := domain.Stars(stars)
	return domain.VehicleSafetyRecord{
		ID:          domain.VehicleRecordID(year, vehicleMake, model, now),
		Make:        vehicleMake,
		Model:       model,
		Year:        year,
		Overall:     rating,
		Rollover:    domain.Stars(stars),
		Frontal:     domain.Stars(stars),
		Side:        domain.Stars(stars),
		RiskImpact:  domain.RiskImpactFor(rating),
		CollectedAt: now,
		Source:      source,
	}
}

func (c *Client) observe(outcome string, start time.Time) {
	c.metrics.UpstreamLatency.WithLabelValues("nhtsa", outcome).Observe(time.Since(start).Seconds())
}

// parseRating converts an NHTSA rating string ("5", "Not Rated", "") to a
// star pointer, nil when unrated or out of the 1–5 range.
func parseRating(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 5 {
		return nil
	}
	return &n
}

// NHTSA API response types.

type ratingResponse struct {
	Results []ratingDetail `json:"Results"`
}

type ratingDetail struct {
	VehicleID          int    `json:"VehicleId"`
	VehicleDescription string `json:"VehicleDescription"`
	OverallRating      string `json:"OverallRating"`
	RolloverRating     string `json:"RolloverRating"`
	FrontalCrashRating string `json:"FrontalCrashRating"`
	SideCrashRating    string `json:"SideCrashRating"`
}

type recallResponse struct {
	Results []struct {
		NHTSACampaignNumber string `json:"NHTSACampaignNumber"`
	} `json:"results"`
}
