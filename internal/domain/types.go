package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceTag records the provenance of a collected record, distinguishing
// live upstream data from synthesized fallbacks. The distinction feeds the
// fusion engine's confidence calculation, so collapsing tags is a behavioral
// change, not a cosmetic one.
type SourceTag string

const (
	// SourceLive marks data returned by the upstream API.
	SourceLive SourceTag = "live"
	// SourceFallback marks a synthesized conservative traffic sample used
	// when the flow API is unreachable or unparseable.
	SourceFallback SourceTag = "fallback"
	// SourceDefault marks a vehicle record synthesized because the lookup
	// succeeded but returned no rating data.
	SourceDefault SourceTag = "default"
	// SourceErrorFallback marks a vehicle record synthesized because the
	// lookup call itself failed.
	SourceErrorFallback SourceTag = "error_fallback"
)

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TrafficSample is one observation of flow conditions at a coordinate.
// Immutable after creation.
type TrafficSample struct {
	ID              string     `json:"id"`
	Coordinate      Coordinate `json:"coordinate"`
	CurrentSpeed    float64    `json:"current_speed"`
	FreeFlowSpeed   float64    `json:"free_flow_speed"`
	CongestionLevel float64    `json:"congestion_level"`
	RoadClosed      bool       `json:"road_closed"`
	Confidence      float64    `json:"confidence"`
	CollectedAt     time.Time  `json:"collected_at"`
	Source          SourceTag  `json:"source"`
}

// Incident is an active traffic incident reported near a coordinate.
type Incident struct {
	ID           string     `json:"id"`
	Category     string     `json:"category"`
	Description  string     `json:"description"`
	Severity     float64    `json:"severity"`
	Coordinate   Coordinate `json:"coordinate"`
	DelaySeconds int        `json:"delay_seconds"`
	CollectedAt  time.Time  `json:"collected_at"`
}

// VehicleSafetyRecord holds crash-safety data for one make/model/year.
// Nil ratings mean the upstream reported no value; default substitution
// happens at fusion time, never inside the record.
type VehicleSafetyRecord struct {
	ID          string    `json:"id"`
	Make        string    `json:"make"`
	Model       string    `json:"model"`
	Year        int       `json:"year"`
	VIN         string    `json:"vin,omitempty"`
	Overall     *int      `json:"overall_rating,omitempty"`
	Rollover    *int      `json:"rollover_rating,omitempty"`
	Frontal     *int      `json:"frontal_crash_rating,omitempty"`
	Side        *int      `json:"side_crash_rating,omitempty"`
	RecallCount int        `json:"recall_count"`
	RiskImpact  RiskImpact `json:"risk_impact"`
	CollectedAt time.Time  `json:"collected_at"`
	Source      SourceTag  `json:"source"`
}

// RiskImpact carries the pricing and scoring effects derived from a record's
// overall star rating, published alongside the raw ratings so downstream
// consumers never re-derive the tables.
type RiskImpact struct {
	PremiumAdjustment float64 `json:"premium_adjustment"`
	SafetyScoreBoost  float64 `json:"safety_score_boost"`
}

// Rated reports whether the record carries an explicit overall star rating.
func (r VehicleSafetyRecord) Rated() bool { return r.Overall != nil }

// Stars returns a pointer to n, for building rating fields in place.
func Stars(n int) *int { return &n }

// BehavioralFactors maps a named driving-behavior factor to a score in [0,1].
// Supplied by the behavioral-analytics collaborator; opaque here beyond the
// canonical names below.
type BehavioralFactors map[string]float64

// Canonical behavioral factor names. FactorTraffic names the weight slot
// filled by the traffic-derived adjustment, not a behavioral input.
const (
	FactorSpeeding     = "speeding"
	FactorHardBraking  = "hard_braking"
	FactorAcceleration = "acceleration"
	FactorDistraction  = "distraction"
	FactorTimeOfDay    = "time_of_day"
	FactorWeather      = "weather"
	FactorTraffic      = "traffic"
)

// RiskScore is the fused, bounded risk assessment for one subject.
// Created fresh on every fusion call; never mutated.
type RiskScore struct {
	ID              string             `json:"id"`
	SubjectID       string             `json:"subject_id"`
	Overall         float64            `json:"overall"`
	Factors         map[string]float64 `json:"factor_breakdown"`
	Confidence      float64            `json:"confidence"`
	ComputedAt      time.Time          `json:"computed_at"`
	TrafficSampleID string             `json:"traffic_sample_id,omitempty"`
	VehicleRecordID string             `json:"vehicle_record_id,omitempty"`
}

// shortHash produces a deterministic 16-hex-char ID from the given parts.
// Deterministic IDs enable idempotent upserts downstream (ON CONFLICT DO
// NOTHING) and replay safety without coordination.
func shortHash(parts ...any) string {
	input := fmt.Sprintln(parts...)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}

// SampleID derives the deterministic ID for a traffic sample.
func SampleID(c Coordinate, collectedAt time.Time) string {
	return shortHash("traffic", fmt.Sprintf("%.4f", c.Lat), fmt.Sprintf("%.4f", c.Lon), collectedAt.Unix())
}

// IncidentID derives an ID for an incident lacking an upstream identifier.
func IncidentID(c Coordinate, category string, collectedAt time.Time) string {
	return shortHash("incident", fmt.Sprintf("%.4f", c.Lat), fmt.Sprintf("%.4f", c.Lon), category, collectedAt.Unix())
}

// VehicleRecordID derives the deterministic ID for a vehicle safety record.
func VehicleRecordID(year int, make, model string, collectedAt time.Time) string {
	return shortHash("vehicle", year, make, model, collectedAt.Unix())
}
