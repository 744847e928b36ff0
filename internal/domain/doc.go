// Package domain models live traffic, vehicle-safety, and fused driving-risk
// data.
//
// # Data Sources
//
// Traffic flow and incident data come from the TomTom Traffic API family
// (flowSegmentData and incidentDetails services), sampled over a deterministic
// geographic grid around each configured region center. Vehicle crash-safety
// data comes from the NHTSA SafetyRatings and recalls APIs, keyed by
// year/make/model. Behavioral factor scores are supplied by an external
// behavioral-analytics collaborator and are opaque here beyond "named score
// in [0,1]".
//
// # Congestion Levels
//
// Congestion is a four-bucket step function of the current/free-flow speed
// ratio, not a continuous curve:
//
//	ratio ≥ 0.85 → 0.0 (free flow)
//	ratio ≥ 0.65 → 0.3 (light)
//	ratio ≥ 0.45 → 0.6 (moderate)
//	otherwise    → 1.0 (heavy)
//
// Downstream risk weighting was calibrated against these exact levels, so
// the bucket boundaries must not drift. See [CongestionLevel].
//
// # Fallback Provenance
//
// Every collected record carries a [SourceTag]. Traffic samples degrade to a
// fixed conservative fallback (45/50 km/h, congestion 0.1, confidence 0.5)
// when the flow API fails. Vehicle records have a three-tier ladder:
//
//	live           the API returned an explicit star rating
//	default        the lookup succeeded but carried no rating data → 4 stars
//	error_fallback the lookup call itself failed → 3 stars (neutral)
//
// The tiers change fusion confidence and premium semantics downstream, which
// is why unrated and unreachable are never collapsed into one value.
//
// # Safety Rating Tables
//
// Premium adjustment by overall star rating:
//
//	5 → -15%   4 → -8%   3 → 0%   2 → +5%   1 → +10%
//
// Ratings outside 1–5 (including unset) adjust nothing. Risk reduction is 5%
// per star above 3, floored at 0. See [PremiumAdjustment] and [RiskReduction].
//
// # ID Generation
//
// Traffic samples, incidents, and vehicle records get deterministic SHA-256
// short IDs from their key fields, enabling idempotent upserts downstream
// (ON CONFLICT DO NOTHING) and replay safety. Risk scores are fresh events
// and get UUIDs instead. See [SampleID], [IncidentID], [VehicleRecordID].
package domain
