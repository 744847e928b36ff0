package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Weights maps factor names to their share of the fused score. The traffic
// slot is filled by the traffic-derived adjustment, not a behavioral input.
type Weights map[string]float64

// DefaultWeights returns the calibrated factor weights, summing to 1.0.
func DefaultWeights() Weights {
	return Weights{
		FactorSpeeding:     0.25,
		FactorHardBraking:  0.20,
		FactorAcceleration: 0.15,
		FactorDistraction:  0.15,
		FactorTimeOfDay:    0.10,
		FactorWeather:      0.08,
		FactorTraffic:      0.07,
	}
}

// Fusion confidence bounds and per-signal deductions.
const (
	baseConfidence         = 0.95
	minConfidence          = 0.50
	fallbackTrafficPenalty = 0.08
	errorVehiclePenalty    = 0.05

	// congestionRiskWeight converts a congestion level into added risk:
	// heavy congestion adds at most 5%.
	congestionRiskWeight = 0.05
)

// FusionEngine combines a behavioral baseline with the latest traffic and
// vehicle-safety signals into one bounded risk score.
type FusionEngine struct {
	weights Weights
}

// NewFusionEngine builds an engine from the given weights. Every weight must
// name a known factor; unknown names indicate a configuration typo and are
// rejected rather than silently ignored.
func NewFusionEngine(weights Weights) (*FusionEngine, error) {
	defaults := DefaultWeights()
	if len(weights) == 0 {
		weights = defaults
	}
	merged := make(Weights, len(defaults))
	for name, w := range defaults {
		merged[name] = w
	}
	for name, w := range weights {
		if _, ok := defaults[name]; !ok {
			return nil, fmt.Errorf("unknown fusion weight %q", name)
		}
		if w < 0 {
			return nil, fmt.Errorf("fusion weight %q is negative", name)
		}
		merged[name] = w
	}
	return &FusionEngine{weights: merged}, nil
}

// Fuse computes the risk score for a subject from its behavioral factors and
// the latest cached signals. Either signal may be nil, in which case its
// adjustment is zero and confidence is unaffected.
//
// Ordering is fixed: the weighted behavioral baseline first, then traffic
// congestion adds risk, then vehicle safety subtracts it, then the sum is
// clamped to [0,1]. Behavioral inputs are clamped before weighting so
// adversarial magnitudes cannot push the score out of bounds.
func (e *FusionEngine) Fuse(subjectID string, behavioral BehavioralFactors, traffic *TrafficSample, vehicle *VehicleSafetyRecord) RiskScore {
	breakdown := make(map[string]float64, len(e.weights))

	var baseline float64
	for name, weight := range e.weights {
		if name == FactorTraffic {
			continue
		}
		score := clamp01(behavioral[name])
		breakdown[name] = score
		baseline += weight * score
	}

	var trafficAdj float64
	if traffic != nil {
		trafficAdj = clamp01(traffic.CongestionLevel) * congestionRiskWeight
		breakdown[FactorTraffic] = clamp01(traffic.CongestionLevel)
	} else {
		breakdown[FactorTraffic] = 0
	}

	var vehicleAdj float64
	if vehicle != nil {
		vehicleAdj = RiskReduction(vehicle.Overall)
	}

	score := RiskScore{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		Overall:    clamp01(baseline + trafficAdj - vehicleAdj),
		Factors:    breakdown,
		Confidence: e.confidence(traffic, vehicle),
		ComputedAt: clock.Now(),
	}
	if traffic != nil {
		score.TrafficSampleID = traffic.ID
	}
	if vehicle != nil {
		score.VehicleRecordID = vehicle.ID
	}
	return score
}

// confidence starts high and deducts for each degraded signal, bounded to
// [0.5, 0.95].
func (e *FusionEngine) confidence(traffic *TrafficSample, vehicle *VehicleSafetyRecord) float64 {
	c := baseConfidence
	if traffic != nil && traffic.Source == SourceFallback {
		c -= fallbackTrafficPenalty
	}
	if vehicle != nil && vehicle.Source == SourceErrorFallback {
		c -= errorVehiclePenalty
	}
	if c < minConfidence {
		return minConfidence
	}
	if c > baseConfidence {
		return baseConfidence
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
