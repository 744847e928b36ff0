package domain

// Congestion bucket thresholds on the current/free-flow speed ratio.
// The four-bucket step function (not a continuous curve) is load-bearing:
// downstream weighting was calibrated against these exact levels.
const (
	freeFlowRatio = 0.85
	lightRatio    = 0.65
	moderateRatio = 0.45
)

// CongestionLevel maps a current and free-flow speed to a normalized
// congestion level in [0,1]:
//
//	ratio ≥ 0.85 → 0.0 (free flow)
//	ratio ≥ 0.65 → 0.3 (light)
//	ratio ≥ 0.45 → 0.6 (moderate)
//	otherwise    → 1.0 (heavy)
//
// A non-positive free-flow speed yields 0.0 rather than dividing by zero.
func CongestionLevel(currentSpeed, freeFlowSpeed float64) float64 {
	if freeFlowSpeed <= 0 {
		return 0.0
	}

	ratio := currentSpeed / freeFlowSpeed
	switch {
	case ratio >= freeFlowRatio:
		return 0.0
	case ratio >= lightRatio:
		return 0.3
	case ratio >= moderateRatio:
		return 0.6
	default:
		return 1.0
	}
}
