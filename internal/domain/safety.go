package domain

// premiumAdjustments maps an overall star rating to an insurance premium
// adjustment: 5 stars earns a 15% discount, 1 star a 10% surcharge.
var premiumAdjustments = map[int]float64{
	5: -0.15,
	4: -0.08,
	3: 0.0,
	2: 0.05,
	1: 0.10,
}

// PremiumAdjustment returns the fixed premium adjustment for an overall star
// rating. Unset ratings and anything outside 1–5 map to 0.0.
func PremiumAdjustment(rating *int) float64 {
	if rating == nil {
		return 0.0
	}
	return premiumAdjustments[*rating]
}

// SafetyBoost returns the 0–20 point safety-score boost for a star rating:
// 10 points per star above 3, floored at 0.
func SafetyBoost(rating *int) float64 {
	if rating == nil {
		return 0
	}
	return max(0, float64(*rating-3)*10)
}

// RiskImpactFor derives the published risk impact for an overall star rating.
func RiskImpactFor(rating *int) RiskImpact {
	return RiskImpact{
		PremiumAdjustment: PremiumAdjustment(rating),
		SafetyScoreBoost:  SafetyBoost(rating),
	}
}

// RiskReduction returns the fused-risk reduction for a star rating: 5%
// per star above 3, floored at 0 so low ratings never subtract risk here
// (they surface through the premium adjustment instead).
func RiskReduction(rating *int) float64 {
	if rating == nil {
		return 0
	}
	return max(0, float64(*rating-3)*0.05)
}
