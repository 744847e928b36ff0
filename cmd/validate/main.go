// Command validate performs integrity checks on sink-record JSON dumps from
// the risk ingestion pipeline: traffic samples, vehicle safety records, and
// risk scores (e.g. captured from the Kafka topics with a console consumer).
// It verifies value bounds, source-tag semantics, congestion bucket
// consistency, and cross-record references.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -traffic-json dumps/traffic_samples.json \
//	  -vehicle-json dumps/vehicle_records.json \
//	  -risk-json dumps/risk_scores.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	trafficJSON := flag.String("traffic-json", "", "path to traffic sample JSON dump")
	vehicleJSON := flag.String("vehicle-json", "", "path to vehicle safety record JSON dump")
	riskJSON := flag.String("risk-json", "", "path to risk score JSON dump")
	flag.Parse()

	if *trafficJSON == "" && *vehicleJSON == "" && *riskJSON == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*trafficJSON, *vehicleJSON, *riskJSON); code != 0 {
		os.Exit(code)
	}
}

func run(trafficPath, vehiclePath, riskPath string) int {
	fmt.Println("=== Risk Ingest Record Validation ===")
	fmt.Println()

	var (
		samples []domain.TrafficSample
		records []domain.VehicleSafetyRecord
		scores  []domain.RiskScore
		err     error
	)

	if trafficPath != "" {
		if samples, err = loadJSON[domain.TrafficSample](trafficPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load traffic JSON: %v\n", err)
			return 1
		}
	}
	if vehiclePath != "" {
		if records, err = loadJSON[domain.VehicleSafetyRecord](vehiclePath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load vehicle JSON: %v\n", err)
			return 1
		}
	}
	if riskPath != "" {
		if scores, err = loadJSON[domain.RiskScore](riskPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load risk JSON: %v\n", err)
			return 1
		}
	}

	var phases []*phase
	if trafficPath != "" {
		phases = append(phases, validateTraffic(samples))
	}
	if vehiclePath != "" {
		phases = append(phases, validateVehicles(records))
	}
	if riskPath != "" {
		phases = append(phases, validateRisks(scores))
		phases = append(phases, validateCrossReferences(scores, samples, records, trafficPath != "", vehiclePath != ""))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d traffic samples, %d vehicle records, %d risk scores\n",
		len(samples), len(records), len(scores))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Traffic Samples ──
// Bounds, source tags, and congestion bucket consistency.

// Fallback sample constants emitted by the flow adapter.
const (
	fallbackCurrentSpeed  = 45.0
	fallbackFreeFlowSpeed = 50.0
	fallbackCongestion    = 0.1
	fallbackConfidence    = 0.5
)

func validateTraffic(samples []domain.TrafficSample) *phase {
	p := &phase{name: "Phase 1: Traffic Samples"}

	for i := range samples {
		s := &samples[i]
		pf := recordErrorf(p, i, s.ID)

		if s.ID == "" {
			pf("missing id")
		}
		if s.CurrentSpeed < 0 || s.FreeFlowSpeed < 0 {
			pf("negative speed: current=%g free_flow=%g", s.CurrentSpeed, s.FreeFlowSpeed)
		}
		if s.CongestionLevel < 0 || s.CongestionLevel > 1 {
			pf("congestion_level %g outside [0,1]", s.CongestionLevel)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			pf("confidence %g outside [0,1]", s.Confidence)
		}
		if s.CollectedAt.IsZero() {
			pf("collected_at is zero")
		}

		switch s.Source {
		case domain.SourceLive:
			if want := domain.CongestionLevel(s.CurrentSpeed, s.FreeFlowSpeed); !floatEq(s.CongestionLevel, want) {
				pf("congestion_level %g inconsistent with speeds (want %g)", s.CongestionLevel, want)
			}
		case domain.SourceFallback:
			if !floatEq(s.CurrentSpeed, fallbackCurrentSpeed) ||
				!floatEq(s.FreeFlowSpeed, fallbackFreeFlowSpeed) ||
				!floatEq(s.CongestionLevel, fallbackCongestion) ||
				!floatEq(s.Confidence, fallbackConfidence) {
				pf("fallback sample does not carry the fixed conservative defaults")
			}
		default:
			pf("source %q not in {live, fallback}", s.Source)
		}
	}
	return p
}

// ── Phase 2: Vehicle Safety Records ──
// Rating ranges and the three-tier source-tag semantics.

func validateVehicles(records []domain.VehicleSafetyRecord) *phase {
	p := &phase{name: "Phase 2: Vehicle Safety Records"}

	for i := range records {
		r := &records[i]
		pf := recordErrorf(p, i, r.ID)

		if r.ID == "" {
			pf("missing id")
		}
		if r.Make == "" || r.Model == "" {
			pf("make/model incomplete: %q %q", r.Make, r.Model)
		}
		if r.Year < 1900 {
			pf("implausible year %d", r.Year)
		}
		if r.RecallCount < 0 {
			pf("negative recall_count %d", r.RecallCount)
		}

		for _, rating := range []struct {
			name  string
			value *int
		}{
			{"overall_rating", r.Overall},
			{"rollover_rating", r.Rollover},
			{"frontal_crash_rating", r.Frontal},
			{"side_crash_rating", r.Side},
		} {
			if rating.value != nil && (*rating.value < 1 || *rating.value > 5) {
				pf("%s %d outside 1..5", rating.name, *rating.value)
			}
		}

		switch r.Source {
		case domain.SourceLive:
			if r.Overall == nil {
				pf("live record without overall_rating")
			}
		case domain.SourceDefault:
			if r.Overall == nil || *r.Overall != 4 {
				pf("default record must carry overall_rating=4")
			}
		case domain.SourceErrorFallback:
			if r.Overall == nil || *r.Overall != 3 {
				pf("error_fallback record must carry overall_rating=3")
			}
		default:
			pf("source %q not in {live, default, error_fallback}", r.Source)
		}

		want := domain.RiskImpactFor(r.Overall)
		if !floatEq(r.RiskImpact.PremiumAdjustment, want.PremiumAdjustment) {
			pf("premium_adjustment %g inconsistent with overall_rating (want %g)",
				r.RiskImpact.PremiumAdjustment, want.PremiumAdjustment)
		}
		if !floatEq(r.RiskImpact.SafetyScoreBoost, want.SafetyScoreBoost) {
			pf("safety_score_boost %g inconsistent with overall_rating (want %g)",
				r.RiskImpact.SafetyScoreBoost, want.SafetyScoreBoost)
		}
	}
	return p
}

// ── Phase 3: Risk Scores ──
// Bounds on the fused output.

func validateRisks(scores []domain.RiskScore) *phase {
	p := &phase{name: "Phase 3: Risk Scores"}

	for i := range scores {
		s := &scores[i]
		pf := recordErrorf(p, i, s.ID)

		if s.ID == "" {
			pf("missing id")
		}
		if s.SubjectID == "" {
			pf("missing subject_id")
		}
		if s.Overall < 0 || s.Overall > 1 {
			pf("overall %g outside [0,1]", s.Overall)
		}
		if s.Confidence < 0.5 || s.Confidence > 0.95 {
			pf("confidence %g outside [0.5,0.95]", s.Confidence)
		}
		if s.ComputedAt.IsZero() {
			pf("computed_at is zero")
		}
		for name, value := range s.Factors {
			if value < 0 || value > 1 {
				pf("factor %q value %g outside [0,1]", name, value)
			}
		}
	}
	return p
}

// ── Phase 4: Cross References ──
// Risk scores must reference records that exist in the dumps.

func validateCrossReferences(scores []domain.RiskScore, samples []domain.TrafficSample, records []domain.VehicleSafetyRecord, haveTraffic, haveVehicles bool) *phase {
	p := &phase{name: "Phase 4: Cross References"}

	sampleIDs := make(map[string]bool, len(samples))
	for i := range samples {
		sampleIDs[samples[i].ID] = true
	}
	recordIDs := make(map[string]bool, len(records))
	for i := range records {
		recordIDs[records[i].ID] = true
	}

	for i := range scores {
		s := &scores[i]
		pf := recordErrorf(p, i, s.ID)

		if haveTraffic && s.TrafficSampleID != "" && !sampleIDs[s.TrafficSampleID] {
			pf("traffic_sample_id %q not found in traffic dump", s.TrafficSampleID)
		}
		if haveVehicles && s.VehicleRecordID != "" && !recordIDs[s.VehicleRecordID] {
			pf("vehicle_record_id %q not found in vehicle dump", s.VehicleRecordID)
		}
	}
	return p
}

// ── Helpers ──

func recordErrorf(p *phase, i int, id string) func(string, ...any) {
	return func(format string, args ...any) {
		p.errorf("record %d (ID %s): "+format, append([]any{i, id}, args...)...)
	}
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
