// Package pipeline orchestrates the scheduled ingestion sweeps: geographic
// traffic sampling, fleet safety lookups, model-refresh triggers, and
// risk-score recomputation from the latest cached signals.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/drive-risk-ingest/internal/config"
	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
	"github.com/couchcryptid/drive-risk-ingest/internal/observability"
	"github.com/couchcryptid/drive-risk-ingest/internal/poller"
)

// FlowSource samples traffic flow at one coordinate. It never fails: the
// adapter substitutes a fallback-tagged sample instead.
type FlowSource interface {
	Flow(ctx context.Context, coord domain.Coordinate) domain.TrafficSample
}

// IncidentSource lists active incidents around a coordinate.
type IncidentSource interface {
	Incidents(ctx context.Context, coord domain.Coordinate, radiusKM float64) ([]domain.Incident, error)
}

// VehicleRater looks up the crash-safety record for one fleet vehicle.
type VehicleRater interface {
	Rate(ctx context.Context, year int, make, model string) domain.VehicleSafetyRecord
}

// Sink persists collected record batches. A sink failure is a job-level
// error, never a per-unit one.
type Sink interface {
	WriteTrafficSamples(ctx context.Context, samples []domain.TrafficSample) error
	WriteIncidents(ctx context.Context, incidents []domain.Incident) error
	WriteVehicleRecords(ctx context.Context, records []domain.VehicleSafetyRecord) error
	WriteRiskScores(ctx context.Context, scores []domain.RiskScore) error
}

// ModelRefresher notifies the scoring-model trainer that fresh data is
// available.
type ModelRefresher interface {
	TriggerRefresh(ctx context.Context, reason string) error
}

// Subject is one risk-scoring target: a driver tied to a sweep region and a
// fleet vehicle.
type Subject struct {
	ID     string
	Region string
	Year   int
	Make   string
	Model  string
}

// BehavioralSource supplies per-subject behavioral factors from the
// behavioral-analytics collaborator. Optional: without one, the full
// pipeline ingests signals but leaves risk recomputation to callers of
// ComputeRisk.
type BehavioralSource interface {
	Subjects(ctx context.Context) ([]Subject, error)
	Factors(ctx context.Context, subjectID string) (domain.BehavioralFactors, error)
}

// Deps bundles the collaborators a Service orchestrates. Flow and Incidents
// may be nil when the traffic upstream is disabled; Behavioral may be nil.
// The gates are per upstream rate-limit domain so the traffic and vehicle
// sweeps never throttle each other.
type Deps struct {
	Flow        FlowSource
	Incidents   IncidentSource
	Rater       VehicleRater
	Sink        Sink
	Refresher   ModelRefresher
	Behavioral  BehavioralSource
	Fusion      *domain.FusionEngine
	TrafficGate *poller.Gate
	VehicleGate *poller.Gate
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Service runs the ingestion sweeps and owns the latest-signal cache.
type Service struct {
	deps    Deps
	cfg     *config.Config
	signals *SignalCache

	ready     atomic.Bool
	mu        sync.Mutex
	lastSweep map[string]time.Time
}

// New creates a Service for the configured regions and fleet.
func New(cfg *config.Config, deps Deps) *Service {
	return &Service{
		deps:      deps,
		cfg:       cfg,
		signals:   NewSignalCache(),
		lastSweep: make(map[string]time.Time),
	}
}

// Signals returns the latest-signal cache.
func (s *Service) Signals() *SignalCache { return s.signals }

// CheckReadiness returns nil once at least one sweep has completed.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no sweep has completed yet")
	}
	return nil
}

// SweepStatus reports the last successful completion time per sweep.
func (s *Service) SweepStatus() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.lastSweep))
	for name, at := range s.lastSweep {
		out[name] = at
	}
	return out
}

// TrafficSweep grid-samples every configured region, polls flow per
// coordinate, fetches incidents per region center, and publishes the
// collected batches.
func (s *Service) TrafficSweep(ctx context.Context) error {
	if s.deps.Flow == nil {
		s.deps.Logger.Debug("traffic upstream disabled, skipping sweep")
		return nil
	}

	start := time.Now()
	var sinkErrs []error

	for _, region := range s.cfg.Regions {
		samples := s.sweepRegion(ctx, region)
		if len(samples) > 0 {
			if err := s.flush(ctx, func(ctx context.Context) error {
				return s.deps.Sink.WriteTrafficSamples(ctx, samples)
			}); err != nil {
				s.deps.Metrics.SinkErrors.Inc()
				sinkErrs = append(sinkErrs, fmt.Errorf("write traffic samples for %s: %w", region.Name, err))
			} else {
				s.deps.Metrics.RecordsCollected.WithLabelValues("traffic_sample").Add(float64(len(samples)))
			}
		}

		incidents := s.fetchIncidents(ctx, region)
		if len(incidents) > 0 {
			if err := s.flush(ctx, func(ctx context.Context) error {
				return s.deps.Sink.WriteIncidents(ctx, incidents)
			}); err != nil {
				s.deps.Metrics.SinkErrors.Inc()
				sinkErrs = append(sinkErrs, fmt.Errorf("write incidents for %s: %w", region.Name, err))
			} else {
				s.deps.Metrics.RecordsCollected.WithLabelValues("incident").Add(float64(len(incidents)))
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	s.deps.Metrics.SweepDuration.WithLabelValues("traffic").Observe(time.Since(start).Seconds())
	if len(sinkErrs) > 0 {
		return errors.Join(sinkErrs...)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.markComplete("traffic_sweep")
	return nil
}

// sweepRegion polls traffic flow over the region's sampling grid and caches
// the freshest region-representative sample.
func (s *Service) sweepRegion(ctx context.Context, region config.Region) []domain.TrafficSample {
	coords := domain.SampleGrid(region.Center, s.cfg.GridRadiusKM, s.cfg.GridDensity)

	res := poller.Run(ctx, coords, func(ctx context.Context, coord domain.Coordinate) (domain.TrafficSample, error) {
		return s.deps.Flow.Flow(ctx, coord), nil
	}, s.pollOptions(s.deps.TrafficGate))

	if len(res.Failed) > 0 {
		s.deps.Metrics.PollFailures.WithLabelValues("traffic").Add(float64(len(res.Failed)))
		s.deps.Logger.Warn("traffic sweep had failed units",
			"region", region.Name, "failed", len(res.Failed), "succeeded", len(res.Succeeded))
	}

	if sample, ok := regionSample(res.Succeeded, region.Center); ok {
		s.signals.SetTraffic(region.Name, sample)
	}
	return res.Succeeded
}

// regionSample picks the sample representing the region: the one at the grid
// center when present, else any collected sample.
func regionSample(samples []domain.TrafficSample, center domain.Coordinate) (domain.TrafficSample, bool) {
	if len(samples) == 0 {
		return domain.TrafficSample{}, false
	}
	for _, sample := range samples {
		if sample.Coordinate == center {
			return sample, true
		}
	}
	return samples[0], true
}

// fetchIncidents lists incidents at the region center. Failure degrades to
// "no known incidents": logged and counted, never propagated.
func (s *Service) fetchIncidents(ctx context.Context, region config.Region) []domain.Incident {
	if s.deps.Incidents == nil {
		return nil
	}
	incidents, err := s.deps.Incidents.Incidents(ctx, region.Center, s.cfg.GridRadiusKM)
	if err != nil {
		s.deps.Metrics.PollFailures.WithLabelValues("traffic").Inc()
		s.deps.Logger.Warn("incident fetch failed", "region", region.Name, "error", err)
		return nil
	}
	return incidents
}

// VehicleSweep polls the safety rating for every fleet vehicle and publishes
// the records.
func (s *Service) VehicleSweep(ctx context.Context) error {
	start := time.Now()

	res := poller.Run(ctx, s.cfg.Fleet, func(ctx context.Context, v config.Vehicle) (domain.VehicleSafetyRecord, error) {
		return s.deps.Rater.Rate(ctx, v.Year, v.Make, v.Model), nil
	}, s.pollOptions(s.deps.VehicleGate))

	if len(res.Failed) > 0 {
		s.deps.Metrics.PollFailures.WithLabelValues("vehicle").Add(float64(len(res.Failed)))
		s.deps.Logger.Warn("vehicle sweep had failed units",
			"failed", len(res.Failed), "succeeded", len(res.Succeeded))
	}

	for _, record := range res.Succeeded {
		s.signals.SetVehicle(record.Year, record.Make, record.Model, record)
	}

	if len(res.Succeeded) > 0 {
		if err := s.flush(ctx, func(ctx context.Context) error {
			return s.deps.Sink.WriteVehicleRecords(ctx, res.Succeeded)
		}); err != nil {
			s.deps.Metrics.SinkErrors.Inc()
			return fmt.Errorf("write vehicle records: %w", err)
		}
		s.deps.Metrics.RecordsCollected.WithLabelValues("vehicle_record").Add(float64(len(res.Succeeded)))
	}

	s.deps.Metrics.SweepDuration.WithLabelValues("vehicle").Observe(time.Since(start).Seconds())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.markComplete("vehicle_sweep")
	return nil
}

// ModelRefresh signals the scoring-model trainer. The actual retraining is
// an external collaborator's job.
func (s *Service) ModelRefresh(ctx context.Context) error {
	if err := s.deps.Refresher.TriggerRefresh(ctx, "scheduled"); err != nil {
		s.deps.Metrics.SinkErrors.Inc()
		return fmt.Errorf("trigger model refresh: %w", err)
	}
	s.markComplete("model_refresh")
	return nil
}

// FullPipeline runs a traffic sweep and then recomputes risk scores for
// every behavioral subject from the cached signals.
func (s *Service) FullPipeline(ctx context.Context) error {
	if err := s.TrafficSweep(ctx); err != nil {
		return err
	}

	if s.deps.Behavioral == nil {
		s.deps.Logger.Debug("no behavioral source configured, skipping risk recompute")
		return nil
	}

	subjects, err := s.deps.Behavioral.Subjects(ctx)
	if err != nil {
		return fmt.Errorf("list behavioral subjects: %w", err)
	}

	scores := make([]domain.RiskScore, 0, len(subjects))
	for _, subject := range subjects {
		score, err := s.computeSubject(ctx, subject)
		if err != nil {
			s.deps.Logger.Warn("risk recompute failed for subject", "subject", subject.ID, "error", err)
			continue
		}
		scores = append(scores, score)
	}

	if len(scores) > 0 {
		if err := s.flush(ctx, func(ctx context.Context) error {
			return s.deps.Sink.WriteRiskScores(ctx, scores)
		}); err != nil {
			s.deps.Metrics.SinkErrors.Inc()
			return fmt.Errorf("write risk scores: %w", err)
		}
		s.deps.Metrics.RecordsCollected.WithLabelValues("risk_score").Add(float64(len(scores)))
	}

	s.markComplete("full_pipeline")
	return nil
}

func (s *Service) computeSubject(ctx context.Context, subject Subject) (domain.RiskScore, error) {
	factors, err := s.deps.Behavioral.Factors(ctx, subject.ID)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("behavioral factors: %w", err)
	}
	return s.ComputeRisk(subject, factors), nil
}

// ComputeRisk fuses a supplied behavioral baseline with the latest cached
// traffic and vehicle signals for the subject. Missing signals are passed
// through as absent; the fusion engine handles them.
func (s *Service) ComputeRisk(subject Subject, behavioral domain.BehavioralFactors) domain.RiskScore {
	var traffic *domain.TrafficSample
	if sample, ok := s.signals.Traffic(subject.Region); ok {
		traffic = &sample
	}
	var vehicle *domain.VehicleSafetyRecord
	if record, ok := s.signals.Vehicle(subject.Year, subject.Make, subject.Model); ok {
		vehicle = &record
	}
	return s.deps.Fusion.Fuse(subject.ID, behavioral, traffic, vehicle)
}

func (s *Service) pollOptions(gate *poller.Gate) poller.Options {
	return poller.Options{
		Gate:          gate,
		Workers:       s.cfg.PollWorkers,
		BatchSize:     s.cfg.BatchSize,
		BatchCooldown: s.cfg.BatchCooldown,
		CallTimeout:   s.cfg.CallTimeout,
	}
}

// sinkFlushTimeout bounds batch writes issued after the sweep context died,
// so a dead broker cannot stall shutdown.
const sinkFlushTimeout = 5 * time.Second

// flush runs a sink write. When the sweep context has already been
// cancelled, the write gets a detached, time-bounded context instead:
// partial results collected before shutdown still reach the sink.
func (s *Service) flush(ctx context.Context, write func(context.Context) error) error {
	if ctx.Err() == nil {
		return write(ctx)
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkFlushTimeout)
	defer cancel()
	return write(fctx)
}

func (s *Service) markComplete(sweep string) {
	s.ready.Store(true)
	s.mu.Lock()
	s.lastSweep[sweep] = domain.Now()
	s.mu.Unlock()
}
