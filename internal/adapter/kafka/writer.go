// Package kafka publishes collected records and risk scores to the sink
// topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/drive-risk-ingest/internal/config"
	"github.com/couchcryptid/drive-risk-ingest/internal/domain"
)

// Writer produces records to the per-type Kafka topics. It implements
// pipeline.Sink and pipeline.ModelRefresher.
type Writer struct {
	traffic   *kafkago.Writer
	incidents *kafkago.Writer
	vehicles  *kafkago.Writer
	risks     *kafkago.Writer
	refresh   *kafkago.Writer
	logger    *slog.Logger
}

// NewWriter creates Kafka producers for every configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	newTopicWriter := func(topic string) *kafkago.Writer {
		return &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		}
	}
	return &Writer{
		traffic:   newTopicWriter(cfg.KafkaTrafficTopic),
		incidents: newTopicWriter(cfg.KafkaIncidentTopic),
		vehicles:  newTopicWriter(cfg.KafkaVehicleTopic),
		risks:     newTopicWriter(cfg.KafkaRiskTopic),
		refresh:   newTopicWriter(cfg.KafkaModelRefreshTopic),
		logger:    logger,
	}
}

// WriteTrafficSamples publishes traffic samples in one WriteMessages call.
func (w *Writer) WriteTrafficSamples(ctx context.Context, samples []domain.TrafficSample) error {
	if len(samples) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(samples))
	for i := range samples {
		msg, err := serializeToMessage(samples[i].ID, "traffic_sample", samples[i].CollectedAt, samples[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.traffic.WriteMessages(ctx, msgs...)
}

// WriteIncidents publishes traffic incidents.
func (w *Writer) WriteIncidents(ctx context.Context, incidents []domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(incidents))
	for i := range incidents {
		msg, err := serializeToMessage(incidents[i].ID, "incident", incidents[i].CollectedAt, incidents[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.incidents.WriteMessages(ctx, msgs...)
}

// WriteVehicleRecords publishes vehicle safety records.
func (w *Writer) WriteVehicleRecords(ctx context.Context, records []domain.VehicleSafetyRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i].ID, "vehicle_safety", records[i].CollectedAt, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.vehicles.WriteMessages(ctx, msgs...)
}

// WriteRiskScores publishes fused risk scores keyed by subject so each
// subject's scores land on one partition in order.
func (w *Writer) WriteRiskScores(ctx context.Context, scores []domain.RiskScore) error {
	if len(scores) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(scores))
	for i := range scores {
		msg, err := serializeToMessage(scores[i].SubjectID, "risk_score", scores[i].ComputedAt, scores[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.risks.WriteMessages(ctx, msgs...)
}

// refreshTrigger is the control message consumed by the scoring-model
// trainer.
type refreshTrigger struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// TriggerRefresh publishes a model-refresh control message.
func (w *Writer) TriggerRefresh(ctx context.Context, reason string) error {
	trigger := refreshTrigger{
		ID:          uuid.NewString(),
		Reason:      reason,
		TriggeredAt: domain.Now(),
	}
	msg, err := serializeToMessage(trigger.ID, "model_refresh", trigger.TriggeredAt, trigger)
	if err != nil {
		return err
	}
	return w.refresh.WriteMessages(ctx, msg)
}

// Close closes every topic writer, returning the first error seen.
func (w *Writer) Close() error {
	var firstErr error
	for _, tw := range []*kafkago.Writer{w.traffic, w.incidents, w.vehicles, w.risks, w.refresh} {
		if err := tw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// serializeToMessage marshals a record into a Kafka message with provenance
// headers.
func serializeToMessage(key, recordType string, collectedAt time.Time, record any) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s: %w", recordType, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte(recordType)},
			{Key: "collected_at", Value: []byte(collectedAt.Format(time.RFC3339))},
		},
	}, nil
}
