// Package events publishes session lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"speech-translate-relay/internal/models"
	"speech-translate-relay/internal/observability/logging"
	"speech-translate-relay/internal/observability/metrics"
	"speech-translate-relay/internal/schema"
)

// Publisher writes lifecycle events to one Kafka topic. Writes are async and
// best effort.
type Publisher struct {
	writer    *kafka.Writer
	principal string
	topic     string
	enabled   bool
	validator *schema.Validator
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
	Metrics   *metrics.Metrics
}

// New creates a lifecycle publisher. A nil or disabled config, or one without
// brokers, yields a log-only publisher.
func New(cfg *Config) *Publisher {
	log := logging.WithComponent("events")

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{validator: schema.New(), metrics: metrics.DefaultMetrics, log: log}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	p := &Publisher{
		principal: cfg.Principal,
		topic:     cfg.Topic,
		validator: schema.New(),
		metrics:   m,
		log:       log,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   p.complete,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

// Publish queues ev keyed by its session id. Errors are only returned for
// events that are invalid or cannot be encoded; broker failures surface in
// metrics and logs.
func (p *Publisher) Publish(ctx context.Context, ev models.LifecycleEvent) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	if err := p.validator.Validate(ev); err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Msg("Refusing to publish event")
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal event")
		return err
	}

	p.log.Debug().
		Str("principal", p.principal).
		Str("topic", p.topic).
		Str("key", ev.SessionID).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordKafkaPublish(p.topic, ev.EventType, nil)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.EventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

// complete is the async writer's delivery callback.
func (p *Publisher) complete(messages []kafka.Message, err error) {
	for _, m := range messages {
		eventType := headerValue(m, "eventType")
		if err != nil {
			p.log.Error().
				Err(err).
				Str("topic", p.topic).
				Str("key", string(m.Key)).
				Str("eventType", eventType).
				Msg("Failed to write to Kafka")
		}
		p.metrics.RecordKafkaPublish(p.topic, eventType, err)
	}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.log.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}
