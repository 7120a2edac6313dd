package events

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"speech-translate-relay/internal/models"
	"speech-translate-relay/internal/observability/metrics"
	"speech-translate-relay/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writer != nil {
				t.Error("expected nil writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:   false,
		Brokers:   []string{"localhost:9092"},
		Topic:     "test.lifecycle",
		Principal: "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topic != "test.lifecycle" {
		t.Errorf("expected topic 'test.lifecycle', got %s", p.topic)
	}
}

func TestNew_Enabled_AsyncWriter(t *testing.T) {
	p := New(&Config{
		Enabled: true,
		Brokers: []string{"localhost:9092"},
		Topic:   "test.lifecycle",
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	})
	defer p.Close()

	if !p.enabled || p.writer == nil {
		t.Fatal("expected enabled publisher with a writer")
	}
	if !p.writer.Async {
		t.Error("expected async writer")
	}
	if p.writer.Topic != "test.lifecycle" {
		t.Errorf("expected writer topic 'test.lifecycle', got %s", p.writer.Topic)
	}
}

func TestPublisher_Publish_Disabled(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := New(&Config{Enabled: false, Topic: "test.lifecycle", Metrics: m})

	err := p.Publish(context.Background(), models.LifecycleEvent{
		EventType:  models.EventSessionCreated,
		SessionID:  "sess-1",
		SourceLang: "zh",
		TargetLang: "en",
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.lifecycle", models.EventSessionCreated))
	if got != 1 {
		t.Errorf("expected 1 publish recorded, got %v", got)
	}
}

func TestPublisher_Publish_RejectsInvalid(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := New(&Config{Enabled: false, Topic: "test.lifecycle", Metrics: m})

	err := p.Publish(context.Background(), models.LifecycleEvent{EventType: models.EventSessionClosed})
	if !errors.Is(err, schema.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.lifecycle", models.EventSessionClosed)); got != 0 {
		t.Errorf("expected nothing recorded, got %v", got)
	}
}

func TestPublisher_Complete_RecordsOutcome(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := New(&Config{Enabled: false, Topic: "t", Metrics: m})

	msgs := []kafka.Message{
		{Key: []byte("s1"), Headers: []kafka.Header{{Key: "eventType", Value: []byte(models.EventSessionClosed)}}},
		{Key: []byte("s2"), Headers: []kafka.Header{{Key: "eventType", Value: []byte(models.EventSessionClosed)}}},
	}
	p.complete(msgs, nil)
	p.complete(msgs[:1], errors.New("broker unavailable"))

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("t", models.EventSessionClosed)); got != 3 {
		t.Errorf("expected 3 publishes, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("t", models.EventSessionClosed)); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}

func TestHeaderValue(t *testing.T) {
	m := kafka.Message{Headers: []kafka.Header{{Key: "principal", Value: []byte("svc")}}}
	if got := headerValue(m, "principal"); got != "svc" {
		t.Errorf("expected 'svc', got %q", got)
	}
	if got := headerValue(m, "missing"); got != "" {
		t.Errorf("expected empty for missing header, got %q", got)
	}
}

func TestPublisher_Close_NoWriter(t *testing.T) {
	if err := New(&Config{Enabled: false}).Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
	p := &Publisher{}
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writer, got %v", err)
	}
}
