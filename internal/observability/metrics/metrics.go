// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_relay"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Browser session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge
	SessionsSwept  prometheus.Counter
	SessionAge     prometheus.Histogram

	// Upstream transcription metrics
	UpstreamCreated       *prometheus.CounterVec
	UpstreamFailed        *prometheus.CounterVec
	UpstreamActive        prometheus.Gauge
	UpstreamCreateLatency *prometheus.HistogramVec
	UpstreamErrors        *prometheus.CounterVec

	// Audio metrics
	AudioBytesForwarded  prometheus.Counter
	AudioFramesForwarded prometheus.Counter
	AudioFramesDropped   *prometheus.CounterVec

	// Transcript metrics
	Transcripts *prometheus.CounterVec

	// Translation metrics
	Translations       *prometheus.CounterVec
	TranslationLatency prometheus.Histogram

	// Protocol metrics
	ProtocolErrors *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal  *prometheus.CounterVec
	KafkaPublishErrors *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
// Tests pass prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of browser sessions opened",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently registered browser sessions",
		}),
		SessionsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Total number of sessions removed by the idle sweep",
		}),
		SessionAge: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_age_seconds",
			Help:      "Age of browser sessions at teardown",
			Buckets:   []float64{1, 10, 30, 60, 300, 600, 1200, 1800, 3600},
		}),

		UpstreamCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_sessions_created_total",
			Help:      "Total number of upstream transcription sessions opened",
		}, []string{"provider"}),
		UpstreamFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_sessions_failed_total",
			Help:      "Total number of upstream transcription sessions that failed to open",
		}, []string{"provider"}),
		UpstreamActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_sessions_active",
			Help:      "Number of upstream transcription sessions currently mapped",
		}),
		UpstreamCreateLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_create_latency_seconds",
			Help:      "Time to open an upstream transcription session",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
		UpstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of upstream errors and unexpected closes",
		}, []string{"provider", "kind"}),

		AudioBytesForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_forwarded_total",
			Help:      "Total PCM bytes forwarded upstream",
		}),
		AudioFramesForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_forwarded_total",
			Help:      "Total audio frames forwarded upstream",
		}),
		AudioFramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total audio frames dropped before reaching upstream",
		}, []string{"reason"}),

		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Total transcripts received from upstream",
		}, []string{"kind"}),

		Translations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Total translation requests by outcome",
		}, []string{"outcome"}),
		TranslationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_seconds",
			Help:      "Translation request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total malformed or unknown inbound browser messages",
		}, []string{"kind"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
	}
}

// RecordSessionOpened records a new browser session.
func (m *Metrics) RecordSessionOpened() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a browser session being torn down.
func (m *Metrics) RecordSessionClosed(ageSeconds float64, swept bool) {
	m.SessionsActive.Dec()
	m.SessionAge.Observe(ageSeconds)
	if swept {
		m.SessionsSwept.Inc()
	}
}

// RecordUpstreamCreated records an upstream session open attempt.
func (m *Metrics) RecordUpstreamCreated(provider string, err error, latencySeconds float64) {
	m.UpstreamCreateLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.UpstreamFailed.WithLabelValues(provider).Inc()
		return
	}
	m.UpstreamCreated.WithLabelValues(provider).Inc()
	m.UpstreamActive.Inc()
}

// RecordUpstreamEnded records an upstream session leaving the session map.
func (m *Metrics) RecordUpstreamEnded() {
	m.UpstreamActive.Dec()
}

// RecordUpstreamError records an upstream error or unexpected close.
func (m *Metrics) RecordUpstreamError(provider, kind string) {
	m.UpstreamErrors.WithLabelValues(provider, kind).Inc()
}

// RecordAudioForwarded records a frame sent upstream.
func (m *Metrics) RecordAudioForwarded(bytes int) {
	m.AudioBytesForwarded.Add(float64(bytes))
	m.AudioFramesForwarded.Inc()
}

// RecordAudioDropped records a frame that never reached upstream.
func (m *Metrics) RecordAudioDropped(reason string) {
	m.AudioFramesDropped.WithLabelValues(reason).Inc()
}

// RecordTranscript records a transcript event of the given kind (partial, final).
func (m *Metrics) RecordTranscript(kind string) {
	m.Transcripts.WithLabelValues(kind).Inc()
}

// RecordTranslation records a translation outcome.
func (m *Metrics) RecordTranslation(success bool, latencySeconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.Translations.WithLabelValues(outcome).Inc()
	m.TranslationLatency.Observe(latencySeconds)
}

// RecordProtocolError records a rejected inbound browser message.
func (m *Metrics) RecordProtocolError(kind string) {
	m.ProtocolErrors.WithLabelValues(kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
