package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func TestSessionLifecycle(t *testing.T) {
	m := newTestMetrics()

	m.RecordSessionOpened()
	m.RecordSessionOpened()
	m.RecordSessionClosed(12, false)
	m.RecordSessionClosed(1900, true)

	if got := testutil.ToFloat64(m.SessionsTotal); got != 2 {
		t.Errorf("expected 2 sessions total, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("expected 0 active sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsSwept); got != 1 {
		t.Errorf("expected 1 swept session, got %v", got)
	}
}

func TestRecordUpstreamCreated(t *testing.T) {
	m := newTestMetrics()

	m.RecordUpstreamCreated("gladia", nil, 0.2)
	m.RecordUpstreamCreated("gladia", errors.New("refused"), 10)

	if got := testutil.ToFloat64(m.UpstreamCreated.WithLabelValues("gladia")); got != 1 {
		t.Errorf("expected 1 created, got %v", got)
	}
	if got := testutil.ToFloat64(m.UpstreamFailed.WithLabelValues("gladia")); got != 1 {
		t.Errorf("expected 1 failed, got %v", got)
	}
	if got := testutil.ToFloat64(m.UpstreamActive); got != 1 {
		t.Errorf("expected 1 active upstream, got %v", got)
	}

	m.RecordUpstreamEnded()
	if got := testutil.ToFloat64(m.UpstreamActive); got != 0 {
		t.Errorf("expected 0 active upstream, got %v", got)
	}
}

func TestRecordAudio(t *testing.T) {
	m := newTestMetrics()

	m.RecordAudioForwarded(3200)
	m.RecordAudioForwarded(3200)
	m.RecordAudioDropped("not_recording")

	if got := testutil.ToFloat64(m.AudioBytesForwarded); got != 6400 {
		t.Errorf("expected 6400 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.AudioFramesForwarded); got != 2 {
		t.Errorf("expected 2 frames, got %v", got)
	}
	if got := testutil.ToFloat64(m.AudioFramesDropped.WithLabelValues("not_recording")); got != 1 {
		t.Errorf("expected 1 dropped frame, got %v", got)
	}
}

func TestRecordTranslation(t *testing.T) {
	m := newTestMetrics()

	m.RecordTranslation(true, 0.1)
	m.RecordTranslation(false, 0.3)
	m.RecordTranslation(false, 0.3)

	if got := testutil.ToFloat64(m.Translations.WithLabelValues("success")); got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.Translations.WithLabelValues("failure")); got != 2 {
		t.Errorf("expected 2 failures, got %v", got)
	}
}

func TestRecordKafkaPublish(t *testing.T) {
	m := newTestMetrics()

	m.RecordKafkaPublish("topic", "session.created", nil)
	m.RecordKafkaPublish("topic", "session.created", errors.New("broker down"))

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("topic", "session.created")); got != 2 {
		t.Errorf("expected 2 publishes, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("topic", "session.created")); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}
