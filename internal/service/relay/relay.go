// Package relay binds browser connections to upstream transcription sessions
// and forwards finalized transcripts and their translations back.
//
// Each connection is driven by one goroutine that owns its protocol state.
// Browser frames, upstream events and the results of asynchronous upstream
// calls are all delivered to that goroutine over channels.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-translate-relay/internal/models"
	"speech-translate-relay/internal/observability/logging"
	"speech-translate-relay/internal/observability/metrics"
	"speech-translate-relay/internal/service/session"
	"speech-translate-relay/internal/service/stt"
	"speech-translate-relay/internal/service/translation"
)

// cleanupTimeout bounds upstream teardown once the browser is gone.
const cleanupTimeout = 10 * time.Second

// Conn is the browser transport. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// LifecyclePublisher receives session lifecycle notifications.
type LifecyclePublisher interface {
	Publish(ctx context.Context, ev models.LifecycleEvent) error
}

// Config configures a Relay.
type Config struct {
	// ForwardPartials sends interim transcripts to the browser. Off by
	// default: only finalized text reaches the UI.
	ForwardPartials bool
	// Provider names the transcription vendor in lifecycle events.
	Provider  string
	Metrics   *metrics.Metrics
	Publisher LifecyclePublisher
	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
}

// Relay serves browser connections.
type Relay struct {
	registry   *session.Registry
	stt        stt.Client
	translator translation.Translator
	cfg        Config
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu    sync.Mutex
	conns map[string]*connection
}

// New creates a Relay.
func New(registry *session.Registry, sttClient stt.Client, translator translation.Translator, cfg Config) *Relay {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Relay{
		registry:   registry,
		stt:        sttClient,
		translator: translator,
		cfg:        cfg,
		metrics:    cfg.Metrics,
		log:        logging.WithComponent("relay"),
		conns:      make(map[string]*connection),
	}
}

// Serve runs one browser connection until it disconnects, is swept, or ctx
// is done. The connection is closed on return.
func (r *Relay) Serve(ctx context.Context, conn Conn) error {
	id := r.cfg.NewID()
	sess, err := r.registry.Create(id)
	if err != nil {
		conn.Close()
		if errors.Is(err, session.ErrExists) {
			r.log.Error().Str("sessionId", id).Msg("Duplicate session id")
		}
		return err
	}

	c := newConnection(ctx, r, id, conn)
	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()

	r.metrics.RecordSessionOpened()
	src, tgt := sess.Languages()
	r.publish(models.LifecycleEvent{
		EventType:  models.EventSessionCreated,
		SessionID:  id,
		SourceLang: src,
		TargetLang: tgt,
	})
	c.log.Info().Msg("Browser connected")

	defer r.teardown(ctx, id, "disconnect")
	c.run()
	return nil
}

// Teardown ends a session through the same path as a browser disconnect.
// It is safe to call concurrently with, or after, the disconnect itself.
func (r *Relay) Teardown(id string) {
	r.teardown(context.Background(), id, "swept")
}

func (r *Relay) teardown(ctx context.Context, id, reason string) {
	r.mu.Lock()
	c := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if c != nil {
		c.shutdown()
	}

	sess, ok := r.registry.Remove(id)
	if !ok {
		return
	}

	sess.StopAccepting()
	handle := sess.DetachUpstream()
	sess.Transition(session.StateClosed)

	log := logging.WithSession(id)
	if handle != "" {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		if err := r.stt.EndSession(cctx, handle); err != nil {
			log.Warn().Err(err).Str("upstreamId", handle).Msg("Upstream teardown failed")
		}
		cancel()
	}

	age := sess.Age(r.registry.Now())
	r.metrics.RecordSessionClosed(age.Seconds(), reason == "swept")
	r.publish(models.LifecycleEvent{
		EventType:  models.EventSessionClosed,
		SessionID:  id,
		UpstreamID: handle,
		Reason:     reason,
	})
	log.Info().Str("reason", reason).Dur("age", age).Msg("Session closed")
}

// Active returns the number of live browser connections.
func (r *Relay) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Shutdown tears down every live connection.
func (r *Relay) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.teardown(ctx, id, "shutdown")
	}
}

func (r *Relay) publish(ev models.LifecycleEvent) {
	if r.cfg.Publisher == nil {
		return
	}
	if ev.Provider == "" {
		ev.Provider = r.cfg.Provider
	}
	if err := r.cfg.Publisher.Publish(context.Background(), ev); err != nil {
		r.log.Warn().Err(err).Str("eventType", ev.EventType).Msg("Lifecycle publish failed")
	}
}
