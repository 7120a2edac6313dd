package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-translate-relay/internal/observability/logging"
	"speech-translate-relay/internal/observability/metrics"
)

// DefaultCreateTimeout bounds CreateSession end to end.
const DefaultCreateTimeout = 10 * time.Second

// lateCleanupTimeout bounds provider cleanup of a session that opened after
// CreateSession gave up on it.
const lateCleanupTimeout = 10 * time.Second

var (
	ErrSessionCreation = errors.New("session creation failed")
	ErrNotOpen         = errors.New("upstream session is not open")
	ErrUnknownSession  = errors.New("unknown upstream session")
	ErrHandlerSet      = errors.New("event handler already registered")
)

// Handler receives every event of one upstream session, in order.
type Handler func(Event)

// Client is the transcription session contract the relay depends on.
type Client interface {
	CreateSession(ctx context.Context, language string) (string, error)
	SetEventHandler(handle string, h Handler) error
	SendAudio(handle string, pcm []byte) error
	EndSession(ctx context.Context, handle string) error
	Status(handle string) Status
}

// Config configures a Manager.
type Config struct {
	CreateTimeout time.Duration
	Metrics       *metrics.Metrics
}

// Manager owns every upstream session opened through one Provider.
// It is safe for concurrent use.
type Manager struct {
	provider Provider
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*upstream
}

type upstream struct {
	id     string
	stream Stream
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	handler Handler

	endOnce sync.Once
	endErr  error
}

var _ Client = (*Manager)(nil)

// NewManager creates a Manager for provider.
func NewManager(provider Provider, cfg Config) *Manager {
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = DefaultCreateTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	return &Manager{
		provider: provider,
		timeout:  cfg.CreateTimeout,
		metrics:  cfg.Metrics,
		log:      logging.WithComponent("stt-manager").With().Str("sttProvider", provider.Name()).Logger(),
		sessions: make(map[string]*upstream),
	}
}

// Provider returns the underlying provider name.
func (m *Manager) Provider() string {
	return m.provider.Name()
}

type openResult struct {
	id     string
	stream Stream
	err    error
}

// CreateSession opens an upstream session for language. Every failure mode
// (request error, failed open, timeout) is reported as ErrSessionCreation and
// leaves no state behind.
func (m *Manager) CreateSession(ctx context.Context, language string) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan openResult, 1)
	go func() {
		id, stream, err := m.provider.Open(ctx, language)
		done <- openResult{id: id, stream: stream, err: err}
	}()

	var res openResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
		// Release a session that opens after we gave up on it.
		go m.releaseLate(done)
	}

	m.metrics.RecordUpstreamCreated(m.provider.Name(), res.err, time.Since(start).Seconds())
	if res.err != nil {
		m.log.Error().Err(res.err).Str("language", language).Msg("Upstream session creation failed")
		return "", fmt.Errorf("%w: %v", ErrSessionCreation, res.err)
	}

	u := &upstream{
		id:     res.id,
		stream: res.stream,
		state:  StateOpen,
		log:    logging.WithUpstream(res.id, m.provider.Name()),
	}

	m.mu.Lock()
	m.sessions[res.id] = u
	m.mu.Unlock()

	u.log.Info().
		Str("language", language).
		Dur("latency", time.Since(start)).
		Msg("Upstream session open")
	return res.id, nil
}

func (m *Manager) releaseLate(done <-chan openResult) {
	late := <-done
	if late.err != nil || late.stream == nil {
		return
	}
	late.stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), lateCleanupTimeout)
	defer cancel()
	if err := m.provider.Cleanup(ctx, late.id); err != nil {
		m.log.Warn().Err(err).Str("upstreamId", late.id).Msg("Cleanup of late upstream session failed")
	}
}

// SetEventHandler subscribes h to the session's events and starts delivery.
// It may be called once per session.
func (m *Manager) SetEventHandler(handle string, h Handler) error {
	u, ok := m.lookup(handle)
	if !ok {
		return ErrUnknownSession
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.handler != nil {
		return ErrHandlerSet
	}
	if u.state != StateOpen {
		return ErrNotOpen
	}
	u.handler = h
	go m.pump(u, h)
	return nil
}

// pump reads the stream until it fails and hands each event to h.
func (m *Manager) pump(u *upstream, h Handler) {
	for {
		ev, err := u.stream.Recv()
		if err != nil {
			m.handleRecvError(u, h, err)
			return
		}
		if ev == nil {
			continue
		}
		if p, ok := ev.(PartialTranscript); ok && strings.TrimSpace(p.Text) == "" {
			continue
		}
		h(withHandle(ev, u.id))
	}
}

func (m *Manager) handleRecvError(u *upstream, h Handler, err error) {
	u.mu.Lock()
	if u.state != StateOpen {
		// Local teardown closed the stream; nothing to report.
		u.mu.Unlock()
		return
	}
	u.state = StateClosed
	u.mu.Unlock()

	if cerr := u.stream.Close(); cerr != nil {
		u.log.Debug().Err(cerr).Msg("Closing stream after remote failure")
	}

	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		m.metrics.RecordUpstreamError(m.provider.Name(), "closed")
		u.log.Warn().Int("code", closeErr.Code).Str("reason", closeErr.Reason).Msg("Upstream closed connection")
		h(UpstreamClosed{Handle: u.id, Code: closeErr.Code, Reason: closeErr.Reason})
		return
	}

	m.metrics.RecordUpstreamError(m.provider.Name(), "transport")
	u.log.Error().Err(err).Msg("Upstream stream failed")
	h(UpstreamError{Handle: u.id, Message: err.Error()})
}

// SendAudio forwards one PCM frame. It fails without side effects when the
// session is unknown or not open; frames are never buffered.
func (m *Manager) SendAudio(handle string, pcm []byte) error {
	u, ok := m.lookup(handle)
	if !ok {
		return ErrUnknownSession
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateOpen {
		return ErrNotOpen
	}
	if err := u.stream.Send(pcm); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// EndSession closes the stream, asks the provider to clean up, and unmaps the
// session. Repeated and concurrent calls are safe; only the first does work.
func (m *Manager) EndSession(ctx context.Context, handle string) error {
	u, ok := m.lookup(handle)
	if !ok {
		return nil
	}

	u.endOnce.Do(func() {
		u.mu.Lock()
		prev := u.state
		if prev != StateClosed {
			u.state = StateClosing
		}
		u.mu.Unlock()

		if prev != StateClosed {
			if err := u.stream.Close(); err != nil {
				u.endErr = fmt.Errorf("close upstream stream: %w", err)
				u.log.Warn().Err(err).Msg("Closing upstream stream failed")
			}
		}

		u.mu.Lock()
		u.state = StateClosed
		u.mu.Unlock()

		if err := m.provider.Cleanup(ctx, handle); err != nil {
			u.log.Warn().Err(err).Msg("Upstream cleanup failed")
		}

		m.mu.Lock()
		delete(m.sessions, handle)
		m.mu.Unlock()
		m.metrics.RecordUpstreamEnded()

		u.log.Info().Str("previousState", prev.String()).Msg("Upstream session ended")
	})
	return u.endErr
}

// Status reports whether handle is mapped and its connection state.
func (m *Manager) Status(handle string) Status {
	u, ok := m.lookup(handle)
	if !ok {
		return Status{Exists: false, State: StateClosed}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return Status{Exists: true, State: u.state}
}

// Len returns the number of mapped upstream sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown ends every mapped session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	handles := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		handles = append(handles, id)
	}
	m.mu.Unlock()

	for _, id := range handles {
		m.EndSession(ctx, id)
	}
}

func (m *Manager) lookup(handle string) (*upstream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.sessions[handle]
	return u, ok
}
