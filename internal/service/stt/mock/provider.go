// Package mock provides a scripted transcription provider for running the
// relay without upstream credentials. Each audio frame advances the current
// utterance by one partial; the frame after the last partial yields exactly
// one final, and the next frame starts the following utterance.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"speech-translate-relay/internal/language"
	"speech-translate-relay/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"你", "你好"},
		Final:      "你好",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"你好", "你好，這是", "你好，這是一個"},
		Final:      "你好，這是一個測試",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"今天", "今天天氣"},
		Final:      "今天天氣很好",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"謝謝"},
		Final:      "謝謝大家",
		Confidence: 0.98,
	},
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("mock stream closed")

// Provider hands out scripted streams, rotating the starting utterance.
type Provider struct {
	// Utterances defaults to DefaultUtterances.
	Utterances []SimulatedUtterance
	// Delay is applied before each event is delivered, imitating upstream
	// processing time.
	Delay time.Duration

	mu      sync.Mutex
	counter int
}

var _ stt.Provider = (*Provider)(nil)

// New creates a mock provider with the default script.
func New() *Provider {
	return &Provider{Utterances: DefaultUtterances, Delay: 50 * time.Millisecond}
}

func (p *Provider) Name() string { return "mock" }

// Open returns a stream starting at the next utterance in rotation.
func (p *Provider) Open(ctx context.Context, lang string) (string, stt.Stream, error) {
	if !language.Supported(lang) {
		return "", nil, fmt.Errorf("%w: %q", language.ErrUnsupported, lang)
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	script := p.Utterances
	if len(script) == 0 {
		script = DefaultUtterances
	}

	p.mu.Lock()
	start := p.counter % len(script)
	p.counter++
	p.mu.Unlock()

	return "mock-" + uuid.NewString(), newStream(script, start, p.Delay), nil
}

// Cleanup is a no-op.
func (p *Provider) Cleanup(ctx context.Context, id string) error {
	return nil
}

type stream struct {
	script []SimulatedUtterance
	delay  time.Duration
	events chan stt.Event
	done   chan struct{}

	mu           sync.Mutex
	current      int // index into script
	partialIndex int // next partial to send
	closed       bool
	closeOnce    sync.Once
}

func newStream(script []SimulatedUtterance, start int, delay time.Duration) *stream {
	return &stream{
		script:  script,
		delay:   delay,
		current: start,
		events:  make(chan stt.Event, 64),
		done:    make(chan struct{}),
	}
}

// Send advances the script by one step.
func (s *stream) Send(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	utt := s.script[s.current]
	var ev stt.Event
	if s.partialIndex < len(utt.Partials) {
		ev = stt.PartialTranscript{Text: utt.Partials[s.partialIndex]}
		s.partialIndex++
	} else {
		// All partials sent: the utterance ends, as silence detection would.
		ev = stt.FinalTranscript{
			Text:       utt.Final,
			Confidence: utt.Confidence,
			End:        float64(len(utt.Partials)+1) * 0.5,
		}
		s.current = (s.current + 1) % len(s.script)
		s.partialIndex = 0
	}

	select {
	case s.events <- ev:
	default:
		// Reader fell behind; drop like a lossy upstream would.
	}
	return nil
}

func (s *stream) Recv() (stt.Event, error) {
	select {
	case ev := <-s.events:
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-s.done:
				return nil, io.EOF
			}
		}
		return ev, nil
	case <-s.done:
		return nil, io.EOF
	}
}

// Close ends the mock session.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}
