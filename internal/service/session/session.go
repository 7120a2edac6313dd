// Package session holds per-connection relay state and the registry that owns
// its lifetime.
package session

import (
	"fmt"
	"sync"
	"time"

	"speech-translate-relay/internal/language"
)

// Session is the server-side state of one browser connection.
// Thread-safe for concurrent access.
//
// Invariant: recording implies a non-empty upstream handle. The methods below
// are the only way to change either field.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	sourceLang string
	targetLang string
	upstreamID string
	recording  bool
	state      State
	seq        uint64
}

// Snapshot is a copy of a Session's mutable fields.
type Snapshot struct {
	ID         string
	SourceLang string
	TargetLang string
	UpstreamID string
	Recording  bool
	State      State
	CreatedAt  time.Time
}

// New creates an idle Session with the default language pair.
func New(id string, createdAt time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  createdAt,
		sourceLang: language.DefaultSource,
		targetLang: language.DefaultTarget,
		state:      StateIdle,
	}
}

// Configure validates and stores the language pair.
func (s *Session) Configure(sourceLang, targetLang string) error {
	if !language.Supported(sourceLang) {
		return fmt.Errorf("%w: source %q", language.ErrUnsupported, sourceLang)
	}
	if !language.Supported(targetLang) {
		return fmt.Errorf("%w: target %q", language.ErrUnsupported, targetLang)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceLang = sourceLang
	s.targetLang = targetLang
	return nil
}

// Languages returns the configured source and target codes.
func (s *Session) Languages() (source, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceLang, s.targetLang
}

// State returns the current relay state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the Session to state to if the transition is valid.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	return nil
}

// AttachUpstream binds an open upstream handle and starts accepting audio.
// The Session must be configuring and hold no other handle.
func (s *Session) AttachUpstream(handle string) error {
	if handle == "" {
		return fmt.Errorf("attach upstream: empty handle")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstreamID != "" {
		return fmt.Errorf("attach upstream: session already holds %s", s.upstreamID)
	}
	if err := s.transitionLocked(StateRecording); err != nil {
		return err
	}
	s.upstreamID = handle
	s.recording = true
	return nil
}

// StopAccepting closes the audio guard without releasing the handle.
func (s *Session) StopAccepting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = false
}

// DetachUpstream clears the handle and the recording flag, returning the
// previous handle (empty if none).
func (s *Session) DetachUpstream() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.upstreamID
	s.upstreamID = ""
	s.recording = false
	return prev
}

// UpstreamID returns the bound handle, or empty.
func (s *Session) UpstreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstreamID
}

// AcceptingAudio returns the handle to forward audio to, or false if audio
// must be dropped.
func (s *Session) AcceptingAudio() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording || s.upstreamID == "" {
		return "", false
	}
	return s.upstreamID, true
}

// NextSeq returns the next per-session sequence number, starting at 1.
func (s *Session) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Age returns how long the Session has existed at now.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Snapshot returns a consistent copy of the Session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.ID,
		SourceLang: s.sourceLang,
		TargetLang: s.targetLang,
		UpstreamID: s.upstreamID,
		Recording:  s.recording,
		State:      s.state,
		CreatedAt:  s.CreatedAt,
	}
}
