package models

// Lifecycle event types published about sessions. They carry identifiers and
// languages only, never transcript or translation text.
const (
	EventSessionCreated   = "session.created"
	EventRecordingStarted = "recording.started"
	EventRecordingStopped = "recording.stopped"
	EventUpstreamError    = "upstream.error"
	EventSessionClosed    = "session.closed"
)

// LifecycleEvent is one session lifecycle notification.
type LifecycleEvent struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	UpstreamID string `json:"upstreamId,omitempty"`
	Provider   string `json:"provider,omitempty"`
	SourceLang string `json:"sourceLang,omitempty"`
	TargetLang string `json:"targetLang,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}
