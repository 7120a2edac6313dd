// Package schema checks lifecycle events before they are published or
// displayed.
package schema

import (
	"errors"
	"fmt"

	"speech-translate-relay/internal/models"
)

var ErrInvalidEvent = errors.New("invalid lifecycle event")

var knownTypes = map[string]bool{
	models.EventSessionCreated:   true,
	models.EventRecordingStarted: true,
	models.EventRecordingStopped: true,
	models.EventUpstreamError:    true,
	models.EventSessionClosed:    true,
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate reports the first rule ev breaks.
func (v *Validator) Validate(ev models.LifecycleEvent) error {
	if !knownTypes[ev.EventType] {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.EventType)
	}
	if ev.SessionID == "" {
		return fmt.Errorf("%w: %s without sessionId", ErrInvalidEvent, ev.EventType)
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("%w: %s without timestamp", ErrInvalidEvent, ev.EventType)
	}
	switch ev.EventType {
	case models.EventRecordingStarted:
		if ev.UpstreamID == "" {
			return fmt.Errorf("%w: %s without upstreamId", ErrInvalidEvent, ev.EventType)
		}
	case models.EventUpstreamError, models.EventSessionClosed:
		if ev.Reason == "" {
			return fmt.Errorf("%w: %s without reason", ErrInvalidEvent, ev.EventType)
		}
	}
	return nil
}
