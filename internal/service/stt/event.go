// Package stt manages upstream streaming transcription sessions and exposes
// their results as typed events.
package stt

import "fmt"

// Event is one inbound upstream event, stamped with the upstream handle it
// belongs to.
type Event interface {
	UpstreamID() string
}

// Word is a timed word inside a final transcript. Times are in seconds.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// PartialTranscript is interim text that may still be revised.
type PartialTranscript struct {
	Handle string
	Text   string
}

// FinalTranscript is a finalized utterance.
type FinalTranscript struct {
	Handle     string
	Text       string
	Confidence float64
	Start      float64
	End        float64
	Words      []Word
}

// UpstreamError is an error reported by the upstream service or its transport.
type UpstreamError struct {
	Handle  string
	Message string
}

// UpstreamClosed reports that the upstream closed the connection on its own.
type UpstreamClosed struct {
	Handle string
	Code   int
	Reason string
}

func (e PartialTranscript) UpstreamID() string { return e.Handle }
func (e FinalTranscript) UpstreamID() string   { return e.Handle }
func (e UpstreamError) UpstreamID() string     { return e.Handle }
func (e UpstreamClosed) UpstreamID() string    { return e.Handle }

// withHandle returns ev stamped with handle. Providers emit events without one.
func withHandle(ev Event, handle string) Event {
	switch e := ev.(type) {
	case PartialTranscript:
		e.Handle = handle
		return e
	case FinalTranscript:
		e.Handle = handle
		return e
	case UpstreamError:
		e.Handle = handle
		return e
	case UpstreamClosed:
		e.Handle = handle
		return e
	default:
		return ev
	}
}

// CloseError is returned by Stream.Recv when the remote side closed the
// connection, as opposed to a transport failure.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("upstream closed: code=%d reason=%q", e.Code, e.Reason)
}
