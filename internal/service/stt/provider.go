package stt

import "context"

// Audio format every provider is configured for: 16-bit PCM, 16 kHz, mono.
const (
	SampleRateHz  = 16000
	BitDepth      = 16
	Channels      = 1
	AudioEncoding = "wav/pcm"
)

// Stream is one open upstream connection.
type Stream interface {
	// Send writes one PCM frame.
	Send(pcm []byte) error

	// Recv blocks for the next event. A nil event with a nil error means the
	// message carried nothing the relay cares about. A *CloseError reports a
	// remote close; any other error is a transport failure.
	Recv() (Event, error)

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Provider opens streams against one transcription vendor.
type Provider interface {
	Name() string

	// Open requests connection parameters and establishes the stream. It
	// returns only once the stream is confirmed open.
	Open(ctx context.Context, language string) (id string, stream Stream, err error)

	// Cleanup asks the vendor to release server-side state for id.
	Cleanup(ctx context.Context, id string) error
}
