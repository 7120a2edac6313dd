// Package google provides a Google Cloud Speech-to-Text streaming provider.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-translate-relay/internal/language"
	"speech-translate-relay/internal/service/stt"
)

// Config configures the Google provider.
type Config struct {
	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// Provider opens StreamingRecognize calls.
type Provider struct {
	client *speech.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Google provider with its own Speech client.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Provider{client: c}, nil
}

func (p *Provider) Name() string { return "google" }

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Open starts a recognition stream and sends its config. The stream outlives
// ctx, which only bounds the open.
func (p *Provider) Open(ctx context.Context, lang string) (string, stt.Stream, error) {
	tag, ok := language.Google(lang)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", language.ErrUnsupported, lang)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	rs, err := p.client.StreamingRecognize(streamCtx)
	if err == nil {
		err = rs.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: streamingConfig(tag),
			},
		})
	}
	if !stop() || err != nil {
		cancel()
		if err == nil {
			err = ctx.Err()
		}
		return "", nil, fmt.Errorf("start streaming recognize: %w", err)
	}

	return uuid.NewString(), &stream{rs: rs, cancel: cancel}, nil
}

// Cleanup is a no-op; Google keeps no session state after the stream ends.
func (p *Provider) Cleanup(ctx context.Context, id string) error {
	return nil
}

func streamingConfig(languageTag string) *speechpb.StreamingRecognitionConfig {
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            stt.SampleRateHz,
			AudioChannelCount:          stt.Channels,
			LanguageCode:               languageTag,
			EnableWordTimeOffsets:      true,
			EnableWordConfidence:       true,
			EnableAutomaticPunctuation: true,
		},
		InterimResults: true,
	}
}

type stream struct {
	rs     speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc

	pending []stt.Event

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Send(pcm []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.rs.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	})
}

func (s *stream) Recv() (stt.Event, error) {
	for len(s.pending) == 0 {
		resp, err := s.rs.Recv()
		if err != nil {
			return nil, classifyRecvError(err)
		}
		if resp.Error != nil && resp.Error.Code != int32(codes.OK) {
			return stt.UpstreamError{Message: resp.Error.Message}, nil
		}
		s.pending = eventsFromResponse(resp)
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.closeErr = s.rs.CloseSend()
		s.sendMu.Unlock()
		s.cancel()
	})
	return s.closeErr
}

// eventsFromResponse maps the first alternative of each result to a
// transcript event.
func eventsFromResponse(resp *speechpb.StreamingRecognizeResponse) []stt.Event {
	var out []stt.Event
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if !r.IsFinal {
			out = append(out, stt.PartialTranscript{Text: alt.Transcript})
			continue
		}

		words := make([]stt.Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			words = append(words, stt.Word{
				Word:       w.Word,
				Start:      w.GetStartTime().AsDuration().Seconds(),
				End:        w.GetEndTime().AsDuration().Seconds(),
				Confidence: float64(w.Confidence),
			})
		}
		final := stt.FinalTranscript{
			Text:       strings.TrimSpace(alt.Transcript),
			Confidence: float64(alt.Confidence),
			End:        r.GetResultEndTime().AsDuration().Seconds(),
			Words:      words,
		}
		if len(words) > 0 {
			final.Start = words[0].Start
		}
		out = append(out, final)
	}
	return out
}

// classifyRecvError maps stream termination to a remote close and anything
// else to a transport failure.
func classifyRecvError(err error) error {
	if errors.Is(err, io.EOF) {
		return &stt.CloseError{Code: 1000, Reason: "stream ended"}
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return &stt.CloseError{Code: 1000, Reason: "stream canceled"}
	case codes.OutOfRange, codes.DeadlineExceeded:
		return &stt.CloseError{Code: 1001, Reason: st.Message()}
	default:
		return fmt.Errorf("speech %s: %s", st.Code(), st.Message())
	}
}
