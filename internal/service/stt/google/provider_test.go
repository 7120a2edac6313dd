package google

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"speech-translate-relay/internal/service/stt"
)

func TestStreamingConfig(t *testing.T) {
	cfg := streamingConfig("cmn-Hans-CN")

	if cfg.Config.Encoding != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16, got %v", cfg.Config.Encoding)
	}
	if cfg.Config.SampleRateHertz != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.Config.SampleRateHertz)
	}
	if cfg.Config.AudioChannelCount != 1 {
		t.Errorf("expected mono, got %d channels", cfg.Config.AudioChannelCount)
	}
	if cfg.Config.LanguageCode != "cmn-Hans-CN" {
		t.Errorf("expected language 'cmn-Hans-CN', got %s", cfg.Config.LanguageCode)
	}
	if !cfg.InterimResults {
		t.Error("expected interim results enabled")
	}
	if !cfg.Config.EnableWordTimeOffsets {
		t.Error("expected word time offsets enabled")
	}
}

func TestEventsFromResponse(t *testing.T) {
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{
				Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "你好"}},
				IsFinal:      false,
			},
			{
				Alternatives: nil,
				IsFinal:      true,
			},
			{
				Alternatives: []*speechpb.SpeechRecognitionAlternative{{
					Transcript: " 你好世界 ",
					Confidence: 0.5,
					Words: []*speechpb.WordInfo{
						{Word: "你好", StartTime: durationpb.New(200 * time.Millisecond), EndTime: durationpb.New(600 * time.Millisecond), Confidence: 0.5},
						{Word: "世界", StartTime: durationpb.New(600 * time.Millisecond), EndTime: durationpb.New(time.Second), Confidence: 0.25},
					},
				}},
				IsFinal:       true,
				ResultEndTime: durationpb.New(1100 * time.Millisecond),
			},
		},
	}

	events := eventsFromResponse(resp)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	p, ok := events[0].(stt.PartialTranscript)
	if !ok || p.Text != "你好" {
		t.Errorf("expected partial '你好', got %#v", events[0])
	}

	f, ok := events[1].(stt.FinalTranscript)
	if !ok {
		t.Fatalf("expected FinalTranscript, got %#v", events[1])
	}
	if f.Text != "你好世界" {
		t.Errorf("expected trimmed text, got %q", f.Text)
	}
	if f.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", f.Confidence)
	}
	if f.Start != 0.2 || f.End != 1.1 {
		t.Errorf("expected start 0.2 end 1.1, got %v %v", f.Start, f.End)
	}
	if len(f.Words) != 2 || f.Words[1].Word != "世界" || f.Words[1].Confidence != 0.25 {
		t.Errorf("unexpected words: %+v", f.Words)
	}
}

func TestEventsFromResponse_Empty(t *testing.T) {
	if got := eventsFromResponse(&speechpb.StreamingRecognizeResponse{}); len(got) != 0 {
		t.Errorf("expected no events, got %v", got)
	}
}

func TestClassifyRecvError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClose bool
	}{
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("recv: %w", io.EOF), true},
		{"canceled", status.Error(codes.Canceled, "context canceled"), true},
		{"stream limit", status.Error(codes.OutOfRange, "exceeded maximum allowed stream duration"), true},
		{"unavailable", status.Error(codes.Unavailable, "connection reset"), false},
		{"permission", status.Error(codes.PermissionDenied, "bad credentials"), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyRecvError(tt.err)
			var ce *stt.CloseError
			if isClose := errors.As(got, &ce); isClose != tt.wantClose {
				t.Errorf("classifyRecvError(%v) close=%v, want %v (got %v)", tt.err, isClose, tt.wantClose, got)
			}
		})
	}
}
