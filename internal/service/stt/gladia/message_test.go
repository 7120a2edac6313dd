package gladia

import (
	"testing"

	"speech-translate-relay/internal/service/stt"
)

func TestParseMessage_Transcripts(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, ev stt.Event)
	}{
		{
			name: "nested partial",
			raw:  `{"type":"transcript","session_id":"s1","data":{"id":"u1","is_final":false,"utterance":{"text":"你好","start":0.1,"end":0.5}}}`,
			check: func(t *testing.T, ev stt.Event) {
				p, ok := ev.(stt.PartialTranscript)
				if !ok {
					t.Fatalf("expected PartialTranscript, got %#v", ev)
				}
				if p.Text != "你好" {
					t.Errorf("expected text '你好', got %q", p.Text)
				}
			},
		},
		{
			name: "nested final with words",
			raw: `{"type":"transcript","data":{"is_final":true,"utterance":{"text":" 你好，這是一個測試 ","start":0.2,"end":2.4,"confidence":0.93,
				"words":[{"word":"你好","start":0.2,"end":0.6,"confidence":0.95}]}}}`,
			check: func(t *testing.T, ev stt.Event) {
				f, ok := ev.(stt.FinalTranscript)
				if !ok {
					t.Fatalf("expected FinalTranscript, got %#v", ev)
				}
				if f.Text != "你好，這是一個測試" {
					t.Errorf("expected trimmed text, got %q", f.Text)
				}
				if f.Confidence != 0.93 || f.Start != 0.2 || f.End != 2.4 {
					t.Errorf("unexpected timing/confidence: %+v", f)
				}
				if len(f.Words) != 1 || f.Words[0].Word != "你好" || f.Words[0].Confidence != 0.95 {
					t.Errorf("unexpected words: %+v", f.Words)
				}
			},
		},
		{
			name: "legacy flat final",
			raw:  `{"type":"transcript","data":{"final":true,"text":"hello","confidence":0.8,"start":1,"end":2}}`,
			check: func(t *testing.T, ev stt.Event) {
				f, ok := ev.(stt.FinalTranscript)
				if !ok {
					t.Fatalf("expected FinalTranscript, got %#v", ev)
				}
				if f.Text != "hello" || f.Confidence != 0.8 {
					t.Errorf("unexpected final: %+v", f)
				}
			},
		},
		{
			name: "legacy flat partial",
			raw:  `{"type":"transcript","data":{"text":"hel"}}`,
			check: func(t *testing.T, ev stt.Event) {
				if _, ok := ev.(stt.PartialTranscript); !ok {
					t.Fatalf("expected PartialTranscript, got %#v", ev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestParseMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"data message", `{"type":"error","data":{"message":"quota exceeded"}}`, "quota exceeded"},
		{"data error field", `{"type":"error","data":{"error":"bad audio"}}`, "bad audio"},
		{"top-level string", `{"type":"error","error":"session expired"}`, "session expired"},
		{"no detail", `{"type":"error"}`, "gladia reported an error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			e, ok := ev.(stt.UpstreamError)
			if !ok {
				t.Fatalf("expected UpstreamError, got %#v", ev)
			}
			if e.Message != tt.want {
				t.Errorf("expected message %q, got %q", tt.want, e.Message)
			}
		})
	}
}

func TestParseMessage_Ignored(t *testing.T) {
	for _, raw := range []string{
		`{"type":"audio_chunk","data":{"byte_range":[0,3200]}}`,
		`{"type":"start_session","session_id":"s1"}`,
		`{"type":"transcript"}`,
	} {
		ev, err := parseMessage([]byte(raw))
		if err != nil {
			t.Errorf("parseMessage(%s) unexpected error: %v", raw, err)
		}
		if ev != nil {
			t.Errorf("parseMessage(%s) = %#v, want nil", raw, ev)
		}
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	if _, err := parseMessage([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := parseMessage([]byte(`{"type":"transcript","data":"oops"}`)); err == nil {
		t.Error("expected error for malformed transcript data")
	}
}
