package mock

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"speech-translate-relay/internal/language"
	"speech-translate-relay/internal/service/stt"
)

func openStream(t *testing.T, p *Provider) stt.Stream {
	t.Helper()
	_, s, err := p.Open(context.Background(), "zh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProvider_Open(t *testing.T) {
	p := New()
	id, s, err := p.Open(context.Background(), "zh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	if id == "" {
		t.Error("expected non-empty id")
	}
	if p.Name() != "mock" {
		t.Errorf("expected name 'mock', got %s", p.Name())
	}
}

func TestProvider_Open_UnsupportedLanguage(t *testing.T) {
	_, _, err := New().Open(context.Background(), "xx")
	if !errors.Is(err, language.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestProvider_Open_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := New().Open(ctx, "zh"); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestStream_PartialsThenOneFinal(t *testing.T) {
	p := &Provider{Utterances: []SimulatedUtterance{
		{Partials: []string{"你", "你好"}, Final: "你好", Confidence: 0.9},
	}}
	s := openStream(t, p)

	for i := 0; i < 3; i++ {
		if err := s.Send([]byte("audio")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []string{"你", "你好"}
	for _, text := range want {
		ev, err := s.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		partial, ok := ev.(stt.PartialTranscript)
		if !ok || partial.Text != text {
			t.Errorf("expected partial %q, got %#v", text, ev)
		}
	}

	ev, err := s.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	final, ok := ev.(stt.FinalTranscript)
	if !ok {
		t.Fatalf("expected FinalTranscript, got %#v", ev)
	}
	if final.Text != "你好" || final.Confidence != 0.9 {
		t.Errorf("unexpected final %+v", final)
	}
}

func TestStream_CyclesThroughUtterances(t *testing.T) {
	p := &Provider{Utterances: []SimulatedUtterance{
		{Partials: nil, Final: "one", Confidence: 0.9},
		{Partials: nil, Final: "two", Confidence: 0.9},
	}}
	s := openStream(t, p)

	var finals []string
	for i := 0; i < 3; i++ {
		s.Send([]byte("audio"))
		ev, err := s.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		finals = append(finals, ev.(stt.FinalTranscript).Text)
	}

	if finals[0] != "one" || finals[1] != "two" || finals[2] != "one" {
		t.Errorf("expected one,two,one; got %v", finals)
	}
}

func TestProvider_RotatesStartingUtterance(t *testing.T) {
	p := &Provider{Utterances: []SimulatedUtterance{
		{Final: "first", Confidence: 0.9},
		{Final: "second", Confidence: 0.9},
	}}

	s1 := openStream(t, p)
	s2 := openStream(t, p)
	s1.Send(nil)
	s2.Send(nil)

	ev1, _ := s1.Recv()
	ev2, _ := s2.Recv()
	if ev1.(stt.FinalTranscript).Text == ev2.(stt.FinalTranscript).Text {
		t.Errorf("expected different starting utterances, both got %q", ev1.(stt.FinalTranscript).Text)
	}
}

func TestStream_Close(t *testing.T) {
	s := openStream(t, &Provider{})

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("expected io.EOF after close, got %v", err)
	}
	if err := s.Send([]byte("audio")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestDefaultUtterances(t *testing.T) {
	if len(DefaultUtterances) == 0 {
		t.Fatal("expected default utterances")
	}
	for i, utt := range DefaultUtterances {
		if len(utt.Partials) == 0 {
			t.Errorf("utterance %d has no partials", i)
		}
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
		if utt.Confidence <= 0 || utt.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, utt.Confidence)
		}
	}
}

func TestStream_ThreadSafety(t *testing.T) {
	s := openStream(t, &Provider{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				s.Send([]byte("audio"))
			}
		}()
	}
	wg.Wait()
	s.Close()
}

func TestProvider_WorksWithManager(t *testing.T) {
	mgr := stt.NewManager(&Provider{Utterances: []SimulatedUtterance{{Final: "你好", Confidence: 0.9}}}, stt.Config{})

	handle, err := mgr.CreateSession(context.Background(), "zh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mgr.EndSession(context.Background(), handle)

	got := make(chan stt.Event, 1)
	mgr.SetEventHandler(handle, func(ev stt.Event) { got <- ev })
	if err := mgr.SendAudio(handle, []byte("audio")); err != nil {
		t.Fatalf("send: %v", err)
	}

	ev := <-got
	if ev.UpstreamID() != handle {
		t.Errorf("expected event stamped with %s, got %s", handle, ev.UpstreamID())
	}
	if f, ok := ev.(stt.FinalTranscript); !ok || f.Text != "你好" {
		t.Errorf("expected final '你好', got %#v", ev)
	}
}
