package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"speech-translate-relay/internal/config"
)

type deeplRequest struct {
	texts          []string
	source, target string
}

func newFakeDeepL(t *testing.T) (*httptest.Server, func() []deeplRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []deeplRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/usage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"character_count":10,"character_limit":500000}`))
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := deeplRequest{
			texts:  r.PostForm["text"],
			source: r.PostForm.Get("source_lang"),
			target: r.PostForm.Get("target_lang"),
		}
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()

		type tr struct {
			DetectedSourceLanguage string `json:"detected_source_language"`
			Text                   string `json:"text"`
		}
		out := struct {
			Translations []tr `json:"translations"`
		}{}
		for _, text := range req.texts {
			out.Translations = append(out.Translations, tr{req.source, "[" + req.target + "] " + text})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []deeplRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]deeplRequest(nil), reqs...)
	}
}

func newFakeGladia(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch {
		case r.URL.Path == "/live":
			_, _ = w.Write([]byte(`{"items":[]}`))
		case r.URL.Path == "/live/sess-9":
			_, _ = w.Write([]byte(`{"id":"sess-9","status":"done"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), paths...)
	}
}

func TestCheckDeepL_BatchesPerDirection(t *testing.T) {
	srv, requests := newFakeDeepL(t)
	cfg := config.TranslationConfig{DeepLAPIKey: "key:fx", DeepLURL: srv.URL}

	if !checkDeepL(context.Background(), cfg, false) {
		t.Fatal("checkDeepL() = false, want true")
	}

	reqs := requests()
	if len(reqs) != len(sampleBatches) {
		t.Fatalf("expected %d translate requests, got %d", len(sampleBatches), len(reqs))
	}
	for i, batch := range sampleBatches {
		got := reqs[i]
		if len(got.texts) != len(batch.texts) {
			t.Errorf("request %d carried %d texts, want %d", i, len(got.texts), len(batch.texts))
		}
		if !strings.EqualFold(got.source, batch.source) {
			t.Errorf("request %d source = %q, want %q", i, got.source, batch.source)
		}
		if !strings.HasPrefix(strings.ToLower(got.target), batch.target) {
			t.Errorf("request %d target = %q, want %q", i, got.target, batch.target)
		}
	}
}

func TestCheckDeepL_SkipTranslate(t *testing.T) {
	srv, requests := newFakeDeepL(t)
	cfg := config.TranslationConfig{DeepLAPIKey: "key:fx", DeepLURL: srv.URL}

	if !checkDeepL(context.Background(), cfg, true) {
		t.Fatal("checkDeepL() = false, want true")
	}
	if n := len(requests()); n != 0 {
		t.Errorf("expected no translate requests, got %d", n)
	}
}

func TestCheckGladia(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		want      bool
		wantPaths []string
	}{
		{"key only", "", true, []string{"/live"}},
		{"known session", "sess-9", true, []string{"/live", "/live/sess-9"}},
		{"unknown session", "missing", false, []string{"/live", "/live/missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, paths := newFakeGladia(t)
			cfg := config.STTConfig{GladiaAPIKey: "key", GladiaBaseURL: srv.URL}

			if got := checkGladia(context.Background(), cfg, tt.sessionID); got != tt.want {
				t.Fatalf("checkGladia() = %v, want %v", got, tt.want)
			}
			got := paths()
			if strings.Join(got, ",") != strings.Join(tt.wantPaths, ",") {
				t.Errorf("paths = %v, want %v", got, tt.wantPaths)
			}
		})
	}
}

func TestCheckGladia_NoKeySkips(t *testing.T) {
	if !checkGladia(context.Background(), config.STTConfig{}, "sess-9") {
		t.Error("checkGladia() without a key should skip and succeed")
	}
}
