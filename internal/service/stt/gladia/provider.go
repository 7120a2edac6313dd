// Package gladia implements the live transcription provider for Gladia v2.
//
// A session is opened in two steps: POST /live returns a session id and a
// WebSocket URL, then dialing that URL confirms the session is open.
package gladia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-translate-relay/internal/language"
	"speech-translate-relay/internal/observability/logging"
	"speech-translate-relay/internal/service/stt"
)

const (
	DefaultBaseURL = "https://api.gladia.io/v2"
	DefaultModel   = "solaria-1"

	keyHeader = "x-gladia-key"

	// cleanupTimeout bounds the DELETE issued for a session that never
	// connected.
	cleanupTimeout = 5 * time.Second
)

// Config configures the Gladia provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
	Dialer  *websocket.Dialer
}

// Provider opens live sessions against Gladia.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Gladia provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		dialer:  cfg.Dialer,
		log:     logging.WithComponent("gladia"),
	}
}

func (p *Provider) Name() string { return "gladia" }

type languageConfig struct {
	Languages     []string `json:"languages"`
	CodeSwitching bool     `json:"code_switching"`
}

type messagesConfig struct {
	ReceivePartialTranscripts bool `json:"receive_partial_transcripts"`
	ReceiveFinalTranscripts   bool `json:"receive_final_transcripts"`
}

type initRequest struct {
	Encoding       string         `json:"encoding"`
	BitDepth       int            `json:"bit_depth"`
	SampleRate     int            `json:"sample_rate"`
	Channels       int            `json:"channels"`
	Model          string         `json:"model"`
	LanguageConfig languageConfig `json:"language_config"`
	MessagesConfig messagesConfig `json:"messages_config"`
}

type initResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Open requests a live session for language and dials its WebSocket.
func (p *Provider) Open(ctx context.Context, lang string) (string, stt.Stream, error) {
	code, ok := language.Gladia(lang)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", language.ErrUnsupported, lang)
	}

	body, err := json.Marshal(initRequest{
		Encoding:   stt.AudioEncoding,
		BitDepth:   stt.BitDepth,
		SampleRate: stt.SampleRateHz,
		Channels:   stt.Channels,
		Model:      p.model,
		LanguageConfig: languageConfig{
			Languages: []string{code},
		},
		MessagesConfig: messagesConfig{
			ReceivePartialTranscripts: true,
			ReceiveFinalTranscripts:   true,
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("encode init request: %w", err)
	}

	var init initResponse
	if err := p.do(ctx, http.MethodPost, "/live", bytes.NewReader(body), &init); err != nil {
		return "", nil, fmt.Errorf("init live session: %w", err)
	}
	if init.ID == "" || init.URL == "" {
		return "", nil, fmt.Errorf("init live session: response missing id or url")
	}

	header := http.Header{}
	header.Set(keyHeader, p.apiKey)
	conn, resp, err := p.dialer.DialContext(ctx, init.URL, header)
	if err != nil {
		// The live session exists server-side; delete it even if ctx is done.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		if cerr := p.Cleanup(cctx, init.ID); cerr != nil {
			p.log.Warn().Err(cerr).Str("upstreamId", init.ID).Msg("Cleanup after failed dial")
		}
		cancel()
		if resp != nil {
			return "", nil, fmt.Errorf("dial live session: %w (status %d)", err, resp.StatusCode)
		}
		return "", nil, fmt.Errorf("dial live session: %w", err)
	}

	p.log.Debug().Str("upstreamId", init.ID).Str("language", code).Msg("Gladia live session connected")
	return init.ID, newStream(conn, logging.WithUpstream(init.ID, p.Name())), nil
}

// Cleanup deletes the live session's server-side state.
func (p *Provider) Cleanup(ctx context.Context, id string) error {
	if err := p.do(ctx, http.MethodDelete, "/live/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete live session %s: %w", id, err)
	}
	return nil
}

// Result fetches the stored result of a live session.
func (p *Provider) Result(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := p.do(ctx, http.MethodGet, "/live/"+id, nil, &out); err != nil {
		return nil, fmt.Errorf("get live session %s: %w", id, err)
	}
	return out, nil
}

// ValidateKey reports whether the API key is accepted.
func (p *Provider) ValidateKey(ctx context.Context) bool {
	if err := p.do(ctx, http.MethodGet, "/live?limit=1", nil, nil); err != nil {
		p.log.Error().Err(err).Msg("Gladia API key validation failed")
		return false
	}
	return true
}

// do sends an authenticated request and decodes a JSON body into out when out
// is non-nil.
func (p *Provider) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(keyHeader, p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Errorf("gladia status %d: %s", code, e.Message)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return fmt.Errorf("gladia status %d: %s", code, msg)
}
