package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"speech-translate-relay/internal/language"
	"speech-translate-relay/internal/observability/logging"
)

const (
	deeplProURL  = "https://api.deepl.com/v2"
	deeplFreeURL = "https://api-free.deepl.com/v2"
)

// DeepLConfig configures the DeepL client.
type DeepLConfig struct {
	APIKey  string
	BaseURL string        // empty selects pro or free endpoint from the key
	Timeout time.Duration // zero keeps the http.Client default (no timeout)
	Client  *http.Client  // optional, overrides Timeout
}

// DeepL calls the DeepL v2 REST API.
type DeepL struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

// NewDeepL creates a DeepL translator. Free-tier keys (suffix ":fx") are
// routed to the free endpoint unless BaseURL is set.
func NewDeepL(cfg DeepLConfig) *DeepL {
	base := cfg.BaseURL
	if base == "" {
		base = deeplProURL
		if strings.HasSuffix(cfg.APIKey, ":fx") {
			base = deeplFreeURL
		}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &DeepL{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		client:  client,
		log:     logging.WithComponent("deepl"),
		now:     time.Now,
	}
}

type deeplTranslation struct {
	DetectedSourceLanguage string `json:"detected_source_language"`
	Text                   string `json:"text"`
}

type deeplResponse struct {
	Translations []deeplTranslation `json:"translations"`
}

type deeplError struct {
	Message string `json:"message"`
}

// Usage is the character quota reported by GET /usage.
type Usage struct {
	CharacterCount int64 `json:"character_count"`
	CharacterLimit int64 `json:"character_limit"`
}

// Translate translates a single utterance.
func (d *DeepL) Translate(ctx context.Context, text, targetLang, sourceLang string) Result {
	req, err := prepare(text, targetLang, sourceLang)
	if err != nil {
		return failure(text, targetLang, err, d.now())
	}

	translations, err := d.post(ctx, []string{req.text}, req.target, req.source)
	if err != nil {
		d.log.Warn().Err(err).Str("targetLang", targetLang).Msg("DeepL translation failed")
		return failure(text, targetLang, err, d.now())
	}

	t := translations[0]
	return Result{
		SourceText:         text,
		TranslatedText:     t.Text,
		DetectedSourceLang: strings.ToLower(t.DetectedSourceLanguage),
		TargetLang:         targetLang,
		Success:            true,
		Timestamp:          d.now(),
	}
}

// TranslateBatch translates several texts in one request. Results are
// positional; a request-level failure fails every entry.
func (d *DeepL) TranslateBatch(ctx context.Context, texts []string, targetLang, sourceLang string) []Result {
	results := make([]Result, len(texts))
	if len(texts) == 0 {
		return results
	}

	trimmed := make([]string, len(texts))
	for i, text := range texts {
		req, err := prepare(text, targetLang, sourceLang)
		if err != nil {
			for j := range texts {
				results[j] = failure(texts[j], targetLang, err, d.now())
			}
			return results
		}
		trimmed[i] = req.text
	}

	translations, err := d.post(ctx, trimmed, targetLang, sourceLang)
	if err == nil && len(translations) != len(texts) {
		err = fmt.Errorf("%w: expected %d translations, got %d", ErrMalformedResponse, len(texts), len(translations))
	}
	if err != nil {
		d.log.Warn().Err(err).Int("count", len(texts)).Msg("DeepL batch translation failed")
		for i := range texts {
			results[i] = failure(texts[i], targetLang, err, d.now())
		}
		return results
	}

	for i, t := range translations {
		results[i] = Result{
			SourceText:         texts[i],
			TranslatedText:     t.Text,
			DetectedSourceLang: strings.ToLower(t.DetectedSourceLanguage),
			TargetLang:         targetLang,
			Success:            true,
			Timestamp:          d.now(),
		}
	}
	return results
}

func (d *DeepL) post(ctx context.Context, texts []string, targetLang, sourceLang string) ([]deeplTranslation, error) {
	target, _ := language.DeepL(targetLang)

	form := url.Values{}
	for _, t := range texts {
		form.Add("text", t)
	}
	form.Set("target_lang", target)
	if sourceLang != "" {
		source, _ := language.DeepL(sourceLang)
		form.Set("source_lang", source)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepl request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read deepl response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}

	var parsed deeplResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Translations) == 0 {
		return nil, fmt.Errorf("%w: no translations", ErrMalformedResponse)
	}
	return parsed.Translations, nil
}

// Usage returns the account's character usage.
func (d *DeepL) Usage(ctx context.Context) (Usage, error) {
	var u Usage

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/usage", nil)
	if err != nil {
		return u, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return u, fmt.Errorf("deepl usage request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return u, fmt.Errorf("read deepl usage: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return u, statusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &u); err != nil {
		return u, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return u, nil
}

// ValidateKey reports whether the configured key is accepted.
func (d *DeepL) ValidateKey(ctx context.Context) bool {
	if _, err := d.Usage(ctx); err != nil {
		d.log.Error().Err(err).Msg("DeepL API key validation failed")
		return false
	}
	return true
}

func statusError(code int, body []byte) error {
	var e deeplError
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Errorf("deepl status %d: %s", code, e.Message)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return fmt.Errorf("deepl status %d: %s", code, msg)
}
