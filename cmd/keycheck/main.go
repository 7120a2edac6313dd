// Command keycheck verifies the configured Gladia and DeepL API keys, runs
// sample translations in each direction and optionally prints the stored
// result of a Gladia live session.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"speech-translate-relay/internal/config"
	"speech-translate-relay/internal/observability/logging"
	"speech-translate-relay/internal/service/stt/gladia"
	"speech-translate-relay/internal/service/translation"
)

// sampleBatches are translated with one request per direction.
var sampleBatches = []struct {
	source, target string
	texts          []string
}{
	{"zh", "en", []string{"你好，這是一個測試", "今天天氣很好"}},
	{"en", "zh", []string{"Hello, this is a test", "Thank you"}},
}

type options struct {
	skipTranslate bool
	sessionID     string
}

func main() {
	envFile := flag.String("env", ".env", "Optional .env file")
	timeout := flag.Duration("timeout", 15*time.Second, "Overall timeout")
	skipTranslate := flag.Bool("skip-translate", false, "Only validate keys")
	sessionID := flag.String("session", "", "Print the stored result of this Gladia live session")
	flag.Parse()

	_ = godotenv.Load(*envFile)
	cfg := config.Load()
	logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !run(ctx, cfg, options{skipTranslate: *skipTranslate, sessionID: *sessionID}) {
		os.Exit(1)
	}
	log.Info().Msg("All configured keys are valid")
}

func run(ctx context.Context, cfg *config.Config, opts options) bool {
	ok := checkGladia(ctx, cfg.STT, opts.sessionID)
	if !checkDeepL(ctx, cfg.Translation, opts.skipTranslate) {
		ok = false
	}
	return ok
}

func checkGladia(ctx context.Context, cfg config.STTConfig, sessionID string) bool {
	if cfg.GladiaAPIKey == "" {
		log.Warn().Msg("GLADIA_API_KEY not set, skipping")
		return true
	}
	p := gladia.New(gladia.Config{APIKey: cfg.GladiaAPIKey, BaseURL: cfg.GladiaBaseURL})
	if !p.ValidateKey(ctx) {
		log.Error().Msg("Gladia API key rejected")
		return false
	}
	log.Info().Msg("Gladia API key valid")

	if sessionID == "" {
		return true
	}
	res, err := p.Result(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Gladia session lookup failed")
		return false
	}
	log.Info().Str("sessionId", sessionID).RawJSON("result", res).Msg("Gladia session result")
	return true
}

func checkDeepL(ctx context.Context, cfg config.TranslationConfig, skipTranslate bool) bool {
	if cfg.DeepLAPIKey == "" {
		log.Warn().Msg("DEEPL_API_KEY not set, skipping")
		return true
	}
	d := translation.NewDeepL(translation.DeepLConfig{
		APIKey:  cfg.DeepLAPIKey,
		BaseURL: cfg.DeepLURL,
		Timeout: cfg.Timeout,
	})

	usage, err := d.Usage(ctx)
	if err != nil {
		log.Error().Err(err).Msg("DeepL API key rejected")
		return false
	}
	log.Info().
		Int64("characterCount", usage.CharacterCount).
		Int64("characterLimit", usage.CharacterLimit).
		Msg("DeepL API key valid")

	if skipTranslate {
		return true
	}

	ok := true
	for _, batch := range sampleBatches {
		for _, res := range d.TranslateBatch(ctx, batch.texts, batch.target, batch.source) {
			if !res.Success {
				log.Error().Str("text", res.SourceText).Str("error", res.Error).Msg("Sample translation failed")
				ok = false
				continue
			}
			log.Info().
				Str("text", res.SourceText).
				Str("translated", res.TranslatedText).
				Str("detectedSourceLang", res.DetectedSourceLang).
				Msg("Sample translation")
		}
	}
	return ok
}
