package translation

import (
	"context"
	"strings"
	"time"
)

// Dictionary is a deterministic in-memory Translator for local development
// without a DeepL key. Unknown text is returned with a "[TARGET] " prefix.
type Dictionary struct {
	// Entries maps target language → source text → translation.
	Entries map[string]map[string]string
	// Delay simulates upstream latency.
	Delay time.Duration
}

// NewDictionary returns a Dictionary seeded with a few demo phrases.
func NewDictionary() *Dictionary {
	return &Dictionary{
		Entries: map[string]map[string]string{
			"en": {
				"你好":        "Hello",
				"你好，這是一個測試": "Hello, this is a test",
				"謝謝":        "Thank you",
			},
			"zh": {
				"Hello":            "你好",
				"Thank you":        "謝謝",
				"This is a test.": "這是一個測試。",
			},
		},
		Delay: 50 * time.Millisecond,
	}
}

// Translate looks the text up, honoring ctx cancellation during Delay.
func (d *Dictionary) Translate(ctx context.Context, text, targetLang, sourceLang string) Result {
	req, err := prepare(text, targetLang, sourceLang)
	if err != nil {
		return failure(text, targetLang, err, time.Now())
	}

	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return failure(text, targetLang, ctx.Err(), time.Now())
		}
	}

	translated, ok := d.Entries[req.target][req.text]
	if !ok {
		translated = "[" + strings.ToUpper(req.target) + "] " + req.text
	}
	return Result{
		SourceText:         text,
		TranslatedText:     translated,
		DetectedSourceLang: req.source,
		TargetLang:         targetLang,
		Success:            true,
		Timestamp:          time.Now(),
	}
}
