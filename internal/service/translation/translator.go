// Package translation wraps the upstream text-translation service. Every call
// returns a tagged Result; failures never escape as errors or panics.
package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"speech-translate-relay/internal/language"
)

var (
	ErrEmptyText           = errors.New("text to translate is empty")
	ErrUnsupportedLanguage = language.ErrUnsupported
	ErrMalformedResponse   = errors.New("malformed translation response")
)

// Result is the outcome of translating one finalized utterance.
type Result struct {
	SourceText         string    `json:"sourceText"`
	TranslatedText     string    `json:"translatedText,omitempty"`
	DetectedSourceLang string    `json:"detectedSourceLang,omitempty"`
	TargetLang         string    `json:"targetLang"`
	Success            bool      `json:"success"`
	Error              string    `json:"error,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Translator converts finalized text into the target language.
// sourceLang may be empty to let the upstream detect it.
type Translator interface {
	Translate(ctx context.Context, text, targetLang, sourceLang string) Result
}

// request is a validated translation request with vendor-independent fields.
type request struct {
	text   string
	target string // client code
	source string // client code, may be empty
}

// prepare trims the text and checks both language codes against the fixed
// table. An unmapped code is an error, never passed through.
func prepare(text, targetLang, sourceLang string) (request, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return request{}, ErrEmptyText
	}
	if !language.Supported(targetLang) {
		return request{}, fmt.Errorf("%w: target %q", ErrUnsupportedLanguage, targetLang)
	}
	if sourceLang != "" && !language.Supported(sourceLang) {
		return request{}, fmt.Errorf("%w: source %q", ErrUnsupportedLanguage, sourceLang)
	}
	return request{text: trimmed, target: targetLang, source: sourceLang}, nil
}

func failure(text, targetLang string, err error, now time.Time) Result {
	return Result{
		SourceText: text,
		TargetLang: targetLang,
		Success:    false,
		Error:      err.Error(),
		Timestamp:  now,
	}
}
