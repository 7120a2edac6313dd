// Package language holds the fixed set of languages the relay supports and
// the per-vendor code mappings for each of them.
package language

import (
	"errors"
	"sort"
)

// ErrUnsupported is returned when a language code is not in the fixed set.
var ErrUnsupported = errors.New("unsupported language")

// Default session languages, applied when a browser connects.
const (
	DefaultSource = "zh"
	DefaultTarget = "en"
)

// Language describes one supported language and how each upstream names it.
type Language struct {
	Code   string // client-facing ISO 639-1 code
	Name   string // native display name
	DeepL  string
	Gladia string
	Google string // BCP-47 tag for Cloud Speech
}

var table = map[string]Language{
	"zh": {Code: "zh", Name: "中文", DeepL: "ZH", Gladia: "zh", Google: "cmn-Hans-CN"},
	"en": {Code: "en", Name: "English", DeepL: "EN", Gladia: "en", Google: "en-US"},
	"id": {Code: "id", Name: "Bahasa Indonesia", DeepL: "ID", Gladia: "id", Google: "id-ID"},
	"vi": {Code: "vi", Name: "Tiếng Việt", DeepL: "VI", Gladia: "vi", Google: "vi-VN"},
	"th": {Code: "th", Name: "ไทย", DeepL: "TH", Gladia: "th", Google: "th-TH"},
	"pt": {Code: "pt", Name: "Português", DeepL: "PT", Gladia: "pt", Google: "pt-BR"},
	"es": {Code: "es", Name: "Español", DeepL: "ES", Gladia: "es", Google: "es-ES"},
	"ja": {Code: "ja", Name: "日本語", DeepL: "JA", Gladia: "ja", Google: "ja-JP"},
	"ko": {Code: "ko", Name: "한국어", DeepL: "KO", Gladia: "ko", Google: "ko-KR"},
}

// Lookup returns the table entry for code.
func Lookup(code string) (Language, bool) {
	l, ok := table[code]
	return l, ok
}

// Supported reports whether code is in the fixed set.
func Supported(code string) bool {
	_, ok := table[code]
	return ok
}

// Names returns a fresh code → display name map, the shape served by /api/languages.
func Names() map[string]string {
	out := make(map[string]string, len(table))
	for code, l := range table {
		out[code] = l.Name
	}
	return out
}

// Codes returns the supported codes in sorted order.
func Codes() []string {
	out := make([]string, 0, len(table))
	for code := range table {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func DeepL(code string) (string, bool) {
	l, ok := table[code]
	return l.DeepL, ok
}

func Gladia(code string) (string, bool) {
	l, ok := table[code]
	return l.Gladia, ok
}

func Google(code string) (string, bool) {
	l, ok := table[code]
	return l.Google, ok
}
