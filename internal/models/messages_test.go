package models

import (
	"encoding/json"
	"testing"
)

func TestTranslation_WireKeys(t *testing.T) {
	msg := Translation{
		Type: "translation",
		Seq:  3,
		Data: TranslationData{
			OriginalText:        "你好",
			SourceLang:          "zh",
			TargetLang:          "en",
			TranslatedUtterance: TranslatedUtterance{Text: "Hello"},
		},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"originalText", "sourceLang", "targetLang", "translated_utterance"} {
		if _, ok := decoded.Data[key]; !ok {
			t.Errorf("data is missing %q: %s", key, raw)
		}
	}
	for _, key := range []string{"original_text", "source_lang", "target_lang"} {
		if _, ok := decoded.Data[key]; ok {
			t.Errorf("data carries unexpected %q: %s", key, raw)
		}
	}
}
