package gladia

import (
	"encoding/json"
	"fmt"
	"strings"

	"speech-translate-relay/internal/service/stt"
)

// message is the envelope of every inbound live message.
type message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	Error     json.RawMessage `json:"error"`
}

type utterance struct {
	Text       string     `json:"text"`
	Start      float64    `json:"start"`
	End        float64    `json:"end"`
	Confidence float64    `json:"confidence"`
	Language   string     `json:"language"`
	Words      []stt.Word `json:"words"`
}

// transcriptData covers the current nested shape (is_final + utterance) and
// the older flat one (final + text at the top level).
type transcriptData struct {
	IsFinal   *bool      `json:"is_final"`
	Utterance *utterance `json:"utterance"`

	Final      bool       `json:"final"`
	Text       string     `json:"text"`
	Start      float64    `json:"start"`
	End        float64    `json:"end"`
	Confidence float64    `json:"confidence"`
	Words      []stt.Word `json:"words"`
}

type errorData struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
}

// parseMessage maps one text frame to an event. Message types the relay does
// not consume (acknowledgements, lifecycle notices) yield a nil event.
func parseMessage(raw []byte) (stt.Event, error) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode gladia message: %w", err)
	}

	switch msg.Type {
	case "transcript":
		return parseTranscript(msg.Data)
	case "error":
		return parseError(msg), nil
	default:
		return nil, nil
	}
}

func parseTranscript(raw json.RawMessage) (stt.Event, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d transcriptData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode transcript data: %w", err)
	}

	final := d.Final
	if d.IsFinal != nil {
		final = *d.IsFinal
	}

	u := utterance{
		Text:       d.Text,
		Start:      d.Start,
		End:        d.End,
		Confidence: d.Confidence,
		Words:      d.Words,
	}
	if d.Utterance != nil {
		u = *d.Utterance
	}

	if !final {
		return stt.PartialTranscript{Text: u.Text}, nil
	}
	return stt.FinalTranscript{
		Text:       strings.TrimSpace(u.Text),
		Confidence: u.Confidence,
		Start:      u.Start,
		End:        u.End,
		Words:      u.Words,
	}, nil
}

func parseError(msg message) stt.Event {
	for _, raw := range []json.RawMessage{msg.Data, msg.Error} {
		if len(raw) == 0 {
			continue
		}
		var d errorData
		if json.Unmarshal(raw, &d) == nil {
			if d.Message != "" {
				return stt.UpstreamError{Message: d.Message}
			}
			if d.Error != "" {
				return stt.UpstreamError{Message: d.Error}
			}
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return stt.UpstreamError{Message: s}
		}
	}
	return stt.UpstreamError{Message: "gladia reported an error"}
}
