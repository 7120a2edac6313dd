// Package models defines the browser protocol messages and the lifecycle
// events published about sessions.
package models

import (
	"encoding/json"

	"speech-translate-relay/internal/service/stt"
)

// Inbound message types (browser → server).
const (
	TypeConfig        = "config"
	TypeAudioChunk    = "audio_chunk"
	TypeStopRecording = "stop_recording"

	// TypeStartRecording is the older form of config, carrying
	// inputLanguage/outputLanguage instead of sourceLang/targetLang.
	TypeStartRecording = "start_recording"
)

// Outbound message types (server → browser).
const (
	TypeRecordingStarted = "recording_started"
	TypeRecordingStopped = "recording_stopped"
	TypeTranscript       = "transcript"
	TypeTranslation      = "translation"
	TypeTranslationError = "translation_error"
	TypeError            = "error"
)

// Inbound is any message received from the browser. Fields not used by a
// given type are left zero.
type Inbound struct {
	Type       string          `json:"type"`
	SourceLang string          `json:"sourceLang,omitempty"`
	TargetLang string          `json:"targetLang,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`

	InputLanguage  string `json:"inputLanguage,omitempty"`
	OutputLanguage string `json:"outputLanguage,omitempty"`
}

// AudioChunkData is the payload of an audio_chunk message.
type AudioChunkData struct {
	Chunk string `json:"chunk"` // base64 PCM16LE mono 16 kHz
}

// RecordingStarted confirms the upstream session is ready.
type RecordingStarted struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	GladiaSessionID string `json:"gladiaSessionId"`
}

// RecordingStopped confirms the upstream session was torn down.
type RecordingStopped struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Utterance is the finalized text of a transcript event.
type Utterance struct {
	Text       string     `json:"text"`
	Start      float64    `json:"start"`
	End        float64    `json:"end"`
	Confidence float64    `json:"confidence"`
	Words      []stt.Word `json:"words"`
}

type TranscriptData struct {
	IsFinal   bool      `json:"is_final"`
	Utterance Utterance `json:"utterance"`
}

// Transcript carries one transcript. Only finals are sent unless partial
// forwarding is enabled.
type Transcript struct {
	Type string         `json:"type"`
	Seq  uint64         `json:"seq,omitempty"`
	Data TranscriptData `json:"data"`
}

type TranslatedUtterance struct {
	Text string `json:"text"`
}

type TranslationData struct {
	OriginalText        string              `json:"originalText"`
	SourceLang          string              `json:"sourceLang"`
	TargetLang          string              `json:"targetLang"`
	TranslatedUtterance TranslatedUtterance `json:"translated_utterance"`
}

// Translation carries the translation of the final with the same Seq.
type Translation struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Data TranslationData `json:"data"`
}

// TranslationError reports a failed translation; the transcript stands.
type TranslationError struct {
	Type         string `json:"type"`
	Seq          uint64 `json:"seq"`
	OriginalText string `json:"originalText"`
	Error        string `json:"error"`
	Timestamp    string `json:"timestamp"`
}

// Error is a human-readable failure notice.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
