package main

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"speech-translate-relay/internal/models"
	"speech-translate-relay/internal/observability/logging"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time streaming
// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverURL := flag.String("server", "ws://localhost:3000/ws", "Relay WebSocket URL")
	sourceLang := flag.String("source", "zh", "Spoken language")
	targetLang := flag.String("target", "en", "Translation language")
	linger := flag.Duration("linger", 5*time.Second, "How long to wait for late translations after stopping")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	// Open audio file
	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatal().Err(err).Msg("Failed to read WAV header")
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal().Msg("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Info().
		Uint16("format", audioFormat).
		Uint16("channels", numChannels).
		Uint32("sampleRate", sampleRate).
		Uint16("bitsPerSample", bitsPerSample).
		Msg("WAV file")

	if audioFormat != 1 { // PCM
		log.Fatal().Msg("Only PCM format supported")
	}
	if sampleRate != 16000 || numChannels != 1 || bitsPerSample != 16 {
		log.Warn().Msg("Relay expects 16kHz 16-bit mono; transcription quality will suffer")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverURL).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("server", *serverURL).Msg("Connected")

	started := make(chan struct{})
	stopped := make(chan struct{})
	go readEvents(conn, started, stopped)

	if err := conn.WriteJSON(models.Inbound{Type: models.TypeConfig, SourceLang: *sourceLang, TargetLang: *targetLang}); err != nil {
		log.Fatal().Err(err).Msg("Failed to send config")
	}
	select {
	case <-started:
	case <-time.After(15 * time.Second):
		log.Fatal().Msg("Recording did not start")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

stream:
	for {
		n, err := io.ReadFull(f, audioChunk)
		if n == 0 {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			log.Fatal().Err(err).Msg("Failed to read audio")
		}

		data, _ := json.Marshal(models.AudioChunkData{Chunk: base64.StdEncoding.EncodeToString(audioChunk[:n])})
		if err := conn.WriteJSON(models.Inbound{Type: models.TypeAudioChunk, Data: data}); err != nil {
			log.Fatal().Err(err).Msg("Failed to send audio chunk")
		}
		chunkNum++
		totalBytes += int64(n)

		if chunkNum%50 == 0 {
			log.Debug().Int("chunk", chunkNum).Int64("bytes", totalBytes).Msg("Streaming")
		}

		// Simulate real-time streaming
		select {
		case <-interrupt:
			break stream
		case <-time.After(chunkIntervalMs * time.Millisecond):
		}
	}

	log.Info().
		Int("chunks", chunkNum).
		Int64("bytes", totalBytes).
		Dur("elapsed", time.Since(startTime)).
		Msg("Finished streaming, stopping recording")

	if err := conn.WriteJSON(models.Inbound{Type: models.TypeStopRecording}); err != nil {
		log.Fatal().Err(err).Msg("Failed to send stop")
	}
	select {
	case <-stopped:
	case <-time.After(15 * time.Second):
		log.Warn().Msg("No recording_stopped received")
	}

	// Translations of the last finals may still be in flight.
	time.Sleep(*linger)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func readEvents(conn *websocket.Conn, started, stopped chan<- struct{}) {
	for {
		var msg struct {
			Type         string          `json:"type"`
			Message      string          `json:"message"`
			Seq          uint64          `json:"seq"`
			OriginalText string          `json:"originalText"`
			Error        string          `json:"error"`
			Data         json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Connection closed")
			}
			return
		}

		switch msg.Type {
		case models.TypeRecordingStarted:
			log.Info().Str("message", msg.Message).Msg("Recording started")
			close(started)
		case models.TypeRecordingStopped:
			log.Info().Msg("Recording stopped")
			close(stopped)
		case models.TypeTranscript:
			var d models.TranscriptData
			json.Unmarshal(msg.Data, &d)
			log.Info().
				Uint64("seq", msg.Seq).
				Bool("final", d.IsFinal).
				Float64("confidence", d.Utterance.Confidence).
				Msg(d.Utterance.Text)
		case models.TypeTranslation:
			var d models.TranslationData
			json.Unmarshal(msg.Data, &d)
			log.Info().
				Uint64("seq", msg.Seq).
				Str("lang", d.TargetLang).
				Msg("→ " + d.TranslatedUtterance.Text)
		case models.TypeTranslationError:
			log.Warn().Uint64("seq", msg.Seq).Str("text", msg.OriginalText).Str("error", msg.Error).Msg("Translation failed")
		case models.TypeError:
			log.Error().Str("message", msg.Message).Msg("Relay error")
		default:
			log.Debug().Str("type", msg.Type).Msg("Unhandled event")
		}
	}
}
