package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"speech-translate-relay/internal/language"
	"speech-translate-relay/internal/models"
	"speech-translate-relay/internal/observability/logging"
	"speech-translate-relay/internal/service/session"
	"speech-translate-relay/internal/service/stt"
)

const (
	writeWait     = 10 * time.Second
	outboundQueue = 256
	eventQueue    = 256
)

// Browser-facing messages.
const (
	msgRecordingStarted = "Configuration complete, recording started"
	msgRecordingStopped = "Recording stopped"
	msgSessionBusy      = "Session busy, try again"
	msgInvalidMessage   = "Invalid message"
	msgUnknownType      = "Unknown message type"
	msgUpstreamClosed   = "Transcription connection closed"
)

// connection is the per-browser state. Only run's goroutine reads or changes
// the Session's protocol state and the fields below the divider.
type connection struct {
	relay *Relay
	id    string
	conn  Conn
	ctx   context.Context
	log   zerolog.Logger

	inbound chan []byte
	events  chan stt.Event
	results chan func()
	out     chan any

	done      chan struct{}
	closeOnce sync.Once

	dropLog rate.Sometimes

	// owned by run
	stopPending bool
}

func newConnection(ctx context.Context, r *Relay, id string, conn Conn) *connection {
	return &connection{
		relay:   r,
		id:      id,
		conn:    conn,
		ctx:     ctx,
		log:     logging.WithSession(id),
		inbound: make(chan []byte),
		events:  make(chan stt.Event, eventQueue),
		results: make(chan func()),
		out:     make(chan any, outboundQueue),
		done:    make(chan struct{}),
		dropLog: rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}
}

// shutdown stops every goroutine of the connection and closes the socket.
func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *connection) run() {
	go c.readLoop()
	go c.writeLoop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		case raw, ok := <-c.inbound:
			if !ok {
				return
			}
			if !c.handleInbound(raw) {
				return
			}
		case ev := <-c.events:
			if !c.handleEvent(ev) {
				return
			}
		case fn := <-c.results:
			fn()
		}
	}
}

func (c *connection) readLoop() {
	defer close(c.inbound)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("Browser connection lost")
			}
			return
		}
		if kind != websocket.TextMessage {
			c.relay.metrics.RecordProtocolError("binary_frame")
			c.sendError(msgInvalidMessage)
			continue
		}
		select {
		case c.inbound <- data:
		case <-c.done:
			return
		}
	}
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case v := <-c.out:
			payload, err := json.Marshal(v)
			if err != nil {
				c.log.Error().Err(err).Msg("Failed to encode outbound message")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug().Err(err).Msg("Browser write failed")
				c.shutdown()
				return
			}
		}
	}
}

// send queues v for the browser. It gives up once the connection is gone.
func (c *connection) send(v any) {
	select {
	case c.out <- v:
	case <-c.done:
	}
}

func (c *connection) sendError(message string) {
	c.send(models.NewError(message))
}

// post hands fn to the run goroutine. It reports false if the connection
// ended first, in which case fn never runs.
func (c *connection) post(fn func()) bool {
	select {
	case c.results <- fn:
		return true
	case <-c.done:
		return false
	}
}

// deliver is the upstream event handler; it runs on the stt pump goroutine.
func (c *connection) deliver(ev stt.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// session borrows the Session for one handling unit. A missing Session means
// it was swept; the connection should end.
func (c *connection) session() (*session.Session, bool) {
	return c.relay.registry.Get(c.id)
}

func (c *connection) handleInbound(raw []byte) bool {
	sess, ok := c.session()
	if !ok {
		return false
	}

	var msg models.Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.relay.metrics.RecordProtocolError("invalid_json")
		c.log.Warn().Err(err).Msg("Invalid inbound message")
		c.sendError(msgInvalidMessage)
		return true
	}

	switch msg.Type {
	case models.TypeConfig:
		c.handleConfig(sess, msg.SourceLang, msg.TargetLang)
	case models.TypeStartRecording:
		c.handleConfig(sess, msg.InputLanguage, msg.OutputLanguage)
	case models.TypeAudioChunk:
		c.handleAudio(sess, msg.Data)
	case models.TypeStopRecording:
		c.handleStop(sess)
	default:
		c.relay.metrics.RecordProtocolError("unknown_type")
		c.log.Warn().Str("type", msg.Type).Msg("Unknown inbound message type")
		c.sendError(msgUnknownType + ": " + msg.Type)
	}
	return true
}

func (c *connection) handleConfig(sess *session.Session, src, tgt string) {
	state := sess.State()
	if state == session.StateConfiguring || state == session.StateStopping {
		c.sendError(msgSessionBusy)
		return
	}

	if src == "" {
		src = language.DefaultSource
	}
	if tgt == "" {
		tgt = language.DefaultTarget
	}
	if err := sess.Configure(src, tgt); err != nil {
		c.log.Warn().Err(err).Msg("Rejected configuration")
		c.sendError("Configuration failed: " + err.Error())
		return
	}

	if state == session.StateRecording {
		// Reconfiguration: retire the current upstream without telling the
		// browser it stopped.
		sess.StopAccepting()
		if prev := sess.DetachUpstream(); prev != "" {
			c.log.Info().Str("upstreamId", prev).Msg("Reconfiguring, ending current upstream")
			go c.endUpstream(prev)
		}
	}

	if err := sess.Transition(session.StateConfiguring); err != nil {
		c.log.Error().Err(err).Msg("Cannot start configuration")
		c.sendError("Configuration failed: " + err.Error())
		return
	}
	c.stopPending = false

	c.log.Info().Str("sourceLang", src).Str("targetLang", tgt).Msg("Creating upstream session")
	go func() {
		handle, err := c.relay.stt.CreateSession(c.ctx, src)
		if !c.post(func() { c.onCreated(handle, err) }) && err == nil {
			c.endUpstream(handle)
		}
	}()
}

func (c *connection) onCreated(handle string, err error) {
	sess, ok := c.session()
	if !ok || sess.State() != session.StateConfiguring {
		if err == nil {
			go c.endUpstream(handle)
		}
		return
	}

	if err != nil {
		c.log.Error().Err(err).Msg("Upstream session creation failed")
		sess.Transition(session.StateIdle)
		c.sendError("Configuration failed: " + err.Error())
		c.relay.publish(models.LifecycleEvent{
			EventType: models.EventUpstreamError,
			SessionID: c.id,
			Reason:    err.Error(),
		})
		return
	}

	if c.stopPending {
		c.stopPending = false
		go c.endUpstream(handle)
		sess.Transition(session.StateIdle)
		c.send(models.RecordingStopped{Type: models.TypeRecordingStopped, Message: msgRecordingStopped})
		return
	}

	if err := c.relay.stt.SetEventHandler(handle, c.deliver); err != nil {
		c.log.Error().Err(err).Str("upstreamId", handle).Msg("Upstream subscription failed")
		go c.endUpstream(handle)
		sess.Transition(session.StateIdle)
		c.sendError("Configuration failed: " + err.Error())
		return
	}
	if err := sess.AttachUpstream(handle); err != nil {
		c.log.Error().Err(err).Str("upstreamId", handle).Msg("Cannot attach upstream")
		go c.endUpstream(handle)
		sess.Transition(session.StateIdle)
		c.sendError("Configuration failed: " + err.Error())
		return
	}

	src, tgt := sess.Languages()
	c.log.Info().Str("upstreamId", handle).Msg("Recording started")
	c.send(models.RecordingStarted{
		Type:            models.TypeRecordingStarted,
		Message:         msgRecordingStarted,
		GladiaSessionID: handle,
	})
	c.relay.publish(models.LifecycleEvent{
		EventType:  models.EventRecordingStarted,
		SessionID:  c.id,
		UpstreamID: handle,
		SourceLang: src,
		TargetLang: tgt,
	})
}

func (c *connection) handleAudio(sess *session.Session, data json.RawMessage) {
	handle, ok := sess.AcceptingAudio()
	if !ok {
		c.drop("not_recording", nil)
		return
	}

	var chunk models.AudioChunkData
	if err := json.Unmarshal(data, &chunk); err != nil || chunk.Chunk == "" {
		c.drop("malformed", err)
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(chunk.Chunk)
	if err != nil {
		c.drop("decode", err)
		return
	}

	if st := c.relay.stt.Status(handle); !st.Exists || st.State != stt.StateOpen {
		c.drop("upstream_not_open", nil)
		return
	}
	if err := c.relay.stt.SendAudio(handle, pcm); err != nil {
		c.drop("send_failed", err)
		return
	}
	c.relay.metrics.RecordAudioForwarded(len(pcm))
}

// drop counts a discarded audio frame. Frames are never surfaced to the
// browser as errors.
func (c *connection) drop(reason string, err error) {
	c.relay.metrics.RecordAudioDropped(reason)
	c.dropLog.Do(func() {
		c.log.Warn().Err(err).Str("reason", reason).Msg("Dropping audio frame")
	})
}

func (c *connection) handleStop(sess *session.Session) {
	switch sess.State() {
	case session.StateRecording:
	case session.StateConfiguring:
		c.stopPending = true
		return
	default:
		return
	}

	sess.StopAccepting()
	if err := sess.Transition(session.StateStopping); err != nil {
		c.log.Error().Err(err).Msg("Cannot stop recording")
		return
	}
	handle := sess.UpstreamID()
	c.log.Info().Str("upstreamId", handle).Msg("Stopping recording")

	go func() {
		c.endUpstream(handle)
		c.post(func() { c.onStopped(handle) })
	}()
}

func (c *connection) onStopped(handle string) {
	sess, ok := c.session()
	if !ok || sess.State() != session.StateStopping {
		return
	}
	if sess.UpstreamID() == handle {
		sess.DetachUpstream()
	}
	sess.Transition(session.StateIdle)
	c.send(models.RecordingStopped{Type: models.TypeRecordingStopped, Message: msgRecordingStopped})
	c.relay.publish(models.LifecycleEvent{
		EventType:  models.EventRecordingStopped,
		SessionID:  c.id,
		UpstreamID: handle,
	})
}

// endUpstream ends handle, logging failures only. It may run on any goroutine.
func (c *connection) endUpstream(handle string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), cleanupTimeout)
	defer cancel()
	if err := c.relay.stt.EndSession(ctx, handle); err != nil {
		c.log.Warn().Err(err).Str("upstreamId", handle).Msg("Upstream teardown failed")
	}
}

func (c *connection) handleEvent(ev stt.Event) bool {
	sess, ok := c.session()
	if !ok {
		return false
	}
	if ev.UpstreamID() != sess.UpstreamID() {
		c.log.Debug().Str("upstreamId", ev.UpstreamID()).Msg("Ignoring event from retired upstream")
		return true
	}

	switch e := ev.(type) {
	case stt.PartialTranscript:
		c.relay.metrics.RecordTranscript("partial")
		if c.relay.cfg.ForwardPartials {
			c.send(models.Transcript{
				Type: models.TypeTranscript,
				Data: models.TranscriptData{
					IsFinal:   false,
					Utterance: models.Utterance{Text: e.Text, Words: []stt.Word{}},
				},
			})
		}
	case stt.FinalTranscript:
		c.handleFinal(sess, e)
	case stt.UpstreamError:
		c.handleUpstreamFailure(sess, e.Handle, e.Message)
	case stt.UpstreamClosed:
		msg := msgUpstreamClosed
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
		c.handleUpstreamFailure(sess, e.Handle, msg)
	}
	return true
}

func (c *connection) handleFinal(sess *session.Session, e stt.FinalTranscript) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return
	}
	c.relay.metrics.RecordTranscript("final")

	words := e.Words
	if words == nil {
		words = []stt.Word{}
	}
	seq := sess.NextSeq()
	c.send(models.Transcript{
		Type: models.TypeTranscript,
		Seq:  seq,
		Data: models.TranscriptData{
			IsFinal: true,
			Utterance: models.Utterance{
				Text:       text,
				Start:      e.Start,
				End:        e.End,
				Confidence: e.Confidence,
				Words:      words,
			},
		},
	})

	src, tgt := sess.Languages()
	go c.translate(seq, text, src, tgt)
}

// translate runs one translation and queues its outcome. Translations of
// successive finals run concurrently; seq ties each result to its transcript.
func (c *connection) translate(seq uint64, text, src, tgt string) {
	start := time.Now()
	res := c.relay.translator.Translate(c.ctx, text, tgt, src)
	c.relay.metrics.RecordTranslation(res.Success, time.Since(start).Seconds())

	if !res.Success {
		c.log.Warn().Str("error", res.Error).Uint64("seq", seq).Msg("Translation failed")
		c.send(models.TranslationError{
			Type:         models.TypeTranslationError,
			Seq:          seq,
			OriginalText: text,
			Error:        res.Error,
			Timestamp:    res.Timestamp.UTC().Format(time.RFC3339),
		})
		return
	}
	c.send(models.Translation{
		Type: models.TypeTranslation,
		Seq:  seq,
		Data: models.TranslationData{
			OriginalText:        text,
			SourceLang:          src,
			TargetLang:          tgt,
			TranslatedUtterance: models.TranslatedUtterance{Text: res.TranslatedText},
		},
	})
}

func (c *connection) handleUpstreamFailure(sess *session.Session, handle, message string) {
	if sess.State() == session.StateStopping {
		// Stop already owns teardown and will report recording_stopped.
		c.log.Debug().Str("upstreamId", handle).Str("message", message).Msg("Upstream ended while stopping")
		return
	}

	c.log.Warn().Str("upstreamId", handle).Str("message", message).Msg("Upstream failed")
	sess.DetachUpstream()
	sess.Transition(session.StateIdle)
	c.sendError(message)
	c.relay.publish(models.LifecycleEvent{
		EventType:  models.EventUpstreamError,
		SessionID:  c.id,
		UpstreamID: handle,
		Reason:     message,
	})
	go c.endUpstream(handle)
}
