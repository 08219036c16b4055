// Package live implements the client side of the kiln console's realtime
// WebSocket protocol.
//
// It establishes a bidirectional WebSocket connection to the backend AI
// session and exchanges JSON envelopes: outbound base64-encoded PCM audio and
// JPEG frames inside realtime_input messages plus turn-complete signals,
// inbound assistant text, synthesised audio, and SCADA telemetry. Inbound
// messages are dispatched by field presence onto a single [Event] stream so
// that the owning session can consume them with a type switch instead of
// nested callbacks.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// DefaultURL is the fixed backend endpoint the console connects to.
	DefaultURL = "ws://localhost:9080"

	// DefaultModel is the backend model requested in the setup envelope.
	DefaultModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// MIME types accepted by the realtime_input envelope.
const (
	MIMEAudioPCM  = "audio/pcm"
	MIMEImageJPEG = "image/jpeg"
)

// ErrClosed is returned by send operations after the session has terminated.
// Capture-side callers treat it as "drop the chunk", not as a fault.
var ErrClosed = errors.New("live: session closed")

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithURL overrides the backend WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

// WithModel sets the model named in the setup envelope.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithEventBuffer sets the capacity of the inbound event channel.
func WithEventBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client dials backend sessions. A single Client may open any number of
// sessions; it holds no per-connection state.
type Client struct {
	url         string
	model       string
	eventBuffer int
}

// New creates a Client with the given options applied over the defaults.
func New(opts ...Option) *Client {
	c := &Client{
		url:         DefaultURL,
		model:       DefaultModel,
		eventBuffer: 64,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionConfig carries the per-session setup payload.
type SessionConfig struct {
	// SystemInstruction is the operator-assistant system prompt. Optional.
	SystemInstruction string

	// Tools are function declarations offered to the backend. Optional; the
	// backend executes them, the console only forwards the declarations.
	Tools []FunctionDeclaration
}

// FunctionDeclaration describes one callable tool in the setup envelope.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Connect dials the backend, sends the setup envelope, and returns a Session
// with its receive and keepalive loops running. The returned Session is ready
// to accept media immediately.
func (c *Client) Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("live: dial %s: %w", c.url, err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	s := &Session{
		conn:   conn,
		events: make(chan Event, c.eventBuffer),
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := s.sendSetup(c.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("live: setup: %w", err)
	}

	go s.receiveLoop()
	go s.keepaliveLoop()

	return s, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string             `json:"model"`
	SystemInstruction *systemInstruction `json:"system_instruction,omitempty"`
	Tools             []FunctionDeclaration `json:"tools,omitempty"`
}

type systemInstruction struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64-encoded
}

type clientContentMessage struct {
	ClientContent clientContent `json:"client_content"`
}

type clientContent struct {
	TurnComplete bool `json:"turn_complete"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverMessage is the inbound envelope. Fields are optional and may co-occur
// within a single frame.
type serverMessage struct {
	Text  string     `json:"text,omitempty"`
	Audio string     `json:"audio,omitempty"` // base64 16-bit PCM, 24 kHz mono
	Type  string     `json:"type,omitempty"`
	Data  *ScadaData `json:"data,omitempty"`
}

// telemetryType is the inbound Type value that marks a SCADA telemetry frame.
const telemetryType = "scada_update"

// ScadaData is the telemetry payload attached to scada_update messages.
// It mirrors the optimization result the backend broadcasts after a
// fuel-mix solve or a kiln parameter change.
type ScadaData struct {
	MixTonPerHour      map[string]float64 `json:"mix_ton_per_hour,omitempty"`
	TotalFeedRate      float64            `json:"total_feed_rate,omitempty"`
	AvgPCI             float64            `json:"avg_pci,omitempty"`
	AvgSulfurPercent   float64            `json:"avg_sulfur_percent,omitempty"`
	AvgChloridePercent float64            `json:"avg_chloride_percent,omitempty"`
	TotalCostPerHour   float64            `json:"total_cost_per_hour,omitempty"`
	Status             string             `json:"status,omitempty"`
	NewParams          map[string]float64 `json:"new_params,omitempty"`
}

// ── Events ─────────────────────────────────────────────────────────────────────

// Event is one inbound occurrence dispatched from the transport. Concrete
// types are [TextEvent], [AudioEvent], and [TelemetryEvent]; consume with a
// type switch. One wire frame may yield several events, emitted in the order
// text, audio, telemetry.
type Event interface {
	event()
}

// TextEvent carries an assistant utterance fragment.
type TextEvent struct {
	Text string
}

// AudioEvent carries one decoded playback payload: raw little-endian 16-bit
// PCM at 24 kHz mono.
type AudioEvent struct {
	PCM []byte
}

// TelemetryEvent carries a SCADA telemetry update.
type TelemetryEvent struct {
	Data ScadaData
}

func (TextEvent) event()      {}
func (AudioEvent) event()     {}
func (TelemetryEvent) event() {}

// ── Session ────────────────────────────────────────────────────────────────────

// Session is one live connection to the backend. Events are delivered on the
// channel returned by [Session.Events]; the channel is closed when the
// connection terminates, after which [Session.Err] reports the cause (nil on
// clean close). All methods are safe for concurrent use.
type Session struct {
	conn   *websocket.Conn
	events chan Event

	mu     sync.Mutex
	errVal error
	closed bool

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial configuration envelope.
func (s *Session) sendSetup(model string, cfg SessionConfig) error {
	msg := setupMessage{Setup: setupPayload{Model: model}}
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []textPart{{Text: cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		msg.Setup.Tools = cfg.Tools
	}
	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket frame.
func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("live: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// SendMedia base64-encodes data and sends it as a single realtime_input
// media chunk tagged with mimeType. Returns [ErrClosed] after termination.
func (s *Session) SendMedia(mimeType string, data []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(data)},
			},
		},
	}
	return s.writeJSON(msg)
}

// SendAudioChunk sends one block of raw 16 kHz s16le mono PCM.
func (s *Session) SendAudioChunk(pcm []byte) error {
	return s.SendMedia(MIMEAudioPCM, pcm)
}

// SendVideoFrame sends one JPEG-encoded camera frame.
func (s *Session) SendVideoFrame(jpeg []byte) error {
	return s.SendMedia(MIMEImageJPEG, jpeg)
}

// SendTurnComplete signals the end of the operator's speaking turn,
// prompting the backend to respond.
func (s *Session) SendTurnComplete() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.writeJSON(clientContentMessage{
		ClientContent: clientContent{TurnComplete: true},
	})
}

// Events returns the inbound event stream. The channel is closed when the
// session terminates for any reason.
func (s *Session) Events() <-chan Event { return s.events }

// Err returns the first error that caused the session to terminate, or nil
// while it is running or after a clean close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// receiveLoop reads frames from the WebSocket and dispatches them as events.
// It owns the events channel and closes it on exit.
func (s *Session) receiveLoop() {
	defer s.closeOnce.Do(func() { close(s.events) })

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return // session closed locally
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return // clean close from the backend
			}
			s.setErr(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frames are a per-message condition, not a session
			// fault: log and discard.
			slog.Debug("live: discarding malformed frame", "err", err, "bytes", len(data))
			continue
		}

		s.dispatch(&msg)
	}
}

// dispatch fans one inbound envelope out by field presence.
func (s *Session) dispatch(msg *serverMessage) {
	if msg.Text != "" {
		if !s.emit(TextEvent{Text: msg.Text}) {
			return
		}
	}
	if msg.Audio != "" {
		pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil || len(pcm) == 0 {
			slog.Warn("live: dropping undecodable audio payload", "err", err)
		} else if !s.emit(AudioEvent{PCM: pcm}) {
			return
		}
	}
	if msg.Type == telemetryType && msg.Data != nil {
		if !s.emit(TelemetryEvent{Data: *msg.Data}) {
			return
		}
	}
}

// emit delivers ev unless the session is shutting down. Reports false when
// the receive loop should exit.
func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// keepaliveLoop sends WebSocket pings so idle sessions survive intermediary
// timeouts.
func (s *Session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}
