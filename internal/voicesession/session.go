// Package voicesession drives a live conversation with a hosted voice agent
// over a WebSocket and relays it to a browser client.
package voicesession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Listening
	Speaking
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	default:
		return "disconnected"
	}
}

// ErrNotListening is returned by SendAudio when audio cannot be forwarded.
var ErrNotListening = errors.New("voice session is not listening")

// Exchange is one completed user/agent turn.
type Exchange struct {
	ConversationID string
	UserTranscript string
	AgentResponse  string
}

// Options configures a Session. URL is required.
type Options struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Logger *slog.Logger

	OnState    func(State)
	OnAudio    func(audio []byte)
	OnExchange func(Exchange)
}

// Session holds at most one open agent connection.
type Session struct {
	opts Options

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	conversationID string
	pendingUser    string

	writeMu sync.Mutex
}

func New(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{opts: opts}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the vendor id announced for the current conversation.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Start dials the agent. An already open connection is torn down first.
// The session reaches Listening once the vendor announces the conversation.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.closeLocked()
	}
	s.setStateLocked(Connecting)
	s.mu.Unlock()

	conn, resp, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, s.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(Disconnected)
		s.mu.Unlock()
		return fmt.Errorf("failed to dial voice agent: %w", err)
	}

	s.mu.Lock()
	if s.state != Connecting {
		// Stop ran while dialing.
		s.mu.Unlock()
		conn.Close()
		return errors.New("voice session stopped while connecting")
	}
	s.conn = conn
	s.conversationID = ""
	s.pendingUser = ""
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

// Stop closes the connection and returns to Disconnected from any state.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// PlaybackDone reports that the client finished playing agent audio.
func (s *Session) PlaybackDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Speaking {
		s.setStateLocked(Listening)
	}
}

// SendAudio converts captured samples to 16 kHz PCM16 and forwards them.
// Audio is only sent while the connection is open and the state is Listening.
func (s *Session) SendAudio(samples []float32, sampleRate int) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if conn == nil || state != Listening {
		return ErrNotListening
	}
	pcm := Float32ToPCM16(Downsample(samples, sampleRate, TargetSampleRate))
	return s.write(conn, map[string]string{
		"user_audio_chunk": base64.StdEncoding.EncodeToString(pcm),
	})
}

type agentEvent struct {
	Type     string `json:"type"`
	Metadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event"`
	Audio *struct {
		Audio string `json:"audio_base_64"`
	} `json:"audio_event"`
	UserTranscript *struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event"`
	AgentResponse *struct {
		Text string `json:"agent_response"`
	} `json:"agent_response_event"`
	Ping *struct {
		EventID int64 `json:"event_id"`
	} `json:"ping_event"`
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.release(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.opts.Logger.Debug("voice agent read ended", "error", err)
			}
			return
		}
		s.handle(conn, data)
	}
}

// handle applies one agent event. Events from a connection that is no longer
// the active one are dropped so a superseded reader cannot move the state.
func (s *Session) handle(conn *websocket.Conn, data []byte) {
	var ev agentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.opts.Logger.Warn("unparseable voice agent event", "error", err)
		return
	}

	var audio []byte
	if ev.Type == "audio" {
		if ev.Audio == nil {
			return
		}
		var err error
		if audio, err = base64.StdEncoding.DecodeString(ev.Audio.Audio); err != nil {
			s.opts.Logger.Warn("invalid agent audio chunk", "error", err)
			return
		}
	}

	var exchange Exchange
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	switch ev.Type {
	case "conversation_initiation_metadata":
		if ev.Metadata != nil {
			s.conversationID = ev.Metadata.ConversationID
		}
		s.setStateLocked(Listening)
	case "audio":
		s.setStateLocked(Speaking)
	case "interruption":
		if s.state == Speaking {
			s.setStateLocked(Listening)
		}
	case "user_transcript":
		if ev.UserTranscript != nil {
			s.pendingUser = ev.UserTranscript.Text
		}
	case "agent_response":
		if ev.AgentResponse != nil {
			exchange = Exchange{
				ConversationID: s.conversationID,
				UserTranscript: s.pendingUser,
				AgentResponse:  ev.AgentResponse.Text,
			}
			s.pendingUser = ""
		}
	}
	s.mu.Unlock()

	switch ev.Type {
	case "audio":
		if s.opts.OnAudio != nil {
			s.opts.OnAudio(audio)
		}
	case "agent_response":
		if exchange.UserTranscript != "" && s.opts.OnExchange != nil {
			s.opts.OnExchange(exchange)
		}
	case "ping":
		var id int64
		if ev.Ping != nil {
			id = ev.Ping.EventID
		}
		if err := s.write(conn, map[string]any{"type": "pong", "event_id": id}); err != nil {
			s.opts.Logger.Warn("failed to answer voice agent ping", "error", err)
		}
	}
}

func (s *Session) write(conn *websocket.Conn, payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

// release runs when the reader exits. It only tears down the session if conn
// is still the active connection.
func (s *Session) release(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.closeLocked()
		return
	}
	conn.Close()
}

func (s *Session) closeLocked() {
	if s.conn != nil {
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.conn.Close()
		s.conn = nil
	}
	s.pendingUser = ""
	s.setStateLocked(Disconnected)
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if s.opts.OnState != nil {
		s.opts.OnState(next)
	}
}
