package voicesession

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const defaultClientSampleRate = 48000

// RelayConfig wires a Relay to the vendor agent endpoint.
type RelayConfig struct {
	AgentURL       func(agentID string) string
	Header         http.Header
	DefaultAgentID string
	Dialer         *websocket.Dialer
	Logger         *slog.Logger

	// AllowedOrigins lists browser origins (scheme://host[:port]) that may
	// open the relay in addition to the serving host. "*" admits any origin.
	AllowedOrigins []string

	// OnExchange is called for every completed turn, typically to persist it.
	OnExchange func(ctx context.Context, agentID string, ex Exchange)
}

// Relay bridges a browser WebSocket to one agent Session.
//
// Client to server: text frames {"type":"start"|"stop"|"playback_done",
// "sample_rate":N} and binary frames of little-endian float32 mono samples.
// Server to client: text frames {"type":"state"|"exchange"|"error",...} and
// binary frames of agent audio.
type Relay struct {
	cfg      RelayConfig
	upgrader websocket.Upgrader
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// originChecker admits requests without an Origin header, same-host origins
// and the configured list.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, req.Host)
	}
}

type clientMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
}

type clientConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *clientConn) sendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *clientConn) sendBinary(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	agentID := req.URL.Query().Get("agentId")
	if agentID == "" {
		agentID = r.cfg.DefaultAgentID
	}
	sampleRate := defaultClientSampleRate
	if v, err := strconv.Atoi(req.URL.Query().Get("sampleRate")); err == nil && v > 0 {
		sampleRate = v
	}

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.cfg.Logger.Warn("voice relay upgrade failed", "error", err)
		return
	}
	client := &clientConn{conn: ws}
	defer ws.Close()

	logger := r.cfg.Logger.With("agent_id", agentID)
	persistCtx := context.WithoutCancel(req.Context())

	session := New(Options{
		URL:    r.cfg.AgentURL(agentID),
		Header: r.cfg.Header,
		Dialer: r.cfg.Dialer,
		Logger: logger,
		OnState: func(st State) {
			_ = client.sendJSON(map[string]string{"type": "state", "state": st.String()})
		},
		OnAudio: func(audio []byte) {
			_ = client.sendBinary(audio)
		},
		OnExchange: func(ex Exchange) {
			_ = client.sendJSON(map[string]string{
				"type":            "exchange",
				"conversation_id": ex.ConversationID,
				"user_transcript": ex.UserTranscript,
				"agent_response":  ex.AgentResponse,
			})
			if r.cfg.OnExchange != nil {
				r.cfg.OnExchange(persistCtx, agentID, ex)
			}
		},
	})
	defer session.Stop()

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			err := session.SendAudio(DecodeFloat32LE(data), sampleRate)
			if err != nil && !errors.Is(err, ErrNotListening) {
				logger.Warn("failed to forward audio", "error", err)
			}
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = client.sendJSON(map[string]string{"type": "error", "error": "invalid message"})
			continue
		}
		if msg.SampleRate > 0 {
			sampleRate = msg.SampleRate
		}
		switch msg.Type {
		case "start":
			if err := session.Start(req.Context()); err != nil {
				logger.Error("failed to start voice session", "error", err)
				_ = client.sendJSON(map[string]string{"type": "error", "error": "Failed to connect to voice agent"})
			}
		case "stop":
			session.Stop()
		case "playback_done":
			session.PlaybackDone()
		}
	}
}
