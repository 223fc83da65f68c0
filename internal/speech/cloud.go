package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CloudConfig configures the streaming transcription provider.
type CloudConfig struct {
	AuthKey   string
	TokenURL  string
	StreamURL string
	Language  string
}

// cloudFrame is one JSON message from the streaming endpoint.
type cloudFrame struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	AudioStart  int64   `json:"audio_start"`
	AudioEnd    int64   `json:"audio_end"`
	Error       string  `json:"error"`
}

// CloudProvider streams audio to a cloud transcription service over a
// websocket, authenticating with a short-lived token fetched over HTTP.
type CloudProvider struct {
	cfg    CloudConfig
	http   *http.Client
	logger *zap.Logger
	events chan Event

	mu     sync.Mutex
	token  string
	conn   *websocket.Conn
	closed bool
}

// NewCloudProvider creates a cloud streaming provider.
func NewCloudProvider(cfg CloudConfig, logger *zap.Logger) *CloudProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudProvider{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		events: make(chan Event, 32),
	}
}

// Name implements Provider.
func (p *CloudProvider) Name() string { return "cloud" }

// Init implements Provider: fetches a session token. An auth rejection is a
// permanent condition, reported as an error to let the orchestrator fall
// back rather than retry.
func (p *CloudProvider) Init(ctx context.Context) error {
	if p.cfg.AuthKey == "" || p.cfg.TokenURL == "" || p.cfg.StreamURL == "" {
		return fmt.Errorf("cloud speech provider not configured")
	}
	body, _ := json.Marshal(map[string]int{"expires_in": 3600})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Authorization", p.cfg.AuthKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("token endpoint returned empty token")
	}
	p.mu.Lock()
	p.token = out.Token
	p.mu.Unlock()
	return nil
}

// Start implements Provider: dials the streaming websocket and begins the
// read loop. Session acknowledgement arrives as a SessionBegins frame.
func (p *CloudProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()
	if token == "" {
		return fmt.Errorf("provider not initialized")
	}

	url := fmt.Sprintf("%s?token=%s", p.cfg.StreamURL, token)
	if p.cfg.Language != "" {
		url += "&language=" + p.cfg.Language
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}

	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = conn
	p.mu.Unlock()

	go p.readLoop(conn)
	return nil
}

// SendAudio streams a binary audio frame into the session.
func (p *CloudProvider) SendAudio(data []byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no active stream")
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Stop implements Provider: asks the service to terminate, then closes.
func (p *CloudProvider) Stop(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(2 * time.Second)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(map[string]bool{"terminate_session": true}); err != nil {
		p.logger.Debug("terminate message failed", zap.Error(err))
	}
	return conn.Close()
}

// Events implements Provider.
func (p *CloudProvider) Events() <-chan Event { return p.events }

// Close implements Provider.
func (p *CloudProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	close(p.events)
	return nil
}

func (p *CloudProvider) readLoop(conn *websocket.Conn) {
	for {
		var frame cloudFrame
		if err := conn.ReadJSON(&frame); err != nil {
			p.mu.Lock()
			stillActive := p.conn == conn
			p.mu.Unlock()
			if stillActive {
				p.emit(Event{Kind: EventError, Class: ErrNetwork, Err: fmt.Errorf("stream read: %w", err)})
			}
			p.emit(Event{Kind: EventEnded})
			return
		}
		switch frame.MessageType {
		case "SessionBegins":
			p.emit(Event{Kind: EventStarted})
		case "PartialTranscript":
			if frame.Text != "" {
				p.emit(Event{Kind: EventPartial, Fragment: p.fragment(frame)})
			}
		case "FinalTranscript":
			if frame.Text != "" {
				p.emit(Event{Kind: EventFinal, Fragment: p.fragment(frame)})
			}
		case "SessionTerminated":
			p.emit(Event{Kind: EventEnded})
			return
		default:
			if frame.Error != "" {
				p.emit(Event{Kind: EventError, Class: ErrUnknown, Err: fmt.Errorf("stream error: %s", frame.Error)})
			}
		}
	}
}

func (p *CloudProvider) fragment(frame cloudFrame) Fragment {
	ts := frame.AudioEnd
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return Fragment{Text: frame.Text, Confidence: frame.Confidence, TimestampMs: ts}
}

func (p *CloudProvider) emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
	}
}
