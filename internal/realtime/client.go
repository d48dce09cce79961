package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/corevox/noia/internal/coreerr"
	"github.com/corevox/noia/internal/tools"
)

// SessionConfig is the Configure payload sent once a session is opened.
type SessionConfig struct {
	Voice             string
	Instructions      string
	Temperature       *float64
	InputAudioFormat  string // "pcm16"
	OutputAudioFormat string // "pcm16"
	ServerVADDisabled bool
	ToolList          []tools.ToolDescriptor
	ToolChoice        string // "auto"
}

// Session is the wire adapter contract the Realtime Agent Core drives.
type Session interface {
	Configure(cfg SessionConfig) error
	SendInputAudio(pcm []byte) error
	CommitPendingAudio() error
	StartResponse() error
	AddItem(item tools.FunctionCallOutputItem) error
	CancelResponse() error
	TruncateItem(itemID string, contentIndex int, audioEndMs int64) error
	ReceiveUpdates(ctx context.Context) (<-chan ServerEvent, <-chan error)
	Close() error
}

// Client connects to the remote realtime service and yields Sessions.
type Client struct {
	endpoint string
	apiKey   string
	header   http.Header
}

// NewClient builds a Client for the given websocket endpoint (wss://...).
// apiKey is sent as a bearer Authorization header.
func NewClient(endpoint, apiKey string) *Client {
	h := http.Header{}
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, header: h}
}

// Connect opens the bidirectional stream for model and returns a Session.
func (c *Client) Connect(ctx context.Context, model string) (Session, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, coreerr.Configuration("realtime.Connect", err)
	}
	q := u.Query()
	if model != "" {
		q.Set("model", model)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), c.header)
	if err != nil {
		return nil, coreerr.TransientNetwork("realtime.Connect", err)
	}

	return &wsSession{conn: conn}, nil
}

// wsSession is the Session implementation over *websocket.Conn.
type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

func (s *wsSession) Configure(cfg SessionConfig) error {
	wts := make([]wireTool, 0, len(cfg.ToolList))
	for _, t := range cfg.ToolList {
		var params any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &params)
		}
		wts = append(wts, wireTool{Name: t.Name, Description: t.Description, Parameters: params})
	}
	return s.send(clientEvent{
		Type:              opConfigure,
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		Temperature:       cfg.Temperature,
		InputAudioFormat:  orDefault(cfg.InputAudioFormat, "pcm16"),
		OutputAudioFormat: orDefault(cfg.OutputAudioFormat, "pcm16"),
		ServerVADDisabled: cfg.ServerVADDisabled,
		Tools:             wts,
		ToolChoice:        orDefault(cfg.ToolChoice, "auto"),
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *wsSession) SendInputAudio(pcm []byte) error {
	return s.send(clientEvent{Type: opSendInputAudio, Audio: pcm})
}

func (s *wsSession) CommitPendingAudio() error {
	return s.send(clientEvent{Type: opCommitPendingAudio})
}

func (s *wsSession) StartResponse() error {
	return s.send(clientEvent{Type: opStartResponse})
}

func (s *wsSession) AddItem(item tools.FunctionCallOutputItem) error {
	return s.send(clientEvent{Type: opAddItem, CallID: item.CallID, Output: item.Output})
}

func (s *wsSession) CancelResponse() error {
	return s.send(clientEvent{Type: opCancelResponse})
}

func (s *wsSession) TruncateItem(itemID string, contentIndex int, audioEndMs int64) error {
	return s.send(clientEvent{
		Type:         opTruncateItem,
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	})
}

func (s *wsSession) send(ev clientEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(ev); err != nil {
		return coreerr.TransientNetwork(fmt.Sprintf("realtime.send(%s)", ev.Type), err)
	}
	return nil
}

// ReceiveUpdates starts the read loop and returns a channel of decoded
// events and a channel for a terminal error. The events channel closes when
// ctx is done or the connection is closed/errors; a read error is first sent
// on the error channel, which is buffered for one error and never closed.
func (s *wsSession) ReceiveUpdates(ctx context.Context) (<-chan ServerEvent, <-chan error) {
	events := make(chan ServerEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, data, err := s.conn.ReadMessage()
			if err != nil {
				select {
				case errs <- coreerr.RemoteProtocol("realtime.ReceiveUpdates", err):
				default:
				}
				return
			}

			var ev ServerEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				// Malformed frame: skipped without logging, not fatal to the loop.
				continue
			}
			if ev.Type == EventSessionStarted && ev.SessionID == "" {
				// Defensive default: never sent upstream, just gives callers a
				// stable identifier to key off of for the rest of the session.
				ev.SessionID = uuid.NewString()
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs
}

func (s *wsSession) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
