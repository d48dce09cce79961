package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/corevox/noia/internal/tools"
)

func newEchoServer(t *testing.T, onMessage func(raw []byte, conn *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			onMessage(data, conn)
		}
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestConfigureSendsExpectedWireShape(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := newEchoServer(t, func(raw []byte, conn *websocket.Conn) {
		var m map[string]any
		json.Unmarshal(raw, &m)
		received <- m
	})
	defer srv.Close()

	c := NewClient(wsURL(srv.URL), "test-key")
	sess, err := c.Connect(context.Background(), "realtime-model")
	require.NoError(t, err)
	defer sess.Close()

	temp := 0.7
	err = sess.Configure(SessionConfig{
		Voice:        "sage",
		Instructions: "be helpful",
		Temperature:  &temp,
		ToolList: []tools.ToolDescriptor{
			{Name: "CalculatorPlugin-AddAsync", Description: "adds", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
	})
	require.NoError(t, err)

	select {
	case m := <-received:
		require.Equal(t, "session.update", m["type"])
		require.Equal(t, "sage", m["voice"])
		require.Equal(t, "pcm16", m["input_audio_format"])
		require.Equal(t, "auto", m["tool_choice"])
	case <-time.After(time.Second):
		t.Fatal("server never received configure message")
	}
}

func TestReceiveUpdatesDecodesClosedEventSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.WriteJSON(ServerEvent{Type: EventSessionStarted, SessionID: "sess-1"})
		conn.WriteJSON(ServerEvent{Type: EventOutputStreamingStarted, ItemID: "item-1"})
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv.URL), "")
	sess, err := c.Connect(context.Background(), "m")
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	events, _ := sess.ReceiveUpdates(ctx)

	e1 := <-events
	require.Equal(t, EventSessionStarted, e1.Type)
	require.Equal(t, "sess-1", e1.SessionID)

	e2 := <-events
	require.Equal(t, EventOutputStreamingStarted, e2.Type)
	require.Equal(t, "item-1", e2.ItemID)
}

func TestMalformedMessageDoesNotStopTheReadLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(ServerEvent{Type: EventError, ErrorMessage: "boom"})
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv.URL), "")
	sess, err := c.Connect(context.Background(), "m")
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	events, _ := sess.ReceiveUpdates(ctx)

	e := <-events
	require.Equal(t, EventError, e.Type)
	require.Equal(t, "boom", e.ErrorMessage)
}
