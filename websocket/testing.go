package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewTestingEnv starts a debug stream server handling connections with the
// handlers returned by newHandler and connects a client to it.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	client, close := newTestingEnv(t, newHandler)
	return client, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}
	config.Header.Set("User-Agent", "ted")

	client, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error dialing web socket: %s", err)
	}

	return client, func() {
		client.Close()
		server.Close()
	}
}

// SendTestMsg sends a message of the given type from a test client.
func SendTestMsg(t *testing.T, conn *websocket.Conn, msgType MsgType, requestID uint32, v any) {
	msg, err := NewMsg(msgType, requestID, v)
	if err != nil {
		t.Fatalf("error creating message: %s", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("error encoding message: %s", err)
	}

	if err := websocket.Message.Send(conn, string(data)); err != nil {
		t.Fatalf("error sending message: %s", err)
	}
}

// ReceiveTestMsg returns the next message of the given type received by a
// test client. Other messages are skipped.
func ReceiveTestMsg(t *testing.T, conn *websocket.Conn, msgType MsgType, timeout time.Duration) Msg {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			t.Fatalf("error receiving %s message: %s", msgType, err)
		}

		var msg Msg
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("error decoding message: %s", err)
		}

		if msg.Type == msgType {
			return msg
		}
	}
}
