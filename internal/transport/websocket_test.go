package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type readResult struct {
	typ  MessageType
	data string
	err  error
}

// serveChannel starts a test server whose handler upgrades the request and
// hands the channel to fn.
func serveChannel(t *testing.T, opts Options, fn func(ch *WebSocketChannel)) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch := NewWebSocketChannel(w, r, opts)
		if err := ch.Handshake(r.Context()); err != nil {
			return
		}
		go fn(ch)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) (*websocket.Conn, *http.Response) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, resp
}

func TestWebSocketChannelReadWrite(t *testing.T) {
	results := make(chan readResult, 1)
	opts := DefaultOptions()
	opts.ServerHeader = "wsduplex-test"

	url := serveChannel(t, opts, func(ch *WebSocketChannel) {
		defer func() { _ = ch.Close() }()

		var buf bytes.Buffer
		typ, _, err := ch.ReadMessage(context.Background(), &buf)
		results <- readResult{typ: typ, data: buf.String(), err: err}
		if err != nil {
			return
		}
		_, _ = ch.WriteMessage(context.Background(), typ, []byte("pong"))
	})

	conn, resp := dial(t, url)
	if got := resp.Header.Get("Server"); got != "wsduplex-test" {
		t.Errorf("Server header = %q, want %q", got, "wsduplex-test")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	select {
	case res := <-results:
		if res.err != nil {
			t.Fatalf("ReadMessage() error = %v", res.err)
		}
		if res.typ != TextMessage {
			t.Errorf("type = %v, want %v", res.typ, TextMessage)
		}
		if res.data != "ping" {
			t.Errorf("payload = %q, want %q", res.data, "ping")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server read")
	}

	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("client ReadMessage() error = %v", err)
	}
	if typ != websocket.TextMessage || string(data) != "pong" {
		t.Errorf("client got (%d, %q), want (%d, %q)", typ, data, websocket.TextMessage, "pong")
	}
}

func TestWebSocketChannelGracefulClose(t *testing.T) {
	results := make(chan readResult, 1)
	url := serveChannel(t, DefaultOptions(), func(ch *WebSocketChannel) {
		defer func() { _ = ch.Close() }()
		var buf bytes.Buffer
		_, _, err := ch.ReadMessage(context.Background(), &buf)
		results <- readResult{err: err}
	})

	conn, _ := dial(t, url)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}

	select {
	case res := <-results:
		if !IsGracefulClose(res.err) {
			t.Errorf("error = %v, want graceful close", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server read")
	}
}

func TestWebSocketChannelIdleTimeout(t *testing.T) {
	results := make(chan readResult, 1)
	opts := DefaultOptions()
	opts.IdleTimeout = 50 * time.Millisecond

	url := serveChannel(t, opts, func(ch *WebSocketChannel) {
		defer func() { _ = ch.Close() }()
		var buf bytes.Buffer
		_, _, err := ch.ReadMessage(context.Background(), &buf)
		results <- readResult{err: err}
	})

	dial(t, url)

	select {
	case res := <-results:
		if !IsTimeout(res.err) {
			t.Errorf("error = %v, want timeout", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("idle timeout never fired")
	}
}

func TestWebSocketChannelReadLimit(t *testing.T) {
	results := make(chan readResult, 1)
	opts := DefaultOptions()
	opts.ReadLimit = 8

	url := serveChannel(t, opts, func(ch *WebSocketChannel) {
		defer func() { _ = ch.Close() }()
		var buf bytes.Buffer
		_, _, err := ch.ReadMessage(context.Background(), &buf)
		results <- readResult{err: err}
	})

	conn, _ := dial(t, url)
	if err := conn.WriteMessage(websocket.BinaryMessage, bytes.Repeat([]byte{1}, 64)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	select {
	case res := <-results:
		if got := KindOf(res.err); got != KindProtocol {
			t.Errorf("kind = %v, want %v (err = %v)", got, KindProtocol, res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server read")
	}
}

func TestWebSocketChannelHandshakeFailure(t *testing.T) {
	errs := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errs <- NewWebSocketChannel(w, r, DefaultOptions()).Handshake(r.Context())
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if got := KindOf(<-errs); got != KindHandshake {
		t.Errorf("kind = %v, want %v", got, KindHandshake)
	}
}

func TestWebSocketChannelUseBeforeHandshake(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	ch := NewWebSocketChannel(httptest.NewRecorder(), req, DefaultOptions())

	var buf bytes.Buffer
	if _, _, err := ch.ReadMessage(context.Background(), &buf); KindOf(err) != KindIO {
		t.Errorf("ReadMessage() before handshake error = %v, want io error", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("Close() before handshake error = %v", err)
	}
	if ch.RemoteAddr() != req.RemoteAddr {
		t.Errorf("RemoteAddr() = %q, want %q", ch.RemoteAddr(), req.RemoteAddr)
	}
}
