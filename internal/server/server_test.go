package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/wsduplex/internal/config"
	"github.com/muurk/wsduplex/internal/handlers"
	"github.com/muurk/wsduplex/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("WSDUPLEX_LOG_LEVEL", "")

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.LogLevel = ""
	cfg.Workers = 2
	cfg.Timeouts.Shutdown = 5 * time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, h session.Handler) (*Server, *httptest.Server) {
	t.Helper()

	srv, err := New(cfg, h)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return srv, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
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

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if typ != websocket.TextMessage {
		t.Errorf("message type = %d, want text", typ)
	}
	return string(data)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPingPongEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(t), handlers.PingPong)

	conn, resp := dial(t, wsURL(ts, "/"))
	if got := resp.Header.Get("Server"); !strings.HasPrefix(got, "wsduplex/") {
		t.Errorf("Server header = %q, want wsduplex/ prefix", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if got := readText(t, conn); got != "pong" {
		t.Errorf("response = %q, want %q", got, "pong")
	}

	// No response for anything but "ping"; the next ping is still answered.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if got := readText(t, conn); got != "pong" {
		t.Errorf("response = %q, want %q", got, "pong")
	}

	if got := srv.ActiveSessions(); got != 1 {
		t.Errorf("ActiveSessions() = %d, want 1", got)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	eventually(t, "session to close", func() bool { return srv.ActiveSessions() == 0 })
}

func TestEchoBinary(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t), handlers.Echo)
	conn, _ := dial(t, wsURL(ts, "/"))

	payload := []byte{0x00, 0x10, 0xff}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if typ != websocket.BinaryMessage || string(data) != string(payload) {
		t.Errorf("got type %d data %x, want binary %x", typ, data, payload)
	}
}

func TestConcurrentSessions(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(t), handlers.Echo)

	const clients = 8
	conns := make([]*websocket.Conn, clients)
	for i := range conns {
		conns[i], _ = dial(t, wsURL(ts, "/"))
	}
	eventually(t, "all sessions", func() bool { return srv.ActiveSessions() == clients })

	for i, conn := range conns {
		msg := strings.Repeat("x", i+1)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("client %d WriteMessage() error = %v", i, err)
		}
	}
	for i, conn := range conns {
		if got, want := readText(t, conn), strings.Repeat("x", i+1); got != want {
			t.Errorf("client %d got %q, want %q", i, got, want)
		}
	}
}

func TestWrongPathIsNotUpgraded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Path = "/ws"
	_, ts := newTestServer(t, cfg, handlers.Echo)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/other"), nil)
	if err == nil {
		t.Fatal("Dial() to wrong path succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}

	conn, _ := dial(t, wsURL(ts, "/ws"))
	_ = conn.Close()
}

func TestShutdownClosesSessions(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(t), handlers.Discard)

	conn, _ := dial(t, wsURL(ts, "/"))
	eventually(t, "session", func() bool { return srv.ActiveSessions() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := srv.ActiveSessions(); got != 0 {
		t.Errorf("ActiveSessions() after Shutdown = %d, want 0", got)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() after Shutdown succeeded, want error")
	}

	// New upgrades are refused.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/"), nil)
	if err == nil {
		t.Fatal("Dial() after Shutdown succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}

	// Shutdown is idempotent.
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	srv, err := New(testConfig(t), handlers.PingPong)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	conn, _ := dial(t, "ws://"+ln.Addr().String()+"/")
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if got := readText(t, conn); got != "pong" {
		t.Errorf("response = %q, want %q", got, "pong")
	}
	if got := srv.Addr(); got == nil || got.String() != ln.Addr().String() {
		t.Errorf("Addr() = %v, want %v", got, ln.Addr())
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	if got := srv.ActiveSessions(); got != 0 {
		t.Errorf("ActiveSessions() = %d, want 0", got)
	}
	if err := srv.Serve(context.Background(), ln); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Serve() after shutdown error = %v, want %v", err, ErrServerClosed)
	}
}

func TestCaptureDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.CaptureDir = t.TempDir()
	_, ts := newTestServer(t, cfg, handlers.PingPong)

	conn, _ := dial(t, wsURL(ts, "/"))
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	readText(t, conn)

	matches, err := filepath.Glob(filepath.Join(cfg.CaptureDir, "capture-*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Errorf("capture files = %v (err %v), want 1", matches, err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Path = "no-slash"
	if _, err := New(cfg, handlers.Echo); err == nil {
		t.Error("New() with invalid config error = nil")
	}
}
