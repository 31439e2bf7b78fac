package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWebSocketTestServer(t *testing.T, wsRate float64, wsBurst int) *httptest.Server {
	t.Helper()
	mcp := newTestServer(t, http.NotFoundHandler())
	cfg := Config{WSRate: wsRate, WSBurst: wsBurst}

	server := httptest.NewServer(newWebSocketHandler(mcp, cfg, quietLogger()))
	t.Cleanup(server.Close)
	return server
}

func dialMCP(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/mcp"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, message string) MCPResponse {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var resp MCPResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return resp
}

func TestWebSocket_Session(t *testing.T) {
	server := newWebSocketTestServer(t, 100, 10)
	conn := dialMCP(t, server)

	resp := roundTrip(t, conn, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if resp.Error == nil || resp.Error.Code != codeNotInitialized {
		t.Fatalf("tools/list before initialize = %+v", resp)
	}

	resp = roundTrip(t, conn, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{}}`)
	if resp.Error != nil {
		t.Fatalf("initialize error = %+v", resp.Error)
	}

	// The notification gets no reply, so the next frame read belongs to id 3.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	resp = roundTrip(t, conn, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	if resp.Error != nil || resp.ID != float64(3) {
		t.Fatalf("tools/list = %+v", resp)
	}
}

func TestWebSocket_SessionsAreIndependent(t *testing.T) {
	server := newWebSocketTestServer(t, 100, 10)

	first := dialMCP(t, server)
	if resp := roundTrip(t, first, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`); resp.Error != nil {
		t.Fatalf("initialize error = %+v", resp.Error)
	}

	second := dialMCP(t, server)
	resp := roundTrip(t, second, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if resp.Error == nil || resp.Error.Code != codeNotInitialized {
		t.Errorf("second connection tools/list = %+v, want not initialized", resp)
	}
}

func TestWebSocket_ThrottlesInbound(t *testing.T) {
	server := newWebSocketTestServer(t, 5, 1)
	conn := dialMCP(t, server)

	started := time.Now()
	for i := 0; i < 3; i++ {
		if resp := roundTrip(t, conn, `{"jsonrpc":"2.0","id":1,"method":"ping"}`); resp.Error != nil {
			t.Fatalf("ping error = %+v", resp.Error)
		}
	}

	// A burst of one at five per second spaces three messages at least 400ms apart.
	if elapsed := time.Since(started); elapsed < 300*time.Millisecond {
		t.Errorf("three messages took %v, want them throttled", elapsed)
	}
}

func TestWebSocket_Healthz(t *testing.T) {
	server := newWebSocketTestServer(t, 10, 20)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}
