// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// newBridge starts a WebSocket server that sends frames, then echoes binary
// messages back until the client disconnects.
func newBridge(t *testing.T, frames []string, auth *string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			kind := websocket.BinaryMessage
			if strings.HasPrefix(f, "text:") {
				kind = websocket.TextMessage
				f = strings.TrimPrefix(f, "text:")
			}
			if err := conn.WriteMessage(kind, []byte(f)); err != nil {
				return
			}
		}
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_ReadBuffersFrames(t *testing.T) {
	url := newBridge(t, []string{"Synchro", "text:ignored", "nized\r\n"}, nil)
	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	got := make([]byte, 0, 14)
	buf := make([]byte, 4)
	for len(got) < len("Synchronized\r\n") {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "Synchronized\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestWebSocketConnection_WriteIsBinary(t *testing.T) {
	url := newBridge(t, nil, nil)
	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if n, err := conn.Write([]byte("?")); err != nil || n != 1 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	buf := make([]byte, 8)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "?" {
		t.Errorf("echo = %q", buf[:n])
	}
}

func TestWebSocketConnection_BasicAuth(t *testing.T) {
	var auth string
	url := newBridge(t, nil, &auth)
	conn, err := OpenWebSocketConnection(context.Background(), url, "admin", "secret", false)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	if auth != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestWebSocketConnection_ClosedRead(t *testing.T) {
	url := newBridge(t, nil, nil)
	conn, err := OpenWebSocketConnection(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	buf := make([]byte, 8)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("read on a closed connection should fail")
	}
	if _, err := conn.Read(buf); err != ErrConnectionClosed {
		t.Errorf("second read err = %v, want ErrConnectionClosed", err)
	}
}

func TestOpenWebSocketConnection_Scheme(t *testing.T) {
	for _, u := range []string{"http://example.com", "tcp://example.com:23"} {
		if _, err := OpenWebSocketConnection(context.Background(), u, "", "", false); err == nil {
			t.Errorf("%s: expected an error", u)
		}
	}
}

func TestOpenConnection_NeedsTarget(t *testing.T) {
	oldPort, oldURL := portName, wsURL
	defer func() { portName, wsURL = oldPort, oldURL }()
	portName, wsURL = "", ""

	if _, _, err := OpenConnection(context.Background()); err == nil {
		t.Error("expected an error without --port or --url")
	}
}

var _ io.ReadWriteCloser = (*WebSocketConnection)(nil)
