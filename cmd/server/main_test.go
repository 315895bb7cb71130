package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.add(conn, r.URL.Query().Get("session"))
		defer func() {
			hub.remove(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == n
	}, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastFiltersBySession(t *testing.T) {
	hub := newHub()
	srv := hubServer(t, hub)

	all := dial(t, srv, "")
	only := dial(t, srv, "?session=a")
	waitClients(t, hub, 2)

	hub.broadcast("decision", "b", websocket.TextMessage, []byte(`{"session_id":"b"}`))
	hub.broadcast("decision", "a", websocket.TextMessage, []byte(`{"session_id":"a"}`))

	_ = all.SetReadDeadline(time.Now().Add(time.Second))
	_, first, err := all.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"b"}`, string(first))
	_, second, err := all.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"a"}`, string(second))

	_ = only.SetReadDeadline(time.Now().Add(time.Second))
	_, got, err := only.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"a"}`, string(got))
}

func TestHub_BinaryPassthrough(t *testing.T) {
	hub := newHub()
	srv := hubServer(t, hub)
	conn := dial(t, srv, "?session=s")
	waitClients(t, hub, 1)

	payload := []byte{0, 0, 128, 63}
	hub.broadcast("wave", "s", websocket.BinaryMessage, payload)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	kind, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, payload, got)
}

func TestHub_RemovesClosedClients(t *testing.T) {
	hub := newHub()
	srv := hubServer(t, hub)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
	assert.Empty(t, hub.snapshot("any"))
}
