package spectator_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/replay"
	"github.com/cory-johannsen/skirmish/internal/spectator"
)

func dial(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) replay.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	f, err := replay.Decode(data)
	require.NoError(t, err)
	return f
}

func TestHub_SendsLastFrameOnJoin(t *testing.T) {
	hub := spectator.NewHub(zap.NewNop(), time.Second)
	defer hub.Close()
	srv := httptest.NewServer(spectator.Handler(hub))
	defer srv.Close()

	require.NoError(t, hub.WriteFrame(replay.Frame{Tick: 3}))
	conn := dial(t, srv.URL)
	assert.Equal(t, uint64(3), readFrame(t, conn).Tick)
}

func TestHub_BroadcastsToEverySpectator(t *testing.T) {
	hub := spectator.NewHub(zap.NewNop(), time.Second)
	defer hub.Close()
	srv := httptest.NewServer(spectator.Handler(hub))
	defer srv.Close()

	a := dial(t, srv.URL)
	b := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	frame := replay.Frame{Tick: 9, Entities: []replay.EntityFrame{{ID: 1, Kind: replay.KindUnit, Side: "red", Health: 2}}}
	require.NoError(t, hub.WriteFrame(frame))
	assert.Equal(t, frame, readFrame(t, a))
	assert.Equal(t, frame, readFrame(t, b))
}

func TestHub_SpectatorLeaves(t *testing.T) {
	hub := spectator.NewHub(zap.NewNop(), time.Second)
	defer hub.Close()
	srv := httptest.NewServer(spectator.Handler(hub))
	defer srv.Close()

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := spectator.NewHub(zap.NewNop(), time.Second)
	srv := httptest.NewServer(spectator.Handler(hub))
	defer srv.Close()

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	hub.Close()
	assert.Equal(t, 0, hub.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.NoError(t, hub.WriteFrame(replay.Frame{Tick: 1}))
}

func TestHandler_Healthz(t *testing.T) {
	hub := spectator.NewHub(zap.NewNop(), time.Second)
	defer hub.Close()
	srv := httptest.NewServer(spectator.Handler(hub))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok 0\n", string(body))
}

func TestServer_StartStop(t *testing.T) {
	hub := spectator.NewHub(zap.NewNop(), time.Second)
	s := spectator.NewServer(hub, "127.0.0.1:0", zap.NewNop())
	require.NoError(t, s.Listen())

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	conn := dial(t, "http://"+s.Addr())
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.WriteFrame(replay.Frame{Tick: 2}))
	assert.Equal(t, uint64(2), readFrame(t, conn).Tick)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
