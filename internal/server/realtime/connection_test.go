package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/wire"
)

// wsPair upgrades one socket and returns both ends.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket accepted")
	}
	return server, client
}

func TestSendFrameDeliversDecodableFrame(t *testing.T) {
	server, client := wsPair(t)
	conn := NewConnection("user-1", server)
	conn.Start()
	defer conn.Close(websocket.CloseNormalClosure, "done")

	require.NoError(t, conn.SendFrame(wire.Frame{Type: wire.TypeMessageRead, ConversationID: "conv-1", MessageID: "m1"}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	f, err := wire.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeMessageRead, f.Type)
	assert.Equal(t, "m1", f.MessageID)
}

func TestSendAfterCloseFails(t *testing.T) {
	server, _ := wsPair(t)
	conn := NewConnection("user-1", server)
	conn.Start()

	conn.Close(websocket.CloseNormalClosure, "done")
	conn.Close(websocket.CloseNormalClosure, "again")

	assert.ErrorIs(t, conn.Send([]byte("late")), ErrConnectionClosed)
	assert.ErrorIs(t, conn.SendFrame(wire.Frame{Type: wire.TypeConnected}), ErrConnectionClosed)
}

func TestConcurrentSendAndCloseDoNotPanic(t *testing.T) {
	// A hub broadcast can race a session-replacement Close on the same
	// connection; the loser must get an error, never a panic.
	for i := 0; i < 20; i++ {
		server, _ := wsPair(t)
		conn := NewConnection("user-1", server)
		conn.Start()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := conn.Send([]byte("payload")); err != nil {
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			conn.Close(websocket.CloseGoingAway, "session replaced")
		}()
		wg.Wait()
	}
}
