package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair dials a real WebSocket through an httptest server and returns both
// ends of the connection.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	server = <-connCh
	t.Cleanup(func() { server.Close() })
	return server, client
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(clockwork.NewFakeClock())
	t.Cleanup(h.Stop)
	return h
}

func readUpdate(t *testing.T, client *websocket.Conn) (string, domain.GifterUpdate) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)

	var envelope struct {
		Event string              `json:"event"`
		Data  domain.GifterUpdate `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &envelope))
	return envelope.Event, envelope.Data
}

func TestRegisterAndPublish(t *testing.T) {
	h := newTestHub(t)
	server, client := wsPair(t)

	require.NoError(t, h.Register("tenant-1", server))
	assert.Equal(t, 1, h.ClientCount("tenant-1"))

	update := domain.GifterUpdate{UserID: "42", UserName: "ann", GiftedSubs: 5, RewardsGiven: 1}
	h.PublishGifterUpdate("tenant-1", update)

	event, data := readUpdate(t, client)
	assert.Equal(t, "update_gifters", event)
	assert.Equal(t, update, data)
}

func TestPublishIsScopedToTenant(t *testing.T) {
	h := newTestHub(t)
	server1, client1 := wsPair(t)
	server2, client2 := wsPair(t)

	require.NoError(t, h.Register("tenant-1", server1))
	require.NoError(t, h.Register("tenant-2", server2))

	h.PublishGifterUpdate("tenant-1", domain.GifterUpdate{UserID: "42"})

	_, data := readUpdate(t, client1)
	assert.Equal(t, "42", data.UserID)

	// The other tenant's client sees nothing.
	require.NoError(t, client2.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := client2.ReadMessage()
	assert.Error(t, err)
}

func TestPublishToUnknownTenantIsANoOp(t *testing.T) {
	h := newTestHub(t)
	h.PublishGifterUpdate("tenant-1", domain.GifterUpdate{UserID: "42"})
	assert.Equal(t, 0, h.ClientCount("tenant-1"))
}

func TestUnregister(t *testing.T) {
	h := newTestHub(t)
	server, _ := wsPair(t)

	require.NoError(t, h.Register("tenant-1", server))
	h.Unregister("tenant-1", server)

	// Commands are processed in order, so a count query observes the removal.
	assert.Equal(t, 0, h.ClientCount("tenant-1"))
}

func TestUnregisterUnknownConnectionIsANoOp(t *testing.T) {
	h := newTestHub(t)
	server, _ := wsPair(t)

	h.Unregister("tenant-1", server)
	assert.Equal(t, 0, h.ClientCount("tenant-1"))
}

func TestMaxClientsPerTenant(t *testing.T) {
	h := newTestHub(t)

	conns := make([]*websocket.Conn, 0, maxClientsPerTenant+1)
	for i := 0; i <= maxClientsPerTenant; i++ {
		server, _ := wsPair(t)
		conns = append(conns, server)
	}

	for i := 0; i < maxClientsPerTenant; i++ {
		require.NoError(t, h.Register("tenant-1", conns[i]))
	}

	err := h.Register("tenant-1", conns[maxClientsPerTenant])
	assert.Error(t, err)
	assert.Equal(t, maxClientsPerTenant, h.ClientCount("tenant-1"))
}

func TestPingTickerKeepsConnectionsAlive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := NewHub(clock)
	t.Cleanup(h.Stop)

	// Wait for the hub loop to create its ticker before advancing.
	clock.BlockUntil(1)

	server, client := wsPair(t)
	require.NoError(t, h.Register("tenant-1", server))

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	clock.Advance(pingInterval)

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a ping after the interval elapsed")
	}
}

func TestStopClosesClients(t *testing.T) {
	h := NewHub(clockwork.NewFakeClock())
	server, client := wsPair(t)

	require.NoError(t, h.Register("tenant-1", server))
	h.Stop()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}
